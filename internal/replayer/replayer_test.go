package replayer

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferencegate/inferencegate/internal/entry"
)

type flushRecorder struct {
	*httptest.ResponseRecorder
	flushes int
}

func (f *flushRecorder) Flush() { f.flushes++ }

func TestReplay_Buffered(t *testing.T) {
	w := httptest.NewRecorder()
	e := &entry.Entry{
		Response: entry.Response{
			StatusCode: 200,
			Headers:    map[string]string{"content-type": "application/json"},
			Body:       []byte(`{"ok":true}`),
		},
	}

	Replay(w, e)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, `{"ok":true}`, w.Body.String())
	assert.Equal(t, "11", w.Header().Get("Content-Length"))
}

func TestReplay_Streaming_PreservesChunkOrderAndFlushesEach(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &flushRecorder{ResponseRecorder: rec}

	chunks := [][]byte{
		[]byte("data: {\"delta\":\"He\"}\n\n"),
		[]byte("data: {\"delta\":\"llo\"}\n\n"),
		[]byte("data: [DONE]\n\n"),
	}
	e := &entry.Entry{
		Response: entry.Response{
			StatusCode:  200,
			IsStreaming: true,
		},
		Chunks: chunks,
	}

	Replay(w, e)

	require.Equal(t, 200, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, 3, w.flushes)

	var want string
	for _, c := range chunks {
		want += string(c)
	}
	assert.Equal(t, want, w.Body.String())
}

func TestReplay_Streaming_AssertsSSEHeadersEvenIfEntryHadNone(t *testing.T) {
	w := httptest.NewRecorder()
	e := &entry.Entry{
		Response: entry.Response{
			StatusCode:  200,
			Headers:     map[string]string{},
			IsStreaming: true,
		},
		Chunks: [][]byte{[]byte("data: [DONE]\n\n")},
	}

	Replay(w, e)

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "keep-alive", w.Header().Get("Connection"))
}
