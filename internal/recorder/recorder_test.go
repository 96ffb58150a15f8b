package recorder

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferencegate/inferencegate/internal/entry"
	"github.com/inferencegate/inferencegate/internal/store"
	"github.com/inferencegate/inferencegate/internal/upstream"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestRecordBuffered_ReturnsBufferedBody(t *testing.T) {
	s := newTestStore(t)
	r := New(s)

	resp := &upstream.Response{
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
	}

	e, err := r.RecordBuffered("feedface01", entry.Request{Method: "POST", Path: "/v1/chat/completions"}, resp)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"ok":true}`), e.Response.Body)
	assert.False(t, e.Response.IsStreaming)
	assert.Equal(t, "application/json", e.Response.Headers["content-type"])

	stored, err := s.Get("feedface01")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, []byte(`{"ok":true}`), stored.Response.Body)
}

func TestRecordBuffered_NonTwoXXStillRecorded(t *testing.T) {
	s := newTestStore(t)
	r := New(s)

	resp := &upstream.Response{
		StatusCode: 429,
		Headers:    http.Header{},
		Body:       io.NopCloser(strings.NewReader(`{"error":"rate_limited"}`)),
	}

	e, err := r.RecordBuffered("rate-limited-id", entry.Request{Method: "POST"}, resp)
	require.NoError(t, err)
	assert.Equal(t, 429, e.Response.StatusCode)
}

func TestRecordStreaming_PersistsChunksInOrderOnCleanEOF(t *testing.T) {
	s := newTestStore(t)
	r := New(s)

	chunks := []string{
		"data: {\"delta\":\"He\"}\n\n",
		"data: {\"delta\":\"llo\"}\n\n",
		"data: [DONE]\n\n",
	}
	resp := &upstream.Response{
		StatusCode: 200,
		Headers:    http.Header{"Content-Type": []string{"text/event-stream"}},
		Body:       io.NopCloser(strings.NewReader(strings.Join(chunks, ""))),
		IsStream:   true,
	}

	w := httptest.NewRecorder()
	req := entry.Request{Method: "POST", Path: "/v1/chat/completions"}
	req.Body.IsJSON = true
	req.Body.JSON = map[string]any{"model": "gpt-4o"}

	err := r.RecordStreaming(context.Background(), "stream-id-1", req, resp, w)
	require.NoError(t, err)

	assert.Equal(t, strings.Join(chunks, ""), w.Body.String())
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	summaries, err := s.List()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.True(t, summaries[0].IsStreaming)
}

func TestRecordStreaming_DiscardsOnReadError(t *testing.T) {
	s := newTestStore(t)
	r := New(s)

	resp := &upstream.Response{
		StatusCode: 200,
		Headers:    http.Header{},
		Body:       io.NopCloser(errorReader{}),
		IsStream:   true,
	}
	w := httptest.NewRecorder()

	err := r.RecordStreaming(context.Background(), "stream-id-2", entry.Request{}, resp, w)
	require.Error(t, err)

	summaries, listErr := s.List()
	require.NoError(t, listErr)
	assert.Empty(t, summaries)
}

type errorReader struct{}

func (errorReader) Read(p []byte) (int, error) { return 0, errors.New("connection reset") }
