package upstreamtest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_RecordsThenReplays(t *testing.T) {
	real := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"chatcmpl-1","choices":[{"message":{"content":"hi"}}]}`))
	}))
	defer real.Close()

	cassettePath := filepath.Join(t.TempDir(), "fixture")

	rec, err := New(cassettePath, ModeRecordOnly, real.URL)
	require.NoError(t, err)

	resp, err := http.Post(rec.URL()+"/v1/chat/completions", "application/json", nil)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "chatcmpl-1")

	require.NoError(t, rec.Close())

	replay, err := New(cassettePath, ModeReplayOnly, "")
	require.NoError(t, err)
	defer replay.Close()

	resp2, err := http.Post(replay.URL()+"/v1/chat/completions", "application/json", nil)
	require.NoError(t, err)
	body2, _ := io.ReadAll(resp2.Body)
	resp2.Body.Close()
	assert.Contains(t, string(body2), "chatcmpl-1")
}
