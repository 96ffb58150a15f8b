package upstream

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func resp(contentType string, contentLength int64, chunked bool) *http.Response {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	r := &http.Response{Header: h, ContentLength: contentLength}
	if chunked {
		r.TransferEncoding = []string{"chunked"}
	}
	return r
}

func TestIsStreamResponse_EventStreamContentTypeAlwaysStreams(t *testing.T) {
	r := resp("text/event-stream", -1, true)
	assert.True(t, IsStreamResponse(r, false))
	assert.True(t, IsStreamResponse(r, true))
}

func TestIsStreamResponse_NonStreamingContentTypeNeverStreams(t *testing.T) {
	r := resp("application/json", -1, true)
	assert.False(t, IsStreamResponse(r, false))
	assert.False(t, IsStreamResponse(r, true))
}

func TestIsStreamResponse_ChunkedFallbackRequiresRequestWantedStream(t *testing.T) {
	r := resp("", -1, true)
	assert.False(t, IsStreamResponse(r, false), "non-streaming request with a chunked response must not be classified as a stream")
	assert.True(t, IsStreamResponse(r, true))
}

func TestIsStreamResponse_ChunkedFallbackRequiresNoContentLength(t *testing.T) {
	h := http.Header{}
	r := &http.Response{Header: h, ContentLength: 42, TransferEncoding: []string{"chunked"}}
	assert.False(t, IsStreamResponse(r, true))
}
