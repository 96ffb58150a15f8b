// Package recorder consumes an upstream response — buffered or streamed —
// and persists it as a store entry once fully observed.
//
// The streaming path's tee is grounded on the reference pack's
// StreamingRecorder.RoundTrip, which wraps resp.Body in an io.TeeReader and
// finalizes the cassette interaction only when the wrapped body is closed
// after a clean drain. Here the equivalent finalization point is "upstream
// EOF observed," not "body closed" (the recorder writes to the client as it
// reads, so closing the client connection doesn't mean the upstream is
// done) — everything up to and including that EOF is teed to the client and
// accumulated. A read error ends the stream: what was forwarded before it
// is never persisted. Client cancellation does not stop recording.
package recorder

import (
	"context"
	"io"
	"net/http"

	"github.com/inferencegate/inferencegate/internal/entry"
	"github.com/inferencegate/inferencegate/internal/store"
	"github.com/inferencegate/inferencegate/internal/upstream"
)

// Recorder persists upstream responses via a Store.
type Recorder struct {
	store *store.Store
}

// New builds a Recorder backed by s.
func New(s *store.Store) *Recorder {
	return &Recorder{store: s}
}

// headerMap lowercases an http.Header into the map[string]string shape the
// entry model stores, keeping only the first value per name — fingerprint-
// irrelevant headers are not filtered here, the full response header set is
// persisted for replay.
func headerMap(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[toLowerHeader(k)] = v[0]
		}
	}
	return out
}

func toLowerHeader(k string) string {
	b := []byte(k)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// RecordBuffered reads resp.Body to completion, persists a non-streaming
// entry, and returns the buffered body so the caller (the router) can hand
// it to the Replayer without re-reading the store. A non-2xx status is
// still recorded; a read error before the body is fully drained is
// returned and nothing is persisted.
func (r *Recorder) RecordBuffered(id string, req entry.Request, resp *upstream.Response) (*entry.Entry, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	e := &entry.Entry{
		ID:      id,
		Request: req,
		Response: entry.Response{
			StatusCode:  resp.StatusCode,
			Headers:     headerMap(resp.Headers),
			IsStreaming: false,
			Body:        body,
		},
	}
	if err := r.store.Put(e); err != nil {
		return e, err
	}
	return e, nil
}

// RecordStreaming tees resp.Body to w chunk-by-chunk as it arrives,
// flushing after every chunk, while accumulating the same chunks in order.
// On a clean upstream EOF, the accumulated chunks are persisted as one
// streaming entry. On a read error the accumulator is discarded and no
// entry is published — the client has already seen whatever was forwarded
// before the failure, matching what the upstream itself produced.
//
// ctx is accepted for symmetry with the rest of the call chain but is
// deliberately NOT used to abort this loop: the client's connection
// canceling ctx must not stop recording, since the upstream call has
// already been paid for and the entry should still be persisted for future
// replay (the cancellation rule in the concurrency model). A client
// disconnect is instead detected as a write error on w and handled by
// switching to a writer that discards, so the read/accumulate/Put path
// keeps running to completion.
func (r *Recorder) RecordStreaming(ctx context.Context, id string, req entry.Request, resp *upstream.Response, w http.ResponseWriter) error {
	_ = ctx
	defer resp.Body.Close()

	flusher, _ := w.(http.Flusher)

	header := w.Header()
	for k, v := range resp.Headers {
		header[k] = v
	}
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	w.WriteHeader(resp.StatusCode)

	var chunks [][]byte
	buf := make([]byte, 32*1024)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			chunks = append(chunks, chunk)

			if _, writeErr := w.Write(chunk); writeErr != nil {
				// Client went away; the upstream call has already been
				// paid for, so recording continues to completion per the
				// cancellation rule — only the write to this client stops.
				w = discardWriter{}
			}
			if flusher != nil {
				flusher.Flush()
			}
		}

		if readErr == io.EOF {
			e := &entry.Entry{
				ID:      id,
				Request: req,
				Response: entry.Response{
					StatusCode:  resp.StatusCode,
					Headers:     headerMap(resp.Headers),
					IsStreaming: true,
					ChunkCount:  len(chunks),
				},
				Chunks: chunks,
			}
			return r.store.Put(e)
		}
		if readErr != nil {
			// Abnormal termination: discard, don't call Store.Put.
			return readErr
		}
	}
}

// discardWriter lets RecordStreaming keep draining and recording the
// upstream stream after the real client connection has failed, without
// special-casing every subsequent w.Write call.
type discardWriter struct{}

func (discardWriter) Header() http.Header        { return http.Header{} }
func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
func (discardWriter) WriteHeader(int)            {}
