// Package replayer materializes a stored entry back into an HTTP response.
// Follows the teacher's internal/stream.Write flushing discipline: assert
// http.Flusher, set SSE headers up front, flush after every write — but
// replays already-opaque byte chunks instead of reconstructing OpenAI SSE
// JSON payloads per event, since the chunks were recorded verbatim and
// re-deriving them would contradict the store's promise of byte-for-byte
// replay fidelity.
package replayer

import (
	"net/http"
	"strconv"

	"github.com/inferencegate/inferencegate/internal/entry"
)

// Replay writes e's response to w. Non-streaming entries get a recomputed
// content-length; streaming entries get forced SSE headers and one flush
// per recorded chunk, as fast as the client can drain — no artificial delay
// is reintroduced between chunks. If the client disconnects mid-replay, the
// write loop's error is swallowed: the entry itself is never touched by a
// replay, so a dropped connection has nothing further to clean up.
func Replay(w http.ResponseWriter, e *entry.Entry) {
	if e.Response.IsStreaming {
		replayStreaming(w, e)
		return
	}
	replayBuffered(w, e)
}

func replayBuffered(w http.ResponseWriter, e *entry.Entry) {
	header := w.Header()
	for k, v := range e.Response.Headers {
		header.Set(k, v)
	}
	header.Set("Content-Length", strconv.Itoa(len(e.Response.Body)))
	w.WriteHeader(e.Response.StatusCode)
	_, _ = w.Write(e.Response.Body)
}

func replayStreaming(w http.ResponseWriter, e *entry.Entry) {
	header := w.Header()
	for k, v := range e.Response.Headers {
		header.Set(k, v)
	}
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Del("Content-Length")
	w.WriteHeader(e.Response.StatusCode)

	flusher, _ := w.(http.Flusher)

	for _, chunk := range e.Chunks {
		if _, err := w.Write(chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
