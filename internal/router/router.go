// Package router implements the per-request state machine that reconciles
// cache-hit, cache-miss, and replay-only semantics with upstream forwarding
// and recording: listener → Handle → fingerprint → Store.Get →
// {Replayer ∥ (Upstream.Forward → Recorder → Replayer-from-just-recorded)}.
package router

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferencegate/inferencegate/internal/apperr"
	"github.com/inferencegate/inferencegate/internal/entry"
	"github.com/inferencegate/inferencegate/internal/fingerprint"
	"github.com/inferencegate/inferencegate/internal/recorder"
	"github.com/inferencegate/inferencegate/internal/replayer"
	"github.com/inferencegate/inferencegate/internal/store"
	"github.com/inferencegate/inferencegate/internal/upstream"
)

// Mode selects whether a cache miss forwards to the upstream or returns a
// fixed-shape 404.
type Mode int

const (
	// RecordAndReplay forwards on miss, records the response, and serves it.
	RecordAndReplay Mode = iota
	// ReplayOnly never contacts the upstream; a miss is a fixed 404.
	ReplayOnly
)

// String renders the mode the way config/introspection output names it.
func (m Mode) String() string {
	switch m {
	case RecordAndReplay:
		return "record_and_replay"
	case ReplayOnly:
		return "replay_only"
	default:
		return "unknown"
	}
}

// Router is stateless across requests aside from the shared Store.
type Router struct {
	Store     *store.Store
	Recorder  *recorder.Recorder
	Forwarder upstream.Forwarder
	Mode      Mode
	Log       *logrus.Logger
}

// hopByHopHeaders are stripped before forwarding, same set net/http's own
// reverse proxy strips, since they describe this hop's connection, not the
// request's semantic content.
var hopByHopHeaders = []string{
	"Connection", "Proxy-Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// Handle implements the full state machine for one inbound request.
func (rt *Router) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, _ := io.ReadAll(r.Body)
	_ = r.Body.Close()

	fp := fingerprint.Fingerprint(fingerprint.Input{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   map[string][]string(r.URL.Query()),
		Headers: flattenHeaders(r.Header),
		Body:    body,
	})

	unlock := rt.Store.Lock(fp.ID)
	defer unlock()

	outcome, status := rt.handleLocked(w, r, fp, body)

	fields := logrus.Fields{
		"id":          fp.ID,
		"outcome":     outcome,
		"status":      status,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if fp.Metadata.Model != "" {
		fields["model"] = fp.Metadata.Model
	}
	rt.Log.WithFields(fields).Info("request handled")
}

func (rt *Router) handleLocked(w http.ResponseWriter, r *http.Request, fp fingerprint.Result, body []byte) (outcome string, status int) {
	w.Header().Set("X-InferenceGate-Id", fp.ID)

	e, err := rt.Store.Get(fp.ID)
	if err != nil && errors.Is(err, apperr.ErrCorruptEntry) {
		rt.Log.WithError(err).WithField("id", fp.ID).Warn("corrupt entry degraded to cache miss")
		e, err = nil, nil
	}
	if err != nil {
		w.Header().Set("X-InferenceGate-Outcome", "error")
		writeJSONError(w, http.StatusInternalServerError, "storage_io", err.Error())
		return "error", http.StatusInternalServerError
	}

	if e != nil {
		w.Header().Set("X-InferenceGate-Outcome", "hit")
		replayer.Replay(w, e)
		return "hit", e.Response.StatusCode
	}

	if rt.Mode == ReplayOnly {
		w.Header().Set("X-InferenceGate-Outcome", "miss")
		writeCacheMiss(w, fp.ID)
		return "miss", http.StatusNotFound
	}

	return rt.forwardAndRecord(w, r, fp, body)
}

func (rt *Router) forwardAndRecord(w http.ResponseWriter, r *http.Request, fp fingerprint.Result, body []byte) (string, int) {
	req := &upstream.Request{
		Method:      r.Method,
		URL:         urlWithQuery(r.URL),
		Headers:     stripHopByHop(r.Header.Clone()),
		Body:        body,
		WantsStream: fp.WantsStream,
	}

	resp, err := rt.Forwarder.Forward(r.Context(), req)
	if err != nil {
		w.Header().Set("X-InferenceGate-Outcome", "upstream_error")
		writeJSONError(w, http.StatusBadGateway, "upstream_unreachable", err.Error())
		return "upstream_error", http.StatusBadGateway
	}

	w.Header().Set("X-InferenceGate-Outcome", "record")

	if resp.IsStream {
		if err := rt.Recorder.RecordStreaming(r.Context(), fp.ID, requestSnapshot(r, fp), resp, w); err != nil {
			rt.Log.WithError(err).WithField("id", fp.ID).Warn("streaming record failed after response started")
		}
		return "record", resp.StatusCode
	}

	e, err := rt.Recorder.RecordBuffered(fp.ID, requestSnapshot(r, fp), resp)
	if err != nil {
		w.Header().Set("X-InferenceGate-Outcome", "error")
		writeJSONError(w, http.StatusInternalServerError, "storage_io", err.Error())
		return "error", http.StatusInternalServerError
	}
	replayer.Replay(w, e)
	return "record", e.Response.StatusCode
}

func requestSnapshot(r *http.Request, fp fingerprint.Result) entry.Request {
	return entry.Request{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   map[string][]string(r.URL.Query()),
		Headers: fingerprintRelevantHeaders(r.Header),
		Body:    fp.Body,
	}
}

// fingerprintRelevantHeaders keeps only the allow-listed subset the entry
// model persists (content-type), matching the fingerprint's own view of the
// request so introspection of a stored entry reflects what was actually
// matched on.
func fingerprintRelevantHeaders(h http.Header) map[string]string {
	out := map[string]string{}
	if ct := h.Get("Content-Type"); ct != "" {
		out["content-type"] = ct
	}
	return out
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func stripHopByHop(h http.Header) http.Header {
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
	return h
}

func urlWithQuery(u *url.URL) string {
	if u.RawQuery == "" {
		return u.Path
	}
	return u.Path + "?" + u.RawQuery
}

// cacheMissBody is the frozen REPLAY_ONLY miss shape; test suites detect
// this exact JSON, so field names, casing, and content are never changed.
type cacheMissBody struct {
	Error   string `json:"error"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

func writeCacheMiss(w http.ResponseWriter, id string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(cacheMissBody{
		Error:   "cache_miss",
		ID:      id,
		Message: "No cached entry for this request; replay-only mode.",
	})
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: code, Message: message})
}
