// Package upstreamtest provides a cassette-backed fake upstream for tests:
// an httptest.Server that either replays a pre-recorded cassette (no real
// network, ModeReplayOnly) or records fresh interactions against a real
// origin (ModeRecordOnly), as the caller chooses. Grounded on gopkg.in/dnaeon/go-vcr.v4, the direct-but-
// unused dependency the teacher's go.mod already carried — this is its
// first real use in the module.
package upstreamtest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"

	"gopkg.in/dnaeon/go-vcr.v4/pkg/cassette"
	"gopkg.in/dnaeon/go-vcr.v4/pkg/recorder"
)

// Server is a fake OpenAI-compatible upstream for exercising the router and
// upstream forwarder end-to-end without a real network dependency.
type Server struct {
	httpServer *httptest.Server
	recorder   *recorder.Recorder
}

// Mode selects whether the fake upstream replays a cassette or records a
// fresh one against a real origin.
type Mode int

const (
	// ModeReplayOnly never dials out; every request must match a cassette
	// interaction or the recorder returns an error.
	ModeReplayOnly Mode = iota
	// ModeRecordOnly dials the real origin (via upstreamURL) and writes a
	// new cassette, for refreshing fixtures.
	ModeRecordOnly
)

// New builds a fake upstream backed by the cassette at cassettePath. In
// ModeRecordOnly, upstreamURL is the real origin requests are forwarded to
// while being captured.
func New(cassettePath string, mode Mode, upstreamURL string) (*Server, error) {
	vcrMode := recorder.ModeReplayOnly
	if mode == ModeRecordOnly {
		vcrMode = recorder.ModeRecordOnly
	}

	rec, err := recorder.New(cassettePath,
		recorder.WithMode(vcrMode),
		recorder.WithMatcher(matchMethodAndPath),
		recorder.WithSkipRequestLatency(true),
	)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	client := &http.Client{Transport: rec}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		proxyReq, err := http.NewRequest(r.Method, upstreamURL+r.URL.RequestURI(), r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		proxyReq.Header = r.Header.Clone()

		resp, err := client.Do(proxyReq)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		for k, v := range resp.Header {
			w.Header()[k] = v
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = io.Copy(w, resp.Body)
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	})

	return &Server{
		httpServer: httptest.NewServer(mux),
		recorder:   rec,
	}, nil
}

// URL returns the fake upstream's base URL, suitable for
// upstream.NewHTTPForwarder.
func (s *Server) URL() string { return s.httpServer.URL }

// Close stops the server and, in ModeRecordOnly, flushes the cassette to
// disk.
func (s *Server) Close() error {
	s.httpServer.Close()
	return s.recorder.Stop()
}

// matchMethodAndPath is a cassette.Matcher that compares method and URL
// path only. Headers, query string and body are not compared (the
// fingerprint ignores auth headers; this fake upstream shouldn't
// re-introduce header sensitivity, and test bodies may carry
// nondeterministic fields).
func matchMethodAndPath(r *http.Request, i cassette.Request) bool {
	if r.Method != i.Method {
		return false
	}
	if r.URL.Path != pathOf(i.URL) {
		return false
	}
	return true
}

func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}
