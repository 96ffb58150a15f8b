// Package upstream forwards a proxied request to the configured
// OpenAI-compatible origin and distinguishes transport failures (no status
// line received at all) from HTTP-status responses, which the router
// records and replays regardless of status code.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Request is the canonical view of an inbound request forwarded verbatim
// to the upstream, minus hop-by-hop headers the transport already manages.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
	// WantsStream reports whether the inbound request's decoded body set
	// "stream": true. It only ever widens IsStreamResponse's fallback
	// classification (chunked, content-length-less, no content-type) —
	// a response that declares text/event-stream is always treated as a
	// stream regardless of this flag.
	WantsStream bool
}

// Response is what Forward returns on a successful round trip — the
// upstream produced a status line, whether or not that status is 2xx.
type Response struct {
	StatusCode int
	Headers    http.Header
	// Body is the full *http.Response.Body, unread. Callers (the recorder)
	// decide whether to buffer it or tee it chunk-by-chunk depending on
	// IsStream.
	Body io.ReadCloser
	// IsStream reports whether this response looks like an SSE stream:
	// content-type text/event-stream, or (only when the request asked for
	// streaming) chunked transfer with no content-length.
	IsStream bool
}

// TransportError wraps a failure that happened before any status line was
// received: DNS failure, connection refused, TLS handshake failure, or the
// request context being canceled mid-dial/mid-send.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "upstream unreachable: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// Forwarder sends a Request to the upstream and returns its Response, or a
// *TransportError if no response was ever received.
type Forwarder interface {
	Forward(ctx context.Context, req *Request) (*Response, error)
}

// HTTPForwarder is the concrete Forwarder backed by *http.Client, following
// the teacher's dependency-injected-client constructor pattern
// (NewGoogleProvider(apiKey, baseURL, client)) so tests can swap in a fake
// upstream without touching any real network.
type HTTPForwarder struct {
	baseURL string
	client  *http.Client
}

// NewHTTPForwarder builds a Forwarder that sends every request to baseURL
// using client. baseURL is the full origin (scheme + host[:port]); the
// request's own path and query are appended to it.
func NewHTTPForwarder(baseURL string, client *http.Client) *HTTPForwarder {
	return &HTTPForwarder{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (f *HTTPForwarder) Forward(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, f.baseURL+req.URL, newBodyReader(req.Body))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	httpReq.Header = req.Headers.Clone()

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       resp.Body,
		IsStream:   IsStreamResponse(resp, req.WantsStream),
	}, nil
}

// IsStreamResponse reports whether resp looks like an SSE stream, checking
// the content-type header first and falling back — only when the inbound
// request itself asked for streaming — to a chunked-transfer signal the way
// a proxy has to when an origin omits content-type on a streaming response.
// Without that request-side check, any chunked/no-content-length response
// to a non-streaming request would be misrouted through the tee-and-flush
// streaming path instead of buffered recording.
func IsStreamResponse(resp *http.Response, requestWantsStream bool) bool {
	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "text/event-stream") {
		return true
	}
	if ct != "" {
		return false
	}
	return requestWantsStream && resp.ContentLength < 0 && len(resp.TransferEncoding) > 0
}

func newBodyReader(body []byte) io.Reader {
	if body == nil {
		return nil
	}
	return bytes.NewReader(body)
}

// errUnexpectedTransport is returned by fakes/tests that want to simulate a
// transport error without constructing a real network failure.
var errUnexpectedTransport = fmt.Errorf("simulated transport failure")

// ErrTransport lets tests build a *TransportError without depending on a
// real network condition.
func ErrTransport(cause error) error {
	if cause == nil {
		cause = errUnexpectedTransport
	}
	return &TransportError{Err: cause}
}
