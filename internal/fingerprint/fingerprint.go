// Package fingerprint derives a stable content-addressed id from an inbound
// request: same method, path, query, allow-listed headers, and body always
// yields the same id, regardless of header ordering, query parameter
// ordering, or incidental JSON whitespace/key ordering in the body.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/inferencegate/inferencegate/internal/entry"
)

// allowedHeaders is the fixed header allow-list: everything else (including
// Authorization, User-Agent, and any tracing/request-id headers) never
// participates in the fingerprint. Open question in the source spec
// ("should more headers than content-type ever matter?") resolved as: no —
// loosening this list risks two semantically-identical requests fingerprinting
// differently because of an unrelated header, which defeats the cache.
var allowedHeaders = map[string]bool{
	"content-type": true,
}

// separator delimits the fields folded into the digest. 0x1F (ASCII Unit
// Separator) can't appear in any of method/path/query/header/body text that
// reaches here as a legal HTTP token, so it can't be used to engineer a
// collision between e.g. a long path and a short one with matching query.
const separator = byte(0x1F)

// Input is the canonical view of an inbound request the fingerprinter
// consumes. Callers (the router) are responsible for extracting these from
// the live *http.Request.
type Input struct {
	Method  string
	Path    string
	Query   map[string][]string
	Headers map[string]string // names in any case; Fingerprint lowercases them
	Body    []byte
}

// Result is everything Fingerprint derives from an Input.
type Result struct {
	ID         string
	PromptHash string
	Metadata   entry.Metadata
	Body       entry.Body
	// WantsStream reports whether the decoded body sets "stream": true, for
	// callers (the router/upstream forwarder) deciding whether a chunked,
	// content-length-less upstream response should be treated as an SSE
	// stream. Like Model/Temperature, this is derived for display/routing
	// purposes only and never affects the id: "stream" is still part of the
	// hashed body, so flipping it still changes the fingerprint.
	WantsStream bool
}

// Fingerprint computes the content-addressed id for req. It never returns an
// error: a body that isn't valid JSON still fingerprints, over its raw bytes
// instead of a canonicalized JSON tree.
func Fingerprint(req Input) Result {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	cleanPath := normalizePath(req.Path)

	filteredHeaders := make(map[string]string, len(req.Headers))
	for k, v := range req.Headers {
		lk := strings.ToLower(strings.TrimSpace(k))
		if allowedHeaders[lk] {
			filteredHeaders[lk] = strings.TrimSpace(v)
		}
	}

	body := canonicalBody(req.Body)

	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{separator})
	h.Write([]byte(cleanPath))
	h.Write([]byte{separator})
	h.Write(canonicalQuery(req.Query))
	h.Write([]byte{separator})
	h.Write(canonicalHeaders(filteredHeaders))
	h.Write([]byte{separator})
	h.Write(body)

	id := hex.EncodeToString(h.Sum(nil))

	model, temperature, wantsStream := extractModelFields(req.Body)

	return Result{
		ID:         id,
		PromptHash: promptHash(req.Body),
		Metadata: entry.Metadata{
			Model:       model,
			Temperature: temperature,
			PromptHash:  promptHash(req.Body),
			RecordedAt:  time.Time{}, // filled in by the caller at record time
		},
		Body:        requestBody(req.Body),
		WantsStream: wantsStream,
	}
}

// normalizePath percent-decodes and then applies path.Clean (which drops
// trailing slashes except on the root, collapses repeated slashes and
// resolves "." and ".." segments), so "/v1/chat%2Fcompletions" and a literal
// "/v1/chat/completions" don't silently diverge, and "/v1/foo/" and "/v1/foo"
// fingerprint identically.
func normalizePath(p string) string {
	if decoded, err := url.PathUnescape(p); err == nil {
		p = decoded
	}
	p = path.Clean("/" + p)
	return p
}

// canonicalBody returns the bytes folded into the digest for the request
// body: canonicalized JSON when the body parses as JSON, the raw bytes
// otherwise.
func canonicalBody(raw []byte) []byte {
	if v, ok := decodeJSON(raw); ok {
		return canonicalJSON(v)
	}
	return raw
}

// requestBody builds the entry.Body tagged variant stored alongside the
// fingerprint, so the introspection API and replayed error bodies can show
// the body back without re-deriving it from raw bytes.
func requestBody(raw []byte) entry.Body {
	if v, ok := decodeJSON(raw); ok {
		return entry.Body{IsJSON: true, JSON: v}
	}
	return entry.Body{IsJSON: false, Raw: raw}
}

// promptHash hashes just the messages/input field of a JSON body, so the
// introspection API and cache tooling can group/dedupe entries by prompt
// content without that grouping affecting the fingerprint id itself (the
// prompt hash is metadata, never consulted for matching).
func promptHash(raw []byte) string {
	v, ok := decodeJSON(raw)
	if !ok {
		return ""
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	var field any
	if m, ok := obj["messages"]; ok {
		field = m
	} else if in, ok := obj["input"]; ok {
		field = in
	} else {
		return ""
	}
	sum := sha256.Sum256(canonicalJSON(field))
	return hex.EncodeToString(sum[:])
}

// extractModelFields pulls the model name, temperature, and stream flag out
// of a JSON body for display/routing purposes only (cache listings, logs,
// the upstream forwarder's streaming-response fallback classification).
// Absence of any field, or a non-JSON body, yields zero values — none of
// this ever affects the id.
func extractModelFields(raw []byte) (model string, temperature *float64, wantsStream bool) {
	v, ok := decodeJSON(raw)
	if !ok {
		return "", nil, false
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return "", nil, false
	}
	if m, ok := obj["model"].(string); ok {
		model = m
	}
	if n, ok := obj["temperature"].(json.Number); ok {
		if f, err := n.Float64(); err == nil {
			temperature = &f
		}
	}
	if s, ok := obj["stream"].(bool); ok {
		wantsStream = s
	}
	return model, temperature, wantsStream
}
