// Package entry defines the Entry data model: the unit of cache storage
// shared by the fingerprinter, store, recorder, replayer, and router.
package entry

import "time"

// Body is the tagged variant the source's dynamic request/response shapes
// map onto: either a decoded JSON tree (json.Unmarshal target, numbers kept
// as json.Number so their lexical form survives) or the raw byte sequence
// for anything that isn't JSON.
type Body struct {
	IsJSON bool   `json:"is_json"`
	JSON   any    `json:"json,omitempty"`
	Raw    []byte `json:"raw,omitempty"`
}

// Request is the canonicalized view of an incoming HTTP request that gets
// persisted alongside its response.
type Request struct {
	Method  string              `json:"method"`
	Path    string              `json:"path"`
	Query   map[string][]string `json:"query"`
	Headers map[string]string   `json:"headers"`
	Body    Body                `json:"body"`
}

// Response is the persisted half of an Entry.
type Response struct {
	StatusCode   int               `json:"status_code"`
	Headers      map[string]string `json:"headers"`
	IsStreaming  bool              `json:"is_streaming"`
	Body         []byte            `json:"body,omitempty"`
	BodyJSON     any               `json:"body_json,omitempty"`
	ChunkCount   int               `json:"chunk_count,omitempty"`
}

// Metadata holds the derived, non-authoritative fields of an Entry.
// Derived from the request body by the fingerprinter; never consulted for
// matching.
type Metadata struct {
	Model       string    `json:"model,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	PromptHash  string    `json:"prompt_hash"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Entry is the unit of cache storage: one recorded {request, response} pair
// keyed by its fingerprint id.
type Entry struct {
	ID       string   `json:"id"`
	Request  Request  `json:"request"`
	Response Response `json:"response"`
	Metadata Metadata `json:"metadata"`

	// Chunks holds the ordered, opaque byte chunks for a streaming entry.
	// Store.Get always reads every chunk file of a streaming entry up
	// front; chunks are not loaded lazily. Store.List does not read them.
	// Exactly one of Response.Body and Chunks is non-empty, matching
	// IsStreaming.
	Chunks [][]byte `json:"-"`
}

// Summary is the lightweight projection Store.List yields: enough to
// render a cache listing without reading request/response bodies.
type Summary struct {
	ID          string `json:"id"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Status      int    `json:"status"`
	IsStreaming bool   `json:"is_streaming"`
	Model       string `json:"model,omitempty"`
}

// Stats is the aggregate view Store.Stats returns.
type Stats struct {
	TotalEntries       int            `json:"total_entries"`
	TotalSizeBytes      int64          `json:"total_size_bytes"`
	StreamingResponses  int            `json:"streaming_responses"`
	EntriesByModel      map[string]int `json:"entries_by_model"`
}
