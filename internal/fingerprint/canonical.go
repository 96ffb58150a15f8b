package fingerprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// decodeJSON parses data preserving the lexical form of numbers (so
// "1.50" doesn't canonicalize to "1.5" and drift the fingerprint).
// Returns ok=false if data is not valid JSON.
func decodeJSON(data []byte) (any, bool) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	// Reject trailing garbage after the first JSON value.
	if dec.More() {
		return nil, false
	}
	return v, true
}

// canonicalJSON re-emits a decoded JSON tree with object keys sorted
// recursively. Arrays keep their original order. Strings and numbers are
// written byte-for-byte (json.Number preserves the original lexical form).
func canonicalJSON(v any) []byte {
	var buf bytes.Buffer
	writeCanonical(&buf, v)
	return buf.Bytes()
}

func writeCanonical(buf *bytes.Buffer, v any) {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(string(val))
	case string:
		b, _ := json.Marshal(val)
		buf.Write(b)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, elem)
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			writeCanonical(buf, val[k])
		}
		buf.WriteByte('}')
	default:
		// Shouldn't happen for json.Decoder.UseNumber() output, but keep
		// canonicalization total rather than panicking on unknown input.
		b, _ := json.Marshal(val)
		buf.Write(b)
	}
}

// canonicalQuery re-emits query parameters sorted by name; values within a
// repeated name keep their original (insertion) order.
func canonicalQuery(q map[string][]string) []byte {
	names := make([]string, 0, len(q))
	for k := range q {
		names = append(names, k)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for i, name := range names {
		if i > 0 {
			buf.WriteByte('&')
		}
		for j, v := range q[name] {
			if j > 0 {
				buf.WriteByte('&')
			}
			fmt.Fprintf(&buf, "%s=%s", name, v)
		}
	}
	return buf.Bytes()
}

// canonicalHeaders re-emits the allow-listed headers, lowercased name and
// trimmed value, sorted by name.
func canonicalHeaders(h map[string]string) []byte {
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for i, name := range names {
		if i > 0 {
			buf.WriteByte('&')
		}
		fmt.Fprintf(&buf, "%s=%s", name, h[name])
	}
	return buf.Bytes()
}
