package encoding

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is the in-memory representation of a vector's JSON-shaped
// metadata tree. The wire format is plain JSON (teacher's
// EncodeMetadata/DecodeMetadata pattern generalized from map[string]string
// to arbitrary JSON), but callers that only need path-based equality never
// need to know the concrete Go type a field decoded to.
type Payload map[string]interface{}

// EncodePayload serializes a payload to its JSON wire form. A nil payload
// encodes to an empty string, matching the teacher's treatment of absent
// metadata.
func EncodePayload(p Payload) (string, error) {
	if p == nil {
		return "", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(data), nil
}

// DecodePayload is the inverse of EncodePayload.
func DecodePayload(s string) (Payload, error) {
	if s == "" {
		return nil, nil
	}
	var p Payload
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

// Lookup resolves a dot-separated path ("a.b.c") against the payload tree,
// descending through nested objects. It returns ok=false if any segment is
// missing or the tree takes a wrong shape (e.g. indexing into a scalar).
func (p Payload) Lookup(path string) (value interface{}, ok bool) {
	if p == nil || path == "" {
		return nil, false
	}

	segments := strings.Split(path, ".")
	var cur interface{} = map[string]interface{}(p)

	for _, seg := range segments {
		m, isMap := cur.(map[string]interface{})
		if !isMap {
			return nil, false
		}
		v, exists := m[seg]
		if !exists {
			return nil, false
		}
		cur = v
	}

	return cur, true
}
