package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FromJSON decodes ordinary JSON into the value space accepted by Marshal.
// Integers become int64, object members whose value is null are dropped
// (absent and null mean the same thing for a payload) and non-integral
// numbers are rejected.
func FromJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return normalize(v)
}

// FingerprintJSON marshals v with encoding/json, then fingerprints the
// canonical form under domain.
func FingerprintJSON(domain string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	val, err := FromJSON(data)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return Fingerprint(domain, val)
}

func normalize(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number %s is not an integer", val)
		}
		return n, nil
	case []any:
		out := make([]any, 0, len(val))
		for i, elem := range val {
			if elem == nil {
				return nil, fmt.Errorf("array[%d]: null", i)
			}
			n, err := normalize(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			out = append(out, n)
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			if elem == nil {
				continue
			}
			n, err := normalize(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = n
		}
		return out, nil
	}
	return v, nil
}
