package manifest

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Canonicalize produces the deterministic byte form used as HMAC input: the
// manifest's top-level JSON object with the named signature field removed,
// re-serialized with object keys sorted at every nesting level and no
// insignificant whitespace. Device and host link this same routine so they
// provably agree bytewise.
func Canonicalize(data []byte, signatureField string) ([]byte, error) {
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}

	top, ok := generic.(map[string]interface{})
	if ok {
		delete(top, signatureField)
		generic = top
	}

	normalized, err := normalizeValue(generic)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

// CanonicalBytes returns the canonical HMAC input for a Manifest value
// directly, without round-tripping through Encode first losing field order
// (Encode's own output is already a plain map so this is equivalent, but
// kept distinct so callers reason about wire bytes vs. in-memory values
// separately).
func CanonicalBytes(m *Manifest, signatureField string) ([]byte, error) {
	data, err := m.Encode()
	if err != nil {
		return nil, err
	}
	return Canonicalize(data, signatureField)
}

type orderedMap struct {
	entries []orderedKV
}

type orderedKV struct {
	key   string
	value interface{}
}

func (o orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range o.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(entry.key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valueBytes, err := json.Marshal(entry.value)
		if err != nil {
			return nil, err
		}
		buf.Write(valueBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func normalizeValue(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		entries := make([]orderedKV, 0, len(keys))
		for _, key := range keys {
			normalized, err := normalizeValue(v[key])
			if err != nil {
				return nil, err
			}
			entries = append(entries, orderedKV{key: key, value: normalized})
		}
		return orderedMap{entries: entries}, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i := range v {
			normalized, err := normalizeValue(v[i])
			if err != nil {
				return nil, err
			}
			out[i] = normalized
		}
		return out, nil
	default:
		return v, nil
	}
}
