package knowledge

import (
	"bytes"
	"encoding/json"
)

// EncodeMetadata serialises record metadata for stores that keep it as JSON.
func EncodeMetadata(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(meta)
}

// DecodeMetadata reverses EncodeMetadata. Integral numbers come back as
// int64 and other numbers as float64, matching what BuildRecords produces.
func DecodeMetadata(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		return map[string]any{}, nil
	}
	for k, v := range m {
		if nv, ok := normalizeValue(v); ok {
			m[k] = nv
		}
	}
	return m, nil
}
