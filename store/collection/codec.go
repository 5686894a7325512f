package collection

import (
	"bytes"
	"encoding/json"

	"github.com/mirageapi/mirage"
)

// EncodeState serializes a collection for durable backends.
func EncodeState(st *State) ([]byte, error) {
	return json.Marshal(st)
}

// DecodeState parses a serialized collection. Numbers decode through
// json.Number so integral values come back as int64; identifier
// normalization depends on that.
func DecodeState(data []byte) (*State, error) {
	var raw struct {
		Items  []mirage.Record        `json:"items"`
		AutoID int64                  `json:"auto_id"`
		Schema *mirage.SchemaSnapshot `json:"schema,omitempty"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	st := &State{Items: raw.Items, AutoID: raw.AutoID, Schema: raw.Schema}
	if st.AutoID < 1 {
		st.AutoID = 1
	}
	for i, rec := range st.Items {
		st.Items[i] = normalizeNumbers(rec).(mirage.Record)
	}
	if st.Schema != nil && st.Schema.Example != nil {
		st.Schema.Example = normalizeNumbers(st.Schema.Example).(mirage.Record)
	}
	return st, nil
}

// DecodeRecords parses a bare JSON array of records, the layout the file
// backend keeps per resource.
func DecodeRecords(data []byte) ([]mirage.Record, error) {
	var items []mirage.Record
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&items); err != nil {
		return nil, err
	}
	for i, rec := range items {
		items[i] = normalizeNumbers(rec).(mirage.Record)
	}
	return items, nil
}

// normalizeNumbers rewrites json.Number values into int64 or float64.
func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, it := range x {
			x[k] = normalizeNumbers(it)
		}
		return x
	case []any:
		for i, it := range x {
			x[i] = normalizeNumbers(it)
		}
		return x
	}
	return v
}

// NormalizeNumbers exposes the json.Number rewrite for callers that decode
// request bodies themselves.
func NormalizeNumbers(v any) any { return normalizeNumbers(v) }
