package codec

import (
	"bytes"
	"encoding/json"
)

// JSONEncoder writes each item as one line of JSON (NDJSON).
type JSONEncoder[T any] struct {
	// EscapeHTML controls escaping of <, > and & inside strings.
	EscapeHTML bool
}

// Encode implements Encoder. The record is marshalled completely before
// anything is appended, so a failed item leaves dst unchanged.
func (e JSONEncoder[T]) Encode(item T, dst *bytes.Buffer) error {
	var record bytes.Buffer
	enc := json.NewEncoder(&record)
	enc.SetEscapeHTML(e.EscapeHTML)

	if err := enc.Encode(item); err != nil {
		return encodeError("json", err)
	}
	dst.Write(record.Bytes())
	return nil
}
