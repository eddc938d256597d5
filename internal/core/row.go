package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row is an ordered set of column name / value pairs captured from the store.
// Order follows the table's column order at capture time and survives a JSON
// round trip, which keeps persisted snapshots stable and diffable.
type Row struct {
	Columns []string
	Values  []Value
}

// Get returns the value for a column, if present.
func (r Row) Get(column string) (Value, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Set replaces the value for a column, appending when absent.
func (r *Row) Set(column string, v Value) {
	for i, c := range r.Columns {
		if c == column {
			r.Values[i] = v
			return
		}
	}
	r.Columns = append(r.Columns, column)
	r.Values = append(r.Values, v)
}

// MarshalJSON encodes the row as a JSON object in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	if len(r.Columns) != len(r.Values) {
		return nil, fmt.Errorf("row has %d columns but %d values", len(r.Columns), len(r.Values))
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := MarshalValue(r.Values[i])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into the row, preserving the key order
// of the document. encoding/json map decoding would lose that order, so the
// object is walked token by token instead.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("row snapshot must be a JSON object")
	}

	r.Columns = nil
	r.Values = nil
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("row snapshot key is not a string: %v", keyTok)
		}
		valTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("column %q: %w", key, err)
		}
		val, err := tokenValue(valTok)
		if err != nil {
			return fmt.Errorf("column %q: %w", key, err)
		}
		r.Columns = append(r.Columns, key)
		r.Values = append(r.Values, val)
	}
	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

func tokenValue(tok json.Token) (Value, error) {
	switch v := tok.(type) {
	case nil:
		return Null{}, nil
	case string:
		return Text(v), nil
	case bool:
		if v {
			return Integer(1), nil
		}
		return Integer(0), nil
	case json.Number:
		return numberValue(v)
	case json.Delim:
		return nil, fmt.Errorf("nested JSON values are not supported in row snapshots")
	default:
		return nil, fmt.Errorf("unsupported JSON token %v", tok)
	}
}

// MarshalRows encodes a slice of rows as a JSON array.
func MarshalRows(rows []Row) ([]byte, error) {
	if rows == nil {
		rows = []Row{}
	}
	return json.Marshal(rows)
}

// UnmarshalRows decodes a JSON array of row objects.
func UnmarshalRows(data []byte) ([]Row, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
