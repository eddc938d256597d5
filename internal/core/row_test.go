package core

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestRowJSONRoundTrip(t *testing.T) {
	row := Row{
		Columns: []string{"id", "title", "score", "deleted_at"},
		Values:  []Value{Integer(1), Text("first"), Float(0.5), Null{}},
	}

	data, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":1,"title":"first","score":0.5,"deleted_at":null}`
	if string(data) != want {
		t.Fatalf("marshal = %s, want %s", data, want)
	}

	var back Row
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(back, row) {
		t.Fatalf("round trip = %#v, want %#v", back, row)
	}
}

func TestRowUnmarshal_PreservesDocumentOrder(t *testing.T) {
	var row Row
	if err := json.Unmarshal([]byte(`{"z":1,"a":2,"m":3}`), &row); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(row.Columns, []string{"z", "a", "m"}) {
		t.Fatalf("column order not preserved: %v", row.Columns)
	}
}

func TestRowGetSet(t *testing.T) {
	row := Row{Columns: []string{"a"}, Values: []Value{Integer(1)}}

	if v, ok := row.Get("a"); !ok || v != Integer(1) {
		t.Fatalf("Get(a) = %v, %v", v, ok)
	}
	if _, ok := row.Get("missing"); ok {
		t.Fatalf("Get(missing) should report absence")
	}

	row.Set("a", Integer(2))
	row.Set("b", Text("new"))
	if v, _ := row.Get("a"); v != Integer(2) {
		t.Fatalf("Set should replace existing value")
	}
	if v, _ := row.Get("b"); v != Text("new") {
		t.Fatalf("Set should append missing column")
	}
}

func TestRowUnmarshal_RejectsNested(t *testing.T) {
	var row Row
	if err := json.Unmarshal([]byte(`{"a":[1,2]}`), &row); err == nil {
		t.Fatalf("expected error for nested array value")
	}
	if err := json.Unmarshal([]byte(`[1,2]`), &row); err == nil {
		t.Fatalf("expected error for non-object snapshot")
	}
}

func TestMarshalRows(t *testing.T) {
	data, err := MarshalRows(nil)
	if err != nil {
		t.Fatalf("marshal nil: %v", err)
	}
	if string(data) != "[]" {
		t.Fatalf("nil rows should marshal as empty array, got %s", data)
	}

	rows := []Row{
		{Columns: []string{"n"}, Values: []Value{Integer(1)}},
		{Columns: []string{"n"}, Values: []Value{Integer(2)}},
	}
	data, err = MarshalRows(rows)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := UnmarshalRows(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(back, rows) {
		t.Fatalf("round trip = %#v, want %#v", back, rows)
	}
}

func TestUnmarshalRows_Empty(t *testing.T) {
	rows, err := UnmarshalRows([]byte("  "))
	if err != nil {
		t.Fatalf("unmarshal blank: %v", err)
	}
	if rows != nil {
		t.Fatalf("blank input should yield nil rows")
	}
}
