package models

import (
	"encoding/json"
	"testing"
)

func TestValueJSONRoundTrip(t *testing.T) {
	for _, v := range []Value{Absent(), Text("sea, sand"), Text(""), Flag(true), Flag(false)} {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %s: %v", v, err)
		}
		var got Value
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if got != v {
			t.Errorf("round trip %s -> %s -> %s", v, data, got)
		}
	}
}

func TestValueUnmarshalInStruct(t *testing.T) {
	var c struct {
		Value Value `json:"value"`
	}
	if err := json.Unmarshal([]byte(`{"value":true}`), &c); err != nil {
		t.Fatal(err)
	}
	if b, ok := c.Value.AsFlag(); !ok || !b {
		t.Errorf("value = %s, want true", c.Value)
	}
	if err := json.Unmarshal([]byte(`{}`), &c); err != nil {
		t.Fatal(err)
	}
}

func TestValueUnmarshalRejectsNumber(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`42`), &v); err == nil {
		t.Error("expected error for a number")
	}
}
