package models

import (
	"encoding/json"
	"fmt"
)

type valueKind uint8

const (
	kindAbsent valueKind = iota
	kindText
	kindFlag
)

// Value is a pending field value. The zero Value is Absent.
type Value struct {
	kind valueKind
	text string
	flag bool
}

// Absent returns a value that clears the column to NULL.
func Absent() Value { return Value{} }

// Text returns a text value.
func Text(s string) Value { return Value{kind: kindText, text: s} }

// Flag returns a boolean value, stored as 0/1.
func Flag(b bool) Value { return Value{kind: kindFlag, flag: b} }

// IsAbsent reports whether v clears the column.
func (v Value) IsAbsent() bool { return v.kind == kindAbsent }

// AsText returns the text payload and whether v is a text value.
func (v Value) AsText() (string, bool) { return v.text, v.kind == kindText }

// AsFlag returns the flag payload and whether v is a flag value.
func (v Value) AsFlag() (bool, bool) { return v.flag, v.kind == kindFlag }

// SQLArg returns the driver argument for v.
func (v Value) SQLArg() any {
	switch v.kind {
	case kindText:
		return v.text
	case kindFlag:
		if v.flag {
			return 1
		}
		return 0
	}
	return nil
}

// Interface returns v as a JSON-friendly value (nil, string or bool).
func (v Value) Interface() any {
	switch v.kind {
	case kindText:
		return v.text
	case kindFlag:
		return v.flag
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case kindText:
		return fmt.Sprintf("%q", v.text)
	case kindFlag:
		return fmt.Sprintf("%t", v.flag)
	}
	return "<absent>"
}

// MarshalJSON encodes v as null, a string or a bool.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes null as Absent, a string as Text and a bool as Flag.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = Absent()
	case string:
		*v = Text(x)
	case bool:
		*v = Flag(x)
	default:
		return fmt.Errorf("models: value must be null, a string or a bool, got %s", data)
	}
	return nil
}
