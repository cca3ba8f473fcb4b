// rewrite/pkg/rewrite/value.go

package rewrite

import (
	"bytes"
	"fmt"
	"strconv"
)

// Type is the declared variant of a Value or Variable.
type Type uint8

const (
	TypeBool Type = iota
	TypeInt
	TypeString
)

func (t Type) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeString:
		return "string"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// ParseType maps "bool", "int" and "string" to a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "bool":
		return TypeBool, nil
	case "int":
		return TypeInt, nil
	case "string":
		return TypeString, nil
	}
	return 0, fmt.Errorf("unknown variable type %q", s)
}

// Value is a tagged union of a bool, a 32-bit integer or a string.
// String payloads are borrowed views; a Value never copies them.
type Value struct {
	typ Type
	b   bool
	i   int32
	s   []byte
}

func BoolValue(b bool) Value { return Value{typ: TypeBool, b: b} }

func IntValue(i int32) Value { return Value{typ: TypeInt, i: i} }

func StringValue(s []byte) Value { return Value{typ: TypeString, s: s} }

// Zero returns the zero value of t.
func Zero(t Type) Value { return Value{typ: t} }

func (v Value) Type() Type { return v.typ }

func (v Value) AsBool() bool { return v.b }

func (v Value) AsInt() int32 { return v.i }

func (v Value) AsString() []byte { return v.s }

// Equal compares variant and payload. Strings match on exact length and bytes.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeBool:
		return v.b == o.b
	case TypeInt:
		return v.i == o.i
	default:
		return bytes.Equal(v.s, o.s)
	}
}

func (v Value) String() string {
	switch v.typ {
	case TypeBool:
		return strconv.FormatBool(v.b)
	case TypeInt:
		return strconv.FormatInt(int64(v.i), 10)
	case TypeString:
		return strconv.Quote(string(v.s))
	default:
		return "<invalid>"
	}
}

// Interface returns the payload as bool, int32 or string.
func (v Value) Interface() interface{} {
	switch v.typ {
	case TypeBool:
		return v.b
	case TypeInt:
		return v.i
	default:
		return string(v.s)
	}
}
