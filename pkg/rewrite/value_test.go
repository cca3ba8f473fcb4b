// rewrite/pkg/rewrite/value_test.go

package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueEqual(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Value
		expected bool
	}{
		{"Bool equal", BoolValue(true), BoolValue(true), true},
		{"Bool differ", BoolValue(true), BoolValue(false), false},
		{"Int equal", IntValue(5), IntValue(5), true},
		{"Int differ", IntValue(5), IntValue(-5), false},
		{"String equal", StringValue([]byte("abc")), StringValue([]byte("abc")), true},
		{"String differs in last byte", StringValue([]byte("abc")), StringValue([]byte("abd")), false},
		{"String prefix", StringValue([]byte("abc")), StringValue([]byte("ab")), false},
		{"String case sensitive", StringValue([]byte("abc")), StringValue([]byte("ABC")), false},
		{"Empty and nil strings", StringValue(nil), StringValue([]byte{}), true},
		{"Different variants", IntValue(1), BoolValue(true), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.a.Equal(tt.b))
			assert.Equal(t, tt.expected, tt.b.Equal(tt.a))
		})
	}
}

func TestStringValueBorrowsStorage(t *testing.T) {
	buf := []byte("GET /index.html")
	v := StringValue(buf[4:])

	buf[5] = 'I'
	assert.Equal(t, "/Index.html", string(v.AsString()))
}

func TestZero(t *testing.T) {
	assert.Equal(t, TypeBool, Zero(TypeBool).Type())
	assert.False(t, Zero(TypeBool).AsBool())
	assert.Equal(t, int32(0), Zero(TypeInt).AsInt())
	assert.Empty(t, Zero(TypeString).AsString())
}

func TestParseType(t *testing.T) {
	for _, typ := range []Type{TypeBool, TypeInt, TypeString} {
		parsed, err := ParseType(typ.String())
		assert.NoError(t, err)
		assert.Equal(t, typ, parsed)
	}

	_, err := ParseType("float")
	assert.Error(t, err)
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "true", BoolValue(true).String())
	assert.Equal(t, "-3", IntValue(-3).String())
	assert.Equal(t, `"a b"`, StringValue([]byte("a b")).String())
	assert.Equal(t, "a b", StringValue([]byte("a b")).Interface())
}
