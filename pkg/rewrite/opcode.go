// rewrite/pkg/rewrite/opcode.go

package rewrite

import "fmt"

// Opcode identifies an instruction. Codes are stable and the list is extend-only.
type Opcode byte

const (
	NOP Opcode = iota
	SET_BOOL
	SET_INT
	SET_STRING
	SET_VARIABLE
	IS_EQUAL_BOOL
	IS_EQUAL_INT
	IS_EQUAL_STRING
	IS_EQUAL_VARIABLE
	IS_NOT_EQUAL_BOOL
	IS_NOT_EQUAL_INT
	IS_NOT_EQUAL_STRING
	IS_NOT_EQUAL_VARIABLE
	CALL
	ACTIVATE_SCOPE
	STOP_ALL

	numOpcodes
)

var opcodeNames = [...]string{
	"NOP",
	"SET_BOOL", "SET_INT", "SET_STRING", "SET_VARIABLE",
	"IS_EQUAL_BOOL", "IS_EQUAL_INT", "IS_EQUAL_STRING", "IS_EQUAL_VARIABLE",
	"IS_NOT_EQUAL_BOOL", "IS_NOT_EQUAL_INT", "IS_NOT_EQUAL_STRING", "IS_NOT_EQUAL_VARIABLE",
	"CALL",
	"ACTIVATE_SCOPE",
	"STOP_ALL",
}

// String returns the string representation of an opcode.
func (op Opcode) String() string {
	if op >= numOpcodes {
		return fmt.Sprintf("Opcode(%d)", op)
	}
	return opcodeNames[op]
}

// Valid reports whether op is part of the instruction set.
func (op Opcode) Valid() bool {
	return op < numOpcodes
}

// Reserved opcodes are declared but have no handler; the engine runs them as NOP.
func (op Opcode) Reserved() bool {
	switch op {
	case SET_VARIABLE, IS_EQUAL_VARIABLE, IS_NOT_EQUAL_VARIABLE:
		return true
	default:
		return false
	}
}

// ParseOpcode looks an opcode up by name.
func ParseOpcode(name string) (Opcode, error) {
	for i, n := range opcodeNames {
		if n == name {
			return Opcode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown opcode %q", name)
}
