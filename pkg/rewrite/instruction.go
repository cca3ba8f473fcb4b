// rewrite/pkg/rewrite/instruction.go

package rewrite

import (
	"fmt"
	"strconv"

	"rgehrsitz/rewrite/pkg/config"
)

// Instruction is one compiled VM instruction. Each opcode has its own struct
// carrying typed operands.
type Instruction interface {
	Opcode() Opcode
}

type Nop struct{}

type SetBool struct {
	Var   *Variable
	Value bool
}

type SetInt struct {
	Var   *Variable
	Value int32
}

type SetString struct {
	Var   *Variable
	Value []byte
}

// SetVariable is reserved.
type SetVariable struct {
	Dst, Src *Variable
}

type IsEqualBool struct {
	Var   *Variable
	Value bool
}

type IsEqualInt struct {
	Var   *Variable
	Value int32
}

type IsEqualString struct {
	Var   *Variable
	Value []byte
}

// IsEqualVariable is reserved.
type IsEqualVariable struct {
	Left, Right *Variable
}

type IsNotEqualBool struct {
	Var   *Variable
	Value bool
}

type IsNotEqualInt struct {
	Var   *Variable
	Value int32
}

type IsNotEqualString struct {
	Var   *Variable
	Value []byte
}

// IsNotEqualVariable is reserved.
type IsNotEqualVariable struct {
	Left, Right *Variable
}

type Call struct {
	Callback *NamedCallback
}

type ActivateScope struct {
	Scope *config.Scope
}

type StopAll struct{}

func (Nop) Opcode() Opcode                { return NOP }
func (SetBool) Opcode() Opcode            { return SET_BOOL }
func (SetInt) Opcode() Opcode             { return SET_INT }
func (SetString) Opcode() Opcode          { return SET_STRING }
func (SetVariable) Opcode() Opcode        { return SET_VARIABLE }
func (IsEqualBool) Opcode() Opcode        { return IS_EQUAL_BOOL }
func (IsEqualInt) Opcode() Opcode         { return IS_EQUAL_INT }
func (IsEqualString) Opcode() Opcode      { return IS_EQUAL_STRING }
func (IsEqualVariable) Opcode() Opcode    { return IS_EQUAL_VARIABLE }
func (IsNotEqualBool) Opcode() Opcode     { return IS_NOT_EQUAL_BOOL }
func (IsNotEqualInt) Opcode() Opcode      { return IS_NOT_EQUAL_INT }
func (IsNotEqualString) Opcode() Opcode   { return IS_NOT_EQUAL_STRING }
func (IsNotEqualVariable) Opcode() Opcode { return IS_NOT_EQUAL_VARIABLE }
func (Call) Opcode() Opcode               { return CALL }
func (ActivateScope) Opcode() Opcode      { return ACTIVATE_SCOPE }
func (StopAll) Opcode() Opcode            { return STOP_ALL }

// Format returns a human-readable representation of an instruction.
func Format(instr Instruction) string {
	op := instr.Opcode().String()
	switch in := instr.(type) {
	case SetBool:
		return fmt.Sprintf("%s %s %t", op, in.Var.Name(), in.Value)
	case SetInt:
		return fmt.Sprintf("%s %s %d", op, in.Var.Name(), in.Value)
	case SetString:
		return fmt.Sprintf("%s %s %s", op, in.Var.Name(), strconv.Quote(string(in.Value)))
	case SetVariable:
		return fmt.Sprintf("%s %s %s", op, in.Dst.Name(), in.Src.Name())
	case IsEqualBool:
		return fmt.Sprintf("%s %s %t", op, in.Var.Name(), in.Value)
	case IsEqualInt:
		return fmt.Sprintf("%s %s %d", op, in.Var.Name(), in.Value)
	case IsEqualString:
		return fmt.Sprintf("%s %s %s", op, in.Var.Name(), strconv.Quote(string(in.Value)))
	case IsEqualVariable:
		return fmt.Sprintf("%s %s %s", op, in.Left.Name(), in.Right.Name())
	case IsNotEqualBool:
		return fmt.Sprintf("%s %s %t", op, in.Var.Name(), in.Value)
	case IsNotEqualInt:
		return fmt.Sprintf("%s %s %d", op, in.Var.Name(), in.Value)
	case IsNotEqualString:
		return fmt.Sprintf("%s %s %s", op, in.Var.Name(), strconv.Quote(string(in.Value)))
	case IsNotEqualVariable:
		return fmt.Sprintf("%s %s %s", op, in.Left.Name(), in.Right.Name())
	case Call:
		if in.Callback == nil {
			return op
		}
		return fmt.Sprintf("%s %s", op, in.Callback.ID)
	case ActivateScope:
		if in.Scope == nil {
			return op
		}
		return fmt.Sprintf("%s %s", op, in.Scope.Name())
	default:
		return op
	}
}
