// rewrite/pkg/rewrite/ruleset.go

package rewrite

import "strings"

// Ruleset is an immutable, ordered sequence of instructions. It is shared by
// every request that matches it and must never be modified after construction.
type Ruleset struct {
	name         string
	instructions []Instruction
}

// NewRuleset copies instrs into a new Ruleset.
func NewRuleset(name string, instrs ...Instruction) *Ruleset {
	copied := make([]Instruction, len(instrs))
	copy(copied, instrs)
	return &Ruleset{name: name, instructions: copied}
}

func (rs *Ruleset) Name() string { return rs.name }

func (rs *Ruleset) Len() int { return len(rs.instructions) }

func (rs *Ruleset) At(i int) Instruction { return rs.instructions[i] }

// Instructions returns a copy of the instruction sequence.
func (rs *Ruleset) Instructions() []Instruction {
	out := make([]Instruction, len(rs.instructions))
	copy(out, rs.instructions)
	return out
}

// Disassemble renders one instruction per line.
func (rs *Ruleset) Disassemble() string {
	var sb strings.Builder
	for _, instr := range rs.instructions {
		sb.WriteString(Format(instr))
		sb.WriteByte('\n')
	}
	return sb.String()
}
