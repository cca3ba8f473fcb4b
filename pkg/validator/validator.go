// rewrite/pkg/validator/validator.go

package validator

import (
	"fmt"
	"sort"

	"rgehrsitz/rewrite/pkg/compiler"
	"rgehrsitz/rewrite/pkg/rewrite"
)

// Warning describes a ruleset that compiles but is probably wrong. Index is
// -1 when the warning is not about a single instruction.
type Warning struct {
	Ruleset string
	Index   int
	Message string
}

func (w Warning) String() string {
	if w.Index < 0 {
		return fmt.Sprintf("%s: %s", w.Ruleset, w.Message)
	}
	return fmt.Sprintf("%s[%d]: %s", w.Ruleset, w.Index, w.Message)
}

// Validate checks every ruleset of b and reports scopes nothing activates.
func Validate(b *compiler.Bundle) []Warning {
	var warnings []Warning
	activated := make(map[string]bool)
	for _, rs := range b.Rulesets {
		warnings = append(warnings, ValidateRuleset(rs)...)
		for _, instr := range rs.Instructions() {
			if in, ok := instr.(rewrite.ActivateScope); ok && in.Scope != nil {
				activated[in.Scope.Name()] = true
			}
		}
	}

	if b.Scopes != nil {
		names := b.Scopes.Names()
		sort.Strings(names)
		for _, name := range names {
			if !activated[name] {
				warnings = append(warnings, Warning{Ruleset: "*", Index: -1,
					Message: fmt.Sprintf("scope %q is never activated", name)})
			}
		}
	}
	return warnings
}

// ValidateRuleset flags empty rulesets, instructions after STOP_ALL, reserved
// opcodes and equality tests that contradict an earlier one on the same
// variable.
func ValidateRuleset(rs *rewrite.Ruleset) []Warning {
	var warnings []Warning
	warn := func(i int, format string, args ...interface{}) {
		warnings = append(warnings, Warning{Ruleset: rs.Name(), Index: i, Message: fmt.Sprintf(format, args...)})
	}

	if rs.Len() == 0 {
		warn(-1, "ruleset is empty and always matches")
		return warnings
	}

	required := make(map[string]rewrite.Value)
	for i, instr := range rs.Instructions() {
		if instr.Opcode().Reserved() {
			warn(i, "reserved opcode %s executes as NOP", instr.Opcode())
			continue
		}

		switch in := instr.(type) {
		case rewrite.StopAll:
			if i < rs.Len()-1 {
				warn(i+1, "unreachable: %d instruction(s) after STOP_ALL", rs.Len()-1-i)
			}
			return warnings
		case rewrite.SetBool:
			delete(required, in.Var.Name())
		case rewrite.SetInt:
			delete(required, in.Var.Name())
		case rewrite.SetString:
			delete(required, in.Var.Name())
		case rewrite.Call:
			// A callback may write any variable.
			required = make(map[string]rewrite.Value)
		case rewrite.IsEqualBool:
			checkEqual(required, in.Var, rewrite.BoolValue(in.Value), i, warn)
		case rewrite.IsEqualInt:
			checkEqual(required, in.Var, rewrite.IntValue(in.Value), i, warn)
		case rewrite.IsEqualString:
			checkEqual(required, in.Var, rewrite.StringValue(in.Value), i, warn)
		}
	}
	return warnings
}

func checkEqual(required map[string]rewrite.Value, v *rewrite.Variable, val rewrite.Value, i int,
	warn func(int, string, ...interface{})) {
	prev, ok := required[v.Name()]
	if !ok {
		required[v.Name()] = val
		return
	}
	if !prev.Equal(val) {
		warn(i, "%s cannot equal both %s and %s; ruleset never matches past here", v.Name(), prev, val)
	}
}
