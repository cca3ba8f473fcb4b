// rewrite/pkg/compiler/traverse.go

package compiler

import (
	"sort"

	"rgehrsitz/rewrite/pkg/rewrite"
)

// RulesetDeps lists the names a ruleset refers to, each sorted and unique.
type RulesetDeps struct {
	Reads     []string
	Writes    []string
	Callbacks []string
	Scopes    []string
}

// DependencyIndex maps rulesets to the names they use and variables back to the
// rulesets that read or write them.
type DependencyIndex struct {
	Rulesets map[string]RulesetDeps
	ByVar    map[string][]string
}

// BuildDependencyIndex walks every instruction of rulesets.
func BuildDependencyIndex(rulesets []*rewrite.Ruleset) *DependencyIndex {
	idx := &DependencyIndex{
		Rulesets: make(map[string]RulesetDeps, len(rulesets)),
		ByVar:    make(map[string][]string),
	}

	for _, rs := range rulesets {
		reads, writes := newNameSet(), newNameSet()
		callbacks, scopes := newNameSet(), newNameSet()

		for _, instr := range rs.Instructions() {
			switch in := instr.(type) {
			case rewrite.SetBool:
				writes.add(in.Var.Name())
			case rewrite.SetInt:
				writes.add(in.Var.Name())
			case rewrite.SetString:
				writes.add(in.Var.Name())
			case rewrite.IsEqualBool:
				reads.add(in.Var.Name())
			case rewrite.IsEqualInt:
				reads.add(in.Var.Name())
			case rewrite.IsEqualString:
				reads.add(in.Var.Name())
			case rewrite.IsNotEqualBool:
				reads.add(in.Var.Name())
			case rewrite.IsNotEqualInt:
				reads.add(in.Var.Name())
			case rewrite.IsNotEqualString:
				reads.add(in.Var.Name())
			case rewrite.Call:
				if in.Callback != nil {
					callbacks.add(in.Callback.ID)
				}
			case rewrite.ActivateScope:
				if in.Scope != nil {
					scopes.add(in.Scope.Name())
				}
			}
		}

		deps := RulesetDeps{
			Reads:     reads.sorted(),
			Writes:    writes.sorted(),
			Callbacks: callbacks.sorted(),
			Scopes:    scopes.sorted(),
		}
		idx.Rulesets[rs.Name()] = deps

		touched := newNameSet()
		for _, n := range deps.Reads {
			touched.add(n)
		}
		for _, n := range deps.Writes {
			touched.add(n)
		}
		for _, n := range touched.sorted() {
			idx.ByVar[n] = append(idx.ByVar[n], rs.Name())
		}
	}
	return idx
}

// Variables returns every variable name referenced by any ruleset.
func (idx *DependencyIndex) Variables() []string {
	names := make([]string, 0, len(idx.ByVar))
	for n := range idx.ByVar {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type nameSet map[string]struct{}

func newNameSet() nameSet { return make(nameSet) }

func (s nameSet) add(n string) { s[n] = struct{}{} }

func (s nameSet) sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
