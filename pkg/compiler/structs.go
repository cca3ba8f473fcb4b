// rewrite/pkg/compiler/structs.go
package compiler

import "rgehrsitz/rewrite/pkg/scripting"

// RuleFile is the declarative source of a rewrite configuration.
type RuleFile struct {
	Scopes []ScopeDef `json:"scopes,omitempty" yaml:"scopes,omitempty"`
	// Helpers are global functions every script can call.
	Helpers  map[string]scripting.Script `json:"helpers,omitempty" yaml:"helpers,omitempty"`
	Scripts  map[string]scripting.Script `json:"scripts,omitempty" yaml:"scripts,omitempty"`
	Rulesets []RulesetDef                `json:"rulesets" yaml:"rulesets"`
}

type ScopeDef struct {
	Name     string                 `json:"name" yaml:"name"`
	Settings map[string]interface{} `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// RulesetDef is either sugar (conditions, calls, set, scopes, stop_all, in
// that order) or a raw instruction list. Raw instructions follow the sugar.
type RulesetDef struct {
	Name         string           `json:"name" yaml:"name"`
	Conditions   []ConditionDef   `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Calls        []string         `json:"calls,omitempty" yaml:"calls,omitempty"`
	Set          []SetDef         `json:"set,omitempty" yaml:"set,omitempty"`
	Scopes       []string         `json:"scopes,omitempty" yaml:"scopes,omitempty"`
	StopAll      bool             `json:"stop_all,omitempty" yaml:"stop_all,omitempty"`
	Instructions []InstructionDef `json:"instructions,omitempty" yaml:"instructions,omitempty"`
}

type ConditionDef struct {
	Var      string      `json:"var" yaml:"var"`
	Operator string      `json:"operator" yaml:"operator"`
	Value    interface{} `json:"value" yaml:"value"`
}

type SetDef struct {
	Var   string      `json:"var" yaml:"var"`
	Value interface{} `json:"value" yaml:"value"`
}

// InstructionDef names an opcode and its operands.
type InstructionDef struct {
	Op       string      `json:"op" yaml:"op"`
	Var      string      `json:"var,omitempty" yaml:"var,omitempty"`
	Value    interface{} `json:"value,omitempty" yaml:"value,omitempty"`
	Callback string      `json:"callback,omitempty" yaml:"callback,omitempty"`
	Scope    string      `json:"scope,omitempty" yaml:"scope,omitempty"`
}

const (
	OperatorEqual    = "EQ"
	OperatorNotEqual = "NEQ"
)
