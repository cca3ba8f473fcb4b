// rewrite/pkg/compiler/codegen.go

package compiler

import (
	"errors"
	"fmt"
	"math"
	"time"

	"rgehrsitz/rewrite/pkg/config"
	"rgehrsitz/rewrite/pkg/logging"
	"rgehrsitz/rewrite/pkg/rewrite"
	"rgehrsitz/rewrite/pkg/scripting"
)

const DefaultScriptTimeout = 50 * time.Millisecond

// Environment is what a rule file is compiled against.
type Environment struct {
	Variables *rewrite.Variables
	// Callbacks are native callbacks; scripts from the rule file are added to a copy.
	Callbacks     *rewrite.Callbacks
	ScriptTimeout time.Duration
}

// Bundle is one compiled configuration generation. Its scope registry records
// activations for the lifetime of the bundle.
type Bundle struct {
	Rulesets  []*rewrite.Ruleset
	Scopes    *config.Registry
	Callbacks *rewrite.Callbacks
	Helpers   map[string]scripting.Script
	Scripts   map[string]scripting.Script
	Deps      *DependencyIndex
}

// Ruleset returns the named ruleset.
func (b *Bundle) Ruleset(name string) (*rewrite.Ruleset, bool) {
	for _, rs := range b.Rulesets {
		if rs.Name() == name {
			return rs, true
		}
	}
	return nil, false
}

// Compile resolves every name in file against env and emits typed instructions.
func Compile(file *RuleFile, env Environment) (*Bundle, error) {
	if env.Variables == nil {
		env.Variables = rewrite.NewVariables()
	}
	if env.ScriptTimeout <= 0 {
		env.ScriptTimeout = DefaultScriptTimeout
	}

	b := &Bundle{
		Scopes:  config.NewRegistry(),
		Helpers: make(map[string]scripting.Script, len(file.Helpers)),
		Scripts: make(map[string]scripting.Script, len(file.Scripts)),
	}
	if env.Callbacks != nil {
		b.Callbacks = env.Callbacks.Clone()
	} else {
		b.Callbacks = rewrite.NewCallbacks()
	}

	for _, s := range file.Scopes {
		if _, err := b.Scopes.Define(s.Name, s.Settings); err != nil {
			return nil, compileError("cannot define scope", err, map[string]interface{}{"scope": s.Name})
		}
	}

	if err := b.compileScripts(file.Helpers, file.Scripts, env); err != nil {
		return nil, err
	}

	c := &codegen{env: env, bundle: b}
	for i := range file.Rulesets {
		rs, err := c.ruleset(&file.Rulesets[i])
		if err != nil {
			logging.Logger.Error().Err(err).Str("ruleset", file.Rulesets[i].Name).Msg("Failed to compile ruleset")
			return nil, err
		}
		b.Rulesets = append(b.Rulesets, rs)
	}

	b.Deps = BuildDependencyIndex(b.Rulesets)
	logging.Logger.Debug().Int("rulesets", len(b.Rulesets)).Int("scopes", len(file.Scopes)).
		Int("scripts", len(file.Scripts)).Msg("Compiled rule file")
	return b, nil
}

// compileScripts registers helpers first so every script can call them, then
// turns each script into a callback.
func (b *Bundle) compileScripts(helpers, scripts map[string]scripting.Script, env Environment) error {
	if len(scripts) == 0 && len(helpers) == 0 {
		return nil
	}

	vm := scripting.NewSafeVM()
	for _, name := range sortedScriptNames(helpers) {
		if err := vm.RegisterGlobalFunction(name, helpers[name]); err != nil {
			return err
		}
		b.Helpers[name] = helpers[name]
	}

	for _, name := range sortedScriptNames(scripts) {
		script := scripts[name]
		if err := vm.SetScript(name, script); err != nil {
			return err
		}
		cb, err := vm.Callback(name, env.Variables, env.ScriptTimeout)
		if err != nil {
			return err
		}
		if _, err := b.Callbacks.Register(name, cb); err != nil {
			return compileError("cannot register script", err, map[string]interface{}{"script": name})
		}
		b.Scripts[name] = script
	}
	return nil
}

type codegen struct {
	env    Environment
	bundle *Bundle
}

func (c *codegen) ruleset(def *RulesetDef) (*rewrite.Ruleset, error) {
	var instrs []rewrite.Instruction
	fields := map[string]interface{}{"ruleset": def.Name}

	for _, cond := range def.Conditions {
		instr, err := c.condition(cond)
		if err != nil {
			return nil, withFields(err, fields)
		}
		instrs = append(instrs, instr)
	}
	for _, id := range def.Calls {
		instr, err := c.call(id)
		if err != nil {
			return nil, withFields(err, fields)
		}
		instrs = append(instrs, instr)
	}
	for _, s := range def.Set {
		instr, err := c.set(s.Var, s.Value)
		if err != nil {
			return nil, withFields(err, fields)
		}
		instrs = append(instrs, instr)
	}
	for _, name := range def.Scopes {
		instr, err := c.activate(name)
		if err != nil {
			return nil, withFields(err, fields)
		}
		instrs = append(instrs, instr)
	}
	if def.StopAll {
		instrs = append(instrs, rewrite.StopAll{})
	}
	for i, in := range def.Instructions {
		instr, err := c.instruction(in)
		if err != nil {
			fields["instruction"] = i
			return nil, withFields(err, fields)
		}
		instrs = append(instrs, instr)
	}

	return rewrite.NewRuleset(def.Name, instrs...), nil
}

func (c *codegen) condition(cond ConditionDef) (rewrite.Instruction, error) {
	v, err := c.variable(cond.Var)
	if err != nil {
		return nil, err
	}
	val, err := literal(v, cond.Value)
	if err != nil {
		return nil, err
	}
	return comparison(v, val, cond.Operator == OperatorEqual), nil
}

func comparison(v *rewrite.Variable, val rewrite.Value, equal bool) rewrite.Instruction {
	switch val.Type() {
	case rewrite.TypeBool:
		if equal {
			return rewrite.IsEqualBool{Var: v, Value: val.AsBool()}
		}
		return rewrite.IsNotEqualBool{Var: v, Value: val.AsBool()}
	case rewrite.TypeInt:
		if equal {
			return rewrite.IsEqualInt{Var: v, Value: val.AsInt()}
		}
		return rewrite.IsNotEqualInt{Var: v, Value: val.AsInt()}
	default:
		if equal {
			return rewrite.IsEqualString{Var: v, Value: val.AsString()}
		}
		return rewrite.IsNotEqualString{Var: v, Value: val.AsString()}
	}
}

func (c *codegen) set(name string, raw interface{}) (rewrite.Instruction, error) {
	v, err := c.variable(name)
	if err != nil {
		return nil, err
	}
	if !v.Writable() {
		return nil, compileError("variable is read-only", nil, map[string]interface{}{"var": name})
	}
	val, err := literal(v, raw)
	if err != nil {
		return nil, err
	}
	switch val.Type() {
	case rewrite.TypeBool:
		return rewrite.SetBool{Var: v, Value: val.AsBool()}, nil
	case rewrite.TypeInt:
		return rewrite.SetInt{Var: v, Value: val.AsInt()}, nil
	default:
		return rewrite.SetString{Var: v, Value: val.AsString()}, nil
	}
}

func (c *codegen) call(id string) (rewrite.Instruction, error) {
	cb, ok := c.bundle.Callbacks.Lookup(id)
	if !ok {
		return nil, compileError("unknown callback", nil, map[string]interface{}{"callback": id})
	}
	return rewrite.Call{Callback: cb}, nil
}

func (c *codegen) activate(name string) (rewrite.Instruction, error) {
	s, ok := c.bundle.Scopes.Lookup(name)
	if !ok {
		return nil, compileError("unknown scope", nil, map[string]interface{}{"scope": name})
	}
	return rewrite.ActivateScope{Scope: s}, nil
}

func (c *codegen) variable(name string) (*rewrite.Variable, error) {
	v, ok := c.env.Variables.Lookup(name)
	if !ok {
		return nil, compileError("unknown variable", nil, map[string]interface{}{"var": name})
	}
	return v, nil
}

// instruction compiles a raw instruction. The opcode's operand type must agree
// with the variable's declared type.
func (c *codegen) instruction(in InstructionDef) (rewrite.Instruction, error) {
	op, err := rewrite.ParseOpcode(in.Op)
	if err != nil {
		return nil, compileError("unknown opcode", err, map[string]interface{}{"op": in.Op})
	}
	if op.Reserved() {
		return nil, compileError("opcode is reserved", nil, map[string]interface{}{"op": in.Op})
	}

	switch op {
	case rewrite.NOP:
		return rewrite.Nop{}, nil
	case rewrite.STOP_ALL:
		return rewrite.StopAll{}, nil
	case rewrite.CALL:
		return c.call(in.Callback)
	case rewrite.ACTIVATE_SCOPE:
		return c.activate(in.Scope)
	}

	want := operandType(op)
	v, err := c.variable(in.Var)
	if err != nil {
		return nil, err
	}
	if v.Type() != want {
		return nil, compileError(fmt.Sprintf("%s operand must be %s", op, want), nil,
			map[string]interface{}{"var": in.Var, "type": v.Type().String()})
	}

	switch op {
	case rewrite.SET_BOOL, rewrite.SET_INT, rewrite.SET_STRING:
		return c.set(in.Var, in.Value)
	case rewrite.IS_EQUAL_BOOL, rewrite.IS_EQUAL_INT, rewrite.IS_EQUAL_STRING:
		val, err := literal(v, in.Value)
		if err != nil {
			return nil, err
		}
		return comparison(v, val, true), nil
	default:
		val, err := literal(v, in.Value)
		if err != nil {
			return nil, err
		}
		return comparison(v, val, false), nil
	}
}

func operandType(op rewrite.Opcode) rewrite.Type {
	switch op {
	case rewrite.SET_BOOL, rewrite.IS_EQUAL_BOOL, rewrite.IS_NOT_EQUAL_BOOL:
		return rewrite.TypeBool
	case rewrite.SET_INT, rewrite.IS_EQUAL_INT, rewrite.IS_NOT_EQUAL_INT:
		return rewrite.TypeInt
	default:
		return rewrite.TypeString
	}
}

// literal converts a decoded JSON or YAML scalar to a value of v's type.
func literal(v *rewrite.Variable, raw interface{}) (rewrite.Value, error) {
	fields := map[string]interface{}{"var": v.Name(), "type": v.Type().String()}
	switch v.Type() {
	case rewrite.TypeBool:
		b, ok := raw.(bool)
		if !ok {
			return rewrite.Value{}, compileError("literal is not a bool", nil, fields)
		}
		return rewrite.BoolValue(b), nil
	case rewrite.TypeInt:
		n, ok := toInt32(raw)
		if !ok {
			return rewrite.Value{}, compileError("literal is not a 32-bit integer", nil, fields)
		}
		return rewrite.IntValue(n), nil
	default:
		s, ok := raw.(string)
		if !ok {
			return rewrite.Value{}, compileError("literal is not a string", nil, fields)
		}
		return rewrite.StringValue([]byte(s)), nil
	}
}

func toInt32(raw interface{}) (int32, bool) {
	var n int64
	switch t := raw.(type) {
	case int:
		n = int64(t)
	case int32:
		n = int64(t)
	case int64:
		n = t
	case uint64:
		if t > math.MaxInt32 {
			return 0, false
		}
		n = int64(t)
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		if t < math.MinInt32 || t > math.MaxInt32 {
			return 0, false
		}
		n = int64(t)
	default:
		return 0, false
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, false
	}
	return int32(n), true
}

func compileError(msg string, err error, fields map[string]interface{}) error {
	return logging.NewError(logging.ErrorTypeCompile, msg, err, fields)
}

func withFields(err error, fields map[string]interface{}) error {
	var re *logging.RewriteError
	if !errors.As(err, &re) {
		return err
	}
	if re.Fields == nil {
		re.Fields = make(map[string]interface{}, len(fields))
	}
	for k, v := range fields {
		re.Fields[k] = v
	}
	return re
}
