// rewrite/pkg/scripting/safe_vm.go

package scripting

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/robertkrimen/otto"

	"rgehrsitz/rewrite/pkg/logging"
)

// Script is a JavaScript function body with named parameters.
type Script struct {
	Params []string `json:"params" yaml:"params"`
	Body   string   `json:"body" yaml:"body"`
}

var errTimeout = errors.New("script execution timed out")

const (
	maxStackDepth = 1000
	entryPoint    = "__script"
)

// compiledScript is one script and a pool of interpreters that each hold its
// function. An interpreter is used by one call at a time.
type compiledScript struct {
	def  Script
	mu   sync.Mutex
	base *otto.Otto
	pool sync.Pool
}

func (c *compiledScript) acquire() *otto.Otto {
	if vm, ok := c.pool.Get().(*otto.Otto); ok {
		return vm
	}
	c.mu.Lock()
	vm := c.base.Copy()
	c.mu.Unlock()
	vm.SetStackDepthLimit(maxStackDepth)
	return vm
}

// SafeVM runs scripts in restricted otto interpreters. Every script runs in
// interpreters of its own, so calls never wait on each other.
type SafeVM struct {
	mu       sync.RWMutex
	template *otto.Otto
	scripts  map[string]*compiledScript
}

func NewSafeVM() *SafeVM {
	vm := otto.New()

	// Remove potentially dangerous functions
	vm.Set("eval", otto.UndefinedValue())
	vm.Set("Function", otto.UndefinedValue())
	vm.SetStackDepthLimit(maxStackDepth)

	return &SafeVM{
		template: vm,
		scripts:  make(map[string]*compiledScript),
	}
}

// SetScript compiles script and stores it under name. The script sees the
// global functions registered before it.
func (s *SafeVM) SetScript(name string, script Script) error {
	logging.Logger.Debug().Str("scriptName", name).Msg("Setting script")

	funcDef := fmt.Sprintf("var %s = (function(%s) { %s });", entryPoint, paramList(script.Params), script.Body)

	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.template.Copy()
	if _, err := base.Run(funcDef); err != nil {
		return logging.NewError(logging.ErrorTypeScript, "failed to compile script", err,
			map[string]interface{}{"script": name})
	}
	if fn, err := base.Get(entryPoint); err != nil || !fn.IsFunction() {
		return logging.NewError(logging.ErrorTypeScript, "script did not compile to a function", err,
			map[string]interface{}{"script": name})
	}
	s.scripts[name] = &compiledScript{def: script, base: base}
	return nil
}

// Script returns a stored script definition.
func (s *SafeVM) Script(name string) (Script, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.scripts[name]
	if !ok {
		return Script{}, false
	}
	return cs.def, true
}

// RunScript calls a stored script, interrupting it once timeout has elapsed.
func (s *SafeVM) RunScript(name string, params map[string]interface{}, timeout time.Duration) (interface{}, error) {
	s.mu.RLock()
	cs, ok := s.scripts[name]
	s.mu.RUnlock()
	if !ok {
		logging.Logger.Error().Str("scriptName", name).Msg("Script not found")
		return nil, fmt.Errorf("script not found: %s", name)
	}

	args := make([]interface{}, len(cs.def.Params))
	for i, param := range cs.def.Params {
		args[i] = params[param]
	}

	vm := cs.acquire()
	result, err := call(vm, args, timeout)
	if errors.Is(err, errTimeout) {
		// An interrupted interpreter is dropped rather than reused.
		logging.Logger.Debug().Str("scriptName", name).Msg("Script execution timed out")
		return nil, err
	}
	cs.pool.Put(vm)
	if err != nil {
		logging.Logger.Debug().Err(err).Str("scriptName", name).Msg("Script execution error")
		return nil, err
	}
	return result, nil
}

func call(vm *otto.Otto, args []interface{}, timeout time.Duration) (result interface{}, err error) {
	fn, err := vm.Get(entryPoint)
	if err != nil {
		return nil, err
	}

	interrupt := make(chan func(), 1)
	vm.Interrupt = interrupt
	timer := time.AfterFunc(timeout, func() {
		select {
		case interrupt <- func() { panic(errTimeout) }:
		default:
		}
	})

	defer func() {
		timer.Stop()
		vm.Interrupt = nil
		if r := recover(); r != nil {
			if r == errTimeout {
				err = errTimeout
			} else {
				err = fmt.Errorf("script panicked: %v", r)
			}
		}
	}()

	value, err := fn.Call(otto.NullValue(), args...)
	if err != nil {
		return nil, err
	}

	exported, err := value.Export()
	if err != nil {
		return nil, fmt.Errorf("error exporting result: %w", err)
	}
	if f, ok := exported.(float64); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
		return nil, fmt.Errorf("script produced invalid numeric result")
	}
	return exported, nil
}

// paramList renders parameter names as JavaScript identifiers, so a parameter
// named after a dotted variable such as request.host is visible as request_host.
func paramList(params []string) string {
	idents := make([]string, len(params))
	for i, p := range params {
		idents[i] = strings.Map(func(r rune) rune {
			if r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return '_'
		}, p)
	}
	return strings.Join(idents, ",")
}

// RegisterGlobalFunction defines a named helper visible to every script set
// after it.
func (s *SafeVM) RegisterGlobalFunction(name string, script Script) error {
	funcDef := fmt.Sprintf("function %s(%s) { %s }", name, paramList(script.Params), script.Body)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.template.Run(funcDef); err != nil {
		return logging.NewError(logging.ErrorTypeScript, "failed to register global function", err,
			map[string]interface{}{"helper": name})
	}
	return nil
}
