// rewrite/pkg/rewrite/variable.go

package rewrite

import (
	"fmt"
	"sort"
	"sync"
)

// Location selects how a Variable is resolved.
type Location uint8

const (
	// LocationDirect variables live in a slot of the request's FieldTable.
	LocationDirect Location = iota
	// LocationCallback variables are read and written through accessor functions.
	LocationCallback
)

func (l Location) String() string {
	if l == LocationDirect {
		return "direct"
	}
	return "callback"
}

// GetFunc reads a callback variable. Returning false reports an unrecoverable failure.
type GetFunc func(req Request, v *Variable) (Value, bool)

// SetFunc writes a callback variable. Returning false reports an unrecoverable failure.
type SetFunc func(req Request, v *Variable, val Value) bool

// Variable is a named, typed handle on request-observable state.
type Variable struct {
	name     string
	typ      Type
	location Location
	slot     int
	get      GetFunc
	set      SetFunc
}

func (v *Variable) Name() string { return v.name }

func (v *Variable) Type() Type { return v.typ }

func (v *Variable) Location() Location { return v.location }

// Writable is false for callback variables registered without a setter.
func (v *Variable) Writable() bool {
	return v.location == LocationDirect || v.set != nil
}

// Get resolves the variable for req. Direct variables never fail.
func (v *Variable) Get(req Request) (Value, bool) {
	if v.location == LocationDirect {
		return req.Fields().load(v.slot), true
	}
	return v.get(req, v)
}

// Set writes val for req. Direct variables never fail.
func (v *Variable) Set(req Request, val Value) bool {
	if v.location == LocationDirect {
		req.Fields().store(v.slot, val)
		return true
	}
	if v.set == nil {
		return false
	}
	return v.set(req, v, val)
}

func (v *Variable) String() string {
	return fmt.Sprintf("%s(%s,%s)", v.name, v.typ, v.location)
}

// Variables is the registry of every variable a ruleset may reference.
// Registration normally happens at startup; lookups are safe for concurrent use.
type Variables struct {
	mu     sync.RWMutex
	byName map[string]*Variable
	slots  []Type
}

func NewVariables() *Variables {
	return &Variables{byName: make(map[string]*Variable)}
}

// RegisterDirect allocates a FieldTable slot for a new variable.
func (vs *Variables) RegisterDirect(name string, typ Type) (*Variable, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if err := vs.checkName(name); err != nil {
		return nil, err
	}
	v := &Variable{name: name, typ: typ, location: LocationDirect, slot: len(vs.slots)}
	vs.slots = append(vs.slots, typ)
	vs.byName[name] = v
	return v, nil
}

// RegisterCallback registers an accessor-backed variable. set may be nil for
// read-only variables.
func (vs *Variables) RegisterCallback(name string, typ Type, get GetFunc, set SetFunc) (*Variable, error) {
	if get == nil {
		return nil, fmt.Errorf("variable %q: getter is required", name)
	}
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if err := vs.checkName(name); err != nil {
		return nil, err
	}
	v := &Variable{name: name, typ: typ, location: LocationCallback, slot: -1, get: get, set: set}
	vs.byName[name] = v
	return v, nil
}

func (vs *Variables) checkName(name string) error {
	if name == "" {
		return fmt.Errorf("variable name is required")
	}
	if _, exists := vs.byName[name]; exists {
		return fmt.Errorf("variable %q already registered", name)
	}
	return nil
}

func (vs *Variables) Lookup(name string) (*Variable, bool) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	v, ok := vs.byName[name]
	return v, ok
}

// Names returns all registered names, sorted.
func (vs *Variables) Names() []string {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	names := make([]string, 0, len(vs.byName))
	for name := range vs.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewFieldTable returns a table with one zero value per direct variable.
func (vs *Variables) NewFieldTable() *FieldTable {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	values := make([]Value, len(vs.slots))
	for i, typ := range vs.slots {
		values[i] = Zero(typ)
	}
	return &FieldTable{values: values}
}

// FieldTable holds the direct variable slots of one request.
type FieldTable struct {
	values []Value
}

func (ft *FieldTable) load(slot int) Value {
	return ft.values[slot]
}

func (ft *FieldTable) store(slot int, val Value) {
	ft.values[slot] = val
}

// Len is the number of slots.
func (ft *FieldTable) Len() int { return len(ft.values) }

// Snapshot copies the slot values.
func (ft *FieldTable) Snapshot() []Value {
	out := make([]Value, len(ft.values))
	copy(out, ft.values)
	return out
}
