// rewrite/pkg/rewrite/callback.go

package rewrite

import (
	"fmt"
	"sort"
	"sync"
)

// Result is the outcome of a native callback invoked by CALL.
type Result int8

const (
	ResultMatched Result = iota
	ResultNotMatched
	ResultAbort
	ResultError
)

func (r Result) String() string {
	switch r {
	case ResultMatched:
		return "matched"
	case ResultNotMatched:
		return "not_matched"
	case ResultAbort:
		return "abort"
	case ResultError:
		return "error"
	default:
		return fmt.Sprintf("Result(%d)", int8(r))
	}
}

// Callback is host-defined logic embedded in a ruleset. Implementations must not
// block: data that is not available yet is reported as ResultAbort or ResultError.
type Callback interface {
	Call(req Request) Result
}

// CallbackFunc adapts a function to Callback.
type CallbackFunc func(req Request) Result

func (f CallbackFunc) Call(req Request) Result { return f(req) }

// NamedCallback is a Callback bound to its stable registration id.
type NamedCallback struct {
	ID string
	Callback
}

// Callbacks is the lookup table of registered callbacks, keyed by stable id.
type Callbacks struct {
	mu   sync.RWMutex
	byID map[string]*NamedCallback
}

func NewCallbacks() *Callbacks {
	return &Callbacks{byID: make(map[string]*NamedCallback)}
}

func (cs *Callbacks) Register(id string, cb Callback) (*NamedCallback, error) {
	if id == "" {
		return nil, fmt.Errorf("callback id is required")
	}
	if cb == nil {
		return nil, fmt.Errorf("callback %q is nil", id)
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, exists := cs.byID[id]; exists {
		return nil, fmt.Errorf("callback %q already registered", id)
	}
	named := &NamedCallback{ID: id, Callback: cb}
	cs.byID[id] = named
	return named, nil
}

func (cs *Callbacks) Lookup(id string) (*NamedCallback, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	cb, ok := cs.byID[id]
	return cb, ok
}

// IDs returns all registered ids, sorted.
func (cs *Callbacks) IDs() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	ids := make([]string, 0, len(cs.byID))
	for id := range cs.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a new table holding the same registrations.
func (cs *Callbacks) Clone() *Callbacks {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := NewCallbacks()
	for id, cb := range cs.byID {
		out.byID[id] = cb
	}
	return out
}
