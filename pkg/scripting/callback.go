// rewrite/pkg/scripting/callback.go

package scripting

import (
	"fmt"
	"time"

	"rgehrsitz/rewrite/pkg/logging"
	"rgehrsitz/rewrite/pkg/rewrite"
)

// ScriptCallback exposes a stored script as a CALL target. Each script
// parameter names a variable whose current value is passed as the argument.
type ScriptCallback struct {
	vm      *SafeVM
	name    string
	params  []*rewrite.Variable
	timeout time.Duration
}

// Callback binds the script's parameters to variables from vars.
func (s *SafeVM) Callback(name string, vars *rewrite.Variables, timeout time.Duration) (*ScriptCallback, error) {
	script, ok := s.Script(name)
	if !ok {
		return nil, fmt.Errorf("script not found: %s", name)
	}

	params := make([]*rewrite.Variable, len(script.Params))
	for i, p := range script.Params {
		v, ok := vars.Lookup(p)
		if !ok {
			return nil, logging.NewError(logging.ErrorTypeCompile, "script parameter is not a known variable", nil,
				map[string]interface{}{"script": name, "param": p})
		}
		params[i] = v
	}
	return &ScriptCallback{vm: s, name: name, params: params, timeout: timeout}, nil
}

func (c *ScriptCallback) Call(req rewrite.Request) rewrite.Result {
	args := make(map[string]interface{}, len(c.params))
	for _, v := range c.params {
		val, ok := v.Get(req)
		if !ok {
			return rewrite.ResultError
		}
		args[v.Name()] = val.Interface()
	}

	out, err := c.vm.RunScript(c.name, args, c.timeout)
	if err != nil {
		return rewrite.ResultError
	}
	return resultOf(out)
}

// resultOf maps a script's return value onto a callback result: booleans match
// or not, and the numbers 1, 0 and -1 mean matched, not matched and abort.
// Anything else, including no return value, is an error.
func resultOf(out interface{}) rewrite.Result {
	switch r := out.(type) {
	case bool:
		if r {
			return rewrite.ResultMatched
		}
		return rewrite.ResultNotMatched
	}

	n, ok := toInt(out)
	if !ok {
		return rewrite.ResultError
	}
	switch n {
	case 1:
		return rewrite.ResultMatched
	case 0:
		return rewrite.ResultNotMatched
	case -1:
		return rewrite.ResultAbort
	default:
		return rewrite.ResultError
	}
}

func toInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}
