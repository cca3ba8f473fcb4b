// rewrite/pkg/scripting/callback_test.go

package scripting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rgehrsitz/rewrite/pkg/logging"
	"rgehrsitz/rewrite/pkg/rewrite"
	"rgehrsitz/rewrite/pkg/rewrite/rewritetest"
)

func TestResultOf(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want rewrite.Result
	}{
		{"true", true, rewrite.ResultMatched},
		{"false", false, rewrite.ResultNotMatched},
		{"undefined", nil, rewrite.ResultError},
		{"one", float64(1), rewrite.ResultMatched},
		{"zero", int64(0), rewrite.ResultNotMatched},
		{"minus one", -1, rewrite.ResultAbort},
		{"other number", float64(7), rewrite.ResultError},
		{"fraction", 0.5, rewrite.ResultError},
		{"string", "yes", rewrite.ResultError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resultOf(tt.in))
		})
	}
}

func TestScriptCallback(t *testing.T) {
	vars := rewrite.NewVariables()
	host, err := vars.RegisterDirect("request.host", rewrite.TypeString)
	require.NoError(t, err)
	proto, err := vars.RegisterDirect("request.protocol", rewrite.TypeInt)
	require.NoError(t, err)

	vm := NewSafeVM()
	require.NoError(t, vm.SetScript("is_legacy", Script{
		Params: []string{"request.host", "request.protocol"},
		Body:   "return request_host.indexOf('legacy.') === 0 && request_protocol < 11;",
	}))
	require.NoError(t, vm.SetScript("verdict", Script{
		Params: []string{"request.protocol"},
		Body:   "if (request_protocol === 9) { return -1; } return request_protocol === 10 ? 1 : 0;",
	}))
	require.NoError(t, vm.SetScript("slow", Script{Body: "while(true) {}"}))

	legacy, err := vm.Callback("is_legacy", vars, 100*time.Millisecond)
	require.NoError(t, err)
	verdict, err := vm.Callback("verdict", vars, 100*time.Millisecond)
	require.NoError(t, err)
	slow, err := vm.Callback("slow", vars, 50*time.Millisecond)
	require.NoError(t, err)

	req := rewritetest.NewRequest(vars, nil)
	require.True(t, host.Set(req, rewrite.StringValue([]byte("legacy.example.com"))))
	require.True(t, proto.Set(req, rewrite.IntValue(10)))

	assert.Equal(t, rewrite.ResultMatched, legacy.Call(req))
	assert.Equal(t, rewrite.ResultMatched, verdict.Call(req))
	assert.Equal(t, rewrite.ResultError, slow.Call(req))

	require.True(t, proto.Set(req, rewrite.IntValue(11)))
	assert.Equal(t, rewrite.ResultNotMatched, legacy.Call(req))
	assert.Equal(t, rewrite.ResultNotMatched, verdict.Call(req))

	require.True(t, proto.Set(req, rewrite.IntValue(9)))
	assert.Equal(t, rewrite.ResultAbort, verdict.Call(req))
}

func TestScriptCallbackUnknownParam(t *testing.T) {
	vm := NewSafeVM()
	require.NoError(t, vm.SetScript("s", Script{Params: []string{"missing"}, Body: "return true;"}))

	_, err := vm.Callback("s", rewrite.NewVariables(), time.Second)
	require.Error(t, err)
	assert.True(t, logging.IsType(err, logging.ErrorTypeCompile))

	_, err = vm.Callback("absent", rewrite.NewVariables(), time.Second)
	assert.Error(t, err)
}

func TestScriptWithoutReturnIsError(t *testing.T) {
	vars := rewrite.NewVariables()
	vm := NewSafeVM()
	require.NoError(t, vm.SetScript("forgetful", Script{Body: "var x = 1;"}))

	cb, err := vm.Callback("forgetful", vars, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, rewrite.ResultError, cb.Call(rewritetest.NewRequest(vars, nil)))
}
