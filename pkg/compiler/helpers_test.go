// rewrite/pkg/compiler/helpers_test.go

package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rgehrsitz/rewrite/pkg/rewrite"
)

func testEnvironment(t *testing.T) Environment {
	t.Helper()
	vars := rewrite.NewVariables()
	_, err := vars.RegisterDirect("request.host", rewrite.TypeString)
	require.NoError(t, err)
	_, err = vars.RegisterDirect("request.path", rewrite.TypeString)
	require.NoError(t, err)
	_, err = vars.RegisterDirect("request.protocol", rewrite.TypeInt)
	require.NoError(t, err)
	_, err = vars.RegisterDirect("response.status", rewrite.TypeInt)
	require.NoError(t, err)
	_, err = vars.RegisterDirect("cache.enabled", rewrite.TypeBool)
	require.NoError(t, err)
	_, err = vars.RegisterCallback("request.accepts_deflate", rewrite.TypeBool,
		func(req rewrite.Request, v *rewrite.Variable) (rewrite.Value, bool) {
			return rewrite.BoolValue(true), true
		}, nil)
	require.NoError(t, err)

	callbacks := rewrite.NewCallbacks()
	_, err = callbacks.Register("request.is_head", rewrite.CallbackFunc(func(req rewrite.Request) rewrite.Result {
		return rewrite.ResultNotMatched
	}))
	require.NoError(t, err)

	return Environment{Variables: vars, Callbacks: callbacks}
}

const sampleRules = `{
	"scopes": [
		{"name": "legacy", "settings": {"root": "/var/www/legacy", "gzip": false}},
		{"name": "mobile", "settings": {"root": "/var/www/m"}}
	],
	"scripts": {
		"is_old_protocol": {"params": ["request.protocol"], "body": "return request_protocol < 11;"}
	},
	"rulesets": [
		{
			"name": "legacy-host",
			"conditions": [
				{"var": "request.host", "operator": "EQ", "value": "old.example.com"},
				{"var": "request.protocol", "operator": "neq", "value": 20}
			],
			"calls": ["is_old_protocol"],
			"set": [
				{"var": "request.path", "value": "/legacy"},
				{"var": "cache.enabled", "value": false}
			],
			"scopes": ["legacy"]
		},
		{
			"name": "raw",
			"instructions": [
				{"op": "IS_EQUAL_BOOL", "var": "request.accepts_deflate", "value": true},
				{"op": "SET_INT", "var": "response.status", "value": 301},
				{"op": "ACTIVATE_SCOPE", "scope": "mobile"},
				{"op": "CALL", "callback": "request.is_head"},
				{"op": "NOP"},
				{"op": "STOP_ALL"}
			]
		}
	]
}`
