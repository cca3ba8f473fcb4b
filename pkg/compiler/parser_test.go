// rewrite/pkg/compiler/parser_test.go

package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rgehrsitz/rewrite/pkg/logging"
)

func TestParse(t *testing.T) {
	file, err := Parse([]byte(sampleRules))
	require.NoError(t, err)

	require.Len(t, file.Rulesets, 2)
	assert.Equal(t, "legacy-host", file.Rulesets[0].Name)
	assert.Equal(t, OperatorNotEqual, file.Rulesets[0].Conditions[1].Operator)
	assert.Len(t, file.Scopes, 2)
	assert.Equal(t, []string{"request.protocol"}, file.Scripts["is_old_protocol"].Params)
	assert.Len(t, file.Rulesets[1].Instructions, 6)
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
scopes:
  - name: legacy
    settings:
      root: /var/www/legacy
      limits:
        rate: 10
rulesets:
  - name: legacy-host
    conditions:
      - var: request.host
        operator: EQ
        value: old.example.com
    set:
      - var: response.status
        value: 302
    scopes: [legacy]
    stop_all: true
`)
	file, err := ParseYAML(data)
	require.NoError(t, err)

	require.Len(t, file.Rulesets, 1)
	rs := file.Rulesets[0]
	assert.Equal(t, "old.example.com", rs.Conditions[0].Value)
	assert.Equal(t, 302, rs.Set[0].Value)
	assert.True(t, rs.StopAll)
	assert.Equal(t, map[string]interface{}{"rate": 10}, file.Scopes[0].Settings["limits"])
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
		msg  string
	}{
		{"invalid json", `{"rulesets": [`, "invalid JSON format"},
		{"no rulesets", `{"scopes": []}`, "missing rulesets field"},
		{"unnamed ruleset", `{"rulesets": [{"stop_all": true}]}`, "ruleset name is required"},
		{"duplicate ruleset", `{"rulesets": [{"name": "a"}, {"name": "a"}]}`, "duplicate ruleset"},
		{"bad operator", `{"rulesets": [{"name": "a", "conditions": [{"var": "x", "operator": "GT", "value": 1}]}]}`, "unsupported operator"},
		{"condition without var", `{"rulesets": [{"name": "a", "conditions": [{"operator": "EQ", "value": 1}]}]}`, "var is required"},
		{"set without var", `{"rulesets": [{"name": "a", "set": [{"value": 1}]}]}`, "var is required"},
		{"instruction without op", `{"rulesets": [{"name": "a", "instructions": [{"var": "x"}]}]}`, "op is required"},
		{"unnamed scope", `{"scopes": [{"settings": {}}], "rulesets": [{"name": "a"}]}`, "scope name is required"},
		{"duplicate scope", `{"scopes": [{"name": "s"}, {"name": "s"}], "rulesets": [{"name": "a"}]}`, "duplicate scope"},
		{"empty script", `{"scripts": {"s": {"body": " "}}, "rulesets": [{"name": "a"}]}`, "script body is required"},
		{"helper name", `{"helpers": {"is-old": {"body": "return 1;"}}, "rulesets": [{"name": "a"}]}`, "helper name must be an identifier"},
		{"empty helper", `{"helpers": {"isOld": {"body": ""}}, "rulesets": [{"name": "a"}]}`, "helper body is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.json))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
			assert.True(t, logging.IsType(err, logging.ErrorTypeParse))
		})
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "rules.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(sampleRules), 0644))
	file, err := ParseFile(jsonPath)
	require.NoError(t, err)
	assert.Len(t, file.Rulesets, 2)

	yamlPath := filepath.Join(dir, "rules.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("rulesets:\n  - name: only\n    stop_all: true\n"), 0644))
	file, err = ParseFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "only", file.Rulesets[0].Name)

	_, err = ParseFile(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
