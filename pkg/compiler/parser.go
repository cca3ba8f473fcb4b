// rewrite/pkg/compiler/parser.go

package compiler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"rgehrsitz/rewrite/pkg/logging"
)

// Parse parses a JSON rule file.
func Parse(jsonData []byte) (*RuleFile, error) {
	logging.Logger.Debug().Int("bytes", len(jsonData)).Msg("Starting to parse JSON rule file")
	var file RuleFile
	if err := json.Unmarshal(jsonData, &file); err != nil {
		logging.Logger.Error().Err(err).Msg("Failed to unmarshal JSON data")
		return nil, logging.NewError(logging.ErrorTypeParse, "invalid JSON format", err, nil)
	}
	if err := validateFile(&file); err != nil {
		return nil, err
	}
	return &file, nil
}

// ParseYAML parses a YAML rule file.
func ParseYAML(yamlData []byte) (*RuleFile, error) {
	logging.Logger.Debug().Int("bytes", len(yamlData)).Msg("Starting to parse YAML rule file")
	var file RuleFile
	if err := yaml.Unmarshal(yamlData, &file); err != nil {
		logging.Logger.Error().Err(err).Msg("Failed to unmarshal YAML data")
		return nil, logging.NewError(logging.ErrorTypeParse, "invalid YAML format", err, nil)
	}
	normalizeYAML(&file)
	if err := validateFile(&file); err != nil {
		return nil, err
	}
	return &file, nil
}

// ParseFile reads a rule file, choosing the format from its extension.
func ParseFile(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, logging.NewError(logging.ErrorTypeParse, "failed to read rule file", err,
			map[string]interface{}{"path": path})
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return Parse(data)
	}
}

func validateFile(file *RuleFile) error {
	if len(file.Rulesets) == 0 {
		return parseError("missing rulesets field", nil)
	}

	scopes := make(map[string]bool, len(file.Scopes))
	for _, s := range file.Scopes {
		if s.Name == "" {
			return parseError("scope name is required", nil)
		}
		if scopes[s.Name] {
			return parseError("duplicate scope", map[string]interface{}{"scope": s.Name})
		}
		scopes[s.Name] = true
	}

	for name, script := range file.Scripts {
		if name == "" {
			return parseError("script name is required", nil)
		}
		if strings.TrimSpace(script.Body) == "" {
			return parseError("script body is required", map[string]interface{}{"script": name})
		}
	}

	for name, helper := range file.Helpers {
		if !isIdentifier(name) {
			return parseError("helper name must be an identifier", map[string]interface{}{"helper": name})
		}
		if strings.TrimSpace(helper.Body) == "" {
			return parseError("helper body is required", map[string]interface{}{"helper": name})
		}
	}

	seen := make(map[string]bool, len(file.Rulesets))
	for i := range file.Rulesets {
		rs := &file.Rulesets[i]
		if err := validateRuleset(rs); err != nil {
			logging.Logger.Error().Err(err).Str("ruleset", rs.Name).Msg("Invalid ruleset")
			return err
		}
		if seen[rs.Name] {
			return parseError("duplicate ruleset", map[string]interface{}{"ruleset": rs.Name})
		}
		seen[rs.Name] = true
	}
	return nil
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || r == '$' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

// validateRuleset checks the shape of a ruleset. Names are resolved later.
func validateRuleset(rs *RulesetDef) error {
	fields := map[string]interface{}{"ruleset": rs.Name}
	if rs.Name == "" {
		return parseError("ruleset name is required", nil)
	}
	for i, c := range rs.Conditions {
		if c.Var == "" {
			return parseError(fmt.Sprintf("condition %d: var is required", i), fields)
		}
		op := strings.ToUpper(c.Operator)
		if op != OperatorEqual && op != OperatorNotEqual {
			return parseError(fmt.Sprintf("condition %d: unsupported operator %q", i, c.Operator), fields)
		}
		rs.Conditions[i].Operator = op
	}
	for i, s := range rs.Set {
		if s.Var == "" {
			return parseError(fmt.Sprintf("set %d: var is required", i), fields)
		}
	}
	for i, in := range rs.Instructions {
		if in.Op == "" {
			return parseError(fmt.Sprintf("instruction %d: op is required", i), fields)
		}
		rs.Instructions[i].Op = strings.ToUpper(in.Op)
	}
	return nil
}

// normalizeYAML converts the map types yaml.v3 produces for nested settings
// into the shape encoding/json would produce.
func normalizeYAML(file *RuleFile) {
	for i := range file.Scopes {
		for k, v := range file.Scopes[i].Settings {
			file.Scopes[i].Settings[k] = normalizeValue(v)
		}
	}
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeValue(val)
		}
		return out
	case map[string]interface{}:
		for k, val := range t {
			t[k] = normalizeValue(val)
		}
		return t
	case []interface{}:
		for i, val := range t {
			t[i] = normalizeValue(val)
		}
		return t
	default:
		return v
	}
}

func parseError(msg string, fields map[string]interface{}) error {
	return logging.NewError(logging.ErrorTypeParse, msg, nil, fields)
}
