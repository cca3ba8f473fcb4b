// rewrite/tools/rule_gen/main.go

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"gopkg.in/yaml.v3"

	"rgehrsitz/rewrite/pkg/compiler"
	"rgehrsitz/rewrite/pkg/httpcore"
)

type varKind int

const (
	kindString varKind = iota
	kindInt
	kindBool
)

// conditionVars are the builtin variables a generated condition may test.
var conditionVars = map[string]varKind{
	httpcore.VarHost:                        kindString,
	httpcore.VarPath:                        kindString,
	httpcore.VarMethod:                      kindString,
	httpcore.VarProtocol:                    kindInt,
	httpcore.VarAcceptsDeflate:              kindBool,
	httpcore.HeaderVarPrefix + "user-agent": kindString,
}

var conditionNames = []string{
	httpcore.VarHost, httpcore.VarPath, httpcore.VarMethod,
	httpcore.VarProtocol, httpcore.VarAcceptsDeflate, httpcore.HeaderVarPrefix + "user-agent",
}

func generateValue(name string) interface{} {
	switch conditionVars[name] {
	case kindInt:
		return []int{10, 11, 20}[rand.Intn(3)]
	case kindBool:
		return gofakeit.Bool()
	}
	switch name {
	case httpcore.VarHost:
		return strings.ToLower(gofakeit.DomainName())
	case httpcore.VarPath:
		return "/" + gofakeit.Word()
	case httpcore.VarMethod:
		return gofakeit.HTTPMethod()
	default:
		return gofakeit.UserAgent()
	}
}

func generateCondition() compiler.ConditionDef {
	name := conditionNames[rand.Intn(len(conditionNames))]
	op := compiler.OperatorEqual
	if rand.Float32() < 0.3 {
		op = compiler.OperatorNotEqual
	}
	return compiler.ConditionDef{Var: name, Operator: op, Value: generateValue(name)}
}

func generateScopes(n int) []compiler.ScopeDef {
	scopes := make([]compiler.ScopeDef, n)
	for i := range scopes {
		scopes[i] = compiler.ScopeDef{
			Name: fmt.Sprintf("scope-%d", i+1),
			Settings: map[string]interface{}{
				"root":  "/var/www/" + strings.ToLower(gofakeit.Word()),
				"gzip":  gofakeit.Bool(),
				"owner": gofakeit.Email(),
			},
		}
	}
	return scopes
}

func generateRuleset(index int, scopes []compiler.ScopeDef) compiler.RulesetDef {
	rs := compiler.RulesetDef{Name: fmt.Sprintf("ruleset-%d", index)}

	numConditions := rand.Intn(3) + 1
	for i := 0; i < numConditions; i++ {
		rs.Conditions = append(rs.Conditions, generateCondition())
	}

	switch {
	case rand.Float32() < 0.2:
		rs.Set = []compiler.SetDef{
			{Var: httpcore.VarStatus, Value: []int{301, 302, 307, 308}[rand.Intn(4)]},
			{Var: httpcore.VarLocation, Value: gofakeit.URL()},
		}
		rs.StopAll = true
	default:
		rs.Set = []compiler.SetDef{{Var: httpcore.VarPath, Value: "/" + gofakeit.Word() + "/" + gofakeit.Word()}}
	}

	if len(scopes) > 0 && rand.Float32() < 0.5 {
		rs.Scopes = []string{scopes[rand.Intn(len(scopes))].Name}
	}
	return rs
}

func generateRuleFile(numRulesets, numScopes int) *compiler.RuleFile {
	file := &compiler.RuleFile{Scopes: generateScopes(numScopes)}
	file.Rulesets = make([]compiler.RulesetDef, numRulesets)
	for i := range file.Rulesets {
		file.Rulesets[i] = generateRuleset(i+1, file.Scopes)
	}
	return file
}

// encode renders file as YAML for .yaml/.yml paths and JSON otherwise.
func encode(file *compiler.RuleFile, path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Marshal(file)
	default:
		return json.MarshalIndent(file, "", "  ")
	}
}

func parseFlags(args []string) (int, int, string) {
	fs := flag.NewFlagSet("rule_gen", flag.ExitOnError)
	numRulesets := fs.Int("rulesets", 100, "Number of rulesets to generate")
	numScopes := fs.Int("scopes", 5, "Number of scopes to generate")
	outputFile := fs.String("output", "generated_rules.json", "Output file name (.json, .yaml or .yml)")
	fs.Parse(args)
	return *numRulesets, *numScopes, *outputFile
}

func main() {
	numRulesets, numScopes, outputFile := parseFlags(os.Args[1:])

	data, err := encode(generateRuleFile(numRulesets, numScopes), outputFile)
	if err != nil {
		fmt.Printf("Error encoding rules: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		fmt.Printf("Error writing file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d rulesets and %d scopes. Saved to %s\n", numRulesets, numScopes, outputFile)
}
