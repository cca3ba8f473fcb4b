// rewrite/pkg/runtime/engine_benchmark_test.go

package runtime

import (
	"testing"

	"github.com/rs/zerolog"

	"rgehrsitz/rewrite/pkg/config"
	"rgehrsitz/rewrite/pkg/rewrite"
	"rgehrsitz/rewrite/pkg/rewrite/rewritetest"
)

func benchmarkRuleset(b *testing.B) (*rewrite.Variables, *config.Registry, *rewrite.Ruleset) {
	vars := rewrite.NewVariables()
	registry := config.NewRegistry()
	host, _ := vars.RegisterDirect("request.host", rewrite.TypeString)
	path, _ := vars.RegisterDirect("request.path", rewrite.TypeString)
	proto, _ := vars.RegisterDirect("request.protocol", rewrite.TypeInt)
	scope, err := registry.Define("legacy", map[string]interface{}{"root": "/srv/legacy"})
	if err != nil {
		b.Fatal(err)
	}

	rs := rewrite.NewRuleset("legacy-host",
		rewrite.IsEqualString{Var: host, Value: []byte("old.example.com")},
		rewrite.IsNotEqualInt{Var: proto, Value: 10},
		rewrite.SetString{Var: path, Value: []byte("/legacy/index.html")},
		rewrite.ActivateScope{Scope: scope},
	)
	return vars, registry, rs
}

func BenchmarkExecuteMatched(b *testing.B) {
	vars, registry, rs := benchmarkRuleset(b)
	host, _ := vars.Lookup("request.host")
	engine := NewEngine(WithLogger(zerolog.Nop()))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := rewritetest.NewRequest(vars, registry)
		host.Set(req, rewrite.StringValue([]byte("old.example.com")))
		engine.Execute(req, rs)
	}
}

func BenchmarkExecuteShortCircuit(b *testing.B) {
	vars, registry, rs := benchmarkRuleset(b)
	engine := NewEngine(WithLogger(zerolog.Nop()))

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.Execute(rewritetest.NewRequest(vars, registry), rs)
	}
}

func BenchmarkExecuteParallel(b *testing.B) {
	vars, registry, rs := benchmarkRuleset(b)
	engine := NewEngine(WithLogger(zerolog.Nop()))

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			engine.Execute(rewritetest.NewRequest(vars, registry), rs)
		}
	})
}
