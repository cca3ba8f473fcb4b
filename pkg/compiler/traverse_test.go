// rewrite/pkg/compiler/traverse_test.go

package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildDependencyIndex(t *testing.T) {
	bundle, _ := compileSample(t)
	idx := bundle.Deps

	assert.Equal(t, RulesetDeps{
		Reads:     []string{"request.host", "request.protocol"},
		Writes:    []string{"cache.enabled", "request.path"},
		Callbacks: []string{"is_old_protocol"},
		Scopes:    []string{"legacy"},
	}, idx.Rulesets["legacy-host"])

	assert.Equal(t, RulesetDeps{
		Reads:     []string{"request.accepts_deflate"},
		Writes:    []string{"response.status"},
		Callbacks: []string{"request.is_head"},
		Scopes:    []string{"mobile"},
	}, idx.Rulesets["raw"])

	assert.Equal(t, []string{"legacy-host"}, idx.ByVar["request.host"])
	assert.Equal(t, []string{"raw"}, idx.ByVar["response.status"])
	assert.Equal(t, []string{
		"cache.enabled", "request.accepts_deflate", "request.host",
		"request.path", "request.protocol", "response.status",
	}, idx.Variables())
}

func TestBuildDependencyIndexEmpty(t *testing.T) {
	idx := BuildDependencyIndex(nil)
	assert.Empty(t, idx.Rulesets)
	assert.Empty(t, idx.Variables())
}
