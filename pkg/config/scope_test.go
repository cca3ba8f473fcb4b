// rewrite/pkg/config/scope_test.go

package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDefine(t *testing.T) {
	r := NewRegistry()
	settings := map[string]interface{}{"document_root": "/srv/legacy"}
	s, err := r.Define("legacy", settings)
	require.NoError(t, err)

	settings["document_root"] = "/changed"
	v, ok := s.Setting("document_root")
	assert.True(t, ok)
	assert.Equal(t, "/srv/legacy", v)

	_, err = r.Define("legacy", nil)
	assert.Error(t, err)
	_, err = r.Define("", nil)
	assert.Error(t, err)

	found, ok := r.Lookup("legacy")
	assert.True(t, ok)
	assert.Same(t, s, found)
	assert.Equal(t, []string{"legacy"}, r.Names())
}

func TestRegistryActivateIsIdempotent(t *testing.T) {
	r := NewRegistry()
	a, _ := r.Define("a", nil)
	b, _ := r.Define("b", nil)

	assert.False(t, r.IsActive("a"))
	r.Activate(a)
	r.Activate(a)
	r.Activate(b)

	assert.True(t, r.IsActive("a"))
	assert.False(t, r.IsActive("missing"))
	assert.Equal(t, []string{"a", "b"}, r.Active())
}

func TestRegistryConcurrentActivate(t *testing.T) {
	r := NewRegistry()
	s, _ := r.Define("shared", nil)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Activate(s)
			_ = r.IsActive("shared")
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"shared"}, r.Active())
}

func TestScopeGroupPrecedence(t *testing.T) {
	base := NewScope("base", map[string]interface{}{"root": "/srv", "index": "index.html"})
	override := NewScope("override", map[string]interface{}{"root": "/srv/override"})

	var g ScopeGroup
	assert.True(t, g.Add(base))
	assert.True(t, g.Add(override))
	assert.False(t, g.Add(base))

	assert.Equal(t, []string{"base", "override"}, g.Names())
	assert.Equal(t, 2, g.Len())

	v, ok := g.Lookup("root")
	assert.True(t, ok)
	assert.Equal(t, "/srv/override", v)

	v, ok = g.Lookup("index")
	assert.True(t, ok)
	assert.Equal(t, "index.html", v)

	_, ok = g.Lookup("missing")
	assert.False(t, ok)
}

func TestScopeGroupEffective(t *testing.T) {
	var g ScopeGroup
	g.Add(NewScope("a", map[string]interface{}{"x": 1, "y": 1}))
	g.Add(NewScope("b", map[string]interface{}{"y": 2}))

	eff := g.Effective(map[string]interface{}{"x": 0, "z": 0})
	assert.Equal(t, map[string]interface{}{"x": 1, "y": 2, "z": 0}, eff)
}
