// rewrite/pkg/httpcore/e2e_test.go

package httpcore_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rgehrsitz/rewrite/pkg/compiler"
	"rgehrsitz/rewrite/pkg/httpcore"
	"rgehrsitz/rewrite/pkg/rewrite"
	"rgehrsitz/rewrite/pkg/runtime"
	"rgehrsitz/rewrite/pkg/store"
	"rgehrsitz/rewrite/pkg/validator"
)

const e2eRules = `
scopes:
  - name: legacy
    settings:
      root: /var/www/legacy
rulesets:
  - name: maintenance
    conditions:
      - {var: "shared.site:maintenance", operator: eq, value: true}
    set:
      - {var: response.status, value: 503}
    stop_all: true
  - name: legacy-redirect
    conditions:
      - {var: request.host, operator: eq, value: old.example.com}
    set:
      - {var: response.status, value: 301}
      - {var: response.location, value: "https://new.example.com/"}
      - {var: "shared.site:seen_legacy", value: true}
    scopes: [legacy]
    stop_all: true
`

func TestEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("site:maintenance", "false"))

	redisStore, err := store.NewRedisStore(ctx, mr.Addr(), "", 0)
	require.NoError(t, err)
	defer redisStore.Close()

	vars := rewrite.NewVariables()
	callbacks := rewrite.NewCallbacks()
	builtins, err := httpcore.RegisterBuiltins(vars, callbacks, httpcore.DefaultHeaders)
	require.NoError(t, err)

	cache := store.NewCache(redisStore, 4)
	_, err = cache.Bind(vars, "site:maintenance", rewrite.TypeBool, false)
	require.NoError(t, err)
	_, err = cache.Bind(vars, "site:seen_legacy", rewrite.TypeBool, true)
	require.NoError(t, err)
	env := compiler.Environment{Variables: vars, Callbacks: callbacks}

	// Rule file -> compiled bundle -> bytecode file -> bundle.
	file, err := compiler.ParseYAML([]byte(e2eRules))
	require.NoError(t, err)
	compiled, err := compiler.Compile(file, env)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "rules.rwbc")
	require.NoError(t, compiler.WriteBytecodeToFile(path, compiled))
	bundle, err := compiler.LoadBytecodeFile(path, env)
	require.NoError(t, err)
	assert.Empty(t, validator.Validate(bundle))

	require.NoError(t, cache.Preload(ctx, store.KeysOf(bundle.Deps.Variables())...))
	go cache.RunWriter(ctx)
	go cache.Watch(ctx, "site")

	engine := runtime.NewEngine(runtime.WithLogger(zerolog.Nop()))
	h := httpcore.NewHandler(engine, env, builtins, httpcore.WithHandlerLogger(zerolog.Nop()))
	h.SetBundle(bundle)

	// Redirect, and the write to a shared variable reaches Redis.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://old.example.com/a", nil))
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://new.example.com/", rec.Header().Get("Location"))
	assert.Eventually(t, func() bool {
		v, err := mr.Get("site:seen_legacy")
		return err == nil && v == "true"
	}, time.Second, 10*time.Millisecond)

	// Unrelated host passes through untouched.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://www.example.com/b", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var summary httpcore.Summary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	assert.Equal(t, runtime.Matched.String(), summary.Outcome)
	assert.Equal(t, "/b", summary.Path)

	// A published update flips maintenance mode for every host.
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("site")["site"] == 1
	}, time.Second, 10*time.Millisecond)
	mr.Publish("site", "site:maintenance=true")
	require.Eventually(t, func() bool {
		v, ok := cache.Get("site:maintenance")
		return ok && v == true
	}, time.Second, 10*time.Millisecond)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://old.example.com/a", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	summary = httpcore.Summary{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	assert.Equal(t, runtime.NotMatched.String(), summary.Outcome)
	assert.Empty(t, summary.Scopes)
}
