// rewrite/pkg/httpcore/handler_test.go

package httpcore

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rgehrsitz/rewrite/pkg/compiler"
	"rgehrsitz/rewrite/pkg/rewrite"
	"rgehrsitz/rewrite/pkg/runtime"
)

const handlerRules = `{
	"scopes": [
		{"name": "mobile", "settings": {"root": "/var/www/m"}},
		{"name": "compressed", "settings": {"deflate": true}}
	],
	"scripts": {
		"explode": {"body": "throw new Error('boom');"},
		"not_ready": {"body": "return -1;"}
	},
	"rulesets": [
		{
			"name": "legacy-redirect",
			"conditions": [{"var": "request.host", "operator": "EQ", "value": "old.example.com"}],
			"set": [
				{"var": "response.status", "value": 301},
				{"var": "response.location", "value": "https://new.example.com/"}
			],
			"stop_all": true
		},
		{
			"name": "broken",
			"conditions": [{"var": "request.path", "operator": "EQ", "value": "/boom"}],
			"calls": ["explode"]
		},
		{
			"name": "pending",
			"instructions": [
				{"op": "IS_EQUAL_STRING", "var": "request.path", "value": "/pending"},
				{"op": "SET_INT", "var": "response.status", "value": 302},
				{"op": "SET_STRING", "var": "response.location", "value": "/x"},
				{"op": "CALL", "callback": "not_ready"}
			]
		},
		{
			"name": "mobile",
			"conditions": [{"var": "request.header.user-agent", "operator": "EQ", "value": "MobileBot"}],
			"set": [{"var": "request.path", "value": "/m/index.html"}],
			"scopes": ["mobile"]
		},
		{
			"name": "deflate",
			"instructions": [
				{"op": "IS_EQUAL_BOOL", "var": "request.accepts_deflate", "value": true},
				{"op": "ACTIVATE_SCOPE", "scope": "compressed"}
			]
		}
	]
}`

type countingRecorder struct {
	mu     sync.Mutex
	counts map[int]int
}

func (c *countingRecorder) RecordResponse(status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[int]int)
	}
	c.counts[status]++
}

func newTestHandler(t *testing.T) (*Handler, *countingRecorder) {
	t.Helper()
	vars := rewrite.NewVariables()
	callbacks := rewrite.NewCallbacks()
	builtins, err := RegisterBuiltins(vars, callbacks, DefaultHeaders)
	require.NoError(t, err)

	env := compiler.Environment{Variables: vars, Callbacks: callbacks}
	file, err := compiler.Parse([]byte(handlerRules))
	require.NoError(t, err)
	bundle, err := compiler.Compile(file, env)
	require.NoError(t, err)

	rec := &countingRecorder{}
	h := NewHandler(runtime.NewEngine(runtime.WithLogger(zerolog.Nop())), env, builtins,
		WithBaseSettings(map[string]interface{}{"root": "/var/www", "deflate": false}),
		WithRecorder(rec),
		WithHandlerLogger(zerolog.Nop()))
	h.SetBundle(bundle)
	return h, rec
}

func decodeSummary(t *testing.T, rec *httptest.ResponseRecorder) Summary {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var s Summary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&s))
	return s
}

func TestHandlerRedirect(t *testing.T) {
	h, counts := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://old.example.com:8080/page", nil))

	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://new.example.com/", rec.Header().Get("Location"))
	assert.Equal(t, 1, counts.counts[http.StatusMovedPermanently])
}

func TestHandlerScopesAndSettings(t *testing.T) {
	h, _ := newTestHandler(t)

	r := httptest.NewRequest(http.MethodGet, "http://www.example.com/index.html?a=1", nil)
	r.Header.Set("User-Agent", "MobileBot")
	r.Header.Set("Accept-Encoding", "gzip, deflate")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	s := decodeSummary(t, rec)
	assert.Equal(t, runtime.Matched.String(), s.Outcome)
	assert.Equal(t, "www.example.com", s.Host)
	assert.Equal(t, "/m/index.html", s.Path)
	assert.Equal(t, "a=1", s.Query)
	assert.Equal(t, int32(11), s.Protocol)
	assert.Equal(t, []string{"mobile", "compressed"}, s.Scopes)
	assert.Equal(t, map[string]interface{}{"root": "/var/www/m", "deflate": true}, s.Settings)

	_, err := uuid.Parse(rec.Header().Get("X-Request-ID"))
	assert.NoError(t, err)
	assert.Equal(t, s.RequestID, rec.Header().Get("X-Request-ID"))

	assert.True(t, h.Bundle().Scopes.IsActive("mobile"))
}

func TestHandlerDeflateNeedsHTTP11(t *testing.T) {
	h, _ := newTestHandler(t)

	r := httptest.NewRequest(http.MethodGet, "http://www.example.com/", nil)
	r.Proto, r.ProtoMajor, r.ProtoMinor = "HTTP/1.0", 1, 0
	r.Header.Set("Accept-Encoding", "deflate")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	s := decodeSummary(t, rec)
	assert.Equal(t, int32(10), s.Protocol)
	assert.Empty(t, s.Scopes)
	assert.Equal(t, map[string]interface{}{"root": "/var/www", "deflate": false}, s.Settings)
}

func TestHandlerFatalIsServerError(t *testing.T) {
	h, counts := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://www.example.com/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, counts.counts[http.StatusInternalServerError])
}

func TestHandlerStopParsingDiscardsPartialRewrite(t *testing.T) {
	h, counts := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://www.example.com/pending", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
	assert.NotContains(t, rec.Body.String(), "/x")
	assert.Equal(t, 1, counts.counts[http.StatusInternalServerError])
	assert.Zero(t, counts.counts[http.StatusFound])
}

func TestHandlerWithoutBundle(t *testing.T) {
	vars := rewrite.NewVariables()
	builtins, err := RegisterBuiltins(vars, rewrite.NewCallbacks(), nil)
	require.NoError(t, err)
	h := NewHandler(runtime.NewEngine(), compiler.Environment{Variables: vars}, builtins)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlerBundleSwap(t *testing.T) {
	h, _ := newTestHandler(t)
	old := h.Bundle()

	file, err := compiler.Parse([]byte(`{"rulesets": [{"name": "teapot", "set": [{"var": "response.status", "value": 418}]}]}`))
	require.NoError(t, err)
	next, err := compiler.Compile(file, h.env)
	require.NoError(t, err)
	h.SetBundle(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://old.example.com/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotSame(t, old, h.Bundle())
}
