// rewrite/pkg/httpcore/handler.go

package httpcore

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/rs/zerolog"

	"rgehrsitz/rewrite/pkg/compiler"
	"rgehrsitz/rewrite/pkg/logging"
	"rgehrsitz/rewrite/pkg/rewrite"
	"rgehrsitz/rewrite/pkg/runtime"
)

// ResponseRecorder is notified of every response status.
type ResponseRecorder interface {
	RecordResponse(status int)
}

// Summary is the JSON body returned when no rule redirects or aborts.
type Summary struct {
	RequestID string                 `json:"request_id"`
	Outcome   string                 `json:"outcome"`
	Method    string                 `json:"method"`
	Host      string                 `json:"host"`
	Path      string                 `json:"path"`
	Query     string                 `json:"query,omitempty"`
	Protocol  int32                  `json:"protocol"`
	Scopes    []string               `json:"scopes"`
	Settings  map[string]interface{} `json:"settings"`
}

// Handler runs the current bundle's rulesets for every request.
type Handler struct {
	engine   *runtime.Engine
	env      compiler.Environment
	builtins *Builtins
	base     map[string]interface{}
	recorder ResponseRecorder
	logger   zerolog.Logger

	bundle atomic.Pointer[compiler.Bundle]
}

type HandlerOption func(*Handler)

// WithBaseSettings sets the settings consulted after the request's scopes.
func WithBaseSettings(base map[string]interface{}) HandlerOption {
	return func(h *Handler) { h.base = base }
}

func WithRecorder(r ResponseRecorder) HandlerOption {
	return func(h *Handler) { h.recorder = r }
}

func WithHandlerLogger(logger zerolog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

func NewHandler(engine *runtime.Engine, env compiler.Environment, builtins *Builtins, opts ...HandlerOption) *Handler {
	h := &Handler{
		engine:   engine,
		env:      env,
		builtins: builtins,
		logger:   logging.Component("http"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetBundle swaps in a new configuration generation. Requests already running
// keep the bundle they started with.
func (h *Handler) SetBundle(b *compiler.Bundle) {
	h.bundle.Store(b)
}

func (h *Handler) Bundle() *compiler.Bundle {
	return h.bundle.Load()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b := h.bundle.Load()
	if b == nil {
		h.respondError(w, http.StatusServiceUnavailable)
		return
	}

	req := NewRequest(r, h.env.Variables, h.builtins, b.Scopes)
	w.Header().Set("X-Request-ID", req.ID.String())

	outcome := h.engine.Run(req, b.Rulesets)
	logger := h.logger.With().Str("request_id", req.ID.String()).Logger()

	if status := req.Aborted(); status != 0 {
		logger.Warn().Int("status", status).Str("path", r.URL.Path).Msg("Request aborted by ruleset")
		h.respondError(w, status)
		return
	}
	if outcome == runtime.Errored {
		// Execution stopped part way; the rewrite state is incomplete.
		logger.Error().Str("path", r.URL.Path).Msg("Ruleset execution stopped without a response status")
		h.respondError(w, http.StatusInternalServerError)
		return
	}

	status := h.intVar(req, h.builtins.Status)
	location := h.stringVar(req, h.builtins.Location)
	if status >= 300 && status < 400 && location != "" {
		logger.Debug().Int("status", status).Str("location", location).Msg("Redirecting")
		http.Redirect(w, r, location, status)
		h.record(status)
		return
	}
	if status < 100 || status > 599 {
		status = http.StatusOK
	}

	summary := Summary{
		RequestID: req.ID.String(),
		Outcome:   outcome.String(),
		Method:    h.stringVar(req, h.builtins.Method),
		Host:      h.stringVar(req, h.builtins.Host),
		Path:      h.stringVar(req, h.builtins.Path),
		Query:     h.stringVar(req, h.builtins.Query),
		Protocol:  int32(h.intVar(req, h.builtins.Protocol)),
		Scopes:    req.Scopes().Names(),
		Settings:  req.Scopes().Effective(h.base),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
	}
	h.record(status)
}

func (h *Handler) intVar(req *Request, v *rewrite.Variable) int {
	val, _ := v.Get(req)
	return int(val.AsInt())
}

func (h *Handler) stringVar(req *Request, v *rewrite.Variable) string {
	val, _ := v.Get(req)
	return string(val.AsString())
}

func (h *Handler) respondError(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
	h.record(status)
}

func (h *Handler) record(status int) {
	if h.recorder != nil {
		h.recorder.RecordResponse(status)
	}
}
