// rewrite/pkg/rewrite/rewritetest/request.go

// Package rewritetest provides an in-memory rewrite.Request for tests.
package rewritetest

import (
	"net/textproto"

	"rgehrsitz/rewrite/pkg/config"
	"rgehrsitz/rewrite/pkg/rewrite"
)

// Request is a minimal rewrite.Request backed by plain fields.
type Request struct {
	fields   *rewrite.FieldTable
	scopes   config.ScopeGroup
	registry *config.Registry

	Protocol int
	Headers  map[string]string

	// Aborts records every status passed to Abort.
	Aborts []int
}

// NewRequest builds a request with a fresh field table for vars. A nil registry
// gets a private one.
func NewRequest(vars *rewrite.Variables, registry *config.Registry) *Request {
	if registry == nil {
		registry = config.NewRegistry()
	}
	return &Request{
		fields:   vars.NewFieldTable(),
		registry: registry,
		Protocol: 11,
		Headers:  make(map[string]string),
	}
}

func (r *Request) Fields() *rewrite.FieldTable { return r.fields }

func (r *Request) Scopes() *config.ScopeGroup { return &r.scopes }

func (r *Request) Activator() config.Activator { return r.registry }

func (r *Request) Registry() *config.Registry { return r.registry }

func (r *Request) Abort(status int) { r.Aborts = append(r.Aborts, status) }

func (r *Request) ProtocolVersion() int { return r.Protocol }

func (r *Request) Header(name string) ([]byte, bool) {
	v, ok := r.Headers[textproto.CanonicalMIMEHeaderKey(name)]
	if !ok {
		return nil, false
	}
	return []byte(v), true
}

// SetHeader stores a header under its canonical name.
func (r *Request) SetHeader(name, value string) {
	r.Headers[textproto.CanonicalMIMEHeaderKey(name)] = value
}
