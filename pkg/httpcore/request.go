// rewrite/pkg/httpcore/request.go

// Package httpcore adapts net/http requests to the rewrite VM.
package httpcore

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"rgehrsitz/rewrite/pkg/config"
	"rgehrsitz/rewrite/pkg/rewrite"
)

// Request is the per-request state the VM runs against.
type Request struct {
	ID uuid.UUID

	http      *http.Request
	fields    *rewrite.FieldTable
	scopes    config.ScopeGroup
	activator config.Activator
	aborted   int
}

// NewRequest fills the builtin direct variables from r.
func NewRequest(r *http.Request, vars *rewrite.Variables, b *Builtins, activator config.Activator) *Request {
	req := &Request{
		ID:        uuid.New(),
		http:      r,
		fields:    vars.NewFieldTable(),
		activator: activator,
	}

	b.Method.Set(req, rewrite.StringValue([]byte(r.Method)))
	b.Host.Set(req, rewrite.StringValue([]byte(hostOnly(r.Host))))
	b.Path.Set(req, rewrite.StringValue([]byte(r.URL.Path)))
	b.Query.Set(req, rewrite.StringValue([]byte(r.URL.RawQuery)))
	b.Protocol.Set(req, rewrite.IntValue(int32(req.ProtocolVersion())))
	return req
}

func hostOnly(hostport string) string {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
	}
	return strings.ToLower(host)
}

func (r *Request) Fields() *rewrite.FieldTable { return r.fields }

func (r *Request) Scopes() *config.ScopeGroup { return &r.scopes }

func (r *Request) Activator() config.Activator { return r.activator }

// Abort records the first status raised for the request.
func (r *Request) Abort(status int) {
	if r.aborted == 0 {
		r.aborted = status
	}
}

// Aborted returns the status passed to Abort, or 0.
func (r *Request) Aborted() int { return r.aborted }

func (r *Request) ProtocolVersion() int {
	return r.http.ProtoMajor*10 + r.http.ProtoMinor
}

func (r *Request) Header(name string) ([]byte, bool) {
	values, ok := r.http.Header[http.CanonicalHeaderKey(name)]
	if !ok || len(values) == 0 {
		return nil, false
	}
	return []byte(strings.Join(values, ", ")), true
}
