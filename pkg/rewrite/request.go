// rewrite/pkg/rewrite/request.go

package rewrite

import "rgehrsitz/rewrite/pkg/config"

// Request is the capability set the VM needs from the HTTP core for one request.
type Request interface {
	// Fields is the request's table of direct variable slots.
	Fields() *FieldTable
	// Scopes is the request's activated scope record.
	Scopes() *config.ScopeGroup
	// Activator is the process-wide scope registry of the current configuration.
	Activator() config.Activator
	// Abort raises a protocol-level error with the given status code.
	Abort(status int)
	// ProtocolVersion is the HTTP version as major*10+minor (10, 11, 20).
	ProtocolVersion() int
	// Header returns the raw value of a request header.
	Header(name string) ([]byte, bool)
}
