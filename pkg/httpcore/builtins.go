// rewrite/pkg/httpcore/builtins.go

package httpcore

import (
	"net/http"
	"strings"

	"rgehrsitz/rewrite/pkg/rewrite"
)

// Builtin variable and callback names.
const (
	VarMethod         = "request.method"
	VarHost           = "request.host"
	VarPath           = "request.path"
	VarQuery          = "request.query"
	VarProtocol       = "request.protocol"
	VarStatus         = "response.status"
	VarLocation       = "response.location"
	VarAcceptsDeflate = "request.accepts_deflate"
	HeaderVarPrefix   = "request.header."

	CallbackIsHead    = "request.is_head"
	CallbackIsUpgrade = "request.is_upgrade"
)

// DefaultHeaders are exposed as request.header.<name> unless overridden.
var DefaultHeaders = []string{"user-agent", "referer", "accept-language", "x-forwarded-proto"}

// Builtins holds the variables the host fills in and reads back.
type Builtins struct {
	Method   *rewrite.Variable
	Host     *rewrite.Variable
	Path     *rewrite.Variable
	Query    *rewrite.Variable
	Protocol *rewrite.Variable
	Status   *rewrite.Variable
	Location *rewrite.Variable
}

// RegisterBuiltins adds the host's variables to vars and its native callbacks
// to callbacks. headers lists the request headers exposed as variables.
func RegisterBuiltins(vars *rewrite.Variables, callbacks *rewrite.Callbacks, headers []string) (*Builtins, error) {
	b := &Builtins{}
	direct := []struct {
		dst  **rewrite.Variable
		name string
		typ  rewrite.Type
	}{
		{&b.Method, VarMethod, rewrite.TypeString},
		{&b.Host, VarHost, rewrite.TypeString},
		{&b.Path, VarPath, rewrite.TypeString},
		{&b.Query, VarQuery, rewrite.TypeString},
		{&b.Protocol, VarProtocol, rewrite.TypeInt},
		{&b.Status, VarStatus, rewrite.TypeInt},
		{&b.Location, VarLocation, rewrite.TypeString},
	}
	for _, d := range direct {
		v, err := vars.RegisterDirect(d.name, d.typ)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	if _, err := vars.RegisterCallback(VarAcceptsDeflate, rewrite.TypeBool, acceptsDeflate, nil); err != nil {
		return nil, err
	}
	for _, h := range headers {
		if err := registerHeader(vars, h); err != nil {
			return nil, err
		}
	}

	if _, err := callbacks.Register(CallbackIsHead, rewrite.CallbackFunc(b.isHead)); err != nil {
		return nil, err
	}
	if _, err := callbacks.Register(CallbackIsUpgrade, rewrite.CallbackFunc(isUpgrade)); err != nil {
		return nil, err
	}
	return b, nil
}

func registerHeader(vars *rewrite.Variables, header string) error {
	header = strings.ToLower(header)
	_, err := vars.RegisterCallback(HeaderVarPrefix+header, rewrite.TypeString,
		func(req rewrite.Request, v *rewrite.Variable) (rewrite.Value, bool) {
			raw, _ := req.Header(header)
			return rewrite.StringValue(raw), true
		}, nil)
	return err
}

// acceptsDeflate is true for HTTP/1.1 requests whose Accept-Encoding mentions deflate.
func acceptsDeflate(req rewrite.Request, v *rewrite.Variable) (rewrite.Value, bool) {
	if req.ProtocolVersion() != 11 {
		return rewrite.BoolValue(false), true
	}
	raw, ok := req.Header("Accept-Encoding")
	return rewrite.BoolValue(ok && strings.Contains(string(raw), "deflate")), true
}

func (b *Builtins) isHead(req rewrite.Request) rewrite.Result {
	method, ok := b.Method.Get(req)
	if !ok {
		return rewrite.ResultError
	}
	if string(method.AsString()) == http.MethodHead {
		return rewrite.ResultMatched
	}
	return rewrite.ResultNotMatched
}

func isUpgrade(req rewrite.Request) rewrite.Result {
	raw, ok := req.Header("Upgrade")
	if ok && len(raw) > 0 {
		return rewrite.ResultMatched
	}
	return rewrite.ResultNotMatched
}
