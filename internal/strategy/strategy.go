// Package strategy defines the contract between the dispatcher and the
// opaque per-provider adapters implementing a delegated login protocol.
//
// A strategy owns the wire protocol of one provider (handshake, token
// exchange, signature verification). It never touches the account store and
// never makes auth decisions: it turns HTTP traffic into either an
// HTTP-shaped Response (request phase) or a normalized Payload (callback
// phase). Everything a strategy needs is passed explicitly through Request;
// there is no ambient per-request state.
package strategy

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dropDatabas3/authbridge/internal/session"
)

// Options holds per-provider construction and runtime options. The setup
// hook may mutate a request-scoped copy before the strategy runs.
type Options map[string]any

// Clone returns a shallow copy, so per-request mutation never leaks into
// the registered configuration.
func (o Options) Clone() Options {
	if o == nil {
		return Options{}
	}
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// String returns the option as a string, or def when absent.
func (o Options) String(key, def string) string {
	if v, ok := o[key].(string); ok {
		return v
	}
	return def
}

// Bool returns the option as a bool, or def when absent.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key].(bool); ok {
		return v
	}
	return def
}

// Phase is the leg of the delegated flow being executed.
type Phase string

const (
	PhaseRequest  Phase = "request"
	PhaseCallback Phase = "callback"
)

// Request is the explicit per-request context handed to a strategy.
type Request struct {
	// HTTP is the inbound request for the current phase.
	HTTP *http.Request

	// Params are the merged query/form parameters.
	Params url.Values

	// Session is the bridged host session. Mutations are persisted by the
	// session bridge when the phase completes.
	Session *session.Session

	// Origin is where the user should return after the flow, when known.
	Origin string

	// CallbackURL is the absolute URL of this provider's callback phase.
	CallbackURL string
}

// Response is an HTTP-shaped result produced by a strategy phase.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Redirect builds a 302 response to the given location.
func Redirect(location string) *Response {
	h := http.Header{}
	h.Set("Location", location)
	return &Response{Status: http.StatusFound, Header: h}
}

// HTML builds a 200 text/html response.
func HTML(body string) *Response {
	h := http.Header{}
	h.Set("Content-Type", "text/html; charset=utf-8")
	return &Response{Status: http.StatusOK, Header: h, Body: []byte(body)}
}

// NotAllowed builds a 405 response advertising the allowed methods.
func NotAllowed(allowed ...string) *Response {
	h := http.Header{}
	for _, m := range allowed {
		h.Add("Allow", m)
	}
	return &Response{Status: http.StatusMethodNotAllowed, Header: h}
}

// Write renders the response onto a ResponseWriter.
func (r *Response) Write(w http.ResponseWriter) {
	for k, vs := range r.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(r.Status)
	if len(r.Body) > 0 {
		_, _ = w.Write(r.Body)
	}
}

// Strategy is implemented by every provider adapter.
//
// RequestPhase typically responds with a redirect to the external provider.
// CallbackPhase consumes the provider's response and produces the completed
// handshake payload. Both report protocol failures as *HandshakeError.
type Strategy interface {
	// Name returns the provider name this instance was constructed for.
	Name() string

	// Configure applies options to the instance. Called once at registry
	// finalization (validation) and again per request after setup hooks.
	Configure(opts Options) error

	// RequestPhase starts the delegated flow.
	RequestPhase(ctx context.Context, req *Request) (*Response, error)

	// CallbackPhase completes the delegated flow.
	CallbackPhase(ctx context.Context, req *Request) (*Payload, error)
}

// MethodRestricted is optionally implemented by strategies whose request
// phase only accepts specific HTTP methods (e.g. POST-only providers).
type MethodRestricted interface {
	AllowedRequestMethods() []string
}

// Factory constructs a strategy instance for a registered provider.
// name is the registered provider name, which may differ from the strategy
// kind when one strategy serves several registrations.
type Factory func(name string, opts Options) (Strategy, error)
