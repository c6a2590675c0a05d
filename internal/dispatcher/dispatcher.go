// Package dispatcher routes inbound requests under the provider prefix
// through the validation and hook pipeline, bridges the host session around
// the strategy invocation, and hands completed callbacks to the resolver.
// Every failure funnels into the failure channel; nothing escapes to the
// host as an unhandled fault.
package dispatcher

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	httperrors "github.com/dropDatabas3/authbridge/internal/http/errors"
	"github.com/dropDatabas3/authbridge/internal/metrics"
	"github.com/dropDatabas3/authbridge/internal/observability/logger"
	"github.com/dropDatabas3/authbridge/internal/provider"
	"github.com/dropDatabas3/authbridge/internal/resolution"
	"github.com/dropDatabas3/authbridge/internal/session"
	"github.com/dropDatabas3/authbridge/internal/strategy"
)

const kindInternal = "internal_error"

// session key carrying the flow origin between the two phases.
const originKey = "external_origin"

// AccountNotifier is told about auto-created accounts. Implementations must
// not block; delivery failures never affect the login outcome.
type AccountNotifier interface {
	AccountCreated(ctx context.Context, login string)
}

// Config tunes the dispatcher.
type Config struct {
	// SuccessRedirect is where interactive logins land when no origin is
	// known. Default "/".
	SuccessRedirect string

	// FailureRedirect is where interactive failures land. Default "/login".
	FailureRedirect string

	// Secret signs the identity-ref handoff tokens.
	Secret []byte

	CSRF CSRFConfig

	Hooks Hooks

	// OnFailure overrides the default failure handler when set.
	OnFailure FailureHandler

	// Notifier, when set, is told about auto-created accounts.
	Notifier AccountNotifier
}

// Dispatcher wires the registry, session bridge and resolver into one
// http middleware.
type Dispatcher struct {
	registry *provider.Registry
	bridge   *session.Bridge
	resolver *resolution.Resolver
	cfg      Config
}

// New builds a Dispatcher. The registry must already be finalized.
func New(registry *provider.Registry, bridge *session.Bridge, resolver *resolution.Resolver, cfg Config) *Dispatcher {
	if cfg.SuccessRedirect == "" {
		cfg.SuccessRedirect = "/"
	}
	if cfg.FailureRedirect == "" {
		cfg.FailureRedirect = "/login"
	}
	cfg.CSRF = cfg.CSRF.withDefaults()
	return &Dispatcher{registry: registry, bridge: bridge, resolver: resolver, cfg: cfg}
}

// Handler dispatches requests matching a registered provider route and
// passes everything else to next, so unregistered provider names are never
// handled here.
func (d *Dispatcher) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg, phase, ok := d.registry.Match(r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		metrics.DispatchedTotal.WithLabelValues(reg.Name, string(phase)).Inc()

		ctx := logger.ToContext(r.Context(), logger.From(r.Context()).With(
			logger.Layer("dispatcher"),
			logger.Provider(reg.Name),
			logger.Phase(string(phase)),
		))
		r = r.WithContext(ctx)
		machine := wantsJSON(r)

		var resp *strategy.Response
		err := d.bridge.With(w, r, func(sess *session.Session) error {
			resp = d.dispatch(r, reg, phase, sess, machine)
			return nil
		})
		if err != nil {
			// Session store unreachable or save failed: the one case that
			// does not go through the failure channel, because there is no
			// usable session to attach it to.
			logger.From(ctx).Error("session bridge failed", logger.Err(err))
			httperrors.WriteError(w, httperrors.ErrInternalServerError)
			return
		}
		resp.Write(w)
	})
}

// dispatch runs the pipeline for one matched request. It always produces a
// response; errors are converted through the failure channel.
func (d *Dispatcher) dispatch(r *http.Request, reg *provider.Registration, phase strategy.Phase, sess *session.Session, machine bool) *strategy.Response {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		return d.fail(r, sess, machine, Failure{
			Provider: reg.Name,
			Kind:     strategy.KindInvalidResponse,
			Err:      err,
		})
	}

	st, opts, err := reg.NewStrategy()
	if err != nil {
		return d.fail(r, sess, machine, Failure{Provider: reg.Name, Kind: kindInternal, Err: err})
	}

	sreq := &strategy.Request{
		HTTP:        r,
		Params:      r.Form,
		Session:     sess,
		CallbackURL: externalURL(r, reg.CallbackPath),
	}
	hc := &HookContext{
		Provider: reg.Name,
		Phase:    phase,
		Request:  sreq,
		Session:  sess,
		Options:  opts,
		Strategy: st,
	}

	// Pipeline order is fixed: validation, before-phase, setup, then the
	// strategy itself.
	if phase == strategy.PhaseRequest {
		if err := d.cfg.CSRF.validate(r, r.Form); err != nil {
			return d.failErr(r, sess, machine, reg.Name, err)
		}
		if err := runHooks(ctx, d.cfg.Hooks.RequestValidation, hc); err != nil {
			return d.failErr(r, sess, machine, reg.Name, err)
		}
		if resp := methodCheck(st, r.Method); resp != nil {
			return resp
		}
	}
	if err := runHooks(ctx, d.cfg.Hooks.BeforePhase, hc); err != nil {
		return d.failErr(r, sess, machine, reg.Name, err)
	}
	if err := runHooks(ctx, d.cfg.Hooks.Setup, hc); err != nil {
		return d.failErr(r, sess, machine, reg.Name, err)
	}
	if err := st.Configure(hc.Options); err != nil {
		return d.fail(r, sess, machine, Failure{Provider: reg.Name, Kind: kindInternal, Err: err})
	}

	switch phase {
	case strategy.PhaseRequest:
		return d.requestPhase(ctx, r, sreq, sess, machine, reg.Name, st)
	default:
		return d.callbackPhase(ctx, r, sreq, sess, machine, reg.Name, st)
	}
}

func (d *Dispatcher) requestPhase(ctx context.Context, r *http.Request, sreq *strategy.Request, sess *session.Session, machine bool, name string, st strategy.Strategy) *strategy.Response {
	sreq.Origin = flowOrigin(r, sreq.Params.Get("origin"))
	if sreq.Origin != "" {
		sess.Set(originKey, sreq.Origin)
	}

	resp, err := st.RequestPhase(ctx, sreq)
	if err != nil {
		return d.failErr(r, sess, machine, name, err)
	}

	// Machine clients get the authorize URL instead of being redirected.
	if machine && resp.Status == http.StatusFound {
		return jsonResponse(http.StatusOK, map[string]any{
			"authorize_url": resp.Header.Get("Location"),
		})
	}
	return resp
}

func (d *Dispatcher) callbackPhase(ctx context.Context, r *http.Request, sreq *strategy.Request, sess *session.Session, machine bool, name string, st strategy.Strategy) *strategy.Response {
	sreq.Origin = sess.GetString(originKey)
	sess.Delete(originKey)

	payload, err := st.CallbackPhase(ctx, sreq)
	if err != nil {
		return d.failErr(r, sess, machine, name, err)
	}
	payload.Provider = name
	if payload.Origin == "" {
		payload.Origin = sreq.Origin
	}

	start := time.Now()
	out, err := d.resolver.Resolve(ctx, payload, sess)
	metrics.ResolutionDuration.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return d.fail(r, sess, machine, Failure{Provider: name, Kind: kindInternal, Err: err})
	}

	metrics.ResolutionOutcomes.WithLabelValues(name, outcomeLabel(out)).Inc()

	if out.Rejected() {
		return d.fail(r, sess, machine, Failure{
			Provider: name,
			Kind:     out.Reason,
			Email:    out.Email,
			UID:      payload.UID,
		})
	}

	if out.AccountCreated && d.cfg.Notifier != nil {
		d.cfg.Notifier.AccountCreated(ctx, out.Email)
	}

	if machine {
		return jsonResponse(http.StatusOK, map[string]any{
			"result":     out.Kind,
			"account_id": out.AccountID,
		})
	}

	switch out.Kind {
	case resolution.KindConnected:
		sess.SetFlashNotice("The external identity was connected to your account")
	default:
		sess.SetFlashNotice("You have been logged in")
	}
	dest := payload.Origin
	if dest == "" {
		dest = d.cfg.SuccessRedirect
	}
	return strategy.Redirect(dest)
}

// fail routes a Failure through the configured handler.
func (d *Dispatcher) fail(r *http.Request, sess *session.Session, machine bool, f Failure) *strategy.Response {
	if h := d.cfg.OnFailure; h != nil {
		return h(r, sess, f, machine)
	}
	return d.defaultFailureHandler(r, sess, f, machine)
}

// failErr classifies an error from a hook or strategy phase.
func (d *Dispatcher) failErr(r *http.Request, sess *session.Session, machine bool, name string, err error) *strategy.Response {
	f := Failure{Provider: name, Kind: kindInternal, Err: err}
	var he *strategy.HandshakeError
	if errors.As(err, &he) {
		f.Kind = he.Kind
	}
	return d.fail(r, sess, machine, f)
}

// methodCheck returns the strategy's own not-allowed response for a
// disallowed request-phase method, or nil when the method is fine. This is
// adapter behavior passed through, not a dispatcher error.
func methodCheck(st strategy.Strategy, method string) *strategy.Response {
	mr, ok := st.(strategy.MethodRestricted)
	if !ok {
		return nil
	}
	allowed := mr.AllowedRequestMethods()
	if len(allowed) == 0 {
		return nil
	}
	for _, m := range allowed {
		if m == method {
			return nil
		}
	}
	return strategy.NotAllowed(allowed...)
}

func outcomeLabel(out *resolution.Outcome) string {
	if out.Rejected() {
		return out.Kind + ":" + out.Reason
	}
	return out.Kind
}

// flowOrigin prefers an explicit origin parameter over the Referer.
func flowOrigin(r *http.Request, param string) string {
	if param != "" {
		return param
	}
	return r.Referer()
}

// externalURL rebuilds the absolute URL for a path on this host, honoring
// proxy headers.
func externalURL(r *http.Request, path string) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	return scheme + "://" + r.Host + path
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.Contains(r.Header.Get("Content-Type"), "application/json")
}
