package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authbridge/internal/provider"
	"github.com/dropDatabas3/authbridge/internal/resolution"
	"github.com/dropDatabas3/authbridge/internal/session"
	"github.com/dropDatabas3/authbridge/internal/store/memory"
	"github.com/dropDatabas3/authbridge/internal/strategy"
)

// fakeStrategy scripts both phases for dispatcher tests.
type fakeStrategy struct {
	name        string
	opts        strategy.Options
	requestErr  error
	payload     *strategy.Payload
	callbackErr error
	allowed     []string
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Configure(opts strategy.Options) error {
	f.opts = opts
	return nil
}

func (f *fakeStrategy) RequestPhase(_ context.Context, req *strategy.Request) (*strategy.Response, error) {
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	return strategy.Redirect("https://idp.example/authorize?cb=" + req.CallbackURL), nil
}

func (f *fakeStrategy) CallbackPhase(_ context.Context, req *strategy.Request) (*strategy.Payload, error) {
	if f.callbackErr != nil {
		return nil, f.callbackErr
	}
	p := *f.payload
	p.Origin = req.Origin
	return &p, nil
}

func (f *fakeStrategy) AllowedRequestMethods() []string { return f.allowed }

type testEnv struct {
	dispatcher *Dispatcher
	repo       *memory.Store
	sessions   session.Store
	fake       *fakeStrategy
	handler    http.Handler
	nextCalls  int
}

func newTestEnv(t *testing.T, mutate func(*Config, *resolution.Config)) *testEnv {
	t.Helper()

	env := &testEnv{
		repo: memory.New(),
		fake: &fakeStrategy{name: "acme", payload: &strategy.Payload{
			UID:  "u-1",
			Info: map[string]any{"email": "user@example.com"},
		}},
	}
	env.sessions = session.NewMemoryStore("sid", time.Hour)

	registry := provider.NewRegistry("/auth")
	factory := func(name string, _ strategy.Options) (strategy.Strategy, error) {
		return env.fake, nil
	}
	require.NoError(t, registry.Register("acme", strategy.Factory(factory), strategy.Options{"tier": "test"}))
	require.NoError(t, registry.Finalize())

	dcfg := Config{Secret: []byte("dispatch-test-secret")}
	rcfg := resolution.Config{AutoCreate: true, UpdateIdentity: true}
	if mutate != nil {
		mutate(&dcfg, &rcfg)
	}

	env.dispatcher = New(registry, session.NewBridge(env.sessions), resolution.New(env.repo, rcfg), dcfg)
	env.handler = env.dispatcher.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.nextCalls++
		w.WriteHeader(http.StatusTeapot)
	}))
	return env
}

func (e *testEnv) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func TestHandlerFallsThroughUnmatchedPaths(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/", "/auth/unknown", "/auth/acme/extra/bits", "/other/acme"} {
		w := env.do(httptest.NewRequest("GET", path, nil))
		require.Equal(t, http.StatusTeapot, w.Code, "path %s", path)
	}
	require.Equal(t, 4, env.nextCalls)
}

func TestRequestPhaseRedirectsInteractive(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(httptest.NewRequest("GET", "http://host.example/auth/acme", nil))
	require.Equal(t, http.StatusFound, w.Code)
	loc := w.Header().Get("Location")
	require.Contains(t, loc, "https://idp.example/authorize")
	require.Contains(t, loc, "http://host.example/auth/acme/callback")
}

func TestRequestPhaseMachineGetsAuthorizeURL(t *testing.T) {
	env := newTestEnv(t, nil)

	r := httptest.NewRequest("GET", "/auth/acme", nil)
	r.Header.Set("Accept", "application/json")
	w := env.do(r)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Contains(t, body["authorize_url"], "https://idp.example/authorize")
}

func TestRequestPhaseMethodRestriction(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fake.allowed = []string{http.MethodPost}

	w := env.do(httptest.NewRequest("GET", "/auth/acme", nil))
	require.Equal(t, http.StatusMethodNotAllowed, w.Code)
	require.Equal(t, []string{http.MethodPost}, w.Result().Header.Values("Allow"))

	w = env.do(httptest.NewRequest("POST", "/auth/acme", nil))
	require.Equal(t, http.StatusFound, w.Code)
}

func TestRequestPhaseCSRF(t *testing.T) {
	env := newTestEnv(t, func(dcfg *Config, _ *resolution.Config) {
		dcfg.CSRF.Enabled = true
	})

	// Missing token, machine mode: 403 through the failure channel.
	r := httptest.NewRequest("POST", "/auth/acme", nil)
	r.Header.Set("Accept", "application/json")
	w := env.do(r)
	require.Equal(t, http.StatusForbidden, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, strategy.KindCSRFDetected, body["error_type"])

	// Missing token, interactive: flash plus redirect to the failure page.
	w = env.do(httptest.NewRequest("POST", "/auth/acme", nil))
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/login", w.Header().Get("Location"))

	// Matching header and cookie pass.
	r = httptest.NewRequest("POST", "/auth/acme", nil)
	r.Header.Set("X-CSRF-Token", "tok-123")
	r.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok-123"})
	w = env.do(r)
	require.Equal(t, http.StatusFound, w.Code)
	require.Contains(t, w.Header().Get("Location"), "idp.example")

	// GET is a safe method and skips the check entirely.
	w = env.do(httptest.NewRequest("GET", "/auth/acme", nil))
	require.Equal(t, http.StatusFound, w.Code)
}

func TestCallbackMachineLogsIn(t *testing.T) {
	env := newTestEnv(t, nil)

	r := httptest.NewRequest("GET", "/auth/acme/callback?code=xyz", nil)
	r.Header.Set("Accept", "application/json")
	w := env.do(r)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, resolution.KindLoggedIn, body["result"])
	require.NotEmpty(t, body["account_id"])

	// The bridged session was persisted with the login.
	next := httptest.NewRequest("GET", "/", nil)
	for _, ck := range w.Result().Cookies() {
		next.AddCookie(ck)
	}
	sess, err := env.sessions.Load(next)
	require.NoError(t, err)
	require.Equal(t, body["account_id"], sess.AccountID())
	require.Contains(t, sess.AuthenticatedBy(), resolution.MethodExternal)
}

func TestCallbackInteractiveRedirectsToOrigin(t *testing.T) {
	env := newTestEnv(t, nil)

	// Request phase stashes the origin in the session.
	w := env.do(httptest.NewRequest("GET", "/auth/acme?origin=/dashboard", nil))
	require.Equal(t, http.StatusFound, w.Code)

	r := httptest.NewRequest("GET", "/auth/acme/callback?code=xyz", nil)
	for _, ck := range w.Result().Cookies() {
		r.AddCookie(ck)
	}
	w = env.do(r)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/dashboard", w.Header().Get("Location"))
}

func TestCallbackRejectionCarriesIdentityRef(t *testing.T) {
	secret := []byte("dispatch-test-secret")
	env := newTestEnv(t, func(dcfg *Config, rcfg *resolution.Config) {
		rcfg.AutoCreate = false
	})

	r := httptest.NewRequest("GET", "/auth/acme/callback?code=xyz", nil)
	r.Header.Set("Accept", "application/json")
	w := env.do(r)

	require.Equal(t, http.StatusForbidden, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, resolution.ReasonNoMatchingAccount, body["error_type"])
	require.Equal(t, "acme", body["provider"])
	require.Equal(t, "user@example.com", body["email"])

	p, uid, email, err := ParseIdentityRef(secret, body["identity_ref"])
	require.NoError(t, err)
	require.Equal(t, "acme", p)
	require.Equal(t, "u-1", uid)
	require.Equal(t, "user@example.com", email)
}

func TestCallbackHandshakeFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fake.callbackErr = strategy.Failure(strategy.KindAccessDenied, errors.New("user said no"))

	r := httptest.NewRequest("GET", "/auth/acme/callback?error=access_denied", nil)
	r.Header.Set("Accept", "application/json")
	w := env.do(r)

	require.Equal(t, http.StatusForbidden, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, strategy.KindAccessDenied, body["error_type"])
}

func TestCallbackStrategyErrorIs500(t *testing.T) {
	env := newTestEnv(t, nil)
	env.fake.callbackErr = errors.New("wire exploded")

	r := httptest.NewRequest("GET", "/auth/acme/callback", nil)
	r.Header.Set("Accept", "application/json")
	w := env.do(r)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "internal_error", body["error_type"])
}

func TestHooksRunInOrderAndMayRewriteOptions(t *testing.T) {
	var order []string
	env := newTestEnv(t, func(dcfg *Config, _ *resolution.Config) {
		dcfg.Hooks = Hooks{
			RequestValidation: []Hook{func(_ context.Context, hc *HookContext) error {
				order = append(order, "validate")
				return nil
			}},
			BeforePhase: []Hook{func(_ context.Context, hc *HookContext) error {
				order = append(order, "before")
				return nil
			}},
			Setup: []Hook{func(_ context.Context, hc *HookContext) error {
				order = append(order, "setup")
				hc.Options["tier"] = "per-request"
				return nil
			}},
		}
	})

	w := env.do(httptest.NewRequest("GET", "/auth/acme", nil))
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, []string{"validate", "before", "setup"}, order)

	// The setup hook mutated a request-scoped copy that reached Configure.
	require.Equal(t, "per-request", env.fake.opts.String("tier", ""))
}

func TestHookFailureShortCircuits(t *testing.T) {
	env := newTestEnv(t, func(dcfg *Config, _ *resolution.Config) {
		dcfg.Hooks = Hooks{
			RequestValidation: []Hook{func(context.Context, *HookContext) error {
				return strategy.Failure(strategy.KindInvalidCredentials, errors.New("bad request shape"))
			}},
		}
	})

	r := httptest.NewRequest("GET", "/auth/acme", nil)
	r.Header.Set("Accept", "application/json")
	w := env.do(r)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, strategy.KindInvalidCredentials, body["error_type"])
}

func TestCustomFailureHandler(t *testing.T) {
	env := newTestEnv(t, func(dcfg *Config, rcfg *resolution.Config) {
		rcfg.AutoCreate = false
		dcfg.OnFailure = func(_ *http.Request, _ *session.Session, f Failure, _ bool) *strategy.Response {
			return strategy.HTML("custom: " + f.Kind)
		}
	})

	w := env.do(httptest.NewRequest("GET", "/auth/acme/callback", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "custom: no_matching_account", w.Body.String())
}

type recordingNotifier struct {
	logins []string
}

func (n *recordingNotifier) AccountCreated(_ context.Context, login string) {
	n.logins = append(n.logins, login)
}

func TestNotifierToldAboutCreatedAccounts(t *testing.T) {
	notifier := &recordingNotifier{}
	env := newTestEnv(t, func(dcfg *Config, _ *resolution.Config) {
		dcfg.Notifier = notifier
	})

	w := env.do(httptest.NewRequest("GET", "/auth/acme/callback", nil))
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, []string{"user@example.com"}, notifier.logins)

	// A second callback logs into the existing account; no new notification.
	w = env.do(httptest.NewRequest("GET", "/auth/acme/callback", nil))
	require.Equal(t, http.StatusFound, w.Code)
	require.Len(t, notifier.logins, 1)
}
