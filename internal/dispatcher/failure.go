package dispatcher

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/authbridge/internal/metrics"
	"github.com/dropDatabas3/authbridge/internal/observability/logger"
	"github.com/dropDatabas3/authbridge/internal/resolution"
	"github.com/dropDatabas3/authbridge/internal/session"
	"github.com/dropDatabas3/authbridge/internal/strategy"
)

// Failure is the single funnel for everything that goes wrong during a
// dispatched request: validation failures, strategy handshake errors and
// resolution rejections all end here.
type Failure struct {
	Provider string
	Kind     string
	Err      error

	// Email and UID are set for resolution rejections, so the host can
	// offer a registration handoff when no account matched.
	Email string
	UID   string
}

// FailureHandler turns a Failure into the response sent to the client. The
// session is still live; flash mutations are persisted by the bridge. Hosts
// may replace the default wholesale.
type FailureHandler func(r *http.Request, sess *session.Session, f Failure, machine bool) *strategy.Response

const identityRefTTL = 15 * time.Minute

// defaultFailureHandler builds the stock failure response: flash message
// plus redirect for interactive clients, `{"error_type": kind}` JSON for
// machine clients. Unverified and closed account rejections are 403, the
// rest 500.
func (d *Dispatcher) defaultFailureHandler(r *http.Request, sess *session.Session, f Failure, machine bool) *strategy.Response {
	metrics.FailuresTotal.WithLabelValues(f.Provider, f.Kind).Inc()
	logger.From(r.Context()).Warn("delegated login failed",
		logger.Layer("dispatcher"),
		logger.Provider(f.Provider),
		logger.ErrorKind(f.Kind),
		logger.Err(f.Err),
	)

	if !machine {
		sess.SetFlashError(failureMessage(f.Kind))
		return strategy.Redirect(d.cfg.FailureRedirect)
	}

	body := map[string]any{"error_type": f.Kind}
	if f.Kind == resolution.ReasonNoMatchingAccount && f.Email != "" {
		body["provider"] = f.Provider
		body["email"] = f.Email
		if ref, err := d.signIdentityRef(f); err == nil {
			body["identity_ref"] = ref
		} else {
			logger.From(r.Context()).Error("identity ref signing failed", logger.Err(err))
		}
	}
	return jsonResponse(failureStatus(f.Kind), body)
}

func failureStatus(kind string) int {
	switch kind {
	case resolution.ReasonUnverifiedAccount,
		resolution.ReasonClosedAccount,
		resolution.ReasonNoMatchingAccount,
		strategy.KindCSRFDetected,
		strategy.KindAccessDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func failureMessage(kind string) string {
	switch kind {
	case resolution.ReasonUnverifiedAccount:
		return "The account matching the external identity is currently awaiting verification"
	case resolution.ReasonClosedAccount:
		return "The account matching the external identity is closed"
	case resolution.ReasonNoMatchingAccount:
		return "There is no account matching the external identity"
	case strategy.KindCSRFDetected:
		return "Request could not be verified, please retry the login"
	default:
		return "There was an error logging in with the external provider"
	}
}

// signIdentityRef issues a short-lived token the host's registration flow
// can replay instead of repeating the external handshake.
func (d *Dispatcher) signIdentityRef(f Failure) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"aud":      "identity-ref",
		"iat":      now.Unix(),
		"exp":      now.Add(identityRefTTL).Unix(),
		"provider": f.Provider,
		"uid":      f.UID,
		"email":    f.Email,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(d.cfg.Secret)
}

// ParseIdentityRef verifies a token issued by signIdentityRef and returns
// its provider, uid and email.
func ParseIdentityRef(secret []byte, raw string) (provider, uid, email string, err error) {
	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	}, jwt.WithAudience("identity-ref"), jwt.WithExpirationRequired())
	if err != nil {
		return "", "", "", err
	}
	provider, _ = claims["provider"].(string)
	uid, _ = claims["uid"].(string)
	email, _ = claims["email"].(string)
	return provider, uid, email, nil
}

func jsonResponse(status int, body any) *strategy.Response {
	raw, err := json.Marshal(body)
	if err != nil {
		raw = []byte(`{"error_type":"internal_error"}`)
		status = http.StatusInternalServerError
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	return &strategy.Response{Status: status, Header: h, Body: raw}
}
