package dispatcher

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dropDatabas3/authbridge/internal/strategy"
)

// CSRFConfig configures the built-in double-submit check on the request
// phase. The token may arrive as a form/query parameter or a header and
// must match the cookie value.
type CSRFConfig struct {
	Enabled    bool
	HeaderName string // default "X-CSRF-Token"
	ParamName  string // default "csrf_token"
	CookieName string // default "csrf_token"
}

func (c CSRFConfig) withDefaults() CSRFConfig {
	if strings.TrimSpace(c.HeaderName) == "" {
		c.HeaderName = "X-CSRF-Token"
	}
	if strings.TrimSpace(c.ParamName) == "" {
		c.ParamName = "csrf_token"
	}
	if strings.TrimSpace(c.CookieName) == "" {
		c.CookieName = "csrf_token"
	}
	return c
}

// validate enforces the double-submit check for cookie-based flows.
// Bearer-authenticated requests skip it (not a cookie flow), as do safe
// methods.
func (c CSRFConfig) validate(r *http.Request, params interface{ Get(string) string }) error {
	if !c.Enabled {
		return nil
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil
	}
	if ah := strings.TrimSpace(r.Header.Get("Authorization")); strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		return nil
	}

	token := strings.TrimSpace(params.Get(c.ParamName))
	if token == "" {
		token = strings.TrimSpace(r.Header.Get(c.HeaderName))
	}
	ck, _ := r.Cookie(c.CookieName)

	if token == "" || ck == nil || strings.TrimSpace(ck.Value) == "" || !constantTimeEqual(token, ck.Value) {
		return strategy.Failure(strategy.KindCSRFDetected, errors.New("csrf token missing or mismatch"))
	}
	return nil
}

// constantTimeEqual compares two strings in constant time to avoid timing
// attacks.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := 0; i < len(a); i++ {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
