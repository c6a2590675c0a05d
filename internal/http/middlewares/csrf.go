package middlewares

import (
	"net/http"
	"strings"

	httperrors "github.com/dropDatabas3/authbridge/internal/http/errors"
)

// CSRFConfig configures the CSRF middleware for host routes (the dispatcher
// carries its own check for provider routes).
type CSRFConfig struct {
	HeaderName string // default "X-CSRF-Token"
	CookieName string // default "csrf_token"
}

// WithCSRF enforces the double-submit check for cookie-based requests:
//   - Bearer-authenticated requests skip it (not a cookie flow).
//   - Unsafe methods (POST, PUT, PATCH, DELETE) require header and cookie
//     to carry the same value.
func WithCSRF(cfg CSRFConfig) Middleware {
	headerName := strings.TrimSpace(cfg.HeaderName)
	if headerName == "" {
		headerName = "X-CSRF-Token"
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		cookieName = "csrf_token"
	}

	isUnsafe := func(m string) bool {
		switch strings.ToUpper(m) {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			return true
		default:
			return false
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isUnsafe(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			if ah := strings.TrimSpace(r.Header.Get("Authorization")); strings.HasPrefix(strings.ToLower(ah), "bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			hdr := strings.TrimSpace(r.Header.Get(headerName))
			ck, _ := r.Cookie(cookieName)

			if hdr == "" || ck == nil || strings.TrimSpace(ck.Value) == "" || !constantTimeEqual(hdr, ck.Value) {
				httperrors.WriteError(w, httperrors.ErrInvalidCSRF)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
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
