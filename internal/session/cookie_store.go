package session

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

const cookieAudience = "session-cookie"

// CookieConfig configures the signed-cookie store.
type CookieConfig struct {
	Name     string // default "authbridge_session"
	Secret   []byte // HMAC key, required
	TTL      time.Duration
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// CookieStore keeps the whole session in an HMAC-signed JWT cookie.
// Stateless on the server side; tampered or expired cookies load as a
// fresh session rather than failing the request.
type CookieStore struct {
	cfg CookieConfig
}

// NewCookieStore creates a cookie-backed session store.
func NewCookieStore(cfg CookieConfig) (*CookieStore, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("session: cookie secret required")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "authbridge_session"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = http.SameSiteLaxMode
	}
	return &CookieStore{cfg: cfg}, nil
}

// Load parses the session cookie. Absent or invalid cookies yield a fresh
// empty session.
func (c *CookieStore) Load(r *http.Request) (*Session, error) {
	ck, err := r.Cookie(c.cfg.Name)
	if err != nil || strings.TrimSpace(ck.Value) == "" {
		return New(), nil
	}

	values, ok := parseSessionJWT(ck.Value, c.cfg.Secret, cookieAudience)
	if !ok {
		return New(), nil
	}
	return FromValues(values), nil
}

// Save signs the session values into the cookie.
func (c *CookieStore) Save(w http.ResponseWriter, _ *http.Request, s *Session) error {
	signed, err := signSessionJWT(s.Values(), c.cfg.Secret, cookieAudience, c.cfg.TTL)
	if err != nil {
		return fmt.Errorf("session: sign cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     c.cfg.Name,
		Value:    signed,
		Path:     "/",
		Domain:   c.cfg.Domain,
		Expires:  time.Now().Add(c.cfg.TTL),
		HttpOnly: true,
		Secure:   c.cfg.Secure,
		SameSite: c.cfg.SameSite,
	})
	return nil
}

func signSessionJWT(values map[string]any, secret []byte, aud string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwtv5.MapClaims{
		"aud":  aud,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
		"sess": values,
	}
	token := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseSessionJWT(raw string, secret []byte, aud string) (map[string]any, bool) {
	tk, err := jwtv5.Parse(raw,
		func(t *jwtv5.Token) (any, error) { return secret, nil },
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithAudience(aud),
	)
	if err != nil || !tk.Valid {
		return nil, false
	}
	claims, ok := tk.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, false
	}
	values, ok := claims["sess"].(map[string]any)
	if !ok {
		return nil, false
	}
	return values, true
}
