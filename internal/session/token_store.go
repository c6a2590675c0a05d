package session

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const tokenAudience = "session-token"

// TokenHeader carries the refreshed session token on responses.
const TokenHeader = "X-Session-Token"

// TokenConfig configures the stateless bearer-token store.
type TokenConfig struct {
	Secret []byte // HMAC key, required
	TTL    time.Duration
}

// TokenStore keeps the session in a signed bearer token, for hosts running
// in machine-readable mode. Any mutation the strategies or the dispatcher
// make is round-tripped into the response as a fresh token in
// X-Session-Token, so the client's next request reflects the updated
// session.
type TokenStore struct {
	cfg TokenConfig
}

// NewTokenStore creates a bearer-token session store.
func NewTokenStore(cfg TokenConfig) (*TokenStore, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("session: token secret required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &TokenStore{cfg: cfg}, nil
}

// Load parses the Authorization bearer token. Absent or invalid tokens
// yield a fresh empty session.
func (t *TokenStore) Load(r *http.Request) (*Session, error) {
	raw := bearerToken(r)
	if raw == "" {
		return New(), nil
	}
	values, ok := parseSessionJWT(raw, t.cfg.Secret, tokenAudience)
	if !ok {
		return New(), nil
	}
	return FromValues(values), nil
}

// Save signs the session into a fresh token on the response header.
func (t *TokenStore) Save(w http.ResponseWriter, _ *http.Request, s *Session) error {
	signed, err := signSessionJWT(s.Values(), t.cfg.Secret, tokenAudience, t.cfg.TTL)
	if err != nil {
		return fmt.Errorf("session: sign token: %w", err)
	}
	w.Header().Set(TokenHeader, signed)
	return nil
}

func bearerToken(r *http.Request) string {
	ah := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(ah) > 7 && strings.EqualFold(ah[:7], "bearer ") {
		return strings.TrimSpace(ah[7:])
	}
	return ""
}
