package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	rdb "github.com/redis/go-redis/v9"
)

// RedisConfig configures the redis-backed store.
type RedisConfig struct {
	Client     *rdb.Client
	CookieName string // session id cookie, default "authbridge_sid"
	Prefix     string // key prefix, default "sess:"
	TTL        time.Duration
	Secure     bool
	SameSite   http.SameSite
}

// RedisStore keeps session payloads server-side in redis, with only an
// opaque session id in the cookie. Redis being unreachable is a hard
// failure: the request must not proceed with a half-materialized session.
type RedisStore struct {
	cfg RedisConfig
}

// NewRedisStore creates a redis-backed session store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("session: redis client required")
	}
	if strings.TrimSpace(cfg.CookieName) == "" {
		cfg.CookieName = "authbridge_sid"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "sess:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = http.SameSiteLaxMode
	}
	return &RedisStore{cfg: cfg}, nil
}

func (s *RedisStore) Load(r *http.Request) (*Session, error) {
	ck, err := r.Cookie(s.cfg.CookieName)
	if err != nil || strings.TrimSpace(ck.Value) == "" {
		return New(), nil
	}

	raw, err := s.cfg.Client.Get(r.Context(), s.cfg.Prefix+ck.Value).Bytes()
	if err == rdb.Nil {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var values map[string]any
	if json.Unmarshal(raw, &values) != nil {
		return New(), nil
	}
	sess := FromValues(values)
	sess.id = ck.Value
	return sess, nil
}

func (s *RedisStore) Save(w http.ResponseWriter, r *http.Request, sess *Session) error {
	sid := sess.id
	if sid == "" {
		sid = uuid.NewString()
		sess.id = sid
	}

	raw, err := json.Marshal(sess.Values())
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := s.cfg.Client.Set(r.Context(), s.cfg.Prefix+sid, raw, s.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    sid,
		Path:     "/",
		Expires:  time.Now().Add(s.cfg.TTL),
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: s.cfg.SameSite,
	})
	return nil
}
