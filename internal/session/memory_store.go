package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps sessions in-process. For development and tests only.
type MemoryStore struct {
	cookieName string
	cache      *gocache.Cache
	ttl        time.Duration
}

// NewMemoryStore creates an in-process session store.
func NewMemoryStore(cookieName string, ttl time.Duration) *MemoryStore {
	if strings.TrimSpace(cookieName) == "" {
		cookieName = "authbridge_sid"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryStore{
		cookieName: cookieName,
		cache:      gocache.New(ttl, time.Minute),
		ttl:        ttl,
	}
}

func (m *MemoryStore) Load(r *http.Request) (*Session, error) {
	ck, err := r.Cookie(m.cookieName)
	if err != nil || strings.TrimSpace(ck.Value) == "" {
		return New(), nil
	}
	v, ok := m.cache.Get(ck.Value)
	if !ok {
		return New(), nil
	}
	values, ok := v.(map[string]any)
	if !ok {
		return New(), nil
	}
	sess := FromValues(values)
	sess.id = ck.Value
	return sess, nil
}

func (m *MemoryStore) Save(w http.ResponseWriter, _ *http.Request, sess *Session) error {
	sid := sess.id
	if sid == "" {
		sid = uuid.NewString()
		sess.id = sid
	}
	m.cache.Set(sid, sess.Values(), m.ttl)

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    sid,
		Path:     "/",
		Expires:  time.Now().Add(m.ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
