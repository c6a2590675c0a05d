package session

import (
	"errors"
	"net/http"
)

// ErrStoreUnavailable is returned when the backing store cannot be reached.
// The bridge turns it into a request failure before any strategy runs.
var ErrStoreUnavailable = errors.New("session: store unavailable")

// Store persists sessions between requests.
//
// Load never treats an absent session as an error: it returns a fresh empty
// session. It fails only when the backing store cannot be reached, which
// must abort the request rather than silently continuing without a session.
//
// Save must run before the response body is written, since cookie and
// header based stores mutate response headers.
type Store interface {
	Load(r *http.Request) (*Session, error)
	Save(w http.ResponseWriter, r *http.Request, s *Session) error
}
