// Package session holds the canonical session representation shared by the
// host application and the strategy adapters, plus the stores that persist
// it (signed cookie, bearer token, redis, memory) and the Bridge that
// scopes it around a strategy invocation.
package session

// Well-known session keys.
const (
	KeyAccountID       = "account_id"
	KeyAuthenticatedBy = "authenticated_by"
	KeyTwoFactorAuth   = "two_factor_auth"
	KeyFlashError      = "flash_error"
	KeyFlashNotice     = "flash_notice"
)

// Session is one logical session as a mutable key/value map. All mutation
// goes through methods so the bridge knows when a save is needed.
type Session struct {
	values map[string]any
	dirty  bool

	// id is the server-side session id for stores that keep the payload
	// out of band (redis, memory). Empty for value-carrying stores.
	id string
}

// New returns an empty session.
func New() *Session {
	return &Session{values: make(map[string]any)}
}

// FromValues wraps previously stored values. The session starts clean.
func FromValues(values map[string]any) *Session {
	if values == nil {
		values = make(map[string]any)
	}
	return &Session{values: values}
}

// Get returns the raw value for key.
func (s *Session) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// GetString returns the value for key as a string, or "".
func (s *Session) GetString(key string) string {
	v, _ := s.values[key].(string)
	return v
}

// Set stores a value and marks the session dirty.
func (s *Session) Set(key string, value any) {
	s.values[key] = value
	s.dirty = true
}

// Delete removes a key. Marks dirty only if the key existed.
func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
}

// Clear drops every key.
func (s *Session) Clear() {
	if len(s.values) == 0 {
		return
	}
	s.values = make(map[string]any)
	s.dirty = true
}

// Values returns a copy of the underlying map for serialization.
func (s *Session) Values() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Dirty reports whether the session was mutated since it was loaded.
func (s *Session) Dirty() bool { return s.dirty }

// Typed accessors for the keys the dispatcher and resolver care about.

// AccountID returns the logged-in account id, or "" when anonymous.
func (s *Session) AccountID() string {
	return s.GetString(KeyAccountID)
}

// SetAccountID marks the session as logged in.
func (s *Session) SetAccountID(id string) {
	s.Set(KeyAccountID, id)
}

// LoggedIn reports whether the session carries an account.
func (s *Session) LoggedIn() bool {
	return s.AccountID() != ""
}

// AuthenticatedBy lists the methods that authenticated this session.
// JSON round-trips turn []string into []any, so both are accepted.
func (s *Session) AuthenticatedBy() []string {
	switch v := s.values[KeyAuthenticatedBy].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// AddAuthenticatedBy appends a method if not already present.
func (s *Session) AddAuthenticatedBy(method string) {
	methods := s.AuthenticatedBy()
	for _, m := range methods {
		if m == method {
			return
		}
	}
	s.Set(KeyAuthenticatedBy, append(methods, method))
}

// TwoFactorSatisfied reports whether a second factor was recorded.
func (s *Session) TwoFactorSatisfied() bool {
	v, _ := s.values[KeyTwoFactorAuth].(bool)
	return v
}

// SetTwoFactorSatisfied records the second-factor flag.
func (s *Session) SetTwoFactorSatisfied() {
	s.Set(KeyTwoFactorAuth, true)
}

// SetFlashError stores a user-visible error message for the next page.
func (s *Session) SetFlashError(msg string) {
	s.Set(KeyFlashError, msg)
}

// SetFlashNotice stores a user-visible notice for the next page.
func (s *Session) SetFlashNotice(msg string) {
	s.Set(KeyFlashNotice, msg)
}
