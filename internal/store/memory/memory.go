// Package memory implements core.Repository in process memory, with the
// same semantics as the SQL adapters: unique (provider, uid) enforcement
// reported as core.ErrConflict and all-or-nothing transactions via
// snapshot rollback. Used in development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/authbridge/internal/store/core"
)

type identityKey struct {
	provider string
	uid      string
}

// Store implements core.Repository.
type Store struct {
	mu         sync.Mutex
	accounts   map[string]*core.Account
	identities map[string]*core.Identity // by identity id
	byPair     map[identityKey]string    // (provider, uid) -> identity id
	inTx       bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		accounts:   make(map[string]*core.Account),
		identities: make(map[string]*core.Identity),
		byPair:     make(map[identityKey]string),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

// WithTx snapshots the maps and restores them if fn fails or the context
// is canceled, so a failed resolution leaves no partial state. The store
// mutex is held for the whole transaction, which also serializes
// concurrent duplicate callbacks the way a database isolation level would.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, r core.Repository) error) error {
	s.mu.Lock()
	if s.inTx {
		// Nested: reuse the outer transaction.
		s.mu.Unlock()
		return fn(ctx, s)
	}

	snapshot := s.snapshotLocked()
	s.inTx = true
	s.mu.Unlock()

	err := fn(ctx, s)
	if err == nil {
		err = ctx.Err()
	}

	s.mu.Lock()
	if err != nil {
		s.restoreLocked(snapshot)
	}
	s.inTx = false
	s.mu.Unlock()
	return err
}

type snapshot struct {
	accounts   map[string]*core.Account
	identities map[string]*core.Identity
	byPair     map[identityKey]string
}

func (s *Store) snapshotLocked() snapshot {
	snap := snapshot{
		accounts:   make(map[string]*core.Account, len(s.accounts)),
		identities: make(map[string]*core.Identity, len(s.identities)),
		byPair:     make(map[identityKey]string, len(s.byPair)),
	}
	for id, a := range s.accounts {
		cp := *a
		snap.accounts[id] = &cp
	}
	for id, ident := range s.identities {
		cp := *ident
		snap.identities[id] = &cp
	}
	for k, v := range s.byPair {
		snap.byPair[k] = v
	}
	return snap
}

func (s *Store) restoreLocked(snap snapshot) {
	s.accounts = snap.accounts
	s.identities = snap.identities
	s.byPair = snap.byPair
}

// ─── Accounts ───

func (s *Store) CreateAccount(_ context.Context, a *core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if equalFold(existing.Login, a.Login) {
			return core.ErrConflict
		}
	}
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now().UTC()
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *Store) GetAccountByID(_ context.Context, id string) (*core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) GetAccountByLogin(_ context.Context, login string) (*core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if equalFold(a.Login, login) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) UpdateAccountStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return core.ErrNotFound
	}
	a.Status = status
	return nil
}

// ─── Identities ───

func (s *Store) GetIdentity(_ context.Context, provider, uid string) (*core.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byPair[identityKey{provider, uid}]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *s.identities[id]
	return &cp, nil
}

func (s *Store) InsertIdentity(_ context.Context, ident *core.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := identityKey{ident.Provider, ident.UID}
	if _, dup := s.byPair[key]; dup {
		return core.ErrConflict
	}
	ident.ID = uuid.NewString()
	now := time.Now().UTC()
	ident.CreatedAt = now
	ident.UpdatedAt = now
	cp := *ident
	s.identities[ident.ID] = &cp
	s.byPair[key] = ident.ID
	return nil
}

func (s *Store) UpdateIdentityData(_ context.Context, identityID string, data core.IdentityData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.identities[identityID]
	if !ok {
		return core.ErrNotFound
	}
	ident.Info = data.Info
	ident.Credentials = data.Credentials
	ident.Extra = data.Extra
	ident.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) RebindIdentity(_ context.Context, identityID, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.identities[identityID]
	if !ok {
		return core.ErrNotFound
	}
	ident.AccountID = accountID
	ident.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ListAccountIdentities(_ context.Context, accountID string) ([]*core.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*core.Identity
	for _, ident := range s.identities {
		if ident.AccountID == accountID {
			cp := *ident
			out = append(out, &cp)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *Store) DeleteIdentity(_ context.Context, accountID, provider string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, ident := range s.identities {
		if ident.AccountID == accountID && ident.Provider == provider {
			delete(s.identities, id)
			delete(s.byPair, identityKey{ident.Provider, ident.UID})
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteAccountIdentities(_ context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, ident := range s.identities {
		if ident.AccountID == accountID {
			delete(s.identities, id)
			delete(s.byPair, identityKey{ident.Provider, ident.UID})
			n++
		}
	}
	return n, nil
}

func sortByCreated(idents []*core.Identity) {
	for i := 1; i < len(idents); i++ {
		for j := i; j > 0 && idents[j].CreatedAt.Before(idents[j-1].CreatedAt); j-- {
			idents[j], idents[j-1] = idents[j-1], idents[j]
		}
	}
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
