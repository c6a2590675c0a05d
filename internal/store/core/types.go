// Package core defines the persistence contracts shared by every store
// adapter: the account and identity records and the Repository interface
// the resolution state machine runs against.
package core

import (
	"encoding/json"
	"time"
)

// Account statuses. The accounts table belongs to the host application;
// this layer reads and writes the status but does not own the schema.
const (
	StatusUnverified = "unverified"
	StatusOpen       = "open"
	StatusClosed     = "closed"
)

// Account is the host application's user record.
type Account struct {
	ID           string
	Login        string // canonical login, usually the email
	Status       string
	PasswordHash *string // nil when the account has no password set
	CreatedAt    time.Time
}

// Open reports whether the account may log in.
func (a *Account) Open() bool { return a.Status == StatusOpen }

// HasPassword reports whether a password is set.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != nil && *a.PasswordHash != ""
}

// Identity links one external (provider, uid) pair to at most one local
// account. Info, Credentials and Extra are opaque serialized blobs
// refreshed on every completed callback.
type Identity struct {
	ID          string
	AccountID   string // empty until linked
	Provider    string
	UID         string
	Info        json.RawMessage
	Credentials json.RawMessage
	Extra       json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IdentityData is the refreshable portion of an identity row.
type IdentityData struct {
	Info        json.RawMessage
	Credentials json.RawMessage
	Extra       json.RawMessage
}

// Empty reports whether the update would change nothing, letting callers
// skip the write entirely.
func (d IdentityData) Empty() bool {
	return len(d.Info) == 0 && len(d.Credentials) == 0 && len(d.Extra) == 0
}
