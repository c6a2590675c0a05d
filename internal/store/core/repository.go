package core

import "context"

// Repository is the account/identity store contract.
//
// WithTx runs fn against a transaction-bound repository; fn returning an
// error (or the context being canceled) rolls the whole transaction back,
// leaving no partial account/identity state. Implementations must enforce
// the unique (provider, uid) constraint and report violations as
// ErrConflict.
type Repository interface {
	Ping(ctx context.Context) error

	WithTx(ctx context.Context, fn func(ctx context.Context, r Repository) error) error

	// Accounts.
	CreateAccount(ctx context.Context, a *Account) error
	GetAccountByID(ctx context.Context, id string) (*Account, error)
	GetAccountByLogin(ctx context.Context, login string) (*Account, error)
	UpdateAccountStatus(ctx context.Context, id, status string) error

	// Identities.
	GetIdentity(ctx context.Context, provider, uid string) (*Identity, error)
	InsertIdentity(ctx context.Context, ident *Identity) error
	UpdateIdentityData(ctx context.Context, identityID string, data IdentityData) error
	RebindIdentity(ctx context.Context, identityID, accountID string) error
	ListAccountIdentities(ctx context.Context, accountID string) ([]*Identity, error)
	DeleteIdentity(ctx context.Context, accountID, provider string) (int64, error)
	DeleteAccountIdentities(ctx context.Context, accountID string) (int64, error)
}
