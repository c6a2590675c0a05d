package resolution

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authbridge/internal/session"
	"github.com/dropDatabas3/authbridge/internal/store/core"
	"github.com/dropDatabas3/authbridge/internal/store/memory"
	"github.com/dropDatabas3/authbridge/internal/strategy"
)

func payload(provider, uid, email string) *strategy.Payload {
	info := map[string]any{}
	if email != "" {
		info["email"] = email
	}
	return &strategy.Payload{Provider: provider, UID: uid, Info: info}
}

func openAccount(t *testing.T, repo core.Repository, login string) *core.Account {
	t.Helper()
	a := &core.Account{Login: login, Status: core.StatusOpen}
	require.NoError(t, repo.CreateAccount(context.Background(), a))
	return a
}

func defaultConfig() Config {
	return Config{AutoCreate: true, UpdateIdentity: true, VerificationEnabled: true}
}

func TestResolve_ExistingIdentityLogsIn(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	acct := openAccount(t, repo, "jo@example.com")
	require.NoError(t, repo.InsertIdentity(ctx, &core.Identity{
		AccountID: acct.ID, Provider: "github", UID: "42",
	}))

	sess := session.New()
	out, err := New(repo, defaultConfig()).Resolve(ctx, payload("github", "42", "jo@example.com"), sess)
	require.NoError(t, err)

	require.Equal(t, KindLoggedIn, out.Kind)
	require.Equal(t, acct.ID, out.AccountID)
	require.False(t, out.AccountCreated)
	require.Equal(t, acct.ID, sess.AccountID())
	require.Contains(t, sess.AuthenticatedBy(), MethodExternal)
}

func TestResolve_AutoCreatesAccount(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	sess := session.New()
	out, err := New(repo, defaultConfig()).Resolve(ctx, payload("google", "u-1", "new@example.com"), sess)
	require.NoError(t, err)

	require.Equal(t, KindLoggedIn, out.Kind)
	require.True(t, out.AccountCreated)

	acct, err := repo.GetAccountByLogin(ctx, "new@example.com")
	require.NoError(t, err)
	require.Equal(t, core.StatusOpen, acct.Status)
	require.Equal(t, acct.ID, out.AccountID)

	ident, err := repo.GetIdentity(ctx, "google", "u-1")
	require.NoError(t, err)
	require.Equal(t, acct.ID, ident.AccountID)
}

func TestResolve_NoAccountRejectedWithoutAutoCreate(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	cfg := defaultConfig()
	cfg.AutoCreate = false

	sess := session.New()
	out, err := New(repo, cfg).Resolve(ctx, payload("google", "u-1", "ghost@example.com"), sess)
	require.NoError(t, err)

	require.True(t, out.Rejected())
	require.Equal(t, ReasonNoMatchingAccount, out.Reason)
	require.False(t, sess.LoggedIn())

	// Rejection leaves nothing behind.
	_, err = repo.GetAccountByLogin(ctx, "ghost@example.com")
	require.ErrorIs(t, err, core.ErrNotFound)
	_, err = repo.GetIdentity(ctx, "google", "u-1")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestResolve_NoEmailRejectedEvenWithAutoCreate(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	out, err := New(repo, defaultConfig()).Resolve(ctx, payload("github", "42", ""), session.New())
	require.NoError(t, err)
	require.Equal(t, ReasonNoMatchingAccount, out.Reason)
}

func TestResolve_EmailMatchLinksExistingAccount(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	acct := openAccount(t, repo, "match@example.com")

	sess := session.New()
	out, err := New(repo, defaultConfig()).Resolve(ctx, payload("github", "7", "Match@Example.com"), sess)
	require.NoError(t, err)

	require.Equal(t, KindLoggedIn, out.Kind)
	require.Equal(t, acct.ID, out.AccountID)
	require.False(t, out.AccountCreated)

	ident, err := repo.GetIdentity(ctx, "github", "7")
	require.NoError(t, err)
	require.Equal(t, acct.ID, ident.AccountID)
}

func TestResolve_UnverifiedAccountAutoVerifies(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	acct := &core.Account{Login: "pending@example.com", Status: core.StatusUnverified}
	require.NoError(t, repo.CreateAccount(ctx, acct))

	out, err := New(repo, defaultConfig()).Resolve(ctx, payload("google", "p-1", "pending@example.com"), session.New())
	require.NoError(t, err)

	require.Equal(t, KindLoggedIn, out.Kind)
	require.True(t, out.AutoVerified)

	got, err := repo.GetAccountByID(ctx, acct.ID)
	require.NoError(t, err)
	require.Equal(t, core.StatusOpen, got.Status)
}

func TestResolve_UnverifiedAccountRejected(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	acct := &core.Account{Login: "pending@example.com", Status: core.StatusUnverified}
	require.NoError(t, repo.CreateAccount(ctx, acct))

	// Verification disabled: the gate rejects.
	cfg := defaultConfig()
	cfg.VerificationEnabled = false
	sess := session.New()
	out, err := New(repo, cfg).Resolve(ctx, payload("google", "p-1", "pending@example.com"), sess)
	require.NoError(t, err)
	require.Equal(t, ReasonUnverifiedAccount, out.Reason)
	require.False(t, sess.LoggedIn())

	// No identity row was written by the rejected attempt.
	_, err = repo.GetIdentity(ctx, "google", "p-1")
	require.ErrorIs(t, err, core.ErrNotFound)

	// Verification enabled but the provider asserts a different email than
	// the account login: still rejected, an account is never verified on
	// someone else's say-so.
	require.NoError(t, repo.InsertIdentity(ctx, &core.Identity{AccountID: acct.ID, Provider: "google", UID: "p-2"}))
	out, err = New(repo, defaultConfig()).Resolve(ctx, payload("google", "p-2", "other@example.com"), session.New())
	require.NoError(t, err)
	require.Equal(t, ReasonUnverifiedAccount, out.Reason)

	got, err := repo.GetAccountByID(ctx, acct.ID)
	require.NoError(t, err)
	require.Equal(t, core.StatusUnverified, got.Status)
}

func TestResolve_ClosedAccountRejected(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	acct := &core.Account{Login: "gone@example.com", Status: core.StatusClosed}
	require.NoError(t, repo.CreateAccount(ctx, acct))

	out, err := New(repo, defaultConfig()).Resolve(ctx, payload("github", "g-1", "gone@example.com"), session.New())
	require.NoError(t, err)
	require.Equal(t, ReasonClosedAccount, out.Reason)
}

func TestResolve_SkipStatusChecks(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	acct := &core.Account{Login: "gone@example.com", Status: core.StatusClosed}
	require.NoError(t, repo.CreateAccount(ctx, acct))

	cfg := defaultConfig()
	cfg.SkipStatusChecks = true
	out, err := New(repo, cfg).Resolve(ctx, payload("github", "g-1", "gone@example.com"), session.New())
	require.NoError(t, err)
	require.Equal(t, KindLoggedIn, out.Kind)
}

func TestResolve_ConnectRebindsToLoggedInAccount(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	owner := openAccount(t, repo, "owner@example.com")
	other := openAccount(t, repo, "other@example.com")
	ident := &core.Identity{AccountID: owner.ID, Provider: "github", UID: "42"}
	require.NoError(t, repo.InsertIdentity(ctx, ident))

	sess := session.New()
	sess.SetAccountID(other.ID)
	before := sess.AuthenticatedBy()

	out, err := New(repo, defaultConfig()).Resolve(ctx, payload("github", "42", "owner@example.com"), sess)
	require.NoError(t, err)

	require.Equal(t, KindConnected, out.Kind)
	require.Equal(t, other.ID, out.AccountID)

	got, err := repo.GetIdentity(ctx, "github", "42")
	require.NoError(t, err)
	require.Equal(t, other.ID, got.AccountID)

	// Connecting records nothing new on the session.
	require.Equal(t, before, sess.AuthenticatedBy())
	require.Equal(t, other.ID, sess.AccountID())
}

func TestResolve_TwoFactorFlag(t *testing.T) {
	ctx := context.Background()
	cfg := defaultConfig()
	cfg.TwoFactorPolicy = true

	// A prior first factor makes the external login count as a second one.
	repo := memory.New()
	acct := openAccount(t, repo, "mfa@example.com")
	require.NoError(t, repo.InsertIdentity(ctx, &core.Identity{AccountID: acct.ID, Provider: "github", UID: "m-1"}))

	sess := session.New()
	sess.AddAuthenticatedBy("password")
	_, err := New(repo, cfg).Resolve(ctx, payload("github", "m-1", "mfa@example.com"), sess)
	require.NoError(t, err)
	require.True(t, sess.TwoFactorSatisfied())

	// Without a prior factor the flag stays clear.
	sess = session.New()
	_, err = New(repo, cfg).Resolve(ctx, payload("github", "m-1", "mfa@example.com"), sess)
	require.NoError(t, err)
	require.False(t, sess.TwoFactorSatisfied())
}

func TestResolve_IdentityDataRefreshToggle(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	acct := openAccount(t, repo, "ref@example.com")
	ident := &core.Identity{AccountID: acct.ID, Provider: "github", UID: "r-1", Info: []byte(`{"email":"old"}`)}
	require.NoError(t, repo.InsertIdentity(ctx, ident))

	cfg := defaultConfig()
	cfg.UpdateIdentity = false
	_, err := New(repo, cfg).Resolve(ctx, payload("github", "r-1", "ref@example.com"), session.New())
	require.NoError(t, err)
	got, _ := repo.GetIdentity(ctx, "github", "r-1")
	require.JSONEq(t, `{"email":"old"}`, string(got.Info))

	_, err = New(repo, defaultConfig()).Resolve(ctx, payload("github", "r-1", "ref@example.com"), session.New())
	require.NoError(t, err)
	got, _ = repo.GetIdentity(ctx, "github", "r-1")
	require.JSONEq(t, `{"email":"ref@example.com"}`, string(got.Info))
}

// conflictingRepo fails the first transaction with ErrConflict and inserts
// the identity as if a concurrent request won the race, so the retry takes
// the identity-found path.
type conflictingRepo struct {
	core.Repository
	winner   *core.Account
	provider string
	uid      string
	fired    bool
}

func (c *conflictingRepo) WithTx(ctx context.Context, fn func(ctx context.Context, r core.Repository) error) error {
	if !c.fired {
		c.fired = true
		if err := c.Repository.InsertIdentity(ctx, &core.Identity{
			AccountID: c.winner.ID, Provider: c.provider, UID: c.uid,
		}); err != nil {
			return err
		}
		return core.ErrConflict
	}
	return c.Repository.WithTx(ctx, fn)
}

func TestResolve_ConflictRetriesAsLookup(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	winner := openAccount(t, mem, "winner@example.com")
	repo := &conflictingRepo{Repository: mem, winner: winner, provider: "github", uid: "c-1"}

	sess := session.New()
	out, err := New(repo, defaultConfig()).Resolve(ctx, payload("github", "c-1", "winner@example.com"), sess)
	require.NoError(t, err)
	require.Equal(t, KindLoggedIn, out.Kind)
	require.Equal(t, winner.ID, out.AccountID)
}

// failingRepo fails every transaction.
type failingRepo struct {
	core.Repository
}

var errDown = errors.New("store down")

func (f *failingRepo) WithTx(context.Context, func(ctx context.Context, r core.Repository) error) error {
	return errDown
}

func TestResolve_StoreFailureSurfacesWithoutSessionEffects(t *testing.T) {
	sess := session.New()
	_, err := New(&failingRepo{memory.New()}, defaultConfig()).Resolve(context.Background(), payload("github", "x", "x@example.com"), sess)
	require.ErrorIs(t, err, errDown)
	require.False(t, sess.LoggedIn())
	require.False(t, sess.Dirty())
}

func TestPossibleAuthenticationMethods(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	r := New(repo, defaultConfig())

	noPass := openAccount(t, repo, "np@example.com")
	require.NoError(t, repo.InsertIdentity(ctx, &core.Identity{AccountID: noPass.ID, Provider: "github", UID: "n-1"}))

	got, err := r.PossibleAuthenticationMethods(ctx, noPass.ID, []string{"otp"})
	require.NoError(t, err)
	require.Equal(t, []string{"otp", MethodExternal}, got)

	// A password makes the external path redundant for login listing.
	hash := "$2a$10$abcdefghijklmnopqrstuv"
	withPass := &core.Account{Login: "wp@example.com", Status: core.StatusOpen, PasswordHash: &hash}
	require.NoError(t, repo.CreateAccount(ctx, withPass))
	require.NoError(t, repo.InsertIdentity(ctx, &core.Identity{AccountID: withPass.ID, Provider: "github", UID: "n-2"}))
	got, err = r.PossibleAuthenticationMethods(ctx, withPass.ID, []string{"password"})
	require.NoError(t, err)
	require.Equal(t, []string{"password"}, got)

	// An equivalent email-based method already covers it.
	got, err = r.PossibleAuthenticationMethods(ctx, noPass.ID, []string{"email_link"})
	require.NoError(t, err)
	require.Equal(t, []string{"email_link"}, got)

	// No linked identities, nothing to add.
	bare := openAccount(t, repo, "bare@example.com")
	got, err = r.PossibleAuthenticationMethods(ctx, bare.ID, nil)
	require.NoError(t, err)
	require.Empty(t, got)
}
