// Package resolution maps a completed external handshake onto a local
// account: link, create, verify or reject. Every mutation for one callback
// happens inside a single store transaction, so a rejected or aborted run
// leaves no partial state.
package resolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dropDatabas3/authbridge/internal/observability/logger"
	"github.com/dropDatabas3/authbridge/internal/session"
	"github.com/dropDatabas3/authbridge/internal/store/core"
	"github.com/dropDatabas3/authbridge/internal/strategy"
)

// MethodExternal is the authentication-method label recorded in the session
// when a login was established through an external identity.
const MethodExternal = "external"

// Config holds the resolution policy toggles.
type Config struct {
	// AutoCreate allows creating a fresh account when the payload email
	// matches no existing account.
	AutoCreate bool

	// UpdateIdentity refreshes the stored info/credentials/extra blobs on
	// every completed callback.
	UpdateIdentity bool

	// SkipStatusChecks disables the account-status gate entirely, for hosts
	// that do not track verification.
	SkipStatusChecks bool

	// VerificationEnabled permits auto-verifying an unverified account when
	// the provider-asserted email exactly matches the account login.
	VerificationEnabled bool

	// TwoFactorPolicy treats an external login as a second factor when the
	// session already carries a first one.
	TwoFactorPolicy bool
}

// Resolver runs the identity resolution state machine against a repository.
type Resolver struct {
	repo core.Repository
	cfg  Config
}

// New creates a Resolver.
func New(repo core.Repository, cfg Config) *Resolver {
	return &Resolver{repo: repo, cfg: cfg}
}

// Resolve decides the outcome for one callback payload. Session effects
// (account id, authentication methods, second-factor flag) are applied only
// after the transaction commits.
//
// A unique-constraint conflict on (provider, uid) means another request
// inserted the identity first; the whole run is retried once and proceeds
// down the identity-found path.
func (r *Resolver) Resolve(ctx context.Context, p *strategy.Payload, sess *session.Session) (*Outcome, error) {
	log := logger.From(ctx).With(
		logger.Layer("resolution"),
		logger.Provider(p.Provider),
		logger.UID(p.UID),
	)

	data, err := encodeData(p)
	if err != nil {
		return nil, fmt.Errorf("encode identity data: %w", err)
	}

	var out *Outcome
	for attempt := 0; ; attempt++ {
		out = &Outcome{Provider: p.Provider, Email: p.Email(), uid: p.UID}
		err = r.repo.WithTx(ctx, func(ctx context.Context, repo core.Repository) error {
			return r.run(ctx, repo, p, sess, data, out)
		})
		if errors.Is(err, core.ErrConflict) && attempt == 0 {
			log.Warn("identity insert conflicted, retrying as lookup")
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	r.applySession(sess, out)

	log.Info("resolution finished",
		logger.Outcome(out.Kind),
		logger.AccountID(out.AccountID),
		logger.String("reason", out.Reason),
		logger.Bool("account_created", out.AccountCreated),
	)
	return out, nil
}

// run executes the state machine inside one transaction.
func (r *Resolver) run(ctx context.Context, repo core.Repository, p *strategy.Payload, sess *session.Session, data core.IdentityData, out *Outcome) error {
	ident, err := repo.GetIdentity(ctx, p.Provider, p.UID)
	switch {
	case err == nil:
		return r.identityFound(ctx, repo, p, sess, data, ident, out)
	case errors.Is(err, core.ErrNotFound):
		return r.identityNotFound(ctx, repo, p, sess, data, out)
	default:
		return fmt.Errorf("identity lookup: %w", err)
	}
}

func (r *Resolver) identityFound(ctx context.Context, repo core.Repository, p *strategy.Payload, sess *session.Session, data core.IdentityData, ident *core.Identity, out *Outcome) error {
	out.IdentityID = ident.ID

	if sess.LoggedIn() {
		// Connect: the identity follows the authenticated account, even if
		// it was previously bound elsewhere.
		return r.connect(ctx, repo, sess.AccountID(), data, ident, out)
	}

	if ident.AccountID == "" {
		// Orphan row, never linked. Resolve the owner by email as if the
		// identity were new, then bind it.
		return r.resolveByEmail(ctx, repo, p, data, ident, out)
	}

	account, err := repo.GetAccountByID(ctx, ident.AccountID)
	if err != nil {
		return fmt.Errorf("load identity account: %w", err)
	}
	return r.accountResolved(ctx, repo, account, data, ident, out)
}

func (r *Resolver) identityNotFound(ctx context.Context, repo core.Repository, p *strategy.Payload, sess *session.Session, data core.IdentityData, out *Outcome) error {
	if sess.LoggedIn() {
		return r.connect(ctx, repo, sess.AccountID(), data, nil, out)
	}
	return r.resolveByEmail(ctx, repo, p, data, nil, out)
}

// resolveByEmail covers the EmailMatch and NoAccount states. ident is nil
// when no row exists yet, non-nil for an orphan row to rebind.
func (r *Resolver) resolveByEmail(ctx context.Context, repo core.Repository, p *strategy.Payload, data core.IdentityData, ident *core.Identity, out *Outcome) error {
	email := p.Email()
	if email != "" {
		account, err := repo.GetAccountByLogin(ctx, email)
		switch {
		case err == nil:
			return r.accountResolved(ctx, repo, account, data, ident, out)
		case !errors.Is(err, core.ErrNotFound):
			return fmt.Errorf("account lookup by email: %w", err)
		}
	}

	// NoAccount.
	if !r.cfg.AutoCreate || email == "" {
		out.Kind = KindRejected
		out.Reason = ReasonNoMatchingAccount
		return nil
	}

	account := &core.Account{Login: email, Status: core.StatusOpen}
	if err := repo.CreateAccount(ctx, account); err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	out.AccountCreated = true
	return r.persistLogin(ctx, repo, account, data, ident, out)
}

// accountResolved applies the status gate, auto-verifying when permitted,
// then persists the login.
func (r *Resolver) accountResolved(ctx context.Context, repo core.Repository, account *core.Account, data core.IdentityData, ident *core.Identity, out *Outcome) error {
	if !r.cfg.SkipStatusChecks && !account.Open() {
		if account.Status == core.StatusClosed {
			out.Kind = KindRejected
			out.Reason = ReasonClosedAccount
			return nil
		}
		if !r.cfg.VerificationEnabled || !strings.EqualFold(out.Email, account.Login) || out.Email == "" {
			out.Kind = KindRejected
			out.Reason = ReasonUnverifiedAccount
			return nil
		}
		if err := repo.UpdateAccountStatus(ctx, account.ID, core.StatusOpen); err != nil {
			return fmt.Errorf("auto-verify account: %w", err)
		}
		account.Status = core.StatusOpen
		out.AutoVerified = true
	}
	return r.persistLogin(ctx, repo, account, data, ident, out)
}

func (r *Resolver) persistLogin(ctx context.Context, repo core.Repository, account *core.Account, data core.IdentityData, ident *core.Identity, out *Outcome) error {
	if err := r.persistIdentity(ctx, repo, account.ID, data, ident, out); err != nil {
		return err
	}
	out.Kind = KindLoggedIn
	out.AccountID = account.ID
	return nil
}

func (r *Resolver) connect(ctx context.Context, repo core.Repository, accountID string, data core.IdentityData, ident *core.Identity, out *Outcome) error {
	if err := r.persistIdentity(ctx, repo, accountID, data, ident, out); err != nil {
		return err
	}
	out.Kind = KindConnected
	out.AccountID = accountID
	return nil
}

// persistIdentity inserts a new identity row bound to accountID, or updates
// an existing one: rebinding when the owner changed and refreshing the data
// blobs unless the changeset is empty or refresh is disabled.
func (r *Resolver) persistIdentity(ctx context.Context, repo core.Repository, accountID string, data core.IdentityData, ident *core.Identity, out *Outcome) error {
	if ident == nil {
		row := &core.Identity{
			AccountID:   accountID,
			Provider:    out.Provider,
			UID:         out.uid,
			Info:        data.Info,
			Credentials: data.Credentials,
			Extra:       data.Extra,
		}
		if err := repo.InsertIdentity(ctx, row); err != nil {
			return err // core.ErrConflict triggers the retry in Resolve
		}
		out.IdentityID = row.ID
		return nil
	}

	if ident.AccountID != accountID {
		if err := repo.RebindIdentity(ctx, ident.ID, accountID); err != nil {
			return fmt.Errorf("rebind identity: %w", err)
		}
	}
	if r.cfg.UpdateIdentity && !data.Empty() {
		if err := repo.UpdateIdentityData(ctx, ident.ID, data); err != nil {
			return fmt.Errorf("refresh identity data: %w", err)
		}
	}
	out.IdentityID = ident.ID
	return nil
}

// applySession records the committed outcome on the session. The two-factor
// flag is evaluated before the external method is appended, so it only fires
// when a distinct first factor was already present.
func (r *Resolver) applySession(sess *session.Session, out *Outcome) {
	switch out.Kind {
	case KindLoggedIn:
		if r.cfg.TwoFactorPolicy && len(sess.AuthenticatedBy()) > 0 {
			sess.SetTwoFactorSatisfied()
		}
		sess.SetAccountID(out.AccountID)
		sess.AddAuthenticatedBy(MethodExternal)
	case KindConnected:
		// Session already carries the account; nothing to record.
	}
}

// PossibleAuthenticationMethods reports whether external-identity login
// should be listed as an available method for the account: at least one
// linked identity, no password set, and no equivalent email-based method
// already reported (to avoid counting the same path twice).
func (r *Resolver) PossibleAuthenticationMethods(ctx context.Context, accountID string, reported []string) ([]string, error) {
	account, err := r.repo.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.HasPassword() {
		return reported, nil
	}
	for _, m := range reported {
		if m == "email_link" {
			return reported, nil
		}
	}
	idents, err := r.repo.ListAccountIdentities(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(idents) == 0 {
		return reported, nil
	}
	return append(reported, MethodExternal), nil
}

func encodeData(p *strategy.Payload) (core.IdentityData, error) {
	var d core.IdentityData
	var err error
	if d.Info, err = encodeMap(p.Info); err != nil {
		return d, err
	}
	if d.Credentials, err = encodeMap(p.Credentials); err != nil {
		return d, err
	}
	if d.Extra, err = encodeMap(p.Extra); err != nil {
		return d, err
	}
	return d, nil
}

func encodeMap(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}
