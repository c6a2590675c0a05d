// Package manage exposes the account-facing operations over linked external
// identities: listing them, disconnecting one, and cleaning up when the
// account closes.
package manage

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/dropDatabas3/authbridge/internal/observability/logger"
	"github.com/dropDatabas3/authbridge/internal/resolution"
	"github.com/dropDatabas3/authbridge/internal/store/core"
)

var (
	ErrPasswordRequired = errors.New("password required to disconnect identity")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrNotConnected     = errors.New("identity not connected")
)

// Config tunes the manage operations.
type Config struct {
	// RemovalRequiresPassword gates Disconnect behind a password check for
	// accounts that have one set.
	RemovalRequiresPassword bool
}

// Service implements the manage operations on top of the repository.
type Service struct {
	repo     core.Repository
	resolver *resolution.Resolver
	cfg      Config
}

// New creates a Service.
func New(repo core.Repository, resolver *resolution.Resolver, cfg Config) *Service {
	return &Service{repo: repo, resolver: resolver, cfg: cfg}
}

// Identities returns the account's linked identities.
func (s *Service) Identities(ctx context.Context, accountID string) ([]*core.Identity, error) {
	return s.repo.ListAccountIdentities(ctx, accountID)
}

// ConnectedProviders returns the provider names the account is linked to.
func (s *Service) ConnectedProviders(ctx context.Context, accountID string) ([]string, error) {
	idents, err := s.repo.ListAccountIdentities(ctx, accountID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(idents))
	for _, ident := range idents {
		names = append(names, ident.Provider)
	}
	return names, nil
}

// Disconnect unlinks one provider from the account. When removal requires a
// password and the account has one, the supplied password must verify.
// Returns ErrNotConnected when no identity for that provider exists.
func (s *Service) Disconnect(ctx context.Context, accountID, providerName, password string) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Op("manage.Disconnect"),
		logger.AccountID(accountID),
		logger.Provider(providerName),
	)

	return s.repo.WithTx(ctx, func(ctx context.Context, repo core.Repository) error {
		account, err := repo.GetAccountByID(ctx, accountID)
		if err != nil {
			return fmt.Errorf("load account: %w", err)
		}

		if s.cfg.RemovalRequiresPassword && account.HasPassword() {
			if password == "" {
				return ErrPasswordRequired
			}
			if bcrypt.CompareHashAndPassword([]byte(*account.PasswordHash), []byte(password)) != nil {
				return ErrInvalidPassword
			}
		}

		n, err := repo.DeleteIdentity(ctx, accountID, providerName)
		if err != nil {
			return fmt.Errorf("delete identity: %w", err)
		}
		if n == 0 {
			return ErrNotConnected
		}

		log.Info("identity disconnected", logger.Count(int(n)))
		return nil
	})
}

// CloseAccount marks the account closed and removes every linked identity,
// in one transaction. An external uid freed this way may be claimed again
// by a future resolution.
func (s *Service) CloseAccount(ctx context.Context, accountID string) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Op("manage.CloseAccount"),
		logger.AccountID(accountID),
	)

	return s.repo.WithTx(ctx, func(ctx context.Context, repo core.Repository) error {
		if err := repo.UpdateAccountStatus(ctx, accountID, core.StatusClosed); err != nil {
			return fmt.Errorf("close account: %w", err)
		}
		n, err := repo.DeleteAccountIdentities(ctx, accountID)
		if err != nil {
			return fmt.Errorf("remove identities: %w", err)
		}
		log.Info("account closed", logger.Count(int(n)))
		return nil
	})
}

// AuthenticationMethods augments the reported method list with the
// external-identity method when it genuinely applies.
func (s *Service) AuthenticationMethods(ctx context.Context, accountID string, reported []string) ([]string, error) {
	return s.resolver.PossibleAuthenticationMethods(ctx, accountID, reported)
}
