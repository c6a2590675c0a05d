package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	rdb "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/authbridge/internal/config"
	"github.com/dropDatabas3/authbridge/internal/dispatcher"
	"github.com/dropDatabas3/authbridge/internal/email"
	"github.com/dropDatabas3/authbridge/internal/http/middlewares"
	"github.com/dropDatabas3/authbridge/internal/http/router"
	"github.com/dropDatabas3/authbridge/internal/manage"
	"github.com/dropDatabas3/authbridge/internal/metrics"
	"github.com/dropDatabas3/authbridge/internal/observability/logger"
	"github.com/dropDatabas3/authbridge/internal/provider"
	"github.com/dropDatabas3/authbridge/internal/resolution"
	"github.com/dropDatabas3/authbridge/internal/session"
	"github.com/dropDatabas3/authbridge/internal/store/core"
	"github.com/dropDatabas3/authbridge/internal/store/memory"
	"github.com/dropDatabas3/authbridge/internal/store/pg"
	"github.com/dropDatabas3/authbridge/internal/strategy"
	pgmigrations "github.com/dropDatabas3/authbridge/migrations/postgres"

	// Strategy factories register themselves from init().
	_ "github.com/dropDatabas3/authbridge/internal/strategy/developer"
	_ "github.com/dropDatabas3/authbridge/internal/strategy/github"
	_ "github.com/dropDatabas3/authbridge/internal/strategy/google"
)

const version = "0.3.0"

func serveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath(*cfgPath))
		},
	}
}

func runServe(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		ServiceName: "authbridge",
		Version:     version,
	})
	defer logger.Sync()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store.
	var (
		repo core.Repository
		pool *pgxpool.Pool
	)
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err = openPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		repo = pg.New(pool)

		if cfg.Flags.Migrate {
			migrator := pg.NewMigrator(pgmigrations.FS, pgmigrations.Dir)
			res, err := migrator.Run(ctx, pool)
			if err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			log.Info("migrations applied",
				logger.Count(len(res.Applied)),
				logger.Duration(res.Duration),
			)
		}
	default:
		repo = memory.New()
		log.Warn("using in-memory store, state is lost on restart")
	}

	// Session store.
	sessions, err := buildSessionStore(cfg)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	bridge := session.NewBridge(sessions)

	// Provider registry. Finalize resolves every strategy reference so a
	// misconfigured provider aborts startup instead of failing under
	// traffic.
	registry := provider.NewRegistry(cfg.Auth.Prefix)
	for _, p := range cfg.Providers {
		if err := registry.Register(p.Name, p.Strategy, strategy.Options(p.Options)); err != nil {
			return fmt.Errorf("provider %s: %w", p.Name, err)
		}
	}
	if err := registry.Finalize(); err != nil {
		return err
	}
	log.Info("providers registered", logger.Any("providers", registry.Providers()))

	resolver := resolution.New(repo, resolution.Config{
		AutoCreate:          cfg.AutoCreateEnabled(),
		UpdateIdentity:      cfg.UpdateIdentityEnabled(),
		SkipStatusChecks:    cfg.Auth.SkipStatusChecks,
		VerificationEnabled: cfg.Auth.VerificationEnabled,
		TwoFactorPolicy:     cfg.Auth.TwoFactorPolicy,
	})

	var notifier dispatcher.AccountNotifier
	if cfg.SMTP.Enabled {
		sender := email.FromConfig(email.SMTPConfig{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			FromEmail: cfg.SMTP.From,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			TLSMode:   cfg.SMTP.TLS,
		})
		sender.InsecureSkipVerify = cfg.SMTP.InsecureSkipVerify
		notifier = email.NewNotifier(sender, "authbridge")
	}

	disp := dispatcher.New(registry, bridge, resolver, dispatcher.Config{
		SuccessRedirect: cfg.Auth.SuccessRedirect,
		FailureRedirect: cfg.Auth.FailureRedirect,
		Secret:          []byte(cfg.Auth.Secret),
		CSRF: dispatcher.CSRFConfig{
			Enabled:    cfg.Auth.CSRF.Enabled,
			HeaderName: cfg.Auth.CSRF.HeaderName,
			ParamName:  cfg.Auth.CSRF.ParamName,
			CookieName: cfg.Auth.CSRF.CookieName,
		},
		Notifier: notifier,
	})

	manageSvc := manage.New(repo, resolver, manage.Config{
		RemovalRequiresPassword: cfg.Auth.RemovalRequiresPassword,
	})

	if err := metrics.Register(nil); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	handler := router.New(router.Deps{
		Dispatcher:         disp,
		Manage:             manage.NewHandler(manageSvc, sessions),
		Repo:               repo,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		CSRFEnabled:        cfg.Auth.CSRF.Enabled,
		CSRF: middlewares.CSRFConfig{
			HeaderName: cfg.Auth.CSRF.HeaderName,
			CookieName: cfg.Auth.CSRF.CookieName,
		},
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("storage dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Storage.Postgres.MaxConns)
	if cfg.Storage.Postgres.ConnMaxLifetime != "" {
		d, _ := time.ParseDuration(cfg.Storage.Postgres.ConnMaxLifetime)
		poolCfg.MaxConnLifetime = d
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage open: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage ping: %w", err)
	}
	return pool, nil
}

func buildSessionStore(cfg *config.Config) (session.Store, error) {
	sameSite := parseSameSite(cfg.Session.SameSite)
	switch cfg.Session.Store {
	case "cookie":
		return session.NewCookieStore(session.CookieConfig{
			Name:     cfg.Session.CookieName,
			Secret:   []byte(cfg.Session.Secret),
			TTL:      cfg.SessionTTL(),
			Domain:   cfg.Session.Domain,
			Secure:   cfg.Session.Secure,
			SameSite: sameSite,
		})
	case "token":
		return session.NewTokenStore(session.TokenConfig{
			Secret: []byte(cfg.Session.Secret),
			TTL:    cfg.SessionTTL(),
		})
	case "redis":
		client := rdb.NewClient(&rdb.Options{
			Addr: cfg.Session.Redis.Addr,
			DB:   cfg.Session.Redis.DB,
		})
		return session.NewRedisStore(session.RedisConfig{
			Client:   client,
			Prefix:   cfg.Session.Redis.Prefix,
			TTL:      cfg.SessionTTL(),
			Secure:   cfg.Session.Secure,
			SameSite: sameSite,
		})
	case "memory":
		return session.NewMemoryStore(cfg.Session.CookieName, cfg.SessionTTL()), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Session.Store)
	}
}

func parseSameSite(v string) http.SameSite {
	switch v {
	case "Strict", "strict":
		return http.SameSiteStrictMode
	case "None", "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
