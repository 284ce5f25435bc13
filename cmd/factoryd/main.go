// Command factoryd hosts the remote factory endpoint: it wires the
// operation registry, the authorization engine, the session store, and
// the HTTP middleware chain, then serves invocations until signalled.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/NeatooDotNet/RemoteFactory-sub015/examples/tasks"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/api"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/authz"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/config"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/identity"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/observability"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/operation"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/pdp"
	"github.com/NeatooDotNet/RemoteFactory-sub015/pkg/session"
)

func main() {
	if err := run(); err != nil {
		slog.Error("factoryd exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if strings.EqualFold(cfg.LogLevel, "debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: "1.0.0",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Insecure:       true,
		Enabled:        cfg.OTLPEndpoint != "",
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(sctx)
	}()

	db, err := sql.Open("sqlite", cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := operation.NewRegistry()
	if err := tasks.RegisterOperations(registry); err != nil {
		return err
	}

	evaluator, err := pdp.NewCELEvaluator(tasks.Policies())
	if err != nil {
		return err
	}
	engine := authz.NewEngine(authz.WithEvaluator(evaluator), authz.WithLogger(logger))
	if err := engine.RegisterRuleSet(tasks.RuleSet()); err != nil {
		return err
	}

	scopes, err := tasks.NewScopeFactory(db)
	if err != nil {
		return err
	}

	var sessions session.Store
	if cfg.RedisURL != "" {
		sessions, err = session.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
	} else {
		sessions = session.NewMemoryStore()
	}
	defer sessions.Close()

	tokens, err := identity.NewTokenManager([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.SessionTTL)
	if err != nil {
		return err
	}

	handler := api.NewHandler(registry, engine, scopes,
		api.WithSessionStore(sessions, cfg.SessionTTL),
		api.WithHandlerLogger(logger),
		api.WithMaxBodyBytes(cfg.MaxBodyBytes),
		api.WithObserver(func(target, kind, outcome string, d time.Duration) {
			obs.RecordInvocation(context.Background(), target, kind, outcome, d)
		}),
	)

	auth := api.NewAuthenticator(tokens, sessions, loadAPIKeys(logger))
	limiter := api.NewRateLimiter(cfg.RateRPS, cfg.RateBurst)
	defer limiter.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", api.Health)
	mux.Handle(cfg.InvokePath, api.RequestID(auth.Middleware(limiter.Middleware(handler))))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("factory endpoint listening", "addr", cfg.ListenAddr, "path", cfg.InvokePath, "mode", cfg.Mode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return err
		}
	}
	return nil
}

// loadAPIKeys reads the API key table from the profile file, when one is
// configured. Missing table just means bearer-token-only.
func loadAPIKeys(logger *slog.Logger) []identity.APIKeyEntry {
	profile := os.Getenv("FACTORY_PROFILE")
	if profile == "" {
		return nil
	}
	raw, err := config.LoadAPIKeys(profile)
	if err != nil {
		logger.Warn("api key table unavailable", "error", err)
		return nil
	}
	entries := make([]identity.APIKeyEntry, 0, len(raw))
	for _, k := range raw {
		entries = append(entries, identity.APIKeyEntry{
			Hash: k.Hash,
			Principal: identity.Principal{
				ID:       k.Principal,
				TenantID: k.TenantID,
				Roles:    k.Roles,
			},
		})
	}
	return entries
}
