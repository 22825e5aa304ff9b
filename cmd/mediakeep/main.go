// Command mediakeep runs the MediaKeep server: the SSO authentication broker
// and its admin surface.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/mediakeep/mediakeep/pkg/auth"
	"github.com/mediakeep/mediakeep/pkg/config"
	"github.com/mediakeep/mediakeep/pkg/httputil"
	"github.com/mediakeep/mediakeep/pkg/middleware"
	"github.com/mediakeep/mediakeep/pkg/observability"
	"github.com/mediakeep/mediakeep/pkg/secrets"
	"github.com/mediakeep/mediakeep/pkg/settings"
	"github.com/mediakeep/mediakeep/pkg/sso"
	"github.com/mediakeep/mediakeep/pkg/storage"
)

// dbStatsInterval is how often connection pool gauges are refreshed
const dbStatsInterval = 15 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, storage.Config{
		Driver:      cfg.Database.Driver,
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MaxIdle:     cfg.Database.MaxIdle,
		MaxLifetime: cfg.Database.MaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	box, err := secrets.NewBox(cfg.SSO.EncryptionKey)
	if err != nil {
		return err
	}
	if !box.Configured() {
		logger.Warn("SSO encryption key not set, provider secrets cannot be stored")
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	users := auth.NewUserStore(db)
	settingsSvc := settings.NewService(db)
	sessions := auth.NewSessionIssuer(cfg.Session.Secret, cfg.Session.TTL)

	providerStore := sso.NewProviderStore(db)
	if err := providerStore.SeedBuiltins(ctx); err != nil {
		return err
	}

	var states sso.StateStore
	if cfg.SSO.StateStore == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr: cfg.SSO.RedisAddr,
			DB:   cfg.SSO.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		defer client.Close()
		states = sso.NewRedisStateStore(client)
	} else {
		states = sso.NewSQLStateStore(db)
	}

	resolver := sso.NewResolver(users, settingsSvc, logger)
	broker := sso.NewBroker(providerStore, states, resolver, users, sessions,
		box, cfg.Server.FrontendURL, logger, metrics)
	admin := sso.NewAdminHandlers(providerStore, box, logger)

	authMW := middleware.NewAuth(sessions, users)

	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(metrics.Middleware)
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(observability.WithLogger(r.Context(), logger)))
		})
	})

	router.HandleFunc("/api/sso/providers", broker.HandleProviders).Methods(http.MethodGet)
	router.HandleFunc("/api/sso/{provider}/login", broker.HandleLogin).Methods(http.MethodGet)
	router.HandleFunc("/api/sso/{provider}/callback", broker.HandleCallback).Methods(http.MethodGet)
	router.HandleFunc("/api/sso/{provider}/link", broker.HandleLink).Methods(http.MethodGet)
	router.Handle("/api/sso/{provider}/unlink",
		authMW.Require(http.HandlerFunc(broker.HandleUnlink))).Methods(http.MethodPost)

	router.Handle("/api/admin/sso/settings",
		authMW.RequireSuperAdmin(http.HandlerFunc(admin.HandleList))).Methods(http.MethodGet)
	router.Handle("/api/admin/sso/settings/{provider}",
		authMW.RequireSuperAdmin(http.HandlerFunc(admin.HandleUpdate))).Methods(http.MethodPut)
	router.Handle("/api/admin/sso/settings/{provider}",
		authMW.RequireSuperAdmin(http.HandlerFunc(admin.HandleDelete))).Methods(http.MethodDelete)
	router.Handle("/api/admin/sso/generate-encryption-key",
		authMW.RequireSuperAdmin(http.HandlerFunc(admin.HandleGenerateKey))).Methods(http.MethodPost)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			httputil.WriteServiceUnavailable(w, "database unreachable")
			return
		}
		httputil.WriteSuccess(w, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	sweeper := sso.NewSweeper(states, logger, metrics)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.WithField("addr", server.Addr).Info("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		ticker := time.NewTicker(dbStatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				metrics.ObserveDBStats(db.Stats())
			}
		}
	})
	group.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
