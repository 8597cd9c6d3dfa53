package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kdimtricp/pairjudge/internal/api"
	"github.com/kdimtricp/pairjudge/internal/config"
	"github.com/kdimtricp/pairjudge/internal/database"
	"github.com/kdimtricp/pairjudge/internal/judgment"
	"github.com/kdimtricp/pairjudge/internal/metrics"
	"github.com/kdimtricp/pairjudge/internal/platform/logger"
	"github.com/kdimtricp/pairjudge/internal/session"
	"github.com/kdimtricp/pairjudge/internal/storage"
	"github.com/kdimtricp/pairjudge/internal/weighting"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Run the HTTP server against an initialized database.

Examples:
  # Seed once, then serve
  pairjudge setup -c deploy.yaml
  pairjudge serve -c deploy.yaml`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer db.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.RunMigrations(ctx, cfg.Database.MigrationsPath); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	setup := database.NewSetup(db, nil)
	ok, err := setup.IsInitialized(ctx)
	if err != nil {
		return fmt.Errorf("failed to check setup: %w", err)
	}
	if !ok {
		return errors.New("database is not initialized, run `pairjudge setup` first")
	}

	catalog := database.NewCatalogRepository(db)
	policy, err := weighting.FromControl(ctx, setup, catalog)
	if err != nil {
		return fmt.Errorf("failed to load weighting policy: %w", err)
	}

	images, err := storage.NewLocalStorage(cfg.Images.Directory)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	sessions, err := newSessionStore(cfg.Redis, log)
	if err != nil {
		return err
	}
	defer sessions.Close()

	m := metrics.New()
	service := judgment.NewService(judgment.SettingsFromConfig(cfg), judgment.Deps{
		Catalog:     catalog,
		Comparisons: database.NewComparisonRepository(db),
		Users:       database.NewUserRepository(db),
		Policy:      policy,
		Rand:        newRand(cfg.Behaviour.RNGSeed),
		Metrics:     m,
		Log:         log,
	})

	app := &api.App{
		Service:      service,
		Sessions:     sessions,
		Items:        catalog,
		Images:       images,
		Log:          log.With("service", "API"),
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(app, m.Registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting",
			"port", cfg.Server.Port,
			"database", cfg.Database.Type,
			"weight_configuration", policy.Mode(),
			"images", cfg.Images.Directory)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newSessionStore(cfg config.RedisConfig, log *logger.Logger) (session.Store, error) {
	if cfg.Addr == "" {
		log.Info("using in-memory session store")
		return session.NewMemoryStore(cfg.SessionTTL), nil
	}
	store, err := session.NewRedisStore(session.RedisOptions{
		Addr:      cfg.Addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TTL:       cfg.SessionTTL,
		KeyPrefix: cfg.KeyPrefix,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return store, nil
}

// newRand seeds the selection source once per process. A zero seed draws
// from the clock.
func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
