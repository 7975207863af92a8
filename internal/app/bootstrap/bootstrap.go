package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	battlevoting "battlevoter/contexts/live-events/battle-voting"
	"battlevoter/contexts/live-events/battle-voting/adapters/credential"
	"battlevoter/contexts/live-events/battle-voting/adapters/memory"
	postgresadapter "battlevoter/contexts/live-events/battle-voting/adapters/postgres"
	redisadapter "battlevoter/contexts/live-events/battle-voting/adapters/redis"
	"battlevoter/contexts/live-events/battle-voting/domain/entities"
	"battlevoter/contexts/live-events/battle-voting/ports"
	"battlevoter/internal/platform/cache"
	"battlevoter/internal/platform/config"
	"battlevoter/internal/platform/db"
	"battlevoter/internal/platform/httpserver"
	"battlevoter/internal/platform/messaging"

	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	hub      *messaging.Hub
	relay    *redisadapter.Relay
	postgres *db.Postgres
	redis    *cache.Redis
	logger   *slog.Logger
}

type MigrateApp struct {
	postgres *db.Postgres
	repo     *postgresadapter.Repository
	logger   *slog.Logger
}

func BuildAPI(args []string) (*APIApp, error) {
	cfg, err := config.Load(args)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, os.Stderr).With("service", cfg.ServiceName, "process", "api")
	slog.SetDefault(logger)

	verifier, err := buildVerifier(cfg)
	if err != nil {
		return nil, err
	}

	pg, err := db.Connect(cfg.PostgresDSN, logger)
	if err != nil {
		return nil, err
	}
	app := &APIApp{postgres: pg, logger: logger}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	if cfg.AutoMigrate {
		if err := repo.Migrate(context.Background()); err != nil {
			_ = app.Close()
			return nil, err
		}
	}

	app.hub = messaging.NewHub(cfg.SubscriberBuffer, logger)
	clock := postgresadapter.SystemClock{}

	var (
		tallyCache  ports.TallyCache
		rateLimiter ports.RateLimiter
		publisher   ports.TallyPublisher
	)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		rdb, err := cache.Connect(cfg.RedisURL)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.redis = rdb
		app.relay = redisadapter.NewRelay(rdb.Client, app.hub, cfg.RedisKeyPrefix, logger)
		tallyCache = redisadapter.NewTallyCache(rdb.Client, cfg.RedisKeyPrefix)
		rateLimiter = redisadapter.NewRateLimiter(rdb.Client, cfg.RedisKeyPrefix, cfg.RateLimitMax, cfg.RateLimitWindow)
		publisher = app.relay
	} else {
		logger.Warn("redis not configured, tallies and rate limits stay in process",
			"event", "bootstrap_redis_disabled",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
		tallyCache = memory.NewTallyCache(clock)
		rateLimiter = memory.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow, clock)
		publisher = app.hub
	}

	module := battlevoting.NewModule(battlevoting.Dependencies{
		Contests:        repo,
		Credentials:     verifier,
		Ledger:          repo,
		TallyCache:      tallyCache,
		RateLimiter:     rateLimiter,
		Publisher:       publisher,
		Subscriber:      app.hub,
		Clock:           clock,
		IDGen:           postgresadapter.UUIDGenerator{},
		DuplicatePolicy: entities.DuplicatePolicy(strings.ToLower(cfg.DuplicatePolicy)),
		TallyCacheTTL:   cfg.TallyCacheTTL,
		Heartbeat:       cfg.SSEHeartbeat,
		Logger:          logger,
	})
	module.Hub = app.hub

	app.server = httpserver.New(module, logger, httpserver.Options{
		Addr:                  normalizeAddr(cfg.HTTPPort),
		AllowedOrigins:        cfg.CORSAllowedOrigins,
		TrustForwardedHeaders: cfg.TrustForwardedHeaders,
		ShutdownTimeout:       cfg.ShutdownTimeout,
	})
	return app, nil
}

func BuildMigrate(args []string) (*MigrateApp, error) {
	cfg, err := config.Load(args)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, os.Stderr).With("service", cfg.ServiceName, "process", "migrate")

	pg, err := db.Connect(cfg.PostgresDSN, logger)
	if err != nil {
		return nil, err
	}
	return &MigrateApp{
		postgres: pg,
		repo:     postgresadapter.NewRepository(pg.DB, logger),
		logger:   logger,
	}, nil
}

// Run serves until ctx is cancelled or the listener fails, then shuts the
// server down within the configured timeout.
func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(a.server.Start)
	if a.relay != nil {
		group.Go(func() error {
			return a.relay.Run(gctx)
		})
	}
	group.Go(func() error {
		<-gctx.Done()
		return a.server.Shutdown(context.Background())
	})
	return group.Wait()
}

func (a *APIApp) Close() error {
	var errs []error
	if a.hub != nil {
		errs = append(errs, a.hub.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.postgres != nil {
		errs = append(errs, a.postgres.Close())
	}
	return errors.Join(errs...)
}

func (m *MigrateApp) Run(ctx context.Context) error {
	if err := m.repo.Migrate(ctx); err != nil {
		return err
	}
	m.logger.Info("vote schema migrated",
		"event", "bootstrap_migrate_completed",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)
	return nil
}

func (m *MigrateApp) Close() error {
	if m.postgres != nil {
		return m.postgres.Close()
	}
	return nil
}

func buildVerifier(cfg config.Config) (ports.CredentialVerifier, error) {
	publicKey, err := credential.ParsePublicKey(cfg.TokenPublicKey)
	if err != nil {
		return nil, fmt.Errorf("TOKEN_PUBLIC_KEY: %w", err)
	}
	return credential.Verifier{PublicKey: publicKey}, nil
}

func newLogger(cfg config.Config, out io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
