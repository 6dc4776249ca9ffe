// Package app wires together every component into the runnable api,
// worker, and seed binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/queueforge/vqueue/internal/audit"
	"github.com/queueforge/vqueue/internal/auth"
	"github.com/queueforge/vqueue/internal/authz"
	"github.com/queueforge/vqueue/internal/cache"
	"github.com/queueforge/vqueue/internal/config"
	"github.com/queueforge/vqueue/internal/httpserver"
	"github.com/queueforge/vqueue/internal/platform"
	"github.com/queueforge/vqueue/internal/ratelimit"
	"github.com/queueforge/vqueue/internal/store"
	"github.com/queueforge/vqueue/internal/store/postgres"
	"github.com/queueforge/vqueue/internal/telemetry"
	"github.com/queueforge/vqueue/internal/tenant"
	"github.com/queueforge/vqueue/pkg/eventbus"
	"github.com/queueforge/vqueue/pkg/notify"
	"github.com/queueforge/vqueue/pkg/queueengine"
	"github.com/queueforge/vqueue/pkg/retention"
	"github.com/queueforge/vqueue/pkg/schedule"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the mode named by cfg.Mode.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting vqueue", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := tenant.EnsureGlobalSchema(ctx, db); err != nil {
		return fmt.Errorf("bootstrapping global schema: %w", err)
	}

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db, rdb)
	case "seed":
		return runSeed(ctx, db, logger)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// deps bundles the shared repository and component set used by both the
// api and worker modes, so each wires it identically.
type deps struct {
	queues     *postgres.QueueRepo
	sessions   *postgres.SessionRepo
	events     *postgres.QueueEventRepo
	users      *postgres.UserRepo
	apikeys    *postgres.ApiKeyRepo
	webhooks   *postgres.WebhookRepo
	auditRepo  *postgres.AuditRepo
	retention  *postgres.RetentionRepo
	backups    *postgres.BackupRepo
	tenants    *tenant.DefaultLookup
	bus        *eventbus.Bus
	engine     *queueengine.Engine
	notifier   *notify.Service
	opsNotify  *notify.OpsNotifier
	webhookSnk *notify.WebhookSink
	auditW     *audit.Writer
}

func newDeps(cfg *config.Config, db *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger) *deps {
	d := &deps{
		queues:    &postgres.QueueRepo{Pool: db},
		sessions:  &postgres.SessionRepo{Pool: db},
		events:    &postgres.QueueEventRepo{Pool: db},
		users:     &postgres.UserRepo{Pool: db},
		apikeys:   &postgres.ApiKeyRepo{Pool: db},
		webhooks:  &postgres.WebhookRepo{Pool: db},
		auditRepo: &postgres.AuditRepo{Pool: db},
		retention: &postgres.RetentionRepo{Pool: db},
		backups:   &postgres.BackupRepo{Pool: db},
		tenants:   &tenant.DefaultLookup{Pool: db},
	}

	d.auditW = audit.NewWriter(func(tenantID uuid.UUID) store.AuditRepository { return d.auditRepo }, logger)

	d.bus = eventbus.New(cfg.EventBusWorkerCount, cfg.EventBusQueueDepth, int64(cfg.EventBusPerTenantInFlight), logger, nil)

	d.engine = queueengine.New(d.queues, d.sessions, d.events, d.bus, schedule.RealClock{}, cfg.StrictCapacityMode)
	d.engine.Cache = cache.New(rdb)

	d.webhookSnk = notify.NewWebhookSink(d.webhooks)
	d.notifier = notify.New(map[notify.Channel]notify.Sink{
		notify.ChannelWebhook: d.webhookSnk,
	}, d.users, logger)
	d.opsNotify = notify.NewOpsNotifier(cfg.SlackOpsBotToken, cfg.SlackOpsChannel, logger)

	return d
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	d := newDeps(cfg, db, rdb, logger)
	d.auditW.Start(ctx)
	defer d.auditW.Close()

	accessTTL, err := time.ParseDuration(cfg.AccessTokenTTL)
	if err != nil {
		return fmt.Errorf("parsing access token TTL %q: %w", cfg.AccessTokenTTL, err)
	}
	sessionSecret := cfg.SessionSecret
	if sessionSecret == "" {
		logger.Warn("VQUEUE_SESSION_SECRET not set; using an ephemeral secret, sessions will not survive a restart")
		sessionSecret = auth.HashAPIKey(fmt.Sprintf("%d", time.Now().UnixNano()))
	}

	blacklist := &auth.CacheBlacklist{Cache: cache.New(rdb)}
	tokens, err := auth.NewTokenManager(sessionSecret, accessTTL, blacklist)
	if err != nil {
		return fmt.Errorf("creating token manager: %w", err)
	}
	apikeyAuth := &auth.APIKeyAuthenticator{Keys: d.apikeys}

	limiter := ratelimit.New(rdb, logger)
	_ = limiter // constructed but not attached to any route mounted by httpserver.NewServer

	authorizer := authz.New(cache.New(rdb))
	_ = authorizer // constructed but not consulted by any route mounted by httpserver.NewServer

	releaser := &queueengine.Releaser{
		Engine:          d.engine,
		Logger:          logger,
		PollInterval:    mustParseDuration(cfg.ReleaserPollInterval, time.Second),
		DefaultMaxBurst: cfg.DefaultMaxConcurrentUsers,
	}
	go releaser.Run(ctx)

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, tokens, apikeyAuth, d.tenants)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runWorker drives the background release loop and periodic retention
// sweeps; it shares the same repository wiring as the API process but
// serves no HTTP traffic.
func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client) error {
	logger.Info("worker started")
	d := newDeps(cfg, db, rdb, logger)
	d.auditW.Start(ctx)
	defer d.auditW.Close()

	releaser := &queueengine.Releaser{
		Engine:          d.engine,
		Logger:          logger,
		PollInterval:    mustParseDuration(cfg.ReleaserPollInterval, time.Second),
		DefaultMaxBurst: cfg.DefaultMaxConcurrentUsers,
	}

	sweepInterval := mustParseDuration(cfg.RetentionSweepInterval, time.Hour)
	retentionEngine := retention.New(
		d.retention,
		map[string]retention.Purger{"audit_log": d.auditRepo},
		nil, nil,
		func() time.Time { return time.Now().UTC() },
		logger,
	)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	go releaser.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			execs, err := retentionEngine.ApplyAll(ctx)
			if err != nil {
				logger.Error("retention sweep failed", "error", err)
				continue
			}
			for _, e := range execs {
				logger.Info("retention sweep applied", "policy_id", e.PolicyID, "matched", e.MatchedCount)
			}
		}
	}
}

// runSeed provisions a demo tenant with a default queue, grounded on
// internal/tenant.Provisioner.
func runSeed(ctx context.Context, db *pgxpool.Pool, logger *slog.Logger) error {
	p := &tenant.Provisioner{DB: db, Logger: logger}
	info, err := p.Provision(ctx, "Demo Tenant", "demo")
	if err != nil {
		return fmt.Errorf("provisioning demo tenant: %w", err)
	}

	conn, err := db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection for demo tenant: %w", err)
	}
	defer conn.Release()
	if _, err := conn.Exec(ctx, `SELECT set_config('search_path', $1, false)`, info.Schema); err != nil {
		return fmt.Errorf("pinning schema for demo tenant: %w", err)
	}
	tctx := tenant.NewConnContext(tenant.NewContext(ctx, info), conn)

	queue := &store.Queue{
		Name:                 "Demo Queue",
		Description:          "Default queue created for the demo tenant",
		MaxConcurrentUsers:   50,
		ReleaseRatePerMinute: 30,
		Active:               true,
	}
	if err := (&postgres.QueueRepo{Pool: db}).Add(tctx, queue); err != nil {
		return fmt.Errorf("creating default queue: %w", err)
	}

	logger.Info("demo tenant ready", "tenant_id", info.ID, "schema", info.Schema, "queue_id", queue.ID)
	return nil
}

func mustParseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
