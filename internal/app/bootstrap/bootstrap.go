package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	boardservice "rudefriend/contexts/community-board/board-service"
	postgresadapter "rudefriend/contexts/community-board/board-service/adapters/postgres"
	"rudefriend/contexts/community-board/board-service/domain/entities"
	"rudefriend/contexts/community-board/board-service/ports"
	"rudefriend/internal/platform/config"
	"rudefriend/internal/platform/db"
	"rudefriend/internal/platform/htmlsanitize"
	"rudefriend/internal/platform/httpserver"
	"rudefriend/internal/platform/messaging"
	"rudefriend/internal/platform/metrics"
	"rudefriend/internal/platform/scheduler"
	"rudefriend/internal/platform/security"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres      *db.Postgres
	publisher     closer
	scheduler     *scheduler.Scheduler
	jobs          []workerJob
	recorder      *metrics.Recorder
	metricsServer *http.Server
	logger        *slog.Logger
}

type workerJob struct {
	name string
	spec string
	run  func(context.Context) error
}

type closer interface {
	Close() error
}

func BuildAPI(ctx context.Context) (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")

	recorder := metrics.New()
	module, pg, err := buildModule(ctx, cfg, logger, recorder, nil)
	if err != nil {
		return nil, err
	}

	server := httpserver.New(module, logger, httpserver.Options{
		Addr:              normalizeAddr(cfg.HTTPPort),
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		VoteRatePerSecond: cfg.VoteRatePerSecond,
		VoteRateBurst:     cfg.VoteRateBurst,
		Metrics:           recorder,
	})
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker(ctx context.Context) (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")

	var (
		publisher ports.EventPublisher
		pubCloser closer
	)
	if cfg.RedisAddr != "" {
		redisPublisher, err := messaging.NewRedisPublisher(ctx, messaging.RedisConfig{
			Addr:          cfg.RedisAddr,
			Password:      cfg.RedisPassword,
			DB:            cfg.RedisDB,
			ChannelPrefix: cfg.EventChannelPrefix,
		}, logger)
		if err != nil {
			return nil, err
		}
		publisher, pubCloser = redisPublisher, redisPublisher
	} else {
		logger.Warn("REDIS_ADDR not set, events stay in process",
			"event", "bootstrap_local_event_bus",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
		publisher = messaging.NewLocalBus(logger)
	}

	recorder := metrics.New()
	module, pg, err := buildModule(ctx, cfg, logger, recorder, publisher)
	if err != nil {
		if pubCloser != nil {
			_ = pubCloser.Close()
		}
		return nil, err
	}

	repairPool := scheduler.RepairPool{
		Repairer: module.TallyRepair,
		Workers:  cfg.TallyRepairWorkers,
		Logger:   logger,
	}
	return &WorkerApp{
		postgres:  pg,
		publisher: pubCloser,
		scheduler: scheduler.New(logger, cfg.JobTimeout),
		jobs: []workerJob{
			{
				name: "outbox_relay",
				spec: cfg.OutboxRelaySpec,
				run: func(ctx context.Context) error {
					_, err := module.OutboxRelay.RunOnce(ctx)
					return err
				},
			},
			{
				name: "tally_repair",
				spec: cfg.TallyRepairSpec,
				run: func(ctx context.Context) error {
					_, err := repairPool.RunOnce(ctx)
					return err
				},
			},
		},
		recorder:      recorder,
		metricsServer: newMetricsServer(cfg.MetricsPort, recorder),
		logger:        logger,
	}, nil
}

// newMetricsServer exposes the worker's vote and repair counters for scraping.
func newMetricsServer(port string, recorder *metrics.Recorder) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	return &http.Server{
		Addr:              normalizeAddr(port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Migrate applies the schema to POSTGRES_DSN and exits.
func Migrate(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StorageMode != config.StoragePostgres {
		return errors.New("migrations require STORAGE_MODE=postgres")
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "migrate")
	pg, err := db.Connect(ctx, postgresOptions(cfg))
	if err != nil {
		return err
	}
	defer pg.Close()
	return pg.Migrate(logger)
}

func buildModule(
	ctx context.Context,
	cfg config.Config,
	logger *slog.Logger,
	recorder *metrics.Recorder,
	publisher ports.EventPublisher,
) (boardservice.Module, *db.Postgres, error) {
	deps := boardservice.Dependencies{
		Publisher:       publisher,
		Hasher:          security.NewBcryptHasher(cfg.PasswordHashCost),
		Sanitizer:       htmlsanitize.New(),
		Metrics:         recorder,
		OutboxBatchSize: cfg.OutboxBatchSize,
		Logger:          logger,
	}

	if cfg.StorageMode == config.StorageMemory {
		logger.Warn("using in-memory storage",
			"event", "bootstrap_memory_storage",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
		return boardservice.NewInMemoryModule(devMembers(), deps), nil, nil
	}

	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return boardservice.Module{}, nil, errors.New("POSTGRES_DSN is required")
	}
	pg, err := db.Connect(ctx, postgresOptions(cfg))
	if err != nil {
		return boardservice.Module{}, nil, err
	}
	if cfg.AutoMigrate {
		if err := pg.Migrate(logger); err != nil {
			_ = pg.Close()
			return boardservice.Module{}, nil, err
		}
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	deps.UnitOfWork = repo
	deps.Posts = repo
	deps.Outbox = repo
	deps.Clock = postgresadapter.SystemClock{}
	deps.IDGenerator = postgresadapter.TimeOrderedIDs{}
	return boardservice.NewModule(deps), pg, nil
}

func devMembers() []entities.Member {
	return []entities.Member{
		{MemberID: "dev-member-1", Username: "dev1", DisplayName: "Dev One", Active: true},
		{MemberID: "dev-member-2", Username: "dev2", DisplayName: "Dev Two", Active: true},
	}
}

func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	}
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	for _, job := range w.jobs {
		if err := w.scheduler.Add(ctx, job.name, job.spec, job.run); err != nil {
			return err
		}
	}
	w.scheduler.Start()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"job_count", len(w.jobs),
		"metrics_addr", w.metricsServer.Addr,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := w.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return errors.Join(
		serveErr,
		w.scheduler.Stop(stopCtx),
		w.metricsServer.Shutdown(stopCtx),
	)
}

func (w *WorkerApp) Close() error {
	var errs []error
	if w.publisher != nil {
		errs = append(errs, w.publisher.Close())
	}
	if w.postgres != nil {
		errs = append(errs, w.postgres.Close())
	}
	return errors.Join(errs...)
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

func postgresOptions(cfg config.Config) db.Options {
	return db.Options{
		DSN:             cfg.PostgresDSN,
		MaxOpenConns:    cfg.PostgresMaxOpenConns,
		MaxIdleConns:    cfg.PostgresMaxIdleConns,
		ConnMaxLifetime: cfg.PostgresConnMaxLifetime,
	}
}
