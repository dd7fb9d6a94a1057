// ingestd is the ingestion daemon: it sweeps the catalog for pending
// export files, runs them through the governance pipeline, and keeps the
// aggregate views fresh.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	ingestapp "github.com/timberdayz/datahub/internal/application/ingest"
	"github.com/timberdayz/datahub/internal/application/refresh"
	"github.com/timberdayz/datahub/internal/domain/ingest"
	"github.com/timberdayz/datahub/internal/domain/shared/valueobject"
	"github.com/timberdayz/datahub/internal/infrastructure/config"
	"github.com/timberdayz/datahub/internal/infrastructure/filestore"
	"github.com/timberdayz/datahub/internal/infrastructure/lock"
	"github.com/timberdayz/datahub/internal/infrastructure/logger"
	"github.com/timberdayz/datahub/internal/infrastructure/persistence"
	"github.com/timberdayz/datahub/internal/infrastructure/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ingestd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting ingestd",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env))

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}()

	store, err := newFileStore(cfg, log)
	if err != nil {
		return err
	}

	locker, err := newScopeLocker(cfg, log)
	if err != nil {
		return err
	}

	fileRepo := persistence.NewGormFileRepository(db.DB)
	mappingRepo := persistence.NewGormMappingRepository(db.DB)
	rateRepo := persistence.NewGormRateRepository(db.DB)
	rowRepo := persistence.NewGormRowRepository(db.DB)
	quarantineRepo := persistence.NewGormQuarantineRepository(db.DB)
	syncRepo := persistence.NewGormSyncPointRepository(db.DB)
	refreshLogRepo := persistence.NewGormRefreshLogRepository(db.DB)

	coordinator := refresh.NewCoordinator(
		refreshLogRepo,
		ingest.SystemClock{},
		logger.Component(log, "refresh"),
		cfg.Refresh.ViewTimeout,
	)
	rebuilder := persistence.NewViewRebuilder(db.DB)
	if err := coordinator.Register(persistence.ViewDailyMetrics, rebuilder.RebuildDailyMetrics); err != nil {
		return err
	}
	if err := coordinator.Register(persistence.ViewSKUActivity, rebuilder.RebuildSKUActivity); err != nil {
		return err
	}

	orchestrator := ingestapp.NewOrchestrator(
		ingestapp.OrchestratorDeps{
			Files:      fileRepo,
			Entries:    mappingRepo,
			Rates:      rateRepo,
			Rows:       rowRepo,
			Quarantine: quarantineRepo,
			SyncPoints: syncRepo,
			Store:      store,
			Locker:     locker,
			Clock:      ingest.SystemClock{},
			Logger:     logger.Component(log, "ingest"),
		},
		ingestapp.WithBaseCurrency(valueobject.Currency(cfg.Currency.BaseCurrency)),
		ingestapp.WithLookbackDays(cfg.Currency.LookbackDays),
		ingestapp.WithRowWorkers(cfg.Ingest.RowWorkers),
		ingestapp.WithIssueLimit(cfg.Ingest.MaxRowErrors),
		ingestapp.WithIngestedHook(func(ctx context.Context) {
			if err := coordinator.RefreshAll(ctx, refresh.TriggerIngest); err != nil {
				log.Warn("post-ingest refresh completed with failures", zap.Error(err))
			}
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poller := scheduler.NewIngestPoller(orchestrator, cfg.Ingest.PollInterval, cfg.Ingest.PollBatch, logger.Component(log, "poller"))
	poller.Start(ctx)

	refreshSched := scheduler.NewRefreshScheduler(scheduler.RefreshSchedulerConfig{
		Enabled: cfg.Refresh.ScheduleEnabled,
		Hour:    cfg.Refresh.ScheduleHour,
		Minute:  cfg.Refresh.ScheduleMinute,
	}, coordinator, logger.Component(log, "scheduler"))
	refreshSched.Start(ctx)

	log.Info("ingestd running")
	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := poller.Stop(shutdownCtx); err != nil {
		log.Warn("poller shutdown incomplete", zap.Error(err))
	}
	if err := refreshSched.Stop(shutdownCtx); err != nil {
		log.Warn("scheduler shutdown incomplete", zap.Error(err))
	}
	log.Info("shutdown complete")
	return nil
}

func newFileStore(cfg *config.Config, log *zap.Logger) (filestore.FileStore, error) {
	switch cfg.FileStore.Backend {
	case "s3":
		return filestore.NewS3Store(&cfg.FileStore,
			filestore.WithLogger(logger.Component(log, "filestore")))
	default:
		return filestore.NewLocalStore(cfg.FileStore.LocalRoot)
	}
}

func newScopeLocker(cfg *config.Config, log *zap.Logger) (lock.ScopeLocker, error) {
	if cfg.Redis.Host == "" {
		log.Info("using in-process scope lock")
		return lock.NewMemoryLocker(), nil
	}
	log.Info("using redis scope lock", zap.String("addr", cfg.Redis.Addr()))
	return lock.NewRedisLocker(lock.RedisConfig{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.Ingest.LockTTL,
	})
}
