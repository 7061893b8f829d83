package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/conference-proceedings/internal/config"
	"github.com/kirillkom/conference-proceedings/internal/core/ports"
	"github.com/kirillkom/conference-proceedings/internal/core/usecase"
	"github.com/kirillkom/conference-proceedings/internal/infrastructure/conference"
	"github.com/kirillkom/conference-proceedings/internal/infrastructure/converter/soffice"
	"github.com/kirillkom/conference-proceedings/internal/infrastructure/pdfdoc"
	"github.com/kirillkom/conference-proceedings/internal/infrastructure/queue/nats"
	"github.com/kirillkom/conference-proceedings/internal/infrastructure/report/xlsx"
	"github.com/kirillkom/conference-proceedings/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/conference-proceedings/internal/infrastructure/resilience"
	"github.com/kirillkom/conference-proceedings/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/conference-proceedings/internal/infrastructure/storage/objectstore"
)

type App struct {
	Config config.Config

	Queue     ports.ConversionQueue
	Converter *soffice.Converter

	IntakeUC      ports.SubmissionIntake
	ReaderUC      ports.SubmissionReader
	LifecycleUC   ports.SubmissionLifecycle
	ConversionUC  ports.ConversionProcessor
	ProceedingsUC ports.ProceedingsService

	closeFn func()
}

// New wires the adapters. observer, when set, receives retry and breaker events of every executor.
func New(ctx context.Context, cfg config.Config, observer resilience.Observer) (*App, error) {
	conferences, err := conference.Load(cfg.ConferencesFile)
	if err != nil {
		return nil, fmt.Errorf("load conference directory: %w", err)
	}
	slog.Info("conference_directory_loaded", "path", cfg.ConferencesFile, "conferences", conferences.Len())

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	subs := postgres.NewSubmissionRepository(db)
	versions := postgres.NewVersionRepository(db)
	proceedings := postgres.NewProceedingsRepository(db)
	leaseDB, err := postgres.OpenLeaseDB(cfg.PostgresDSN, postgres.LeasePoolSize(cfg.APIMaxInFlight, cfg.WorkerConcurrency))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open lease pool: %w", err)
	}
	locker := postgres.NewAdvisoryLocker(leaseDB)
	closeDBs := func() {
		_ = leaseDB.Close()
		_ = db.Close()
	}

	executor := resilience.NewExecutor(cfg.Resilience)
	// The engine run is bounded by ConversionTimeout, not by the per-attempt limit.
	engineCfg := cfg.Resilience
	engineCfg.AttemptTimeout = 0
	engineExecutor := resilience.NewExecutor(engineCfg)
	if observer != nil {
		executor.WithObserver(observer)
		engineExecutor.WithObserver(observer)
	}

	storage, err := newStorage(ctx, cfg, executor)
	if err != nil {
		closeDBs()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSConversionSubject, nats.Options{
		ResilienceExecutor: executor,
		Concurrency:        cfg.WorkerConcurrency,
	})
	if err != nil {
		closeDBs()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	converter := soffice.New(cfg.SofficeBinary, soffice.Options{
		Timeout:            cfg.ConversionTimeout,
		ResilienceExecutor: engineExecutor,
	})
	inspector := pdfdoc.NewInspector()
	merger := pdfdoc.NewMerger()

	intakeUC := usecase.NewSubmissionIntakeUseCase(subs, versions, storage, conferences, locker, cfg.MaxUploadBytes)
	readerUC := usecase.NewSubmissionQueryUseCase(subs, versions, storage, conferences, xlsx.NewWriter())
	lifecycleUC := usecase.NewLifecycleUseCase(subs, versions, queue, locker)
	conversionUC := usecase.NewConversionUseCase(subs, versions, storage, converter, inspector, locker, cfg.ConversionWorkDir)
	proceedingsUC := usecase.NewProceedingsUseCase(subs, proceedings, conferences, storage, merger, inspector, locker, cfg.CompileTimeout)

	return &App{
		Config:    cfg,
		Queue:     queue,
		Converter: converter,

		IntakeUC:      intakeUC,
		ReaderUC:      readerUC,
		LifecycleUC:   lifecycleUC,
		ConversionUC:  conversionUC,
		ProceedingsUC: proceedingsUC,

		closeFn: func() {
			queue.Close()
			closeDBs()
		},
	}, nil
}

func newStorage(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case config.StorageBackendLocal:
		storage, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, err
		}
		return storage, nil
	case config.StorageBackendMinIO:
		storage, err := objectstore.New(ctx, objectstore.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		}, executor)
		if err != nil {
			return nil, err
		}
		return storage, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
