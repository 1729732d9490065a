package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/semmidev/backdrop/internal/adapter/compressor"
	"github.com/semmidev/backdrop/internal/adapter/database"
	"github.com/semmidev/backdrop/internal/adapter/notify"
	"github.com/semmidev/backdrop/internal/adapter/producer"
	"github.com/semmidev/backdrop/internal/adapter/storage"
	"github.com/semmidev/backdrop/internal/config"
	"github.com/semmidev/backdrop/internal/domain"
	"github.com/semmidev/backdrop/internal/infrastructure/console"
	"github.com/semmidev/backdrop/internal/infrastructure/logger"
	"github.com/semmidev/backdrop/internal/infrastructure/scheduler"
	"github.com/semmidev/backdrop/internal/usecase"
)

type App struct {
	config       *config.Config
	logger       *logger.Logger
	reporter     *console.Reporter
	store        domain.RemoteStore
	sweeper      *usecase.Sweeper
	orchestrator *usecase.Orchestrator
	scheduler    *scheduler.Scheduler
}

// Option adjusts how New wires the application.
type Option func(*options)

type options struct {
	out   io.Writer
	store domain.RemoteStore
}

// WithOutput sends console report lines to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithStore uses store instead of building one from the remote config.
func WithStore(store domain.RemoteStore) Option {
	return func(o *options) { o.store = store }
}

func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	log, err := logger.New(cfg.App.Name, cfg.App.LogLevel, cfg.App.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	reporter := console.NewReporter(o.out)

	store := o.store
	if store == nil {
		store, err = storage.New(ctx, &cfg.Remote)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize %s remote: %w", cfg.Remote.Type, err)
		}
	}
	log.Infof("Remote %s, upload path %s", store.Name(), cfg.UploadDir())

	var databases []domain.Database
	for _, dbCfg := range cfg.Producer.EnabledDatabases() {
		db, err := database.New(&dbCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database %s: %w", dbCfg.Name, err)
		}
		databases = append(databases, db)
	}
	log.Infof("Found %d database(s) and %d directory(ies) to back up", len(databases), len(cfg.Producer.Directories))

	prod, err := producer.New(&cfg.Producer, databases, compressor.NewGzip(0), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize producer: %w", err)
	}

	dispatcher, err := notify.NewDispatcher(&cfg.Notify)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize notifiers: %w", err)
	}
	if dispatcher.Len() > 0 {
		log.Infof("%d notifier(s) enabled", dispatcher.Len())
	}

	sweeper := usecase.NewSweeper(store, log, reporter)
	orchestrator := usecase.NewOrchestrator(
		cfg.Producer.Name,
		prod,
		store,
		sweeper,
		cfg.RetentionPolicy(),
		cfg.UploadDir(),
		dispatcher,
		log,
		reporter,
	)

	return &App{
		config:       cfg,
		logger:       log,
		reporter:     reporter,
		store:        store,
		sweeper:      sweeper,
		orchestrator: orchestrator,
		scheduler:    scheduler.New(log),
	}, nil
}

// RunOnce executes the whole pipeline a single time.
func (a *App) RunOnce(ctx context.Context) usecase.Result {
	return a.orchestrator.Run(ctx)
}

// DeleteJunk runs only the retention sweep over the upload path.
func (a *App) DeleteJunk(ctx context.Context) (*usecase.SweepReport, error) {
	report, err := a.sweeper.Run(ctx, a.config.UploadDir(), a.config.RetentionPolicy())
	if err != nil {
		a.logger.Errorf("Retention sweep failed: %v", err)
		a.reporter.Failure("could not list %s, no expired files deleted: %v", a.config.UploadDir(), err)
		return nil, err
	}

	a.logger.Infof("Retention sweep done: %d listed, %d deleted, %d failed",
		report.Listed, len(report.Deleted), len(report.Failed))
	return report, nil
}

// RunDaemon runs the pipeline on the configured schedule until ctx is done.
func (a *App) RunDaemon(ctx context.Context) error {
	spec := a.config.Schedule.Cron
	if err := a.scheduler.AddJob(a.config.Producer.Name, spec, a.orchestrator.Execute); err != nil {
		return fmt.Errorf("failed to schedule backup: %w", err)
	}

	// The start-up run finishes before the first tick can fire.
	if a.config.Schedule.RunOnStart {
		a.logger.Infof("Running backup on start")
		_ = a.orchestrator.Execute(ctx)
	}

	a.scheduler.Start()
	a.logger.Infof("Scheduler started: %s", spec)

	<-ctx.Done()
	return nil
}

func (a *App) Shutdown() {
	a.logger.Infof("Shutting down application...")
	a.scheduler.Stop()
	a.logger.Close()
}
