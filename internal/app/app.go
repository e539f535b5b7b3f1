// Package app initializes and holds the services of one run, acting as a
// dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/apitosql/internal/clock/system"
	"github.com/JakeFAU/apitosql/internal/config"
	collyfetcher "github.com/JakeFAU/apitosql/internal/fetcher/colly"
	"github.com/JakeFAU/apitosql/internal/id/uuid"
	"github.com/JakeFAU/apitosql/internal/metrics"
	"github.com/JakeFAU/apitosql/internal/pipeline"
	publishermemory "github.com/JakeFAU/apitosql/internal/publisher/memory"
	"github.com/JakeFAU/apitosql/internal/publisher/pubsub"
	"github.com/JakeFAU/apitosql/internal/restapi"
	"github.com/JakeFAU/apitosql/internal/storage/gcs"
	"github.com/JakeFAU/apitosql/internal/storage/local"
	"github.com/JakeFAU/apitosql/internal/storage/memory"
	"github.com/JakeFAU/apitosql/internal/storage/postgres"
)

// ErrNoDatabase is returned by Flatten when the run has no Postgres store.
var ErrNoDatabase = errors.New("flatten requires a postgres connection")

const metricsPushTimeout = 10 * time.Second

// Options tweak how services are built.
type Options struct {
	// DryRun keeps documents, GCS archives and notifications in memory
	// instead of writing to Postgres, GCS and Pub/Sub.
	DryRun bool
}

// App holds the shared services of one run.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	runID     string
	clock     *system.Clock
	metrics   *metrics.Metrics
	fetcher   *collyfetcher.Fetcher
	sink      pipeline.Sink
	flattener pipeline.Flattener
	archive   pipeline.BlobStore
	publisher pipeline.Publisher
	closers   []func()
}

// New builds every service cfg asks for and fails fast when one of them
// cannot be reached.
func New(ctx context.Context, cfg config.Config, opts Options, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	runID, err := uuid.NewRunID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	a := &App{
		cfg:     cfg,
		logger:  logger.With(zap.String("run_id", runID)),
		runID:   runID,
		clock:   system.New(),
		metrics: metrics.New(),
	}

	if cfg.Variant != "" {
		a.fetcher = collyfetcher.New(collyfetcher.Config{
			AuthToken:    cfg.API.AuthToken,
			UserAgent:    cfg.HTTP.UserAgent,
			Timeout:      cfg.HTTP.Timeout(),
			MaxRedirects: cfg.HTTP.MaxRedirects,
			MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		}, a.logger.Named("fetcher"), a.metrics)
	}

	if err := a.initSink(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initArchive(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initPublisher(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	a.logger.Info("application services initialized", zap.Bool("dry_run", opts.DryRun))
	return a, nil
}

func (a *App) initSink(ctx context.Context, opts Options) error {
	if opts.DryRun {
		a.logger.Info("dry run: documents are kept in memory")
		a.sink = memory.NewDocumentStore()
		return nil
	}
	a.logger.Info("connecting to postgres", zap.String("table", a.cfg.Sink.Table))
	store, err := postgres.NewDocumentStore(ctx, postgres.DocumentStoreConfig{
		DSN:   a.cfg.DB.DSN(),
		Table: a.cfg.Sink.Table,
	})
	if err != nil {
		return fmt.Errorf("initialize document store: %w", err)
	}
	a.sink = store
	a.flattener = store
	a.closers = append(a.closers, store.Close)
	return nil
}

func (a *App) initArchive(ctx context.Context, opts Options) error {
	backend := a.cfg.Archive.Backend
	if opts.DryRun && backend == "gcs" {
		a.logger.Info("dry run: raw documents are archived in memory")
		backend = "memory"
	}
	switch backend {
	case "":
		return nil
	case "memory":
		a.archive = memory.NewBlobStore()
	case "local":
		store, err := local.New(local.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return fmt.Errorf("initialize local archive: %w", err)
		}
		a.logger.Info("archiving raw documents locally", zap.String("base_dir", a.cfg.Archive.BaseDir))
		a.archive = store
	case "gcs":
		store, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return fmt.Errorf("initialize gcs archive: %w", err)
		}
		a.logger.Info("archiving raw documents to gcs", zap.String("bucket", a.cfg.Archive.GCSBucket))
		a.archive = store
		a.closers = append(a.closers, func() {
			if err := store.Close(); err != nil {
				a.logger.Warn("error closing gcs client", zap.Error(err))
			}
		})
	default:
		return fmt.Errorf("unknown archive backend: %s", backend)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context, opts Options) error {
	if a.cfg.Notify.Topic == "" {
		return nil
	}
	if opts.DryRun {
		a.publisher = publishermemory.New(a.logger.Named("publisher"))
		return nil
	}
	pub, err := pubsub.Open(ctx, a.cfg.Notify.ProjectID)
	if err != nil {
		return fmt.Errorf("initialize publisher: %w", err)
	}
	a.logger.Info("publishing run summaries", zap.String("topic", a.cfg.Notify.Topic))
	a.publisher = pub
	a.closers = append(a.closers, func() {
		if err := pub.Close(); err != nil {
			a.logger.Warn("error closing pubsub client", zap.Error(err))
		}
	})
	return nil
}

// RunID identifies this run in logs, archive paths and notifications.
func (a *App) RunID() string {
	return a.runID
}

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Metrics returns the collectors of this run.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Pipeline assembles the pipeline for the configured variant.
func (a *App) Pipeline(flatten bool) (*pipeline.Pipeline, error) {
	if a.fetcher == nil {
		return nil, fmt.Errorf("no api variant configured")
	}
	endpoints := restapi.NewEndpoints(a.cfg.API.BaseURL, a.cfg.Paging.PageSize)
	var src pipeline.Source
	switch a.cfg.Variant {
	case config.VariantRentalContracts:
		src = pipeline.NewRentalContracts(endpoints, a.clock)
	case config.VariantValuations:
		src = pipeline.NewValuations(endpoints, a.cfg.API.Project)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownVariant, a.cfg.Variant)
	}
	return pipeline.New(pipeline.Deps{
		Fetcher:   a.fetcher,
		Source:    src,
		Sink:      a.sink,
		Archive:   a.archive,
		Publisher: a.publisher,
		Flattener: a.flattener,
		Recorder:  a.metrics,
		Clock:     a.clock,
	}, pipeline.Config{
		RunID:         a.runID,
		PingURL:       endpoints.Ping(),
		MaxEntries:    a.cfg.API.MaxEntries,
		AbortOnError:  a.cfg.Sink.AbortOnError,
		ArchivePrefix: a.cfg.Archive.Prefix,
		NotifyTopic:   a.cfg.Notify.Topic,
		Flatten:       flatten,
	}, a.logger), nil
}

// Run executes the pipeline and pushes the run metrics afterwards, whether
// the run succeeded or not.
func (a *App) Run(ctx context.Context, flatten bool) (pipeline.Result, error) {
	p, err := a.Pipeline(flatten)
	if err != nil {
		return pipeline.Result{}, err
	}
	result, err := p.Run(ctx)
	if err == nil {
		a.metrics.MarkSuccess(a.clock.Now())
	}
	a.pushMetrics(ctx)
	return result, err
}

// Flatten rebuilds the reporting table from the stored documents.
func (a *App) Flatten(ctx context.Context) error {
	if a.flattener == nil {
		return ErrNoDatabase
	}
	start := a.clock.Now()
	if err := a.flattener.Flatten(ctx); err != nil {
		return fmt.Errorf("flatten: %w", err)
	}
	a.logger.Info("flatten finished", zap.Duration("elapsed", a.clock.Since(start)))
	return nil
}

func (a *App) pushMetrics(ctx context.Context) {
	if a.cfg.Metrics.PushgatewayURL == "" {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsPushTimeout)
	defer cancel()
	if err := a.metrics.Push(pushCtx, a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.Job, string(a.cfg.Variant)); err != nil {
		a.logger.Warn("metrics push failed", zap.Error(err))
	}
}

// Close releases services in reverse order of creation and flushes the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	// Sync fails on console sinks such as /dev/stderr; nothing to do about it.
	_ = a.logger.Sync()
}
