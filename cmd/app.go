package cmd

import (
	"context"
	"fmt"

	gcloudpubsub "cloud.google.com/go/pubsub"
	gcloudstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/arxiv-crawler/internal/arxiv"
	"github.com/JakeFAU/arxiv-crawler/internal/clock/system"
	"github.com/JakeFAU/arxiv-crawler/internal/config"
	"github.com/JakeFAU/arxiv-crawler/internal/crawler"
	"github.com/JakeFAU/arxiv-crawler/internal/logging"
	"github.com/JakeFAU/arxiv-crawler/internal/progress"
	"github.com/JakeFAU/arxiv-crawler/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/arxiv-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/arxiv-crawler/internal/ratelimit"
	"github.com/JakeFAU/arxiv-crawler/internal/storage/gcs"
	"github.com/JakeFAU/arxiv-crawler/internal/storage/local"
	"github.com/JakeFAU/arxiv-crawler/internal/storage/memory"
	"github.com/JakeFAU/arxiv-crawler/internal/storage/postgres"
)

// paperStore is crawler.PaperStore plus the read surface the API serves.
type paperStore interface {
	crawler.PaperStore
	List(ctx context.Context, category string, limit, offset int) ([]crawler.Paper, error)
}

// app holds the wired service graph shared by the crawl and serve commands.
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	scheduler *crawler.Scheduler
	papers    paperStore
	progress  crawler.ProgressStore
	hub       *progress.Hub

	closers []func()
}

// newApp builds the full service graph from configuration. With no database
// DSN configured everything runs against in-memory stores, which is the
// development mode.
func newApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}

	papers, progressStore, err := a.buildStores(ctx)
	if err != nil {
		return nil, err
	}
	a.papers = papers
	a.progress = progressStore

	fetcher, err := a.buildFetcher(ctx)
	if err != nil {
		return nil, err
	}

	limiter, err := ratelimit.New(cfg.Crawler.RequestsPerSecond)
	if err != nil {
		return nil, err
	}
	retryer := crawler.NewRetryer(crawler.RetryConfig{
		MaxRetries: cfg.Crawler.MaxRetries,
		BaseDelay:  cfg.BaseDelay(),
		MaxDelay:   cfg.MaxDelay(),
	}, logger)

	floor, err := cfg.FloorDate()
	if err != nil {
		return nil, err
	}
	traversal, err := crawler.NewTraversal(cfg.Crawler.Categories, floor)
	if err != nil {
		return nil, err
	}

	clk := system.New()
	writer := crawler.NewWriter(papers, clk, logger)

	publisher, err := a.buildPublisher(ctx)
	if err != nil {
		return nil, err
	}

	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("init prometheus sink: %w", err)
	}
	a.hub = progress.NewHub(progress.Config{Logger: logger},
		sinks.NewLogSink(logger), promSink)

	startDate, err := cfg.StartDate()
	if err != nil {
		return nil, err
	}
	scheduler, err := crawler.NewScheduler(
		crawler.SchedulerConfig{
			StartDate:       startDate,
			BatchSize:       cfg.Crawler.BatchSize,
			MaxPagesPerUnit: cfg.Crawler.MaxPagesPerUnit,
			Topic:           cfg.PubSub.TopicName,
		},
		traversal, fetcher, writer, progressStore,
		limiter, retryer, clk, a.hub, publisher, logger,
	)
	if err != nil {
		return nil, err
	}
	a.scheduler = scheduler
	return a, nil
}

func (a *app) buildStores(ctx context.Context) (paperStore, crawler.ProgressStore, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no database DSN configured, using in-memory stores")
		return memory.NewPaperStore(), memory.NewProgressStore(), nil
	}
	poolCfg := postgres.PoolConfig{
		DSN:      a.cfg.DB.DSN,
		MaxConns: a.cfg.DB.MaxConns,
		MinConns: a.cfg.DB.MinConns,
	}
	papers, err := postgres.NewPaperStore(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init paper store: %w", err)
	}
	a.closers = append(a.closers, papers.Close)
	progressStore, err := postgres.NewProgressStore(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init progress store: %w", err)
	}
	a.closers = append(a.closers, progressStore.Close)
	return papers, progressStore, nil
}

func (a *app) buildFetcher(ctx context.Context) (crawler.Fetcher, error) {
	clientCfg := arxiv.Config{
		BaseURL:   a.cfg.Arxiv.BaseURL,
		UserAgent: a.cfg.Arxiv.UserAgent,
		Timeout:   a.cfg.ArxivTimeout(),
	}
	var opts []arxiv.Option
	switch a.cfg.Archive.Provider {
	case "noop":
	case "local":
		store, err := local.New(local.Config{BaseDir: a.cfg.Archive.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		opts = append(opts, arxiv.WithArchive(store))
	case "gcs":
		client, err := gcloudstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Archive.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		opts = append(opts, arxiv.WithArchive(store))
	}
	return arxiv.NewClient(clientCfg, a.logger, opts...), nil
}

func (a *app) buildPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" {
		return nil, nil
	}
	client, err := gcloudpubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub client: %w", err)
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	publisher, err := pubsubpublisher.New(client)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, publisher.Close)
	return publisher, nil
}

// close releases resources in reverse construction order.
func (a *app) close(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}
