// Package app wires configuration into long-lived services and runs the
// pipeline: discover links, write the URL list, render and extract every
// document page, then write the metadata JSON and notify optional sinks.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/docmeta-crawler/internal/clock/system"
	"github.com/JakeFAU/docmeta-crawler/internal/config"
	"github.com/JakeFAU/docmeta-crawler/internal/crawler"
	"github.com/JakeFAU/docmeta-crawler/internal/discovery"
	"github.com/JakeFAU/docmeta-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/docmeta-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/docmeta-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/docmeta-crawler/internal/id/uuid"
	"github.com/JakeFAU/docmeta-crawler/internal/output"
	"github.com/JakeFAU/docmeta-crawler/internal/pipeline"
	"github.com/JakeFAU/docmeta-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/docmeta-crawler/internal/policy/robots"
	"github.com/JakeFAU/docmeta-crawler/internal/progress"
	"github.com/JakeFAU/docmeta-crawler/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/docmeta-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/docmeta-crawler/internal/storage/gcs"
	"github.com/JakeFAU/docmeta-crawler/internal/storage/local"
	"github.com/JakeFAU/docmeta-crawler/internal/storage/postgres"
)

// SessionOpener starts the render session of one run.
type SessionOpener func(ctx context.Context) (crawler.Session, error)

// SeedFetcher downloads a seed document given by URL.
type SeedFetcher interface {
	Get(ctx context.Context, rawURL string) (collyfetcher.Response, error)
}

// Services are the collaborators of a run. Blob and OpenSession are
// required; every other field is optional.
type Services struct {
	Blob        crawler.BlobStore
	OpenSession SessionOpener
	Seeds       SeedFetcher
	Records     crawler.RecordStore
	Publisher   crawler.Publisher
	Policy      crawler.Policy
	Limiter     crawler.Limiter
	Clock       crawler.Clock
	IDs         crawler.IDGenerator
	Sinks       []progress.Sink
}

// App holds the configuration and services shared by the commands.
type App struct {
	cfg     config.Config
	svc     Services
	logger  *zap.Logger
	closers []func() error
}

// New builds an App around explicit services.
func New(cfg config.Config, svc Services, logger *zap.Logger) (*App, error) {
	if svc.Blob == nil {
		return nil, errors.New("blob store is required")
	}
	if svc.OpenSession == nil {
		return nil, errors.New("session opener is required")
	}
	if svc.Clock == nil {
		svc.Clock = system.NewIn(time.Local)
	}
	if svc.IDs == nil {
		svc.IDs = uuid.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{cfg: cfg, svc: svc, logger: logger}, nil
}

// NewFromConfig initializes production services from cfg. It fails fast if
// any configured backend cannot be reached.
func NewFromConfig(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		svc     Services
		closers []func() error
	)
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	switch cfg.Output.Backend {
	case config.BackendGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Output.GCSBucket, Prefix: cfg.Output.Dir})
		if err != nil {
			return fail(fmt.Errorf("init gcs output: %w", err))
		}
		logger.Info("using gcs output", zap.String("bucket", cfg.Output.GCSBucket))
		svc.Blob = store
		closers = append(closers, store.Close)
	default:
		store, err := local.New(local.Config{Dir: cfg.Output.Dir})
		if err != nil {
			return fail(fmt.Errorf("init local output: %w", err))
		}
		logger.Info("using local output", zap.String("dir", cfg.Output.Dir))
		svc.Blob = store
	}

	static := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.Crawler.FetchTimeout,
	}, logger.Named("colly"))
	svc.Seeds = static

	if cfg.Renderer.Mode == config.RendererStatic {
		svc.OpenSession = func(context.Context) (crawler.Session, error) {
			return static, nil
		}
	} else {
		hcfg := headless.Config{
			MaxParallel:       cfg.Crawler.Concurrency,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: cfg.Crawler.FetchTimeout,
			WaitSelector:      cfg.Renderer.WaitSelector,
			Settle:            cfg.Renderer.Settle,
			ExecPath:          cfg.Renderer.ExecPath,
		}
		svc.OpenSession = func(ctx context.Context) (crawler.Session, error) {
			return headless.Open(ctx, hcfg, logger.Named("headless"))
		}
	}

	if cfg.Crawler.RespectRobots {
		svc.Policy = robots.NewEnforcer(nil, cfg.Crawler.UserAgent, logger.Named("robots"))
	}
	if cfg.Crawler.HostQPS > 0 {
		svc.Limiter = ratelimit.New(ratelimit.Config{HostQPS: cfg.Crawler.HostQPS}, logger.Named("ratelimit"))
	}

	if cfg.Postgres.DSN != "" {
		store, err := postgres.NewRecordStore(ctx, postgres.Config{
			DSN:      cfg.Postgres.DSN,
			Table:    cfg.Postgres.Table,
			MaxConns: int32(min(cfg.Crawler.Concurrency, 16)), // #nosec G115 -- bounded above.
		})
		if err != nil {
			return fail(fmt.Errorf("init postgres: %w", err))
		}
		closers = append(closers, func() error { store.Close(); return nil })
		if err := store.EnsureSchema(ctx); err != nil {
			return fail(err)
		}
		svc.Records = store
	}

	if cfg.PubSub.ProjectID != "" {
		pub, err := pubsubpublisher.New(ctx, pubsubpublisher.Config{
			ProjectID:  cfg.PubSub.ProjectID,
			TopicID:    cfg.PubSub.Topic,
			Attributes: map[string]string{"event": "run.completed"},
		})
		if err != nil {
			return fail(fmt.Errorf("init pubsub: %w", err))
		}
		closers = append(closers, pub.Close)
		svc.Publisher = pub
	}

	promSink, err := sinks.NewPrometheusSink(prometheus.NewRegistry(), cfg.Metrics.Textfile)
	if err != nil {
		return fail(err)
	}
	svc.Sinks = []progress.Sink{sinks.NewLogSink(logger.Named("progress")), promSink}

	a, err := New(cfg, svc, logger)
	if err != nil {
		return fail(err)
	}
	a.closers = closers
	return a, nil
}

// Close releases backend clients in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
}

// Discover reads the seed, extracts document links, and writes the URL list.
func (a *App) Discover(ctx context.Context) ([]crawler.DocumentURL, string, error) {
	writer, err := a.writer()
	if err != nil {
		return nil, "", err
	}
	urls, err := a.discover(ctx)
	if err != nil {
		return nil, "", err
	}
	art, err := writer.WriteURLs(ctx, urls)
	if err != nil {
		return nil, "", err
	}
	return urls, art.URI, nil
}

// Run executes the full pipeline and returns its summary. Per-URL failures
// are counted, not returned. If ctx is cancelled the metadata file is not
// written.
func (a *App) Run(ctx context.Context) (summary crawler.RunSummary, err error) {
	summary.StartedAt = a.svc.Clock.Now()
	summary.RunID, err = a.svc.IDs.NewID()
	if err != nil {
		return summary, fmt.Errorf("new run id: %w", err)
	}
	runID, err := progress.ParseRunID(summary.RunID)
	if err != nil {
		return summary, err
	}
	logger := a.logger.With(zap.String("run_id", summary.RunID))

	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")}, a.svc.Sinks...)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if closeErr := hub.Close(closeCtx); closeErr != nil {
			logger.Warn("progress hub close failed", zap.Error(closeErr))
		}
	}()

	writer, err := a.writer()
	if err != nil {
		return summary, err
	}
	urls, err := a.discover(ctx)
	if err != nil {
		return summary, err
	}
	summary.Discovered = len(urls)
	hub.Emit(progress.Event{RunID: runID, TS: a.svc.Clock.Now(), Stage: progress.StageRunStart, Total: len(urls)})

	list, err := writer.WriteURLs(ctx, urls)
	if err != nil {
		return summary, err
	}
	summary.URLListURI = list.URI

	report := pipeline.Report{Records: crawler.ResultCollection{}}
	if len(urls) > 0 {
		report, err = a.crawl(ctx, urls, runID, hub, logger)
		if err != nil {
			return summary, err
		}
	}
	summary.Extracted = len(report.Records)
	summary.Failed = report.Failed
	summary.Batches = report.Batches

	if ctxErr := ctx.Err(); ctxErr != nil {
		return summary, fmt.Errorf("run interrupted: %w", ctxErr)
	}

	meta, err := writer.WriteRecords(ctx, report.Records)
	if err != nil {
		return summary, err
	}
	summary.MetadataURI = meta.URI
	summary.MetadataSHA256 = meta.SHA256
	if a.svc.Records != nil {
		if err := a.svc.Records.StoreRecords(ctx, summary.RunID, report.Records); err != nil {
			return summary, fmt.Errorf("store records: %w", err)
		}
	}

	summary.FinishedAt = a.svc.Clock.Now()
	hub.Emit(progress.Event{
		RunID:   runID,
		TS:      summary.FinishedAt,
		Stage:   progress.StageRunDone,
		Total:   summary.Discovered,
		Records: summary.Extracted,
		Dur:     max(summary.FinishedAt.Sub(summary.StartedAt), 0),
	})

	if a.svc.Publisher != nil {
		if msgID, pubErr := a.svc.Publisher.Publish(ctx, summary); pubErr != nil {
			logger.Warn("run notification failed", zap.Error(pubErr))
		} else {
			logger.Debug("run notification published", zap.String("message_id", msgID))
		}
	}

	logger.Info("run complete",
		zap.Int("discovered", summary.Discovered),
		zap.Int("extracted", summary.Extracted),
		zap.Int("failed", summary.Failed),
		zap.String("url_list", summary.URLListURI),
		zap.String("metadata", summary.MetadataURI),
	)
	return summary, nil
}

// crawl owns the render session: it is opened here and closed exactly once
// before returning, whatever the outcome.
func (a *App) crawl(
	ctx context.Context,
	urls []crawler.DocumentURL,
	runID [16]byte,
	emitter progress.Emitter,
	logger *zap.Logger,
) (pipeline.Report, error) {
	session, err := a.svc.OpenSession(ctx)
	if err != nil {
		return pipeline.Report{}, fmt.Errorf("open render session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("render session close failed", zap.Error(err))
		}
	}()

	sched := pipeline.New(
		session,
		extract.New(extract.DefaultSelectors),
		a.svc.Policy,
		a.svc.Limiter,
		emitter,
		a.svc.Clock,
		pipeline.Config{
			Concurrency:  a.cfg.Crawler.Concurrency,
			FetchTimeout: a.cfg.Crawler.FetchTimeout,
			Schedule:     a.cfg.Crawler.Schedule,
			RunID:        runID,
		},
		logger.Named("pipeline"),
	)
	return sched.Run(ctx, urls), nil
}

func (a *App) writer() (*output.Writer, error) {
	w, err := output.New(a.svc.Blob, a.svc.Clock, a.cfg.Output.Prefix, a.logger.Named("output"))
	if err != nil {
		return nil, fmt.Errorf("init output writer: %w", err)
	}
	return w, nil
}

func (a *App) discover(ctx context.Context) ([]crawler.DocumentURL, error) {
	raw, location, err := a.readSeed(ctx)
	if err != nil {
		return nil, err
	}
	base := a.cfg.Discovery.BaseURL
	if base == "" {
		base = location
	}
	extractor := discovery.NewExtractor(discovery.Config{
		TargetPrefix: a.cfg.Discovery.TargetPrefix,
		BaseURL:      base,
	}, a.logger.Named("discovery"))
	return extractor.ExtractString(ctx, string(raw)), nil
}

// readSeed loads the seed from disk or, for http(s) sources, over HTTP. It
// returns the body and the location to resolve relative links against.
func (a *App) readSeed(ctx context.Context) ([]byte, string, error) {
	src := strings.TrimSpace(a.cfg.Discovery.Seed)
	if isRemote(src) {
		if a.svc.Seeds == nil {
			return nil, "", fmt.Errorf("read seed %s: no seed fetcher configured", src)
		}
		resp, err := a.svc.Seeds.Get(ctx, src)
		if err != nil {
			return nil, "", fmt.Errorf("read seed %s: %w", src, err)
		}
		return resp.Body, resp.URL, nil
	}
	raw, err := os.ReadFile(src) // #nosec G304 -- seed path is operator supplied.
	if err != nil {
		return nil, "", fmt.Errorf("read seed %s: %w", src, err)
	}
	return raw, "", nil
}

func isRemote(src string) bool {
	lower := strings.ToLower(src)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
