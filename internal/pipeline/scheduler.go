// Package pipeline drives fetch+extract over a discovered URL set with a
// fixed concurrency ceiling, isolating per-URL failures and accumulating the
// successful records of one run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/docmeta-crawler/internal/clock/system"
	"github.com/JakeFAU/docmeta-crawler/internal/crawler"
	"github.com/JakeFAU/docmeta-crawler/internal/progress"
)

// Scheduling policies.
const (
	Batched   = "batched"
	Streaming = "streaming"
)

const (
	defaultConcurrency  = 10
	defaultFetchTimeout = 30 * time.Second
)

// ErrDisallowed marks URLs refused by the fetch policy.
var ErrDisallowed = errors.New("fetch disallowed by policy")

// Config controls Scheduler behavior.
type Config struct {
	// Concurrency is both the batch size and the in-flight ceiling.
	Concurrency  int
	FetchTimeout time.Duration
	// Schedule selects Batched (default) or Streaming.
	Schedule string
	// RunID tags emitted progress events.
	RunID [16]byte
}

// Report summarizes one scheduler run.
type Report struct {
	Records   crawler.ResultCollection
	Submitted int
	Failed    int
	Batches   int
}

// Scheduler runs the per-URL pipeline: policy, rate limit, fetch, extract.
type Scheduler struct {
	fetcher   crawler.Fetcher
	extractor crawler.Extractor
	policy    crawler.Policy
	limiter   crawler.Limiter
	emitter   progress.Emitter
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Scheduler. policy, limiter, emitter, and clock are optional.
func New(
	fetcher crawler.Fetcher,
	extractor crawler.Extractor,
	policy crawler.Policy,
	limiter crawler.Limiter,
	emitter progress.Emitter,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.Schedule == "" {
		cfg.Schedule = Batched
	}
	if emitter == nil {
		emitter = progress.Nop{}
	}
	if clock == nil {
		clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		fetcher:   fetcher,
		extractor: extractor,
		policy:    policy,
		limiter:   limiter,
		emitter:   emitter,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run processes urls and returns the accumulated records. Per-URL failures
// are logged and counted but never abort the run. Once ctx is done no
// further work is dispatched.
func (s *Scheduler) Run(ctx context.Context, urls []crawler.DocumentURL) Report {
	report := Report{Records: crawler.ResultCollection{}}
	if len(urls) == 0 {
		return report
	}
	s.logger.Info("scheduling document pages",
		zap.Int("urls", len(urls)),
		zap.Int("concurrency", s.cfg.Concurrency),
		zap.String("schedule", s.cfg.Schedule),
	)
	if s.cfg.Schedule == Streaming {
		s.runStreaming(ctx, urls, &report)
	} else {
		s.runBatched(ctx, urls, &report)
	}
	s.logger.Info("scheduling finished",
		zap.Int("submitted", report.Submitted),
		zap.Int("records", len(report.Records)),
		zap.Int("failed", report.Failed),
		zap.Int("batches", report.Batches),
	)
	return report
}

// runBatched dispatches fixed-size chunks with a barrier between them.
func (s *Scheduler) runBatched(ctx context.Context, urls []crawler.DocumentURL, report *Report) {
	size := s.cfg.Concurrency
	for start := 0; start < len(urls); start += size {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("run cancelled; remaining batches skipped",
				zap.Int("remaining", len(urls)-start), zap.Error(err))
			return
		}
		end := min(start+size, len(urls))
		batch := report.Batches + 1
		began := time.Now()

		outcomes := make(chan crawler.Outcome, end-start)
		var wg sync.WaitGroup
		for _, u := range urls[start:end] {
			wg.Go(func() {
				outcomes <- s.process(ctx, u, batch)
			})
		}
		go func() {
			wg.Wait()
			close(outcomes)
		}()
		for outcome := range outcomes {
			report.Submitted++
			s.collect(report, outcome)
		}

		report.Batches = batch
		s.checkpoint(batch, len(report.Records), time.Since(began))
	}
}

// runStreaming keeps up to Concurrency fetches in flight with no barrier.
func (s *Scheduler) runStreaming(ctx context.Context, urls []crawler.DocumentURL, report *Report) {
	size := s.cfg.Concurrency
	var (
		g     errgroup.Group
		mu    sync.Mutex
		began = time.Now()
	)
	g.SetLimit(size)
	for i, u := range urls {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("run cancelled; remaining pages skipped",
				zap.Int("remaining", len(urls)-i), zap.Error(err))
			break
		}
		g.Go(func() error {
			outcome := s.process(ctx, u, i/size+1)
			mu.Lock()
			defer mu.Unlock()
			report.Submitted++
			s.collect(report, outcome)
			if report.Submitted%size == 0 {
				report.Batches++
				s.checkpoint(report.Batches, len(report.Records), time.Since(began))
				began = time.Now()
			}
			return nil
		})
	}
	_ = g.Wait()
	if report.Submitted%size != 0 {
		report.Batches++
		s.checkpoint(report.Batches, len(report.Records), time.Since(began))
	}
}

func (s *Scheduler) collect(report *Report, outcome crawler.Outcome) {
	if outcome.OK() {
		report.Records = append(report.Records, outcome.Record)
		return
	}
	report.Failed++
}

func (s *Scheduler) checkpoint(batch, records int, dur time.Duration) {
	s.logger.Info("batch complete",
		zap.Int("batch", batch),
		zap.Int("records_so_far", records),
		zap.Duration("dur", dur),
	)
	s.emitter.Emit(progress.Event{
		RunID:   s.cfg.RunID,
		TS:      s.clock.Now(),
		Stage:   progress.StageBatchDone,
		Batch:   batch,
		Records: records,
		Dur:     dur,
	})
}

// process runs one URL end to end and reports its outcome.
func (s *Scheduler) process(ctx context.Context, u crawler.DocumentURL, batch int) crawler.Outcome {
	began := time.Now()
	record, err := s.handleURL(ctx, u)
	outcome := crawler.Outcome{URL: u, Record: record, Err: err, Duration: time.Since(began)}

	evt := progress.Event{
		RunID: s.cfg.RunID,
		TS:    s.clock.Now(),
		Stage: progress.StagePageDone,
		Site:  siteOf(u),
		URL:   u,
		Batch: batch,
		Dur:   outcome.Duration,
	}
	if err != nil {
		kind := crawler.FailureKind(err)
		s.logger.Error("document page failed",
			zap.String("url", u),
			zap.String("stage", kind),
			zap.Error(err),
		)
		evt.Stage = progress.StagePageFailed
		evt.Failure = kind
		evt.Note = err.Error()
	} else {
		s.logger.Debug("document page extracted", zap.String("url", u), zap.Duration("dur", outcome.Duration))
	}
	s.emitter.Emit(evt)
	return outcome
}

func (s *Scheduler) handleURL(ctx context.Context, u crawler.DocumentURL) (crawler.MetadataRecord, error) {
	if s.policy != nil && !s.policy.Allowed(ctx, u) {
		return crawler.MetadataRecord{}, &crawler.FetchError{URL: u, Cause: ErrDisallowed}
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, u); err != nil {
			return crawler.MetadataRecord{}, &crawler.FetchError{URL: u, Cause: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()
	doc, err := s.fetcher.Fetch(fetchCtx, u)
	if err != nil {
		var fetchErr *crawler.FetchError
		if errors.As(err, &fetchErr) {
			return crawler.MetadataRecord{}, err
		}
		return crawler.MetadataRecord{}, &crawler.FetchError{URL: u, Cause: err}
	}

	record, err := s.extractor.Extract(doc, u)
	if err != nil {
		var extractErr *crawler.ExtractionError
		if errors.As(err, &extractErr) {
			return crawler.MetadataRecord{}, err
		}
		return crawler.MetadataRecord{}, &crawler.ExtractionError{URL: u, Cause: err}
	}
	return record, nil
}

func siteOf(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return "unknown"
	}
	return parsed.Hostname()
}
