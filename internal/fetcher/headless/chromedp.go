// Package headless renders document pages in headless Chrome via chromedp so
// script-injected markup becomes queryable.
package headless

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/docmeta-crawler/internal/crawler"
	"github.com/JakeFAU/docmeta-crawler/internal/document"
)

// Config controls the behavior of the headless session.
type Config struct {
	// MaxParallel caps simultaneous tabs; 0 leaves the cap to the caller.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// WaitSelector must be ready before the DOM is captured.
	WaitSelector string
	// Settle is an extra pause after WaitSelector for late script output.
	Settle   time.Duration
	ExecPath string
}

// Session is one browser process shared by every render of a run. It must be
// closed exactly once; Close is idempotent.
type Session struct {
	cfg           Config
	limiter       chan struct{}
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// Open starts the browser and verifies it is usable. A failure here is a
// setup error for the whole run.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Session, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	stop := forwardCancel(ctx, browserCancel)
	err := chromedp.Run(browserCtx)
	stop()
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start headless browser: %w", err)
	}
	logger.Info("headless session opened", zap.Int("max_parallel", cfg.MaxParallel))

	return &Session{
		cfg:           cfg,
		limiter:       limiter,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		logger:        logger,
	}, nil
}

// Close shuts the browser down.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.browserCancel()
	s.allocCancel()
	s.logger.Info("headless session closed")
	return nil
}

// Fetch renders url in a new tab and returns the resulting DOM. The deadline
// of ctx bounds the whole render.
func (s *Session) Fetch(ctx context.Context, url crawler.DocumentURL) (document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &crawler.FetchError{URL: url, Cause: crawler.ErrRendererClosed}
	}

	if err := s.acquire(ctx); err != nil {
		return nil, &crawler.FetchError{URL: url, Cause: err}
	}
	defer s.release()

	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	defer cancelTab()
	taskCtx, cancelTask := context.WithTimeout(tabCtx, s.navTimeout(ctx))
	defer cancelTask()
	stop := forwardCancel(ctx, cancelTask)
	defer stop()

	start := time.Now()
	html, finalURL, err := s.render(taskCtx, url)
	if err != nil {
		return nil, &crawler.FetchError{URL: url, Cause: err}
	}
	doc, err := document.ParseString(html, locationOf(url, finalURL))
	if err != nil {
		return nil, &crawler.FetchError{URL: url, Cause: fmt.Errorf("parse rendered dom: %w", err)}
	}
	s.logger.Debug("page rendered",
		zap.String("url", url),
		zap.Int("bytes", len(html)),
		zap.Duration("dur", time.Since(start)),
	)
	return doc, nil
}

func (s *Session) render(ctx context.Context, url string) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		s.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady(s.waitSelector(), chromedp.ByQuery),
	}
	if s.cfg.Settle > 0 {
		actions = append(actions, chromedp.Sleep(s.cfg.Settle))
	}
	actions = append(actions,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", "", fmt.Errorf("render timed out: %w", err)
		}
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (s *Session) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (s *Session) acquire(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	select {
	case s.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("render slot wait canceled: %w", ctx.Err())
	}
}

func (s *Session) release() {
	if s.limiter == nil {
		return
	}
	select {
	case <-s.limiter:
	default:
	}
}

// navTimeout prefers the caller's deadline, then the configured navigation
// timeout, then 45s.
func (s *Session) navTimeout(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			return remaining
		}
		return time.Millisecond
	}
	if s.cfg.NavigationTimeout > 0 {
		return s.cfg.NavigationTimeout
	}
	return 45 * time.Second
}

func (s *Session) waitSelector() string {
	if strings.TrimSpace(s.cfg.WaitSelector) == "" {
		return "body"
	}
	return s.cfg.WaitSelector
}

func locationOf(requested, final string) string {
	if final == "" || final == "about:blank" {
		return requested
	}
	return final
}

// forwardCancel cancels the chromedp-derived context when parent finishes;
// chromedp contexts descend from the browser, not from the caller.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
