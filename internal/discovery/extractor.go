// Package discovery finds document links inside the tables of a static seed
// page. It never renders and never fails: an unreadable document degrades to
// an empty URL set and a logged diagnostic.
package discovery

import (
	"context"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/docmeta-crawler/internal/crawler"
	"github.com/JakeFAU/docmeta-crawler/internal/document"
)

// Config controls link discovery.
type Config struct {
	// TargetPrefix is the absolute URL prefix every kept link must start with.
	TargetPrefix string
	// BaseURL is the location of the seed document, used to resolve relative
	// hrefs. It may be empty for seeds that only carry absolute links.
	BaseURL string
}

// Extractor pulls document URLs out of <table> elements.
type Extractor struct {
	cfg    Config
	logger *zap.Logger
}

// NewExtractor builds an Extractor.
func NewExtractor(cfg Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// Extract returns the distinct matching links of every table in r, in
// first-seen order.
func (e *Extractor) Extract(ctx context.Context, r io.Reader) []crawler.DocumentURL {
	doc, err := document.Parse(r, e.cfg.BaseURL)
	if err != nil {
		e.logger.Warn("seed document unreadable; no links discovered",
			zap.Error(&crawler.DiscoveryError{Cause: err}))
		return []crawler.DocumentURL{}
	}
	return e.fromDocument(ctx, doc)
}

// ExtractString is Extract over an in-memory document.
func (e *Extractor) ExtractString(ctx context.Context, html string) []crawler.DocumentURL {
	return e.Extract(ctx, strings.NewReader(html))
}

func (e *Extractor) fromDocument(ctx context.Context, doc document.Document) []crawler.DocumentURL {
	tables := doc.Find("table")
	seen := make(map[string]struct{})
	urls := make([]crawler.DocumentURL, 0)
	for i, table := range tables {
		if ctx.Err() != nil {
			e.logger.Warn("link discovery interrupted", zap.Int("tables_scanned", i), zap.Error(ctx.Err()))
			break
		}
		kept := 0
		for _, link := range table.AbsoluteLinks() {
			if !e.matches(link) {
				continue
			}
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}
			urls = append(urls, link)
			kept++
		}
		e.logger.Debug("table scanned", zap.Int("table", i), zap.Int("kept", kept))
	}
	e.logger.Info("link discovery finished",
		zap.Int("tables", len(tables)),
		zap.Int("urls", len(urls)),
	)
	return urls
}

func (e *Extractor) matches(link string) bool {
	if e.cfg.TargetPrefix == "" {
		return false
	}
	return strings.HasPrefix(link, e.cfg.TargetPrefix)
}
