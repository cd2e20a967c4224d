package crawler

import (
	"context"
	"io"
	"time"

	"github.com/JakeFAU/docmeta-crawler/internal/document"
)

// Fetcher retrieves and renders a URL into a queryable document. The
// per-fetch timeout is carried by ctx.
type Fetcher interface {
	Fetch(ctx context.Context, url DocumentURL) (document.Document, error)
}

// Session is a Fetcher that owns a resource which must be released once.
type Session interface {
	Fetcher
	Close() error
}

// Extractor turns one rendered page into a MetadataRecord.
type Extractor interface {
	Extract(doc document.Document, source DocumentURL) (MetadataRecord, error)
}

// Policy decides whether a URL may be fetched at all (robots.txt, allow lists).
type Policy interface {
	Allowed(ctx context.Context, url DocumentURL) bool
}

// Limiter paces fetches, typically per host.
type Limiter interface {
	Wait(ctx context.Context, url DocumentURL) error
}

// BlobStore writes output artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// RecordStore persists extracted records in a queryable store.
type RecordStore interface {
	StoreRecords(ctx context.Context, runID string, records ResultCollection) error
	Close()
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
