// Package output serializes a run's URL list and metadata records to a blob
// store under date-stamped names.
package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/docmeta-crawler/internal/crawler"
	"github.com/JakeFAU/docmeta-crawler/internal/hash/sha256"
)

// Content types of the two artifacts.
const (
	URLListContentType  = "text/plain; charset=utf-8"
	MetadataContentType = "application/json"
)

const dateLayout = "20060102"

// Artifact describes one written output file.
type Artifact struct {
	URI    string
	SHA256 string
	Bytes  int
}

// Writer writes Output 1 (URL list) and Output 2 (metadata JSON) for a run.
// The date stamp is fixed when the Writer is created so both artifacts of a
// run share it.
type Writer struct {
	store  crawler.BlobStore
	prefix string
	date   string
	logger *zap.Logger
}

// New returns a Writer stamping names with clock's current date.
func New(store crawler.BlobStore, clock crawler.Clock, prefix string, logger *zap.Logger) (*Writer, error) {
	if store == nil {
		return nil, errors.New("blob store is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if prefix == "" {
		return nil, errors.New("output prefix is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		store:  store,
		prefix: prefix,
		date:   clock.Now().Format(dateLayout),
		logger: logger,
	}, nil
}

// URLListName is the object name of the URL list, e.g. 20240305-odp-probriefs.txt.
func (w *Writer) URLListName() string {
	return fmt.Sprintf("%s-%s.txt", w.date, w.prefix)
}

// MetadataName is the object name of the metadata JSON.
func (w *Writer) MetadataName() string {
	return fmt.Sprintf("%s-%s-metadata.json", w.date, w.prefix)
}

// WriteURLs writes one URL per line, each newline-terminated. An empty list
// produces an empty file.
func (w *Writer) WriteURLs(ctx context.Context, urls []crawler.DocumentURL) (Artifact, error) {
	var buf bytes.Buffer
	for _, u := range urls {
		buf.WriteString(u)
		buf.WriteByte('\n')
	}
	art, err := w.put(ctx, w.URLListName(), URLListContentType, buf.Bytes())
	if err != nil {
		return Artifact{}, fmt.Errorf("write url list: %w", err)
	}
	w.logger.Info("url list written", zap.String("uri", art.URI), zap.Int("urls", len(urls)))
	return art, nil
}

// WriteRecords writes records as a 2-space indented JSON array. Non-ASCII
// and HTML characters are written as-is; an empty collection is "[]".
func (w *Writer) WriteRecords(ctx context.Context, records crawler.ResultCollection) (Artifact, error) {
	raw, err := EncodeRecords(records)
	if err != nil {
		return Artifact{}, err
	}
	art, err := w.put(ctx, w.MetadataName(), MetadataContentType, raw)
	if err != nil {
		return Artifact{}, fmt.Errorf("write metadata: %w", err)
	}
	w.logger.Info("metadata written",
		zap.String("uri", art.URI),
		zap.Int("records", len(records)),
		zap.String("sha256", art.SHA256),
	)
	return art, nil
}

func (w *Writer) put(ctx context.Context, name, contentType string, data []byte) (Artifact, error) {
	uri, err := w.store.PutObject(ctx, name, contentType, bytes.NewReader(data))
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{URI: uri, SHA256: sha256.Digest(data), Bytes: len(data)}, nil
}

// EncodeRecords renders records in the metadata file format.
func EncodeRecords(records crawler.ResultCollection) ([]byte, error) {
	if records == nil {
		records = crawler.ResultCollection{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
