// Package postgres persists extracted document metadata in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/docmeta-crawler/internal/crawler"
)

const defaultTable = "document_metadata"

var validTableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Config controls the Postgres connection pool used for metadata rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// RecordStore upserts MetadataRecords keyed by URL.
type RecordStore struct {
	pool  pool
	table string
}

// NewRecordStore connects to Postgres using cfg.
func NewRecordStore(ctx context.Context, cfg Config) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres.dsn is required")
	}
	table, err := tableOrDefault(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RecordStore{pool: p, table: table}, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(p pool, table string) (*RecordStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	table, err := tableOrDefault(table)
	if err != nil {
		return nil, err
	}
	return &RecordStore{pool: p, table: table}, nil
}

func tableOrDefault(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the metadata table when it does not exist.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	url               TEXT PRIMARY KEY,
	run_id            TEXT NOT NULL,
	report_name       TEXT NOT NULL DEFAULT '',
	sectors           TEXT[] NOT NULL DEFAULT '{}',
	locations         TEXT[] NOT NULL DEFAULT '{}',
	publish_date      TEXT NOT NULL DEFAULT '',
	upload_date       TEXT NOT NULL DEFAULT '',
	downloads         INTEGER NOT NULL DEFAULT 0,
	document_type     TEXT NOT NULL DEFAULT '',
	document_language TEXT NOT NULL DEFAULT '',
	file_size         TEXT NOT NULL DEFAULT '',
	population_groups TEXT[] NOT NULL DEFAULT '{}',
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure metadata table: %w", err)
	}
	return nil
}

// StoreRecords upserts every record in one transaction. A later run
// overwrites the row of a URL it extracted again.
func (s *RecordStore) StoreRecords(ctx context.Context, runID string, records crawler.ResultCollection) (err error) {
	if s == nil || s.pool == nil {
		return errors.New("record store is not configured")
	}
	if runID == "" {
		return errors.New("run id is required")
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin metadata tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := fmt.Sprintf(`
INSERT INTO %s (
	url,
	run_id,
	report_name,
	sectors,
	locations,
	publish_date,
	upload_date,
	downloads,
	document_type,
	document_language,
	file_size,
	population_groups,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now()
)
ON CONFLICT (url) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	report_name = EXCLUDED.report_name,
	sectors = EXCLUDED.sectors,
	locations = EXCLUDED.locations,
	publish_date = EXCLUDED.publish_date,
	upload_date = EXCLUDED.upload_date,
	downloads = EXCLUDED.downloads,
	document_type = EXCLUDED.document_type,
	document_language = EXCLUDED.document_language,
	file_size = EXCLUDED.file_size,
	population_groups = EXCLUDED.population_groups,
	updated_at = now()`, s.table)

	for _, rec := range records {
		if _, err = tx.Exec(ctx, query,
			rec.URL,
			runID,
			rec.ReportName,
			nonNil(rec.Sectors),
			nonNil(rec.Locations),
			rec.PublishDate,
			rec.UploadDate,
			rec.Downloads,
			rec.DocumentType,
			rec.DocumentLanguage,
			rec.FileSize,
			nonNil(rec.PopulationGroups),
		); err != nil {
			return fmt.Errorf("upsert %s: %w", rec.URL, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit metadata tx: %w", err)
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
