package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docmeta-crawler/internal/crawler"
)

func sampleRecord(url string) crawler.MetadataRecord {
	rec := crawler.NewMetadataRecord(url)
	rec.ReportName = "Protection Brief"
	rec.Sectors = []string{"Protection"}
	rec.Locations = []string{"Sudan", "Chad"}
	rec.PublishDate = "5 March 2024"
	rec.Downloads = 1234
	rec.DocumentType = "Report"
	rec.DocumentLanguage = "English"
	rec.FileSize = "1.2 MB"
	return rec
}

func TestStoreRecordsUpsertsInTransaction(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "")
	require.NoError(t, err)

	records := crawler.ResultCollection{
		sampleRecord("https://example.org/documents/details/1"),
		sampleRecord("https://example.org/documents/details/2"),
	}
	records[1].Sectors = nil

	mock.ExpectBegin()
	for _, rec := range records {
		sectors := rec.Sectors
		if sectors == nil {
			sectors = []string{}
		}
		mock.ExpectExec("INSERT INTO document_metadata .* ON CONFLICT \\(url\\) DO UPDATE").
			WithArgs(
				rec.URL,
				"run-1",
				rec.ReportName,
				sectors,
				rec.Locations,
				rec.PublishDate,
				rec.UploadDate,
				rec.Downloads,
				rec.DocumentType,
				rec.DocumentLanguage,
				rec.FileSize,
				rec.PopulationGroups,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	require.NoError(t, store.StoreRecords(context.Background(), "run-1", records))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRecordsRollsBackOnError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "public.briefs")
	require.NoError(t, err)

	rec := sampleRecord("https://example.org/documents/details/1")
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO public.briefs").
		WithArgs(
			rec.URL,
			"run-1",
			rec.ReportName,
			rec.Sectors,
			rec.Locations,
			rec.PublishDate,
			rec.UploadDate,
			rec.Downloads,
			rec.DocumentType,
			rec.DocumentLanguage,
			rec.FileSize,
			rec.PopulationGroups,
		).
		WillReturnError(errors.New("constraint violated"))
	mock.ExpectRollback()

	err = store.StoreRecords(context.Background(), "run-1", crawler.ResultCollection{rec})
	require.ErrorContains(t, err, "constraint violated")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRecordsEmptyIsNoop(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "")
	require.NoError(t, err)
	require.NoError(t, store.StoreRecords(context.Background(), "run-1", crawler.ResultCollection{}))
	require.Error(t, store.StoreRecords(context.Background(), "", crawler.ResultCollection{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS document_metadata").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRecordStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRecordStore(context.Background(), Config{})
	require.Error(t, err)

	_, err = NewRecordStore(context.Background(), Config{DSN: "postgres://localhost/db", Table: "bad name"})
	require.Error(t, err)

	_, err = NewRecordStoreWithPool(nil, "")
	require.Error(t, err)
}
