package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nelcapetown/audible-scraper/internal/models"
)

const recordsSchema = `
CREATE TABLE IF NOT EXISTS library_records (
	position        integer     PRIMARY KEY,
	run_id          uuid        NOT NULL,
	title           text        NOT NULL,
	author          text        NOT NULL,
	narrator        text        NOT NULL,
	series          text        NOT NULL DEFAULT '',
	description     text        NOT NULL,
	cover_image_url text        NOT NULL DEFAULT '',
	scraped_at      timestamptz NOT NULL DEFAULT now()
)`

var recordColumns = []string{
	"position", "run_id", "title", "author", "narrator", "series", "description", "cover_image_url",
}

// RecordRepository mirrors the latest record list into Postgres.
type RecordRepository struct {
	db *DB
}

func NewRecordRepository(db *DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, recordsSchema); err != nil {
		return fmt.Errorf("failed to create library_records: %w", err)
	}
	return nil
}

// ReplaceAll swaps the table contents for records in one transaction.
func (r *RecordRepository) ReplaceAll(ctx context.Context, runID uuid.UUID, records []models.Record) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM library_records`); err != nil {
			return fmt.Errorf("failed to clear records: %w", err)
		}

		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"library_records"},
			recordColumns,
			pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
				rec := records[i]
				return []any{i, runID, rec.Title, rec.Author, rec.Narrator, rec.Series, rec.Description, rec.CoverImageURL}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to copy records: %w", err)
		}
		return nil
	})
}

// List returns the mirrored records in their original order.
func (r *RecordRepository) List(ctx context.Context) ([]models.Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT title, author, narrator, series, description, cover_image_url
		FROM library_records
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Record, error) {
		var rec models.Record
		err := row.Scan(&rec.Title, &rec.Author, &rec.Narrator, &rec.Series, &rec.Description, &rec.CoverImageURL)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}
	return records, nil
}
