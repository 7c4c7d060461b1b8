// This file implements the Postgres dedup-store backend.
//
// Unlike the spreadsheet backend, the comment_id primary key makes dedup a hard
// guarantee: concurrent monitors racing past each other's pre-flush re-read
// still cannot insert the same row twice.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/MauMontenegro/facebook-comment-monitor/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists comment rows in a Postgres table keyed by comment ID.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements RowStore.
var _ RowStore = (*PostgresStore)(nil)

// NewPostgresStore opens the database and runs migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore: connected and migrated")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) ExistingCommentIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT comment_id FROM comment_rows`)
	if err != nil {
		return nil, fmt.Errorf("failed to query comment ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan comment id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comment ids: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) AppendRows(ctx context.Context, rows []models.CommentRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin append transaction: %w", err)
	}
	defer tx.Rollback()

	for _, row := range rows {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO comment_rows (comment_id, user_id, user_name, created_time, message, attachment_url, detected_time)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (comment_id) DO NOTHING`,
			row.CommentID, row.UserID, row.UserName, row.CreatedTime, row.Message, row.AttachmentURL, row.DetectedTime,
		)
		if err != nil {
			return fmt.Errorf("failed to insert row %s: %w", row.CommentID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit append transaction: %w", err)
	}
	slog.Debug("PostgresStore.AppendRows: appended", "count", len(rows))
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
