// Package store provides dedup-store backends for uploaded comment rows.
//
// The store is the system of record for "already uploaded" comment IDs. It is
// read fully at monitor start and re-read immediately before each flush, so
// multiple monitor instances can share one store with best-effort dedup.
package store

import (
	"context"
	"sync"

	"github.com/MauMontenegro/facebook-comment-monitor/internal/models"
)

// RowStore is the dedup-store contract consumed by the monitor.
type RowStore interface {
	// ExistingCommentIDs returns the full set of comment IDs already persisted.
	ExistingCommentIDs(ctx context.Context) (map[string]struct{}, error)
	// AppendRows appends the given rows in order.
	AppendRows(ctx context.Context, rows []models.CommentRow) error
	// Close releases any resources held by the store.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	// CredentialsFile is the path to a Google service-account JSON key.
	CredentialsFile string
	// SpreadsheetID identifies the target Google spreadsheet.
	SpreadsheetID string
	// Worksheet is the worksheet title inside the spreadsheet.
	Worksheet string
	// PostgresDSN is the connection string for the Postgres backend.
	PostgresDSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithCredentialsFile sets the Google service-account credentials file path.
func WithCredentialsFile(path string) Option {
	return func(o *Opts) { o.CredentialsFile = path }
}

// WithSpreadsheetID sets the target spreadsheet ID.
func WithSpreadsheetID(id string) Option {
	return func(o *Opts) { o.SpreadsheetID = id }
}

// WithWorksheet sets the worksheet title.
func WithWorksheet(title string) Option {
	return func(o *Opts) { o.Worksheet = title }
}

// WithPostgresDSN sets the Postgres connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.PostgresDSN = dsn }
}

// InMemoryStore keeps rows in memory. It backs tests and the degraded mode
// where no remote store is configured.
type InMemoryStore struct {
	mu   sync.Mutex
	rows []models.CommentRow
	ids  map[string]struct{}
}

// Compile-time check that InMemoryStore implements RowStore.
var _ RowStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{ids: make(map[string]struct{})}
}

func (s *InMemoryStore) ExistingCommentIDs(ctx context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[string]struct{}, len(s.ids))
	for id := range s.ids {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (s *InMemoryStore) AppendRows(ctx context.Context, rows []models.CommentRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.rows = append(s.rows, row)
		s.ids[row.CommentID] = struct{}{}
	}
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

// Rows returns a copy of all appended rows in order.
func (s *InMemoryStore) Rows() []models.CommentRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CommentRow, len(s.rows))
	copy(out, s.rows)
	return out
}
