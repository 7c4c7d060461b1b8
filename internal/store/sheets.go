// This file implements the Google Sheets dedup-store backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/MauMontenegro/facebook-comment-monitor/internal/models"
)

// appendMaxRetries caps append attempts at 3 (initial try + 2 retries).
const appendMaxRetries = 2

// SheetsStore persists comment rows in a Google Sheets worksheet.
type SheetsStore struct {
	credsFile     string
	spreadsheetID string
	worksheet     string
	svc           *sheets.Service
}

// Compile-time check that SheetsStore implements RowStore.
var _ RowStore = (*SheetsStore)(nil)

// NewSheetsStore connects to the configured spreadsheet and ensures the target
// worksheet exists with a header row.
func NewSheetsStore(ctx context.Context, opts ...Option) (*SheetsStore, error) {
	cfg := Opts{Worksheet: "Comments"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet ID not set")
	}

	s := &SheetsStore{
		credsFile:     cfg.CredentialsFile,
		spreadsheetID: cfg.SpreadsheetID,
		worksheet:     cfg.Worksheet,
	}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	if err := s.ensureWorksheet(ctx); err != nil {
		return nil, err
	}
	slog.Info("SheetsStore: connected", "spreadsheet_id", s.spreadsheetID, "worksheet", s.worksheet)
	return s, nil
}

// connect (re)builds the Sheets service. Called at startup and transparently
// when credentials expire mid-run.
func (s *SheetsStore) connect(ctx context.Context) error {
	var clientOpts []option.ClientOption
	if s.credsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(s.credsFile))
	}
	clientOpts = append(clientOpts, option.WithScopes(sheets.SpreadsheetsScope))

	svc, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize sheets service: %w", err)
	}
	s.svc = svc
	return nil
}

// ensureWorksheet creates the worksheet with a header row when it is missing.
func (s *SheetsStore) ensureWorksheet(ctx context.Context) error {
	spreadsheet, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to open spreadsheet %s: %w", s.spreadsheetID, err)
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == s.worksheet {
			slog.Debug("SheetsStore.ensureWorksheet: using existing worksheet", "worksheet", s.worksheet)
			return nil
		}
	}

	slog.Info("SheetsStore.ensureWorksheet: creating worksheet", "worksheet", s.worksheet)
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: s.worksheet},
			},
		}},
	}
	if _, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to create worksheet %s: %w", s.worksheet, err)
	}

	header := make([]interface{}, 0, 7)
	for _, col := range models.RowHeader() {
		header = append(header, col)
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{header}}
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, s.rangeRef("A1:G1"), vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write worksheet header: %w", err)
	}
	return nil
}

// rangeRef quotes the worksheet title into an A1 range reference.
func (s *SheetsStore) rangeRef(cells string) string {
	return fmt.Sprintf("'%s'!%s", s.worksheet, cells)
}

// ExistingCommentIDs reads the comment_id column (skipping the header) into a set.
func (s *SheetsStore) ExistingCommentIDs(ctx context.Context) (map[string]struct{}, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rangeRef("A2:A")).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read existing comment ids: %w", err)
	}
	ids := make(map[string]struct{}, len(resp.Values))
	for _, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if id, ok := row[0].(string); ok && id != "" {
			ids[id] = struct{}{}
		}
	}
	slog.Debug("SheetsStore.ExistingCommentIDs: loaded", "count", len(ids))
	return ids, nil
}

// AppendRows appends the rows with capped exponential backoff. On credential
// expiry the service is rebuilt before the next attempt.
func (s *SheetsStore) AppendRows(ctx context.Context, rows []models.CommentRow) error {
	if len(rows) == 0 {
		return nil
	}

	values := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		cells := make([]interface{}, 0, 7)
		for _, v := range row.Values() {
			cells = append(cells, v)
		}
		values = append(values, cells)
	}

	operation := func() error {
		vr := &sheets.ValueRange{Values: values}
		_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.rangeRef("A1"), vr).
			ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		if err == nil {
			return nil
		}
		if isAuthExpired(err) {
			slog.Warn("SheetsStore.AppendRows: credentials expired, reconnecting", "error", err)
			if connErr := s.connect(ctx); connErr != nil {
				slog.Error("SheetsStore.AppendRows: reconnect failed", "error", connErr)
			}
		}
		return fmt.Errorf("append rows failed: %w", err)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), appendMaxRetries), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return err
	}
	slog.Debug("SheetsStore.AppendRows: appended", "count", len(rows))
	return nil
}

func (s *SheetsStore) Close() error { return nil }

// isAuthExpired reports whether the API error indicates expired or invalid
// credentials rather than a generic failure.
func isAuthExpired(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 401 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "invalid_grant") || strings.Contains(msg, "token expired")
}
