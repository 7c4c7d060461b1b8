// Package archive provides the append-only local record of comment rows and
// post snapshots.
//
// Three artifacts live under the archive directory: a CSV file mirroring the
// uploaded row tuples, JSON snapshots of the monitored post's content, and a
// SQLite log of full comment records.
package archive

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/MauMontenegro/facebook-comment-monitor/internal/models"
)

const (
	// DefaultDirPermissions defines the default permissions for archive directories.
	DefaultDirPermissions = 0755

	csvFileName = "all_comments.csv"
	dbFileName  = "all_comments.db"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Archive is the local append-only storage for one monitor deployment.
type Archive struct {
	dir     string
	csvPath string
	db      *sql.DB
}

// New opens (creating if needed) the archive rooted at dir.
func New(dir string) (*Archive, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive directory not set")
	}
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFileName)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open comment log: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("comment log ping failed: %w", err)
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run comment log migrations: %w", err)
	}

	slog.Debug("archive.New: archive opened", "dir", dir)
	return &Archive{
		dir:     dir,
		csvPath: filepath.Join(dir, csvFileName),
		db:      db,
	}, nil
}

// AppendCommentRow appends one row to the CSV file, writing the header first
// when the file is new.
func (a *Archive) AppendCommentRow(row models.CommentRow) error {
	_, statErr := os.Stat(a.csvPath)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(a.csvPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open csv archive: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(models.RowHeader()); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
	}
	if err := w.Write(row.Values()); err != nil {
		return fmt.Errorf("failed to write csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv archive: %w", err)
	}
	return nil
}

// LogComment records the full comment in the SQLite log. Re-logging the same
// comment ID overwrites the previous record.
func (a *Archive) LogComment(c models.Comment, detectedTime string) error {
	_, err := a.db.Exec(
		`INSERT OR REPLACE INTO comments (comment_id, user_id, user_name, created_time, message, attachment_url, detected_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.From.ID, c.From.Name, c.CreatedTime, c.Message, c.AttachmentURL(), detectedTime,
	)
	if err != nil {
		return fmt.Errorf("failed to log comment %s: %w", c.ID, err)
	}
	return nil
}

// LoggedCommentIDs returns the set of comment IDs present in the local log.
func (a *Archive) LoggedCommentIDs() (map[string]struct{}, error) {
	rows, err := a.db.Query(`SELECT comment_id FROM comments`)
	if err != nil {
		return nil, fmt.Errorf("failed to query comment log: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan comment log row: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comment log: %w", err)
	}
	return ids, nil
}

// snapshotPath returns the JSON snapshot path for a post.
func (a *Archive) snapshotPath(postID string) string {
	return filepath.Join(a.dir, fmt.Sprintf("post_content_%s.json", postID))
}

// SavePostSnapshot writes the post content snapshot for the given post.
func (a *Archive) SavePostSnapshot(postID string, content models.PostContent) error {
	data, err := json.MarshalIndent(content, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal post snapshot: %w", err)
	}
	if err := os.WriteFile(a.snapshotPath(postID), data, 0644); err != nil {
		return fmt.Errorf("failed to write post snapshot: %w", err)
	}
	slog.Info("Archive.SavePostSnapshot: post content saved", "post_id", postID)
	return nil
}

// LoadPostSnapshot reads the stored post content for the given post. The
// second return value is false when no snapshot exists or it cannot be parsed.
func (a *Archive) LoadPostSnapshot(postID string) (models.PostContent, bool) {
	data, err := os.ReadFile(a.snapshotPath(postID))
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("Archive.LoadPostSnapshot: failed to read snapshot", "error", err, "post_id", postID)
		}
		return models.PostContent{}, false
	}
	var content models.PostContent
	if err := json.Unmarshal(data, &content); err != nil {
		slog.Error("Archive.LoadPostSnapshot: malformed snapshot", "error", err, "post_id", postID)
		return models.PostContent{}, false
	}
	return content, true
}

// Close closes the SQLite comment log.
func (a *Archive) Close() error {
	return a.db.Close()
}
