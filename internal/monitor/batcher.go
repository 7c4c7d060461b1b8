package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MauMontenegro/facebook-comment-monitor/internal/models"
)

// maybeFlush uploads the pending batch to the dedup store when a trigger is
// met: the batch reached the size threshold, force is set, or the upload
// interval elapsed with a non-empty batch. Immediately before writing, the
// existing-ID set is re-read from the store and the batch filtered against it,
// so rows written by a concurrent monitor instance are not duplicated. This is
// a best-effort guard, not a transaction; two instances can still race between
// re-read and write.
//
// Returns true when a flush occurred (including the case where filtering left
// nothing to write). On failure the batch is retained for the next attempt.
func (m *Monitor) maybeFlush(ctx context.Context, force bool) (bool, error) {
	if len(m.batch) == 0 {
		return false, nil
	}

	elapsed := m.now().Sub(m.lastUpload)
	if len(m.batch) < m.cfg.BatchSize && !force && elapsed < m.cfg.UploadInterval {
		return false, nil
	}

	existing, err := m.rowStore.ExistingCommentIDs(ctx)
	if err != nil {
		return false, fmt.Errorf("pre-flush id read failed: %w", err)
	}

	filtered := make([]models.CommentRow, 0, len(m.batch))
	for _, row := range m.batch {
		if _, dup := existing[row.CommentID]; dup {
			slog.Debug("Monitor.maybeFlush: dropping row already present in store", "comment_id", row.CommentID)
			continue
		}
		filtered = append(filtered, row)
	}

	if len(filtered) == 0 {
		// A concurrent writer already covered every pending row; this still
		// counts as a flush.
		slog.Info("Monitor.maybeFlush: all pending rows already uploaded elsewhere", "dropped", len(m.batch))
		m.batch = nil
		m.lastUpload = m.now()
		return true, nil
	}

	slog.Info("Monitor.maybeFlush: uploading batch", "rows", len(filtered), "dropped", len(m.batch)-len(filtered))
	if err := m.rowStore.AppendRows(ctx, filtered); err != nil {
		return false, fmt.Errorf("batch upload failed: %w", err)
	}

	slog.Info("Monitor.maybeFlush: batch uploaded", "rows", len(filtered))
	m.batch = nil
	m.lastUpload = m.now()
	return true, nil
}
