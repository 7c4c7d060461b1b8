package monitor

import (
	"context"
	"log/slog"

	"github.com/MauMontenegro/facebook-comment-monitor/internal/models"
)

// fetchAndProcess drives one full pagination pass over the post's comments.
// Each previously unseen, attachment-bearing comment is archived locally and
// buffered for upload; the batch is flushed mid-sweep whenever it reaches the
// size threshold so peak memory stays bounded under high comment volume.
// Returns the number of newly processed comments.
func (m *Monitor) fetchAndProcess(ctx context.Context) (int, error) {
	newCount := 0
	after := ""

	for {
		comments, next := m.source.GetComments(ctx, m.postID, m.cfg.PageSize, after)
		if len(comments) == 0 {
			break
		}

		for id, comment := range comments {
			if _, known := m.knownIDs[id]; known {
				continue
			}
			if !comment.HasAttachment() {
				// Attachment-less comments are out of scope for the receipt
				// pipeline: logged, never persisted, never counted.
				slog.Debug("Monitor.fetchAndProcess: skipping comment without attachment",
					"comment_id", id, "created_time", comment.CreatedTime)
				continue
			}

			if err := m.processComment(comment); err != nil {
				return newCount, err
			}
			m.knownIDs[id] = struct{}{}
			newCount++
		}

		if len(m.batch) >= m.cfg.BatchSize {
			if _, err := m.maybeFlush(ctx, false); err != nil {
				slog.Error("Monitor.fetchAndProcess: mid-sweep flush failed, batch retained", "error", err)
			}
		}

		if next == "" {
			break
		}
		after = next
		// Rate-limit pause between pages. Deliberately a blocking sleep, not a
		// cancellation point.
		m.sleep(m.cfg.PageDelay)
	}

	return newCount, nil
}

// processComment derives the row tuple for a new comment, appends it to the
// local archive and the upload batch, and records the full comment in the
// local log.
func (m *Monitor) processComment(comment models.Comment) error {
	row := models.NewCommentRow(comment, m.now())

	if err := m.archive.AppendCommentRow(row); err != nil {
		return err
	}
	if err := m.archive.LogComment(comment, row.DetectedTime); err != nil {
		// The CSV row is already on disk; the comment log is best-effort.
		slog.Error("Monitor.processComment: failed to log comment", "error", err, "comment_id", comment.ID)
	}

	m.batch = append(m.batch, row)
	slog.Info("Monitor.processComment: comment processed and added to batch",
		"comment_id", comment.ID, "batch_size", len(m.batch))
	return nil
}
