// Package monitor implements the comment-polling and batched-upload pipeline.
//
// A Monitor drives repeated polling sweeps over one post: the streaming poller
// paginates through comments and reconciles them against the known-comments
// set, the upload batcher buffers new rows and flushes them to the dedup store
// under size/time/force triggers, and the loop escalates consecutive sweep
// failures with exponential backoff until a ceiling is reached.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MauMontenegro/facebook-comment-monitor/internal/models"
	"github.com/MauMontenegro/facebook-comment-monitor/internal/store"
)

// Default pipeline configuration.
const (
	DefaultInterval       = 60 * time.Second
	DefaultBatchSize      = 7
	DefaultUploadInterval = 300 * time.Second
	DefaultPageSize       = 100
	// DefaultPageDelay is the blocking pause between comment pages, kept small
	// to respect Graph API rate limits.
	DefaultPageDelay = 500 * time.Millisecond
	// DefaultMaxConsecutiveErrors is the sweep-failure ceiling before the
	// monitor gives up.
	DefaultMaxConsecutiveErrors = 5
	// DefaultMaxBackoff caps the error-backoff sleep.
	DefaultMaxBackoff = time.Hour
)

// ErrStoppedByUser is returned when the run context is canceled, typically by
// a process-level interrupt.
var ErrStoppedByUser = errors.New("monitor stopped by user")

// CommentSource is the remote comment API consumed by the poller. Transient
// failures are retried inside the source; exhaustion yields neutral empty
// results rather than errors.
type CommentSource interface {
	// GetComments returns one page of comments keyed by ID plus the cursor for
	// the next page ("" on the last page).
	GetComments(ctx context.Context, postID string, limit int, after string) (map[string]models.Comment, string)
	// GetPostContent returns the post content; ok is false when unavailable.
	GetPostContent(ctx context.Context, postID string) (content models.PostContent, ok bool)
}

// LocalArchive is the append-only local record consumed by the poller.
type LocalArchive interface {
	AppendCommentRow(row models.CommentRow) error
	LogComment(c models.Comment, detectedTime string) error
	SavePostSnapshot(postID string, content models.PostContent) error
	LoadPostSnapshot(postID string) (models.PostContent, bool)
}

// Notifier delivers out-of-band alerts for critical monitor failures.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Config holds the pipeline settings, enumerated once at the boundary instead
// of being read ad hoc by inner components.
type Config struct {
	// Interval is the pause between polling sweeps in continuous mode.
	Interval time.Duration
	// BatchSize is the row-count flush threshold.
	BatchSize int
	// UploadInterval is the time-based flush threshold.
	UploadInterval time.Duration
	// PageSize is the comment page size requested from the source.
	PageSize int
	// PageDelay is the blocking pause between pages.
	PageDelay time.Duration
	// Mode selects one sweep (one-click) or an endless loop (continuous).
	Mode models.RunMode
	// MaxConsecutiveErrors is the sweep-failure ceiling.
	MaxConsecutiveErrors int
	// MaxBackoff caps the error-backoff sleep.
	MaxBackoff time.Duration
}

// withDefaults fills unset fields with package defaults.
func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.UploadInterval <= 0 {
		c.UploadInterval = DefaultUploadInterval
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.PageDelay < 0 {
		c.PageDelay = DefaultPageDelay
	}
	if c.Mode == "" {
		c.Mode = models.RunModeContinuous
	}
	if c.MaxConsecutiveErrors <= 0 {
		c.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	return c
}

// Monitor owns the polling state for a single post. It runs on a single
// goroutine; all I/O blocks the loop.
type Monitor struct {
	cfg      Config
	postID   string
	source   CommentSource
	rowStore store.RowStore
	archive  LocalArchive
	notifier Notifier

	knownIDs    map[string]struct{}
	lastContent string
	batch       []models.CommentRow
	lastUpload  time.Time

	// Overridable in tests.
	now   func() time.Time
	sleep func(d time.Duration)
}

// Option defines a configuration option for a Monitor.
type Option func(*Monitor)

// WithNotifier attaches an alert notifier for critical failures.
func WithNotifier(n Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

// New creates a Monitor for the given post.
func New(postID string, cfg Config, source CommentSource, rowStore store.RowStore, arch LocalArchive, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:      cfg.withDefaults(),
		postID:   postID,
		source:   source,
		rowStore: rowStore,
		archive:  arch,
		knownIDs: make(map[string]struct{}),
		now:      time.Now,
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run executes the monitor state machine until completion, the error ceiling,
// or context cancellation. Whatever path leads to the stop, one final forced
// flush is attempted before returning.
func (m *Monitor) Run(ctx context.Context) error {
	slog.Info("Monitor.Run: starting to monitor post", "post_id", m.postID, "mode", m.cfg.Mode)
	m.start(ctx)

	defer func() {
		slog.Info("Monitor.Run: uploading remaining comments before exiting")
		// The run context may already be canceled; the final flush still gets
		// a short window to drain the batch.
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if _, err := m.maybeFlush(flushCtx, true); err != nil {
			slog.Error("Monitor.Run: final batch upload failed", "error", err)
		} else {
			slog.Info("Monitor.Run: final batch upload complete")
		}
	}()

	consecutiveErrors := 0
	for {
		if ctx.Err() != nil {
			return ErrStoppedByUser
		}

		err := m.sweep(ctx)
		if err == nil {
			consecutiveErrors = 0
			if m.cfg.Mode == models.RunModeOneClick {
				slog.Info("Monitor.Run: one-click sweep complete", "post_id", m.postID)
				return nil
			}
			if !m.wait(ctx, m.cfg.Interval) {
				return ErrStoppedByUser
			}
			continue
		}
		if ctx.Err() != nil {
			return ErrStoppedByUser
		}

		consecutiveErrors++
		if consecutiveErrors >= m.cfg.MaxConsecutiveErrors {
			slog.Error("Monitor.Run: too many consecutive errors, exiting",
				"consecutive_errors", consecutiveErrors, "error", err)
			m.alert(ctx, fmt.Sprintf("comment monitor for post %s stopped after %d consecutive errors: %v",
				m.postID, consecutiveErrors, err))
			return fmt.Errorf("too many consecutive errors (%d): %w", consecutiveErrors, err)
		}

		backoffTime := m.cfg.Interval * (1 << consecutiveErrors)
		if backoffTime > m.cfg.MaxBackoff {
			backoffTime = m.cfg.MaxBackoff
		}
		slog.Error("Monitor.Run: error in monitoring loop",
			"attempt", consecutiveErrors, "max_attempts", m.cfg.MaxConsecutiveErrors, "error", err)
		slog.Info("Monitor.Run: backing off before retry", "backoff", backoffTime)
		if !m.wait(ctx, backoffTime) {
			return ErrStoppedByUser
		}
	}
}

// start performs the STARTING phase: load the known-comments set from the
// dedup store (empty on unavailability), restore the last post snapshot, and
// persist the current post content if changed or absent.
func (m *Monitor) start(ctx context.Context) {
	ids, err := m.rowStore.ExistingCommentIDs(ctx)
	if err != nil {
		slog.Warn("Monitor.start: dedup store unavailable, starting with empty known set", "error", err)
		ids = make(map[string]struct{})
	}
	m.knownIDs = ids
	m.lastUpload = m.now()
	slog.Info("Monitor.start: known comments loaded", "count", len(m.knownIDs))

	if snapshot, ok := m.archive.LoadPostSnapshot(m.postID); ok {
		m.lastContent = snapshot.Message
	}
	m.checkAndUpdatePostContent(ctx)
}

// sweep performs one POLLING cycle: a full pagination pass, a post-content
// re-check when new comments appeared, and a forced end-of-cycle flush.
func (m *Monitor) sweep(ctx context.Context) error {
	newCount, err := m.fetchAndProcess(ctx)
	if err != nil {
		return err
	}
	if newCount > 0 {
		slog.Info("Monitor.sweep: found new comments", "count", newCount, "post_id", m.postID)
		m.checkAndUpdatePostContent(ctx)
	}

	// Forced flush at the cycle boundary keeps the remote copy fresh even when
	// neither threshold fired. Failure retains the batch for the next cycle.
	if _, err := m.maybeFlush(ctx, true); err != nil {
		slog.Error("Monitor.sweep: end-of-cycle flush failed, batch retained", "error", err)
	}
	return nil
}

// checkAndUpdatePostContent fetches the post content and persists a snapshot
// when the message changed or no snapshot existed yet.
func (m *Monitor) checkAndUpdatePostContent(ctx context.Context) {
	content, ok := m.source.GetPostContent(ctx, m.postID)
	if !ok {
		return
	}
	if m.lastContent != "" && content.Message == m.lastContent {
		return
	}
	if err := m.archive.SavePostSnapshot(m.postID, content); err != nil {
		slog.Error("Monitor.checkAndUpdatePostContent: failed to save snapshot", "error", err, "post_id", m.postID)
		return
	}
	m.lastContent = content.Message
	slog.Info("Monitor.checkAndUpdatePostContent: post content updated and saved", "post_id", m.postID)
}

// wait sleeps for d or until the context is canceled. Returns false on
// cancellation.
func (m *Monitor) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// alert notifies the configured channel, if any.
func (m *Monitor) alert(ctx context.Context, message string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, message); err != nil {
		slog.Error("Monitor.alert: failed to send alert", "error", err)
	}
}

// StatusString maps a Run result to the terminal status string reported to
// callers.
func StatusString(err error) string {
	switch {
	case err == nil:
		return "Success"
	case errors.Is(err, ErrStoppedByUser):
		return "Monitor Stopped By User"
	default:
		return err.Error()
	}
}
