package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MauMontenegro/facebook-comment-monitor/internal/models"
	"github.com/MauMontenegro/facebook-comment-monitor/internal/store"
)

// page is one fake comments page plus its next-page cursor.
type page struct {
	comments []models.Comment
	next     string
}

// fakeSource serves preset pages keyed by cursor and counts sweeps.
type fakeSource struct {
	pages    map[string]page
	content  models.PostContent
	hasPost  bool
	sweeps   int
	getCalls int
}

func (f *fakeSource) GetComments(ctx context.Context, postID string, limit int, after string) (map[string]models.Comment, string) {
	f.getCalls++
	if after == "" {
		f.sweeps++
	}
	p, ok := f.pages[after]
	if !ok {
		return map[string]models.Comment{}, ""
	}
	out := make(map[string]models.Comment, len(p.comments))
	for _, c := range p.comments {
		out[c.ID] = c
	}
	return out, p.next
}

func (f *fakeSource) GetPostContent(ctx context.Context, postID string) (models.PostContent, bool) {
	return f.content, f.hasPost
}

// fakeArchive records rows in memory and can inject failures.
type fakeArchive struct {
	rows      []models.CommentRow
	logged    []string
	snapshots map[string]models.PostContent
	appendErr error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{snapshots: make(map[string]models.PostContent)}
}

func (f *fakeArchive) AppendCommentRow(row models.CommentRow) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeArchive) LogComment(c models.Comment, detectedTime string) error {
	f.logged = append(f.logged, c.ID)
	return nil
}

func (f *fakeArchive) SavePostSnapshot(postID string, content models.PostContent) error {
	f.snapshots[postID] = content
	return nil
}

func (f *fakeArchive) LoadPostSnapshot(postID string) (models.PostContent, bool) {
	content, ok := f.snapshots[postID]
	return content, ok
}

// countingStore wraps a RowStore and counts appends.
type countingStore struct {
	store.RowStore
	appends int
}

func (c *countingStore) AppendRows(ctx context.Context, rows []models.CommentRow) error {
	c.appends++
	return c.RowStore.AppendRows(ctx, rows)
}

// fakeNotifier records alert messages.
type fakeNotifier struct {
	messages []string
}

func (f *fakeNotifier) Notify(ctx context.Context, message string) error {
	f.messages = append(f.messages, message)
	return nil
}

func attachmentComment(id string) models.Comment {
	return models.Comment{
		ID:          id,
		From:        models.Author{ID: "u_" + id, Name: "User " + id},
		CreatedTime: "2026-08-30T12:00:00+0000",
		Message:     "receipt " + id,
		Attachment: &models.Attachment{
			Media: models.AttachmentMedia{Image: models.AttachmentImage{Src: "https://cdn.example.com/" + id + ".jpg"}},
		},
	}
}

func plainComment(id string) models.Comment {
	return models.Comment{
		ID:          id,
		From:        models.Author{ID: "u_" + id, Name: "User " + id},
		CreatedTime: "2026-08-30T12:00:00+0000",
		Message:     "just text",
	}
}

func newTestMonitor(src *fakeSource, rows store.RowStore, arch LocalArchive, cfg Config) *Monitor {
	if cfg.Mode == "" {
		cfg.Mode = models.RunModeOneClick
	}
	m := New("page_post", cfg, src, rows, arch)
	m.sleep = func(time.Duration) {}
	return m
}

func TestSweepProcessesAttachmentComments(t *testing.T) {
	src := &fakeSource{pages: map[string]page{
		"": {comments: []models.Comment{attachmentComment("c1"), attachmentComment("c2")}},
	}}
	rows := store.NewInMemoryStore()
	arch := newFakeArchive()
	m := newTestMonitor(src, rows, arch, Config{BatchSize: 10})

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(rows.Rows()); got != 2 {
		t.Errorf("expected 2 uploaded rows, got %d", got)
	}
	if got := len(arch.rows); got != 2 {
		t.Errorf("expected 2 archived rows, got %d", got)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	src := &fakeSource{pages: map[string]page{
		"": {comments: []models.Comment{attachmentComment("c1")}},
	}}
	rows := store.NewInMemoryStore()
	arch := newFakeArchive()
	m := newTestMonitor(src, rows, arch, Config{})

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	// Second monitor against the same store sees the same remote comments.
	m2 := newTestMonitor(src, rows, newFakeArchive(), Config{})
	if err := m2.Run(context.Background()); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if got := len(rows.Rows()); got != 1 {
		t.Errorf("expected store unchanged after second sweep, got %d rows", got)
	}
}

func TestCommentWithoutAttachmentIsIgnored(t *testing.T) {
	src := &fakeSource{pages: map[string]page{
		"": {comments: []models.Comment{plainComment("c1"), attachmentComment("c2")}},
	}}
	rows := store.NewInMemoryStore()
	arch := newFakeArchive()
	m := newTestMonitor(src, rows, arch, Config{})

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	uploaded := rows.Rows()
	if len(uploaded) != 1 || uploaded[0].CommentID != "c2" {
		t.Errorf("expected only the attachment-bearing comment uploaded, got %+v", uploaded)
	}
	for _, row := range arch.rows {
		if row.CommentID == "c1" {
			t.Error("attachment-less comment must not reach the local archive")
		}
	}
}

func TestMalformedAttachmentTreatedAsAbsent(t *testing.T) {
	malformed := plainComment("c1")
	malformed.Attachment = &models.Attachment{} // nested shape missing src
	src := &fakeSource{pages: map[string]page{
		"": {comments: []models.Comment{malformed}},
	}}
	rows := store.NewInMemoryStore()
	m := newTestMonitor(src, rows, newFakeArchive(), Config{})

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("malformed attachment must not fail the sweep: %v", err)
	}
	if got := len(rows.Rows()); got != 0 {
		t.Errorf("expected no uploads for malformed attachment, got %d", got)
	}
}

func TestBatchSizeTriggersSingleFlush(t *testing.T) {
	src := &fakeSource{pages: map[string]page{
		"":   {comments: []models.Comment{attachmentComment("c1"), attachmentComment("c2"), attachmentComment("c3")}, next: "p2"},
		"p2": {comments: []models.Comment{}},
	}}
	counting := &countingStore{RowStore: store.NewInMemoryStore()}
	m := newTestMonitor(src, counting, newFakeArchive(), Config{BatchSize: 3})

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// One mid-sweep flush at the threshold; the forced end-of-cycle flush must
	// no-op on the now-empty batch.
	if counting.appends != 1 {
		t.Errorf("expected exactly 1 append, got %d", counting.appends)
	}
}

func TestForcedFlushAtEndOfCycle(t *testing.T) {
	src := &fakeSource{pages: map[string]page{
		"": {comments: []models.Comment{attachmentComment("c1")}},
	}}
	counting := &countingStore{RowStore: store.NewInMemoryStore()}
	// Thresholds far from being met: flush must still happen at cycle end.
	m := newTestMonitor(src, counting, newFakeArchive(), Config{BatchSize: 100, UploadInterval: time.Hour})

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counting.appends != 1 {
		t.Errorf("expected forced end-of-cycle flush, got %d appends", counting.appends)
	}
}

func TestPreFlushRevalidationDropsConcurrentRows(t *testing.T) {
	rows := store.NewInMemoryStore()
	// A concurrent writer already uploaded c1.
	seeded := models.NewCommentRow(attachmentComment("c1"), time.Now())
	if err := rows.AppendRows(context.Background(), []models.CommentRow{seeded}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	m := newTestMonitor(&fakeSource{}, rows, newFakeArchive(), Config{})
	m.batch = []models.CommentRow{
		models.NewCommentRow(attachmentComment("c1"), time.Now()),
		models.NewCommentRow(attachmentComment("c2"), time.Now()),
	}

	flushed, err := m.maybeFlush(context.Background(), true)
	if err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if !flushed {
		t.Fatal("expected a flush to occur")
	}

	uploaded := rows.Rows()
	if len(uploaded) != 2 {
		t.Fatalf("expected 2 rows total (1 seeded + 1 new), got %d", len(uploaded))
	}
	if uploaded[1].CommentID != "c2" {
		t.Errorf("expected only c2 appended, got %s", uploaded[1].CommentID)
	}
	if len(m.batch) != 0 {
		t.Errorf("expected batch cleared after flush, got %d rows", len(m.batch))
	}
}

func TestFlushFullyCoveredByConcurrentWriterSkipsWrite(t *testing.T) {
	rows := store.NewInMemoryStore()
	seeded := models.NewCommentRow(attachmentComment("c1"), time.Now())
	if err := rows.AppendRows(context.Background(), []models.CommentRow{seeded}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	counting := &countingStore{RowStore: rows}
	m := newTestMonitor(&fakeSource{}, counting, newFakeArchive(), Config{})
	m.batch = []models.CommentRow{models.NewCommentRow(attachmentComment("c1"), time.Now())}
	before := m.lastUpload

	flushed, err := m.maybeFlush(context.Background(), true)
	if err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if !flushed {
		t.Fatal("expected flush to report success")
	}
	if counting.appends != 0 {
		t.Errorf("expected no remote write, got %d appends", counting.appends)
	}
	if len(m.batch) != 0 {
		t.Error("expected batch cleared")
	}
	if !m.lastUpload.After(before) {
		t.Error("expected flush timer reset")
	}
}

func TestFailedFlushRetainsBatch(t *testing.T) {
	failing := &failingStore{err: errors.New("spreadsheet down")}
	m := newTestMonitor(&fakeSource{}, failing, newFakeArchive(), Config{})
	m.batch = []models.CommentRow{models.NewCommentRow(attachmentComment("c1"), time.Now())}

	if _, err := m.maybeFlush(context.Background(), true); err == nil {
		t.Fatal("expected flush error")
	}
	if len(m.batch) != 1 {
		t.Errorf("expected batch retained after failed flush, got %d rows", len(m.batch))
	}
}

// failingStore fails every operation.
type failingStore struct {
	err error
}

func (f *failingStore) ExistingCommentIDs(ctx context.Context) (map[string]struct{}, error) {
	return nil, f.err
}

func (f *failingStore) AppendRows(ctx context.Context, rows []models.CommentRow) error {
	return f.err
}

func (f *failingStore) Close() error { return nil }

func TestErrorBackoffCeilingStopsMonitor(t *testing.T) {
	src := &fakeSource{pages: map[string]page{
		"": {comments: []models.Comment{attachmentComment("c1")}},
	}}
	arch := newFakeArchive()
	arch.appendErr = errors.New("disk full")
	counting := &countingStore{RowStore: store.NewInMemoryStore()}
	notifier := &fakeNotifier{}

	cfg := Config{Mode: models.RunModeContinuous, Interval: time.Millisecond}
	m := New("page_post", cfg, src, counting, arch, WithNotifier(notifier))
	m.sleep = func(time.Duration) {}

	err := m.Run(context.Background())
	if err == nil {
		t.Fatal("expected monitor to terminate with an error")
	}
	if errors.Is(err, ErrStoppedByUser) {
		t.Fatalf("expected error-ceiling exit, got %v", err)
	}
	if src.sweeps != DefaultMaxConsecutiveErrors {
		t.Errorf("expected %d failing sweeps, got %d", DefaultMaxConsecutiveErrors, src.sweeps)
	}
	if len(notifier.messages) != 1 {
		t.Errorf("expected 1 alert, got %d", len(notifier.messages))
	}
}

func TestOneClickStopsAfterOneSweep(t *testing.T) {
	src := &fakeSource{pages: map[string]page{
		"": {comments: []models.Comment{attachmentComment("c1")}},
	}}
	m := newTestMonitor(src, store.NewInMemoryStore(), newFakeArchive(), Config{Mode: models.RunModeOneClick})

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.sweeps != 1 {
		t.Errorf("expected exactly 1 sweep in one-click mode, got %d", src.sweeps)
	}
}

func TestCanceledContextStopsContinuousMonitor(t *testing.T) {
	src := &fakeSource{pages: map[string]page{}}
	cfg := Config{Mode: models.RunModeContinuous, Interval: time.Hour}
	m := New("page_post", cfg, src, store.NewInMemoryStore(), newFakeArchive())
	m.sleep = func(time.Duration) {}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := m.Run(ctx)
	if !errors.Is(err, ErrStoppedByUser) {
		t.Fatalf("expected ErrStoppedByUser, got %v", err)
	}
}

func TestFinalFlushRunsOnErrorCeilingExit(t *testing.T) {
	// The first comment lands in the batch, then every further archive append
	// fails so sweeps keep erroring without reaching the end-of-cycle flush.
	// The batched row must still be drained by the final forced flush.
	src := &fakeSource{pages: map[string]page{
		"": {comments: []models.Comment{attachmentComment("c1"), attachmentComment("c2")}},
	}}
	inMem := store.NewInMemoryStore()
	counting := &countingStore{RowStore: inMem}

	cfg := Config{Mode: models.RunModeContinuous, Interval: time.Millisecond, BatchSize: 100, UploadInterval: time.Hour}
	m := New("page_post", cfg, src, counting, &flakyArchive{inner: newFakeArchive(), failAfter: 1})
	m.sleep = func(time.Duration) {}

	err := m.Run(context.Background())
	if err == nil {
		t.Fatal("expected error-ceiling exit")
	}
	if got := len(inMem.Rows()); got != 1 {
		t.Errorf("expected final flush to drain the batched row, got %d rows", got)
	}
	if counting.appends != 1 {
		t.Errorf("expected exactly the final flush append, got %d", counting.appends)
	}
}

// flakyArchive lets the first failAfter appends through then fails the rest.
type flakyArchive struct {
	inner     *fakeArchive
	failAfter int
	appended  int
}

func (f *flakyArchive) AppendCommentRow(row models.CommentRow) error {
	if f.appended >= f.failAfter {
		return errors.New("disk full")
	}
	f.appended++
	return f.inner.AppendCommentRow(row)
}

func (f *flakyArchive) LogComment(c models.Comment, detectedTime string) error {
	return f.inner.LogComment(c, detectedTime)
}

func (f *flakyArchive) SavePostSnapshot(postID string, content models.PostContent) error {
	return f.inner.SavePostSnapshot(postID, content)
}

func (f *flakyArchive) LoadPostSnapshot(postID string) (models.PostContent, bool) {
	return f.inner.LoadPostSnapshot(postID)
}

func TestPostSnapshotSavedOnChange(t *testing.T) {
	src := &fakeSource{
		pages:   map[string]page{"": {comments: []models.Comment{attachmentComment("c1")}}},
		content: models.PostContent{Message: "promo post", CreatedTime: "t", URL: "u"},
		hasPost: true,
	}
	arch := newFakeArchive()
	m := newTestMonitor(src, store.NewInMemoryStore(), arch, Config{})

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snapshot, ok := arch.snapshots["page_post"]
	if !ok {
		t.Fatal("expected snapshot saved")
	}
	if snapshot.Message != "promo post" {
		t.Errorf("unexpected snapshot message %q", snapshot.Message)
	}
}

func TestStatusString(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"success", nil, "Success"},
		{"stopped", ErrStoppedByUser, "Monitor Stopped By User"},
		{"wrapped stopped", errors.Join(ErrStoppedByUser), "Monitor Stopped By User"},
		{"failure", errors.New("boom"), "boom"},
	}
	for _, tc := range cases {
		if got := StatusString(tc.err); got != tc.want {
			t.Errorf("%s: StatusString = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestPaginationWalksAllPages(t *testing.T) {
	src := &fakeSource{pages: map[string]page{
		"":   {comments: []models.Comment{attachmentComment("c1")}, next: "p2"},
		"p2": {comments: []models.Comment{attachmentComment("c2")}, next: "p3"},
		"p3": {comments: []models.Comment{attachmentComment("c3")}},
	}}
	rows := store.NewInMemoryStore()
	m := newTestMonitor(src, rows, newFakeArchive(), Config{})

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(rows.Rows()); got != 3 {
		t.Errorf("expected 3 rows across pages, got %d", got)
	}
	ids := make(map[string]bool)
	for _, row := range rows.Rows() {
		ids[row.CommentID] = true
	}
	for _, id := range []string{"c1", "c2", "c3"} {
		if !ids[id] {
			t.Errorf("missing row for %s", id)
		}
	}
}
