package models

import (
	"testing"
	"time"
)

func TestAttachmentURLFailsClosed(t *testing.T) {
	cases := []struct {
		name    string
		comment Comment
	}{
		{"no attachment", Comment{ID: "c1"}},
		{"empty attachment", Comment{ID: "c1", Attachment: &Attachment{}}},
		{"empty src", Comment{ID: "c1", Attachment: &Attachment{Media: AttachmentMedia{Image: AttachmentImage{Src: ""}}}}},
	}
	for _, tc := range cases {
		if tc.comment.HasAttachment() {
			t.Errorf("%s: expected no attachment", tc.name)
		}
		if got := tc.comment.AttachmentURL(); got != "" {
			t.Errorf("%s: expected empty URL, got %q", tc.name, got)
		}
	}
}

func TestNewCommentRow(t *testing.T) {
	detected := time.Date(2026, 8, 30, 12, 5, 0, 0, time.UTC)
	c := Comment{
		ID:          "c1",
		From:        Author{ID: "u1", Name: "Ana"},
		CreatedTime: "2026-08-30T12:00:00+0000",
		Message:     "receipt attached",
		Attachment: &Attachment{
			Media: AttachmentMedia{Image: AttachmentImage{Src: "https://cdn.example.com/r1.jpg"}},
		},
	}

	row := NewCommentRow(c, detected)
	want := []string{"c1", "u1", "Ana", "2026-08-30T12:00:00+0000", "receipt attached", "https://cdn.example.com/r1.jpg", "20260830_120500"}
	got := row.Values()
	if len(got) != len(want) {
		t.Fatalf("expected %d columns, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestNewCommentRowWithoutAttachment(t *testing.T) {
	row := NewCommentRow(Comment{ID: "c1"}, time.Now())
	if row.AttachmentURL != NoAttachment {
		t.Errorf("expected %q placeholder, got %q", NoAttachment, row.AttachmentURL)
	}
}

func TestRowHeaderMatchesRowWidth(t *testing.T) {
	if len(RowHeader()) != len(CommentRow{}.Values()) {
		t.Error("header and row column counts differ")
	}
}

func TestScrapeRequestValidate(t *testing.T) {
	cases := []struct {
		name    string
		req     ScrapeRequest
		wantErr error
	}{
		{"valid", ScrapeRequest{PostID: "p1", SpreadsheetID: "s1", Mode: RunModeOneClick}, nil},
		{"valid default mode", ScrapeRequest{PostID: "p1", SpreadsheetID: "s1"}, nil},
		{"missing post", ScrapeRequest{SpreadsheetID: "s1"}, ErrEmptyPostID},
		{"missing spreadsheet", ScrapeRequest{PostID: "p1"}, ErrEmptySpreadsheetID},
		{"bad mode", ScrapeRequest{PostID: "p1", SpreadsheetID: "s1", Mode: "forever"}, ErrInvalidRunMode},
	}
	for _, tc := range cases {
		if err := tc.req.Validate(); err != tc.wantErr {
			t.Errorf("%s: got %v want %v", tc.name, err, tc.wantErr)
		}
	}
}

func TestIsValidRunMode(t *testing.T) {
	if !IsValidRunMode(RunModeOneClick) || !IsValidRunMode(RunModeContinuous) {
		t.Error("expected built-in run modes to be valid")
	}
	if IsValidRunMode("forever") {
		t.Error("unexpected run mode accepted")
	}
}
