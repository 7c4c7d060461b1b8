// Package models defines the core data structures for the Facebook comment monitor.
//
// It includes the Graph API comment and post shapes, the spreadsheet row tuple, and
// API response types shared across modules.
package models

import (
	"errors"
	"time"
)

// RunMode determines how many polling sweeps a monitor performs.
type RunMode string

const (
	// RunModeOneClick performs exactly one sweep and terminates.
	RunModeOneClick RunMode = "one-click"
	// RunModeContinuous repeats sweeps indefinitely on an interval.
	RunModeContinuous RunMode = "continuous"
)

// DetectedTimeLayout is the timestamp format recorded when a comment is first observed.
const DetectedTimeLayout = "20060102_150405"

// NoAttachment is the row placeholder for comments without an image attachment.
const NoAttachment = "No"

// Error variables for request validation.
var (
	ErrEmptyPostID        = errors.New("post_id cannot be empty")
	ErrEmptySpreadsheetID = errors.New("spreadsheet_id cannot be empty")
	ErrEmptyImageURL      = errors.New("image_url cannot be empty")
	ErrInvalidRunMode     = errors.New("invalid run mode")
)

// IsValidRunMode checks if the given run mode is supported.
func IsValidRunMode(m RunMode) bool {
	switch m {
	case RunModeOneClick, RunModeContinuous:
		return true
	default:
		return false
	}
}

// Author identifies the user that wrote a comment.
type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AttachmentImage holds the source URL of an attached image.
type AttachmentImage struct {
	Src string `json:"src"`
}

// AttachmentMedia is the media envelope inside an attachment.
type AttachmentMedia struct {
	Image AttachmentImage `json:"image"`
}

// Attachment describes a comment attachment as returned by the Graph API.
// Presence of a non-nil Attachment indicates an image attachment whose URL
// lives at media.image.src.
type Attachment struct {
	Media AttachmentMedia `json:"media"`
	Type  string          `json:"type,omitempty"`
	URL   string          `json:"url,omitempty"`
}

// Comment is a single comment on a monitored post. Comments are immutable from
// the monitor's perspective: created once remotely, observed repeatedly,
// processed at most once by ID.
type Comment struct {
	ID          string      `json:"id"`
	From        Author      `json:"from"`
	CreatedTime string      `json:"created_time"`
	Message     string      `json:"message"`
	Attachment  *Attachment `json:"attachment,omitempty"`
}

// HasAttachment reports whether the comment carries an image attachment with a
// resolvable source URL. Malformed or partial attachment shapes count as no
// attachment rather than an error, so a bad item never aborts a page.
func (c *Comment) HasAttachment() bool {
	return c.AttachmentURL() != ""
}

// AttachmentURL returns the attached image URL, or "" when the attachment is
// absent or its nested shape is incomplete.
func (c *Comment) AttachmentURL() string {
	if c.Attachment == nil {
		return ""
	}
	return c.Attachment.Media.Image.Src
}

// PostContent is the last known content of the monitored post.
type PostContent struct {
	Message     string `json:"message"`
	CreatedTime string `json:"created_time"`
	URL         string `json:"url"`
}

// CommentRow is the tuple appended to the dedup store and the local CSV archive.
// Column order is fixed: comment_id, user_id, user_name, created_time, message,
// attachment URL (or "No"), detected_time.
type CommentRow struct {
	CommentID     string
	UserID        string
	UserName      string
	CreatedTime   string
	Message       string
	AttachmentURL string
	DetectedTime  string
}

// RowHeader returns the spreadsheet/CSV header matching CommentRow column order.
func RowHeader() []string {
	return []string{"comment_id", "user_id", "user_name", "created_time", "message", "has_attachment", "detected_time"}
}

// NewCommentRow derives a row tuple from a comment, stamping the given
// detection time.
func NewCommentRow(c Comment, detected time.Time) CommentRow {
	attachment := c.AttachmentURL()
	if attachment == "" {
		attachment = NoAttachment
	}
	return CommentRow{
		CommentID:     c.ID,
		UserID:        c.From.ID,
		UserName:      c.From.Name,
		CreatedTime:   c.CreatedTime,
		Message:       c.Message,
		AttachmentURL: attachment,
		DetectedTime:  detected.Format(DetectedTimeLayout),
	}
}

// Values returns the row columns in wire order.
func (r CommentRow) Values() []string {
	return []string{r.CommentID, r.UserID, r.UserName, r.CreatedTime, r.Message, r.AttachmentURL, r.DetectedTime}
}

// Ticket is the structured record extracted from a fuel receipt image.
type Ticket struct {
	Total    float64 `json:"total"`
	Quantity float64 `json:"quantity"`
	Date     string  `json:"date"`
	Product  string  `json:"product"`
	Station  int     `json:"station"`
	Address  string  `json:"address"`
}

// FallbackTicket is returned when extraction fails, mirroring the zero-valued
// record the service has always reported instead of an error payload.
func FallbackTicket() Ticket {
	return Ticket{Date: "None", Address: "None", Station: 0, Total: 0, Quantity: 0}
}
