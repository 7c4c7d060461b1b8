package models

// APIStatus represents the status field of an API response.
type APIStatus string

const (
	// APIStatusOK indicates a successful operation.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates a failed operation.
	APIStatusError APIStatus = "error"
)

// APIResponse is the standard envelope returned by all HTTP endpoints.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// ScrapeRequest is the payload for POST /scrape: scrape one post and upload the
// comment rows to the configured spreadsheet.
type ScrapeRequest struct {
	PostID        string  `json:"post_id"`
	SpreadsheetID string  `json:"spreadsheet_id"`
	Worksheet     string  `json:"worksheet,omitempty"`
	Mode          RunMode `json:"mode,omitempty"`
}

// Validate checks required scrape request fields.
func (r *ScrapeRequest) Validate() error {
	if r.PostID == "" {
		return ErrEmptyPostID
	}
	if r.SpreadsheetID == "" {
		return ErrEmptySpreadsheetID
	}
	if r.Mode != "" && !IsValidRunMode(r.Mode) {
		return ErrInvalidRunMode
	}
	return nil
}

// ScrapeResponse carries the terminal status string of a monitor run.
type ScrapeResponse struct {
	Response string `json:"response"`
}

// OCRRequest is the payload for POST /ocr: extract structured receipt data from
// an image URL.
type OCRRequest struct {
	ImageURL string `json:"image_url"`
}

// Validate checks required OCR request fields.
func (r *OCRRequest) Validate() error {
	if r.ImageURL == "" {
		return ErrEmptyImageURL
	}
	return nil
}

// OCRResponse carries the extracted ticket.
type OCRResponse struct {
	StructuredText Ticket `json:"structured_text"`
}
