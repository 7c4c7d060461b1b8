// Package facebook wraps the Facebook Graph API for comment and post retrieval.
//
// The client retries transient failures with capped exponential backoff and
// degrades to neutral empty results on exhaustion, so a flaky network never
// propagates out of a fetch call.
package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/MauMontenegro/facebook-comment-monitor/internal/models"
)

// Default client configuration.
const (
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v22.0"
	// DefaultHTTPTimeout bounds each individual Graph API call.
	DefaultHTTPTimeout = 30 * time.Second
	// DefaultMaxRetries is the retry ceiling for a single request (attempts = retries + 1).
	DefaultMaxRetries = 2
)

// Opts holds configuration options for the Graph API client.
type Opts struct {
	AccessToken string
	APIVersion  string
	BaseURL     string
	HTTPClient  *http.Client
	MaxRetries  uint64
}

// Option defines a configuration option for the Graph API client.
type Option func(*Opts)

// WithAccessToken sets the Graph API access token.
func WithAccessToken(token string) Option {
	return func(o *Opts) { o.AccessToken = token }
}

// WithAPIVersion sets the Graph API version segment (e.g. "v22.0").
func WithAPIVersion(version string) Option {
	return func(o *Opts) { o.APIVersion = version }
}

// WithBaseURL overrides the Graph API base URL. Used by tests.
func WithBaseURL(base string) Option {
	return func(o *Opts) { o.BaseURL = base }
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client talks to the Facebook Graph API.
type Client struct {
	accessToken string
	baseURL     string
	httpClient  *http.Client
	maxRetries  uint64
}

// NewClient creates a Graph API client. An access token is required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		APIVersion: DefaultAPIVersion,
		BaseURL:    DefaultBaseURL,
		MaxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("access token must be provided")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	slog.Debug("facebook.NewClient: client configured", "base_url", cfg.BaseURL, "api_version", cfg.APIVersion)
	return &Client{
		accessToken: cfg.AccessToken,
		baseURL:     cfg.BaseURL + "/" + cfg.APIVersion,
		httpClient:  cfg.HTTPClient,
		maxRetries:  cfg.MaxRetries,
	}, nil
}

// commentsEnvelope is the wire shape of a comments page.
type commentsEnvelope struct {
	Data   []models.Comment `json:"data"`
	Paging struct {
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
	} `json:"paging"`
}

// postEnvelope is the wire shape of a post content fetch.
type postEnvelope struct {
	Message      string `json:"message"`
	CreatedTime  string `json:"created_time"`
	PermalinkURL string `json:"permalink_url"`
}

// makeRequest performs a GET against the Graph API with exponential backoff on
// transient failures. The access token is always injected into the query.
func (c *Client) makeRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", c.accessToken)
	reqURL := c.baseURL + "/" + endpoint + "?" + params.Encode()

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("graph api request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read graph api response: %w", err)
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("graph api status %d: %s", resp.StatusCode, string(data))
		}
		if resp.StatusCode != http.StatusOK {
			// Client errors (bad token, bad post ID) will not heal with retries.
			return backoff.Permanent(fmt.Errorf("graph api status %d: %s", resp.StatusCode, string(data)))
		}
		body = data
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}
	return body, nil
}

// GetPostContent fetches the content of a post. Returns (content, false) when
// the fetch fails after retries; errors are absorbed here per the source
// contract so the caller can treat absence as "unchanged".
func (c *Client) GetPostContent(ctx context.Context, postID string) (models.PostContent, bool) {
	params := url.Values{}
	params.Set("fields", "message,created_time,permalink_url")

	body, err := c.makeRequest(ctx, postID, params)
	if err != nil {
		slog.Error("Client.GetPostContent: error getting post content", "error", err, "post_id", postID)
		return models.PostContent{}, false
	}

	var env postEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		slog.Error("Client.GetPostContent: malformed post payload", "error", err, "post_id", postID)
		return models.PostContent{}, false
	}

	content := models.PostContent{
		Message:     env.Message,
		CreatedTime: env.CreatedTime,
		URL:         env.PermalinkURL,
	}
	if content.Message == "" {
		content.Message = "No message content"
	}
	if content.CreatedTime == "" {
		content.CreatedTime = "Unknown time"
	}
	if content.URL == "" {
		content.URL = "Unknown URL"
	}
	return content, true
}

// GetComments fetches one page of comments for a post, keyed by comment ID,
// along with the cursor for the next page. An empty cursor means the last page.
// On exhaustion of retries it returns an empty map and no cursor rather than an
// error.
func (c *Client) GetComments(ctx context.Context, postID string, limit int, after string) (map[string]models.Comment, string) {
	params := url.Values{}
	params.Set("fields", "id,created_time,message,from,attachment")
	params.Set("limit", strconv.Itoa(limit))
	if after != "" {
		params.Set("after", after)
	}

	body, err := c.makeRequest(ctx, postID+"/comments", params)
	if err != nil {
		slog.Error("Client.GetComments: error fetching comments", "error", err, "post_id", postID)
		return map[string]models.Comment{}, ""
	}

	var env commentsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		slog.Error("Client.GetComments: malformed comments payload", "error", err, "post_id", postID)
		return map[string]models.Comment{}, ""
	}

	comments := make(map[string]models.Comment, len(env.Data))
	for _, comment := range env.Data {
		if comment.ID == "" {
			continue
		}
		if comment.From.ID == "" {
			comment.From = models.Author{ID: "Unknown", Name: "Unknown"}
		}
		if comment.Message == "" {
			comment.Message = "No message"
		}
		comments[comment.ID] = comment
	}

	next := env.Paging.Cursors.After
	if len(env.Data) == 0 {
		next = ""
	}
	return comments, next
}
