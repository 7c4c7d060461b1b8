// Package api exposes the HTTP entry points of the comment monitor service.
//
// POST /scrape runs a one-click monitor sweep for a post and reports its
// terminal status string; POST /ocr extracts structured receipt data from an
// image URL; GET /health reports liveness.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MauMontenegro/facebook-comment-monitor/internal/archive"
	"github.com/MauMontenegro/facebook-comment-monitor/internal/genai"
	"github.com/MauMontenegro/facebook-comment-monitor/internal/models"
	"github.com/MauMontenegro/facebook-comment-monitor/internal/monitor"
	"github.com/MauMontenegro/facebook-comment-monitor/internal/store"
)

// Default server configuration.
const (
	DefaultAddr = ":8080"
	// DefaultScrapeTimeout bounds a synchronous one-click scrape request.
	DefaultScrapeTimeout = 10 * time.Minute
	// DefaultOCRTimeout bounds a single extraction request.
	DefaultOCRTimeout = 60 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Deps bundles the collaborators the server hands to each monitor run.
type Deps struct {
	// Source is the Graph API client shared by all scrape requests.
	Source monitor.CommentSource
	// OCR is the receipt extraction client; nil disables POST /ocr.
	OCR *genai.Client
	// Notifier receives critical monitor alerts; nil disables alerting.
	Notifier monitor.Notifier
	// PageID, when set, is combined with the requested post ID into the full
	// Graph object ID ("<page>_<post>").
	PageID string
	// CredentialsFile is the Google service-account key used for per-request
	// spreadsheet stores.
	CredentialsFile string
	// ArchiveDir is the local archive root shared by scrape runs.
	ArchiveDir string
	// DefaultWorksheet is used when a scrape request omits the worksheet.
	DefaultWorksheet string
	// MonitorConfig is the baseline pipeline configuration for scrape runs.
	MonitorConfig monitor.Config
}

// Server serves the monitor HTTP API.
type Server struct {
	addr string
	deps Deps
	srv  *http.Server

	// scrape runs one scrape request to completion and returns its terminal
	// status string. Overridable in tests.
	scrape func(ctx context.Context, req models.ScrapeRequest) string
}

// NewServer creates an API server around the given collaborators.
func NewServer(deps Deps, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if deps.DefaultWorksheet == "" {
		deps.DefaultWorksheet = "Comments"
	}
	s := &Server{addr: cfg.Addr, deps: deps}
	s.scrape = s.runScrape
	return s
}

// Run serves the API until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/scrape", s.scrapeHandler)
	mux.HandleFunc("/ocr", s.ocrHandler)
	mux.HandleFunc("/health", s.healthHandler)

	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", s.addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}

// scrapeHandler runs a one-click monitor sweep for the requested post and
// returns the terminal status string.
func (s *Server) scrapeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.scrapeHandler: processing scrape request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.scrapeHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.scrapeHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Mode == "" {
		req.Mode = models.RunModeOneClick
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.scrapeHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if req.Mode != models.RunModeOneClick {
		// A synchronous request cannot carry an endless monitor; continuous
		// mode is started from the command line instead.
		slog.Warn("Server.scrapeHandler: continuous mode requested over HTTP", "post_id", req.PostID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("only one-click mode is supported over HTTP"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DefaultScrapeTimeout)
	defer cancel()

	status := s.scrape(ctx, req)
	slog.Info("Server.scrapeHandler: scrape finished", "post_id", req.PostID, "status", status)
	writeJSONResponse(w, http.StatusOK, models.Success(models.ScrapeResponse{Response: status}))
}

// runScrape wires a dedup store, archive and monitor for one request and runs
// it to completion.
func (s *Server) runScrape(ctx context.Context, req models.ScrapeRequest) string {
	worksheet := req.Worksheet
	if worksheet == "" {
		worksheet = s.deps.DefaultWorksheet
	}

	rowStore, err := store.NewSheetsStore(ctx,
		store.WithCredentialsFile(s.deps.CredentialsFile),
		store.WithSpreadsheetID(req.SpreadsheetID),
		store.WithWorksheet(worksheet),
	)
	if err != nil {
		slog.Error("Server.runScrape: failed to connect dedup store", "error", err, "spreadsheet_id", req.SpreadsheetID)
		return "dedup store unavailable: " + err.Error()
	}
	defer rowStore.Close()

	arch, err := archive.New(s.deps.ArchiveDir)
	if err != nil {
		slog.Error("Server.runScrape: failed to open archive", "error", err, "dir", s.deps.ArchiveDir)
		return "local archive unavailable: " + err.Error()
	}
	defer arch.Close()

	postID := req.PostID
	if s.deps.PageID != "" {
		postID = s.deps.PageID + "_" + req.PostID
	}

	cfg := s.deps.MonitorConfig
	cfg.Mode = models.RunModeOneClick

	var opts []monitor.Option
	if s.deps.Notifier != nil {
		opts = append(opts, monitor.WithNotifier(s.deps.Notifier))
	}
	m := monitor.New(postID, cfg, s.deps.Source, rowStore, arch, opts...)
	return monitor.StatusString(m.Run(ctx))
}

// ocrHandler extracts structured receipt data from the image at the given URL.
// Extraction failures are reported as the zero-valued fallback ticket rather
// than an error payload.
func (s *Server) ocrHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.ocrHandler: processing OCR request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.ocrHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.OCRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.ocrHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.ocrHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if s.deps.OCR == nil {
		slog.Warn("Server.ocrHandler: OCR client not configured")
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("OCR extraction not configured"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), DefaultOCRTimeout)
	defer cancel()

	ticket, err := s.deps.OCR.ExtractTicket(ctx, req.ImageURL)
	if err != nil {
		slog.Error("Server.ocrHandler: extraction failed, returning fallback ticket", "error", err)
		writeJSONResponse(w, http.StatusOK, models.Success(models.OCRResponse{StructuredText: models.FallbackTicket()}))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(models.OCRResponse{StructuredText: ticket}))
}
