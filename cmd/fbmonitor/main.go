// Command fbmonitor polls a Facebook post for new comments, archives them
// locally and uploads them in batches to a spreadsheet-backed dedup store.
//
// With -post-id (or TARGET_POST_ID) set it runs a monitor directly in the
// requested mode; otherwise it serves the HTTP API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MauMontenegro/facebook-comment-monitor/internal/alerts"
	"github.com/MauMontenegro/facebook-comment-monitor/internal/api"
	"github.com/MauMontenegro/facebook-comment-monitor/internal/archive"
	"github.com/MauMontenegro/facebook-comment-monitor/internal/facebook"
	"github.com/MauMontenegro/facebook-comment-monitor/internal/genai"
	"github.com/MauMontenegro/facebook-comment-monitor/internal/models"
	"github.com/MauMontenegro/facebook-comment-monitor/internal/monitor"
	"github.com/MauMontenegro/facebook-comment-monitor/internal/store"
	"github.com/MauMontenegro/facebook-comment-monitor/internal/util"
)

// Default configuration constants.
const (
	// DefaultArchiveDir is the default directory for local archive data.
	DefaultArchiveDir = "facebook_monitor_logs"
	// DefaultWorksheet is the default worksheet title in the dedup spreadsheet.
	DefaultWorksheet = "Comments"
)

// Config holds environment configuration.
type Config struct {
	PageID          string
	TargetPostID    string
	AccessToken     string
	APIVersion      string
	Interval        int
	BatchSize       int
	UploadInterval  int
	PageSize        int
	MonitorType     string
	ArchiveDir      string
	CredentialsFile string
	SpreadsheetID   string
	Worksheet       string
	DatabaseURL     string
	OpenAIKey       string
	APIAddr         string
}

func main() {
	initializeLogger()
	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(&config)

	if config.AccessToken == "" {
		slog.Error("Missing required environment variable", "variable", "LONG_LIVE_TOKEN")
		os.Exit(1)
	}

	source, err := facebook.NewClient(
		facebook.WithAccessToken(config.AccessToken),
		facebook.WithAPIVersion(config.APIVersion),
	)
	if err != nil {
		slog.Error("Failed to create Graph API client", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := buildNotifier()
	ocr := buildOCRClient(config)
	monitorCfg := buildMonitorConfig(config)

	if config.TargetPostID != "" && !*flags.serve {
		runMonitor(ctx, config, monitorCfg, source, notifier)
		return
	}

	server := api.NewServer(api.Deps{
		Source:           source,
		OCR:              ocr,
		Notifier:         notifier,
		PageID:           config.PageID,
		CredentialsFile:  config.CredentialsFile,
		ArchiveDir:       config.ArchiveDir,
		DefaultWorksheet: config.Worksheet,
		MonitorConfig:    monitorCfg,
	}, api.WithAddr(config.APIAddr))

	slog.Info("Facebook comment monitor service starting", "addr", config.APIAddr)
	if err := server.Run(ctx); err != nil {
		slog.Error("API server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Facebook comment monitor service exited")
}

// Flags holds command line flag values.
type Flags struct {
	serve *bool
}

// initializeLogger sets up structured logging.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		PageID:          os.Getenv("PAGE_ID"),
		TargetPostID:    os.Getenv("TARGET_POST_ID"),
		AccessToken:     os.Getenv("LONG_LIVE_TOKEN"),
		APIVersion:      util.GetenvDefault("API_VERSION", facebook.DefaultAPIVersion),
		Interval:        util.ParseIntEnv("INTERVAL", 60),
		BatchSize:       util.ParseIntEnv("BATCH_SIZE", 7),
		UploadInterval:  util.ParseIntEnv("UPLOAD_INTERVAL", 300),
		PageSize:        util.ParseIntEnv("PAGE_SIZE", monitor.DefaultPageSize),
		MonitorType:     util.GetenvDefault("MONITOR_TYPE", string(models.RunModeContinuous)),
		ArchiveDir:      util.GetenvDefault("LOG_DIR", DefaultArchiveDir),
		CredentialsFile: util.GetenvDefault("GOOGLE_SHEETS_CREDS_FILE", "credentials.json"),
		SpreadsheetID:   os.Getenv("SPREADSHEET_ID"),
		Worksheet:       util.GetenvDefault("WORKSHEET_NAME", DefaultWorksheet),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		APIAddr:         util.GetenvDefault("API_ADDR", api.DefaultAddr),
	}

	slog.Debug("environment variables loaded",
		"PAGE_ID", config.PageID,
		"TARGET_POST_ID", config.TargetPostID,
		"LONG_LIVE_TOKEN_SET", config.AccessToken != "",
		"API_VERSION", config.APIVersion,
		"INTERVAL", config.Interval,
		"BATCH_SIZE", config.BatchSize,
		"UPLOAD_INTERVAL", config.UploadInterval,
		"MONITOR_TYPE", config.MonitorType,
		"LOG_DIR", config.ArchiveDir,
		"SPREADSHEET_ID_SET", config.SpreadsheetID != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults.
func parseCommandLineFlags(config *Config) Flags {
	flags := Flags{
		serve: flag.Bool("serve", false, "serve the HTTP API even when a target post is configured"),
	}
	flag.StringVar(&config.TargetPostID, "post-id", config.TargetPostID, "post to monitor (overrides $TARGET_POST_ID)")
	flag.StringVar(&config.MonitorType, "mode", config.MonitorType, "run mode: one-click or continuous (overrides $MONITOR_TYPE)")
	flag.StringVar(&config.SpreadsheetID, "spreadsheet-id", config.SpreadsheetID, "dedup spreadsheet ID (overrides $SPREADSHEET_ID)")
	flag.StringVar(&config.Worksheet, "worksheet", config.Worksheet, "dedup worksheet title (overrides $WORKSHEET_NAME)")
	flag.StringVar(&config.ArchiveDir, "archive-dir", config.ArchiveDir, "local archive directory (overrides $LOG_DIR)")
	flag.StringVar(&config.APIAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	flag.Parse()
	return flags
}

// buildMonitorConfig assembles the pipeline configuration once at the boundary.
func buildMonitorConfig(config Config) monitor.Config {
	mode := models.RunMode(config.MonitorType)
	if !models.IsValidRunMode(mode) {
		slog.Warn("Invalid monitor type, defaulting to continuous", "monitor_type", config.MonitorType)
		mode = models.RunModeContinuous
	}
	return monitor.Config{
		Interval:       time.Duration(config.Interval) * time.Second,
		BatchSize:      config.BatchSize,
		UploadInterval: time.Duration(config.UploadInterval) * time.Second,
		PageSize:       config.PageSize,
		Mode:           mode,
	}
}

// buildNotifier creates the Twilio alert client when configured; alerting is
// optional and its absence only logs a notice.
func buildNotifier() monitor.Notifier {
	notifier, err := alerts.NewClient()
	if err != nil {
		slog.Info("Alerting disabled", "reason", err)
		return nil
	}
	return notifier
}

// buildOCRClient creates the receipt extraction client when an API key is set.
func buildOCRClient(config Config) *genai.Client {
	if config.OpenAIKey == "" {
		slog.Info("OCR extraction disabled: OPENAI_API_KEY not set")
		return nil
	}
	client, err := genai.NewClient(genai.WithAPIKey(config.OpenAIKey))
	if err != nil {
		slog.Warn("OCR extraction disabled", "error", err)
		return nil
	}
	return client
}

// buildRowStore selects the dedup store backend: Postgres when DATABASE_URL is
// set, the spreadsheet when a spreadsheet ID is configured, otherwise an
// in-memory store, keeping the monitor functional without uploads.
func buildRowStore(ctx context.Context, config Config) store.RowStore {
	if config.DatabaseURL != "" {
		st, err := store.NewPostgresStore(store.WithPostgresDSN(config.DatabaseURL))
		if err == nil {
			return st
		}
		slog.Warn("Postgres dedup store unavailable", "error", err)
	}
	if config.SpreadsheetID != "" {
		st, err := store.NewSheetsStore(ctx,
			store.WithCredentialsFile(config.CredentialsFile),
			store.WithSpreadsheetID(config.SpreadsheetID),
			store.WithWorksheet(config.Worksheet),
		)
		if err == nil {
			return st
		}
		slog.Warn("Spreadsheet dedup store unavailable", "error", err)
	}
	slog.Warn("No dedup store configured, comment uploads are kept in memory only")
	return store.NewInMemoryStore()
}

// runMonitor runs a monitor directly against the configured post.
func runMonitor(ctx context.Context, config Config, monitorCfg monitor.Config, source monitor.CommentSource, notifier monitor.Notifier) {
	rowStore := buildRowStore(ctx, config)
	defer rowStore.Close()

	arch, err := archive.New(config.ArchiveDir)
	if err != nil {
		slog.Error("Failed to open local archive", "error", err, "dir", config.ArchiveDir)
		os.Exit(1)
	}
	defer arch.Close()

	postID := config.TargetPostID
	if config.PageID != "" {
		postID = config.PageID + "_" + config.TargetPostID
	}

	var opts []monitor.Option
	if notifier != nil {
		opts = append(opts, monitor.WithNotifier(notifier))
	}
	m := monitor.New(postID, monitorCfg, source, rowStore, arch, opts...)

	slog.Info("Facebook comment monitor initialized", "post_id", postID, "mode", monitorCfg.Mode)
	status := monitor.StatusString(m.Run(ctx))
	slog.Info("Monitor finished", "status", status)
	if status != "Success" && status != "Monitor Stopped By User" {
		os.Exit(1)
	}
}
