// Package config loads the watermark remover configuration from a TOML file,
// environment variables and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

var (
	// ErrInvalidConfig is wrapped by every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Render backends understood by the pdfrender package.
const (
	BackendGhostscript = "ghostscript"
	BackendMuPDF       = "mupdf"
)

const (
	defaultDPI               = 300
	defaultQuality           = 95
	defaultFuzzPercent       = 5
	defaultNonWhiteThreshold = 0.005
	defaultWindowWidth       = 1920
	defaultWindowHeight      = 1080
	defaultOutputPrefix      = "NoWatermark_"
	defaultServiceURL        = "https://www.watermarkremover.io/es/image-watermark-remover"
	defaultLogsDir           = "logs"
	defaultOutputDir         = "processed_pdfs"
	defaultHistoryDB         = "history.db"
	maxPercent               = 100
)

// Duration is a time.Duration that decodes from strings such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, parseErr := time.ParseDuration(string(text))
	if parseErr != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), parseErr)
	}

	d.Duration = parsed

	return nil
}

// MarshalText renders the duration in Go notation.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Paths groups filesystem locations.
type Paths struct {
	InputDir  string `toml:"input_dir"`
	OutputDir string `toml:"output_dir"`
	WorkDir   string `toml:"work_dir"`
	LogsDir   string `toml:"logs_dir"`
	HistoryDB string `toml:"history_db"`
}

// Render controls PDF rasterization.
type Render struct {
	Backend string `toml:"backend"`
	DPI     int    `toml:"dpi"`
	Workers int    `toml:"workers"`
}

// BlankDetection controls the blank page pass-through.
type BlankDetection struct {
	Enabled           bool    `toml:"enabled"`
	FuzzPercent       int     `toml:"fuzz_percent"`
	NonWhiteThreshold float64 `toml:"non_white_threshold"`
}

// Browser controls the automated Chrome instance.
type Browser struct {
	ExecPath     string `toml:"exec_path"`
	UserAgent    string `toml:"user_agent"`
	Headless     bool   `toml:"headless"`
	WindowWidth  int    `toml:"window_width"`
	WindowHeight int    `toml:"window_height"`
}

// Service describes the watermark removal web page and how long to wait on it.
type Service struct {
	URL                 string   `toml:"url"`
	UploadSelectors     []string `toml:"upload_selectors"`
	PopupSelectors      []string `toml:"popup_selectors"`
	CloseSelectors      []string `toml:"close_selectors"`
	ProcessingSelectors []string `toml:"processing_selectors"`
	DownloadSelectors   []string `toml:"download_selectors"`
	PageTimeout         Duration `toml:"page_timeout"`
	SelectorTimeout     Duration `toml:"selector_timeout"`
	PopupTimeout        Duration `toml:"popup_timeout"`
	ProcessingTimeout   Duration `toml:"processing_timeout"`
	DownloadTimeout     Duration `toml:"download_timeout"`
	PageLoadSettle      Duration `toml:"page_load_settle"`
	UploadSettle        Duration `toml:"upload_settle"`
	PageDelay           Duration `toml:"page_delay"`
	DocumentDelay       Duration `toml:"document_delay"`
}

// Assemble controls how cleaned images become the output PDF.
type Assemble struct {
	OutputPrefix    string `toml:"output_prefix"`
	Quality         int    `toml:"quality"`
	KeepFailedPages bool   `toml:"keep_failed_pages"`
}

// History controls the sqlite run ledger.
type History struct {
	Enabled       bool `toml:"enabled"`
	SkipProcessed bool `toml:"skip_processed"`
}

// NATS holds the optional messaging settings used by notifications and the worker.
type NATS struct {
	URL                      string `toml:"url"`
	NotifySubject            string `toml:"notify_subject"`
	PDFStreamName            string `toml:"pdf_stream_name"`
	PDFConsumerName          string `toml:"pdf_consumer_name"`
	PDFCreatedSubject        string `toml:"pdf_created_subject"`
	PDFObjectStoreBucket     string `toml:"pdf_object_store_bucket"`
	CleanedStreamName        string `toml:"cleaned_stream_name"`
	CleanedObjectStoreBucket string `toml:"cleaned_object_store_bucket"`
}

// Config is the full application configuration.
type Config struct {
	Paths          Paths          `toml:"paths"`
	Render         Render         `toml:"render"`
	BlankDetection BlankDetection `toml:"blank_detection"`
	Browser        Browser        `toml:"browser"`
	Service        Service        `toml:"service"`
	Assemble       Assemble       `toml:"assemble"`
	History        History        `toml:"history"`
	NATS           NATS           `toml:"nats"`
}

// Default returns the configuration used when no file, environment or flag
// overrides a value.
func Default() *Config {
	return &Config{
		Paths: Paths{
			InputDir:  "",
			OutputDir: defaultOutputDir,
			WorkDir:   "",
			LogsDir:   defaultLogsDir,
			HistoryDB: defaultHistoryDB,
		},
		Render: Render{
			Backend: BackendGhostscript,
			DPI:     defaultDPI,
			Workers: 0,
		},
		BlankDetection: BlankDetection{
			Enabled:           false,
			FuzzPercent:       defaultFuzzPercent,
			NonWhiteThreshold: defaultNonWhiteThreshold,
		},
		Browser: Browser{
			ExecPath:     "",
			UserAgent:    "",
			Headless:     true,
			WindowWidth:  defaultWindowWidth,
			WindowHeight: defaultWindowHeight,
		},
		Service: defaultService(),
		Assemble: Assemble{
			OutputPrefix:    defaultOutputPrefix,
			Quality:         defaultQuality,
			KeepFailedPages: false,
		},
		History: History{
			Enabled:       true,
			SkipProcessed: false,
		},
		NATS: NATS{
			URL:                      "",
			NotifySubject:            "documents.cleaned",
			PDFStreamName:            "WATERMARKED_PDFS",
			PDFConsumerName:          "watermark-remover",
			PDFCreatedSubject:        "pdfs.created",
			PDFObjectStoreBucket:     "pdfs",
			CleanedStreamName:        "CLEANED_PDFS",
			CleanedObjectStoreBucket: "cleaned-pdfs",
		},
	}
}

func defaultService() Service {
	return Service{
		URL: defaultServiceURL,
		UploadSelectors: []string{
			"input[type='file']",
			"#uploadImage",
			".upload-input",
			"[accept*='image']",
			".file-input",
			"[data-testid*='upload']",
		},
		PopupSelectors: []string{
			".modal", ".popup", ".overlay", ".hb-modal-img",
			".advertisement", "[role='dialog']", ".cookie-banner",
		},
		CloseSelectors: []string{
			`button[aria-label*="close"]`, `button[aria-label*="Close"]`,
			".close-btn", ".modal-close", "button.close",
			`[data-dismiss="modal"]`, ".popup-close", `[title*="Close"]`,
		},
		ProcessingSelectors: []string{
			".loading", ".processing", ".spinner", ".progress",
			"[data-processing='true']", ".uploading",
		},
		DownloadSelectors: []string{
			`button[data-test-id*="download"]`,
			`button[data-testid*="download"]`,
			".download-btn", ".btn-download",
			"button[download]", "a[download]",
			"text=Download",
			"text=Descargar",
			".download-button",
		},
		PageTimeout:       Duration{30 * time.Second},
		SelectorTimeout:   Duration{10 * time.Second},
		PopupTimeout:      Duration{3 * time.Second},
		ProcessingTimeout: Duration{120 * time.Second},
		DownloadTimeout:   Duration{60 * time.Second},
		PageLoadSettle:    Duration{2 * time.Second},
		UploadSettle:      Duration{2 * time.Second},
		PageDelay:         Duration{2 * time.Second},
		DocumentDelay:     Duration{5 * time.Second},
	}
}

// Load reads the TOML file at path on top of the defaults. An empty path or a
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		return cfg, nil
	}

	if _, decodeErr := toml.DecodeFile(path, cfg); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, decodeErr)
	}

	return cfg, nil
}

// Validate checks that the configuration can drive a run.
func (cfg *Config) Validate() error {
	checks := []struct {
		failed bool
		reason string
	}{
		{cfg.Render.DPI <= 0, "render.dpi must be positive"},
		{
			cfg.Render.Backend != BackendGhostscript && cfg.Render.Backend != BackendMuPDF,
			fmt.Sprintf("render.backend %q is not supported", cfg.Render.Backend),
		},
		{cfg.Assemble.Quality < 1 || cfg.Assemble.Quality > maxPercent, "assemble.quality must be between 1 and 100"},
		{
			cfg.BlankDetection.FuzzPercent < 0 || cfg.BlankDetection.FuzzPercent > maxPercent,
			"blank_detection.fuzz_percent must be between 0 and 100",
		},
		{
			cfg.BlankDetection.NonWhiteThreshold < 0 || cfg.BlankDetection.NonWhiteThreshold > 1,
			"blank_detection.non_white_threshold must be between 0.0 and 1.0",
		},
		{cfg.Service.URL == "", "service.url is required"},
		{len(cfg.Service.UploadSelectors) == 0, "service.upload_selectors must not be empty"},
		{len(cfg.Service.DownloadSelectors) == 0, "service.download_selectors must not be empty"},
		{cfg.Paths.OutputDir == "", "paths.output_dir is required"},
	}

	for _, check := range checks {
		if check.failed {
			return fmt.Errorf("%w: %s", ErrInvalidConfig, check.reason)
		}
	}

	return nil
}
