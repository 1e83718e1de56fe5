package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Browser   BrowserConfig
	Loader    LoaderConfig
	Batch     BatchConfig
	Preflight PreflightConfig
	Sink      SinkConfig
	Server    ServerConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// BrowserConfig controls the Rod browser sessions.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is the proxy URL for all sessions.
	Proxy string

	// NavigationTimeout is the max time for a single page.Navigate.
	NavigationTimeout time.Duration // default: 30s

	// BlockedResourceTypes lists resource types to block during loads.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string
}

// LoaderConfig controls the scroll/load controller.
type LoaderConfig struct {
	// MaxIterations is the hard cap on load iterations per item.
	MaxIterations int // default: 100

	// StagnationThreshold is the number of consecutive no-growth probes
	// after which loading stops.
	StagnationThreshold int // default: 5

	// StagnationPolicy decides the outcome when loading stagnates before
	// the target count. "partial" treats any non-empty page as success;
	// "strict" fails the item.
	StagnationPolicy string // "partial" (default) or "strict"
}

// BatchConfig controls the batch orchestrator.
type BatchConfig struct {
	// PerItemTarget is the record count each item tries to reach.
	PerItemTarget int // default: 1000

	// Workers is the number of independent item pipelines. Each worker
	// owns at most one browser session at a time.
	Workers int // default: 1 (sequential)

	// NavsPerMinute caps the navigation rate across all workers.
	NavsPerMinute float64 // default: 6
}

// PreflightConfig controls the HTTP static fast path.
type PreflightConfig struct {
	// Enabled toggles the pre-browser HTTP probe. Off by default:
	// stealth-sensitive targets fingerprint plain HTTP clients.
	Enabled bool // default: false

	// Timeout is the deadline for one probe.
	Timeout time.Duration // default: 8s
}

// SinkConfig controls result persistence.
type SinkConfig struct {
	// OutputDir is where the workbook is written.
	OutputDir string // default: "."

	// DuplicateDistance is the simhash Hamming distance at or below which
	// two record contents count as near-duplicates.
	DuplicateDistance int // default: 3
}

// ServerConfig controls the optional read-only status API.
type ServerConfig struct {
	// Addr is the listen address. Empty disables the server.
	Addr string

	// Mode is the gin mode: "debug", "release", "test".
	Mode string // default: "release"

	// APIKeys restricts the status endpoints when non-empty.
	APIKeys []string
}

// WebhookConfig controls the run-completion webhook.
type WebhookConfig struct {
	// URL is the endpoint to notify. Empty disables delivery.
	URL string

	// Secret signs the payload with HMAC-SHA256 when non-empty.
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:          envBoolOr("GLEANER_HEADLESS", true),
			NoSandbox:         envBoolOr("GLEANER_NO_SANDBOX", false),
			BrowserBin:        os.Getenv("GLEANER_BROWSER_BIN"),
			Proxy:             os.Getenv("GLEANER_PROXY"),
			NavigationTimeout: envDurationOr("GLEANER_NAV_TIMEOUT", 30*time.Second),
			BlockedResourceTypes: envSliceOr("GLEANER_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
		},
		Loader: LoaderConfig{
			MaxIterations:       envIntOr("GLEANER_MAX_ITERATIONS", 100),
			StagnationThreshold: envIntOr("GLEANER_STAGNATION_THRESHOLD", 5),
			StagnationPolicy:    envOr("GLEANER_STAGNATION_POLICY", "partial"),
		},
		Batch: BatchConfig{
			PerItemTarget: envIntOr("GLEANER_PER_ITEM_TARGET", 1000),
			Workers:       envIntOr("GLEANER_WORKERS", 1),
			NavsPerMinute: envFloatOr("GLEANER_NAVS_PER_MINUTE", 6.0),
		},
		Preflight: PreflightConfig{
			Enabled: envBoolOr("GLEANER_PREFLIGHT", false),
			Timeout: envDurationOr("GLEANER_PREFLIGHT_TIMEOUT", 8*time.Second),
		},
		Sink: SinkConfig{
			OutputDir:         envOr("GLEANER_OUTPUT_DIR", "."),
			DuplicateDistance: envIntOr("GLEANER_DUP_DISTANCE", 3),
		},
		Server: ServerConfig{
			Addr:    os.Getenv("GLEANER_STATUS_ADDR"),
			Mode:    envOr("GLEANER_STATUS_MODE", "release"),
			APIKeys: envSliceOr("GLEANER_STATUS_API_KEYS", nil),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("GLEANER_WEBHOOK_URL"),
			Secret: os.Getenv("GLEANER_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("GLEANER_LOG_LEVEL", "info"),
			Format: envOr("GLEANER_LOG_FORMAT", "text"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
