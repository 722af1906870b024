// Package config handles configuration loading, validation, and hot reload
// for wordfill.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Cache bounds the completion cache.
	Cache CacheConfig `toml:"cache" json:"cache" yaml:"cache"`

	// Suggest selects and configures suggestion services.
	Suggest SuggestConfig `toml:"suggest" json:"suggest" yaml:"suggest"`

	// Preload seeds the cache at startup.
	Preload PreloadConfig `toml:"preload" json:"preload" yaml:"preload"`

	// Extract tunes text extraction.
	Extract ExtractConfig `toml:"extract" json:"extract" yaml:"extract"`

	// Insert tunes text insertion.
	Insert InsertConfig `toml:"insert" json:"insert" yaml:"insert"`

	// Placement controls popup positioning.
	Placement PlacementConfig `toml:"placement" json:"placement" yaml:"placement"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IPC configuration for the control socket.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`

	// Metrics exposes prometheus collectors.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// Tracing exports per-cycle spans.
	Tracing TracingConfig `toml:"tracing" json:"tracing" yaml:"tracing"`

	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// CacheConfig holds completion cache budgets.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached words.
	MaxEntries int `toml:"max_entries" json:"max_entries" yaml:"max_entries"`

	// MaxBytes is the maximum total size of cached completions.
	MaxBytes int `toml:"max_bytes" json:"max_bytes" yaml:"max_bytes"`

	// SuggestTimeoutMs bounds a cache-miss call to the suggestion service.
	// A timeout yields zero completions.
	SuggestTimeoutMs int `toml:"suggest_timeout_ms" json:"suggest_timeout_ms" yaml:"suggest_timeout_ms"`
}

// SuggestConfig holds suggestion service configuration.
type SuggestConfig struct {
	// Providers is the ordered list of services: "system", "lexicon", "sqlite".
	// The first non-empty answer wins.
	Providers []string `toml:"providers" json:"providers" yaml:"providers"`

	// Locale is the BCP-47 language tag passed to services.
	Locale string `toml:"locale" json:"locale" yaml:"locale"`

	// WordList is a newline-separated word list for the lexicon provider.
	// Lines may carry a tab-separated frequency.
	WordList string `toml:"word_list" json:"word_list" yaml:"word_list"`

	// SQLitePath is a read-only database with a words(word, freq) table.
	SQLitePath string `toml:"sqlite_path" json:"sqlite_path" yaml:"sqlite_path"`

	// MaxResults caps the completions returned per word.
	MaxResults int `toml:"max_results" json:"max_results" yaml:"max_results"`

	// MinPrefix is the shortest word that is sent to services.
	MinPrefix int `toml:"min_prefix" json:"min_prefix" yaml:"min_prefix"`
}

// PreloadConfig holds cache preload configuration.
type PreloadConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// WordsFile lists seed words, one per line. Empty uses the
	// built-in common prefixes.
	WordsFile string `toml:"words_file" json:"words_file" yaml:"words_file"`

	// Concurrency bounds parallel service calls.
	Concurrency int `toml:"concurrency" json:"concurrency" yaml:"concurrency"`

	// RatePerSec limits service calls per second.
	RatePerSec float64 `toml:"rate_per_sec" json:"rate_per_sec" yaml:"rate_per_sec"`
}

// ExtractConfig holds text extraction configuration.
type ExtractConfig struct {
	// Strategies is the ordered list: "value", "selection", "title".
	Strategies []string `toml:"strategies" json:"strategies" yaml:"strategies"`

	// MaxTextLength windows very large fields around the cursor.
	MaxTextLength int `toml:"max_text_length" json:"max_text_length" yaml:"max_text_length"`
}

// InsertConfig holds text insertion configuration.
type InsertConfig struct {
	// Strategies is the ordered list: "structured", "synthesized".
	Strategies []string `toml:"strategies" json:"strategies" yaml:"strategies"`

	// VerifyDelayMs is the wait before re-reading a structured write.
	VerifyDelayMs int `toml:"verify_delay_ms" json:"verify_delay_ms" yaml:"verify_delay_ms"`

	// KeyDelayMs is the pause between synthesized key events.
	KeyDelayMs int `toml:"key_delay_ms" json:"key_delay_ms" yaml:"key_delay_ms"`

	// ClipboardFallback pastes characters that cannot be typed.
	ClipboardFallback bool `toml:"clipboard_fallback" json:"clipboard_fallback" yaml:"clipboard_fallback"`

	// ClipboardRestoreMs is the wait before restoring the clipboard.
	ClipboardRestoreMs int `toml:"clipboard_restore_ms" json:"clipboard_restore_ms" yaml:"clipboard_restore_ms"`
}

// PlacementConfig holds popup positioning configuration.
type PlacementConfig struct {
	// Preference is "below" or "above".
	Preference string `toml:"preference" json:"preference" yaml:"preference"`

	// Margin is the gap between cursor and popup in points.
	Margin float64 `toml:"margin" json:"margin" yaml:"margin"`

	// Inset keeps the popup away from display edges in points.
	Inset float64 `toml:"inset" json:"inset" yaml:"inset"`

	// PopupWidth and PopupHeight are the assumed popup size in points.
	PopupWidth  float64 `toml:"popup_width" json:"popup_width" yaml:"popup_width"`
	PopupHeight float64 `toml:"popup_height" json:"popup_height" yaml:"popup_height"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of rotated log files.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
}

// IPCConfig holds control socket configuration.
type IPCConfig struct {
	// SocketPath is the Unix socket path.
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	// Permissions is the octal socket file mode.
	Permissions string `toml:"permissions" json:"permissions" yaml:"permissions"`

	// MaxConnections is the maximum number of concurrent clients.
	MaxConnections int `toml:"max_connections" json:"max_connections" yaml:"max_connections"`

	// TimeoutSec is the idle read timeout for clients.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
}

// MetricsConfig holds prometheus exposition configuration.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Listen is the address for the /metrics endpoint, e.g. "127.0.0.1:9464".
	Listen string `toml:"listen" json:"listen" yaml:"listen"`
}

// TracingConfig holds OpenTelemetry configuration.
type TracingConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// OutputPath receives stdout-exporter spans. Empty means stderr.
	OutputPath string `toml:"output_path" json:"output_path" yaml:"output_path"`

	// SampleRatio is the fraction of cycles traced.
	SampleRatio float64 `toml:"sample_ratio" json:"sample_ratio" yaml:"sample_ratio"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Cache: CacheConfig{
			MaxEntries:       2000,
			MaxBytes:         4 << 20,
			SuggestTimeoutMs: 50,
		},
		Suggest: SuggestConfig{
			Providers:  defaultProviders(),
			Locale:     "en",
			MaxResults: 10,
			MinPrefix:  1,
		},
		Preload: PreloadConfig{
			Enabled:     true,
			Concurrency: 2,
			RatePerSec:  50,
		},
		Extract: ExtractConfig{
			Strategies:    []string{"value", "selection", "title"},
			MaxTextLength: 1 << 20,
		},
		Insert: InsertConfig{
			Strategies:         []string{"structured", "synthesized"},
			VerifyDelayMs:      15,
			KeyDelayMs:         2,
			ClipboardFallback:  true,
			ClipboardRestoreMs: 150,
		},
		Placement: PlacementConfig{
			Preference:  "below",
			Margin:      4,
			Inset:       8,
			PopupWidth:  240,
			PopupHeight: 180,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "wordfill.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		IPC: IPCConfig{
			SocketPath:     DefaultSocketPath(),
			Permissions:    "0600",
			MaxConnections: 16,
			TimeoutSec:     300,
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9464",
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	if envPath := os.Getenv("WORDFILL_CONFIG"); envPath != "" {
		return envPath
	}
	if found := FindConfigFile(); found != "" {
		return found
	}
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// ApplyEnvOverrides applies WORDFILL_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("WORDFILL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("WORDFILL_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("WORDFILL_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}
	if v := os.Getenv("WORDFILL_LOCALE"); v != "" {
		c.Suggest.Locale = v
	}
	if v := os.Getenv("WORDFILL_WORD_LIST"); v != "" {
		c.Suggest.WordList = v
	}
	if v := os.Getenv("WORDFILL_SUGGEST_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Cache.SuggestTimeoutMs = ms
		}
	}
	if v := os.Getenv("WORDFILL_METRICS_LISTEN"); v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Listen = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version:   c.Version,
		Cache:     c.Cache,
		Suggest:   c.Suggest,
		Preload:   c.Preload,
		Extract:   c.Extract,
		Insert:    c.Insert,
		Placement: c.Placement,
		Logging:   c.Logging,
		IPC:       c.IPC,
		Metrics:   c.Metrics,
		Tracing:   c.Tracing,
	}
	clone.Suggest.Providers = append([]string(nil), c.Suggest.Providers...)
	clone.Extract.Strategies = append([]string(nil), c.Extract.Strategies...)
	clone.Insert.Strategies = append([]string(nil), c.Insert.Strategies...)
	return clone
}

// SuggestTimeout returns the cache-miss service deadline.
func (c *Config) SuggestTimeout() time.Duration {
	return time.Duration(c.Cache.SuggestTimeoutMs) * time.Millisecond
}

// VerifyDelay returns the structured-write read-back delay.
func (c *Config) VerifyDelay() time.Duration {
	return time.Duration(c.Insert.VerifyDelayMs) * time.Millisecond
}

// KeyDelay returns the pause between synthesized key events.
func (c *Config) KeyDelay() time.Duration {
	return time.Duration(c.Insert.KeyDelayMs) * time.Millisecond
}

// ClipboardRestoreDelay returns the wait before the clipboard is restored.
func (c *Config) ClipboardRestoreDelay() time.Duration {
	return time.Duration(c.Insert.ClipboardRestoreMs) * time.Millisecond
}

// IPCTimeout returns the client idle timeout.
func (c *Config) IPCTimeout() time.Duration {
	return time.Duration(c.IPC.TimeoutSec) * time.Second
}

// SocketMode parses Permissions, falling back to 0600.
func (c *Config) SocketMode() os.FileMode {
	mode, err := strconv.ParseUint(c.IPC.Permissions, 8, 32)
	if err != nil || mode == 0 {
		return 0o600
	}
	return os.FileMode(mode)
}
