package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks semantic constraints the schema cannot express.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ValidateConfig(c)
}

// ValidateConfig performs validation of every section.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateCache(&c.Cache)...)
	errs = append(errs, validateSuggest(&c.Suggest)...)
	errs = append(errs, validatePreload(&c.Preload)...)
	errs = append(errs, validateExtract(&c.Extract)...)
	errs = append(errs, validateInsert(&c.Insert)...)
	errs = append(errs, validatePlacement(&c.Placement)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateIPC(&c.IPC)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)
	errs = append(errs, validateTracing(&c.Tracing)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateCache(c *CacheConfig) ValidationErrors {
	var errs ValidationErrors
	if c.MaxEntries < 1 {
		errs = append(errs, ValidationError{"cache.max_entries", "must be at least 1"})
	}
	if c.MaxBytes < 1 {
		errs = append(errs, ValidationError{"cache.max_bytes", "must be at least 1"})
	}
	if c.SuggestTimeoutMs < 1 || c.SuggestTimeoutMs > 5000 {
		errs = append(errs, ValidationError{"cache.suggest_timeout_ms", "must be between 1 and 5000"})
	}
	return errs
}

var validProviders = map[string]bool{"system": true, "lexicon": true, "sqlite": true}

func validateSuggest(s *SuggestConfig) ValidationErrors {
	var errs ValidationErrors
	if len(s.Providers) == 0 {
		errs = append(errs, ValidationError{"suggest.providers", "at least one provider is required"})
	}
	seen := make(map[string]bool)
	for i, p := range s.Providers {
		field := fmt.Sprintf("suggest.providers[%d]", i)
		if !validProviders[p] {
			errs = append(errs, ValidationError{field, fmt.Sprintf("unknown provider %q", p)})
		}
		if seen[p] {
			errs = append(errs, ValidationError{field, fmt.Sprintf("duplicate provider %q", p)})
		}
		seen[p] = true
		if p == "sqlite" && s.SQLitePath == "" {
			errs = append(errs, ValidationError{"suggest.sqlite_path", "required when the sqlite provider is enabled"})
		}
	}
	if s.Locale == "" {
		errs = append(errs, ValidationError{"suggest.locale", "must not be empty"})
	}
	if s.WordList != "" && !filepath.IsAbs(s.WordList) {
		errs = append(errs, ValidationError{"suggest.word_list", "must be an absolute path"})
	}
	if s.MaxResults < 1 {
		errs = append(errs, ValidationError{"suggest.max_results", "must be at least 1"})
	}
	if s.MinPrefix < 1 {
		errs = append(errs, ValidationError{"suggest.min_prefix", "must be at least 1"})
	}
	return errs
}

func validatePreload(p *PreloadConfig) ValidationErrors {
	var errs ValidationErrors
	if !p.Enabled {
		return nil
	}
	if p.Concurrency < 1 {
		errs = append(errs, ValidationError{"preload.concurrency", "must be at least 1"})
	}
	if p.RatePerSec <= 0 {
		errs = append(errs, ValidationError{"preload.rate_per_sec", "must be positive"})
	}
	return errs
}

func validateExtract(e *ExtractConfig) ValidationErrors {
	var errs ValidationErrors
	errs = append(errs, validateStrategies("extract.strategies", e.Strategies, "value", "selection", "title")...)
	if e.MaxTextLength < 64 {
		errs = append(errs, ValidationError{"extract.max_text_length", "must be at least 64"})
	}
	return errs
}

func validateInsert(i *InsertConfig) ValidationErrors {
	var errs ValidationErrors
	errs = append(errs, validateStrategies("insert.strategies", i.Strategies, "structured", "synthesized")...)
	if i.VerifyDelayMs < 0 || i.VerifyDelayMs > 1000 {
		errs = append(errs, ValidationError{"insert.verify_delay_ms", "must be between 0 and 1000"})
	}
	if i.KeyDelayMs < 0 || i.KeyDelayMs > 200 {
		errs = append(errs, ValidationError{"insert.key_delay_ms", "must be between 0 and 200"})
	}
	if i.ClipboardRestoreMs < 0 {
		errs = append(errs, ValidationError{"insert.clipboard_restore_ms", "must not be negative"})
	}
	return errs
}

func validateStrategies(field string, got []string, allowed ...string) ValidationErrors {
	var errs ValidationErrors
	if len(got) == 0 {
		return ValidationErrors{{field, "at least one strategy is required"}}
	}
	ok := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		ok[a] = true
	}
	seen := make(map[string]bool)
	for i, s := range got {
		if !ok[s] {
			errs = append(errs, ValidationError{fmt.Sprintf("%s[%d]", field, i), fmt.Sprintf("unknown strategy %q", s)})
		}
		if seen[s] {
			errs = append(errs, ValidationError{fmt.Sprintf("%s[%d]", field, i), fmt.Sprintf("duplicate strategy %q", s)})
		}
		seen[s] = true
	}
	return errs
}

func validatePlacement(p *PlacementConfig) ValidationErrors {
	var errs ValidationErrors
	if p.Preference != "below" && p.Preference != "above" {
		errs = append(errs, ValidationError{"placement.preference", "must be \"below\" or \"above\""})
	}
	if p.Margin < 0 {
		errs = append(errs, ValidationError{"placement.margin", "must not be negative"})
	}
	if p.Inset < 0 {
		errs = append(errs, ValidationError{"placement.inset", "must not be negative"})
	}
	if p.PopupWidth <= 0 || p.PopupHeight <= 0 {
		errs = append(errs, ValidationError{"placement.popup_width", "popup size must be positive"})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{"logging.level", fmt.Sprintf("invalid level %q", l.Level)})
	}
	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{"logging.format", fmt.Sprintf("invalid format %q", l.Format)})
	}
	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{"logging.file_path", "required for file output"})
		}
	default:
		errs = append(errs, ValidationError{"logging.output", fmt.Sprintf("invalid output %q", l.Output)})
	}
	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{"logging.max_size_mb", "must be at least 1"})
	}
	return errs
}

func validateIPC(i *IPCConfig) ValidationErrors {
	var errs ValidationErrors
	if i.SocketPath == "" {
		errs = append(errs, ValidationError{"ipc.socket_path", "must not be empty"})
	} else if len(i.SocketPath) > 100 {
		errs = append(errs, ValidationError{"ipc.socket_path", "too long for a unix socket"})
	}
	if i.Permissions != "" {
		mode, err := strconv.ParseUint(i.Permissions, 8, 32)
		if err != nil {
			errs = append(errs, ValidationError{"ipc.permissions", "must be an octal file mode"})
		} else if mode&0o007 != 0 {
			errs = append(errs, ValidationError{"ipc.permissions", "must not be world accessible"})
		}
	}
	if i.MaxConnections < 1 {
		errs = append(errs, ValidationError{"ipc.max_connections", "must be at least 1"})
	}
	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Listen); err != nil {
		return ValidationErrors{{"metrics.listen", fmt.Sprintf("invalid address: %v", err)}}
	}
	return nil
}

func validateTracing(t *TracingConfig) ValidationErrors {
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		return ValidationErrors{{"tracing.sample_ratio", "must be between 0 and 1"}}
	}
	return nil
}
