package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"ERROR", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	for _, name := range []string{"debug", "info", "warn", "error"} {
		level, err := ParseLevel(name)
		if err != nil {
			t.Fatal(err)
		}
		if got := LevelString(level); got != name {
			t.Errorf("LevelString(%v) = %q, want %q", level, got, name)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat("JSON") != FormatJSON {
		t.Error("expected JSON format")
	}
	if ParseFormat("text") != FormatText || ParseFormat("") != FormatText {
		t.Error("expected text format")
	}
}

func TestShouldRedact(t *testing.T) {
	tests := []struct {
		key      string
		expected bool
	}{
		{"password", true},
		{"auth_token", true},
		{"cookie", true},
		{"text", true},
		{"word", true},
		{"completions", true},
		{"replacement", true},
		{"word_length", false},
		{"cycle_id", false},
		{"strategy", false},
		{"app", false},
	}

	for _, test := range tests {
		t.Run(test.key, func(t *testing.T) {
			if got := shouldRedact(test.key); got != test.expected {
				t.Errorf("shouldRedact(%q) = %v, expected %v", test.key, got, test.expected)
			}
		})
	}
}

func TestRedactionInOutput(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{Level: LevelDebug, Format: FormatJSON, Component: "test", RedactKeys: []string{"bundle"}}
	logger := NewWithWriter(&buf, cfg)

	logger.Info("extracted", "word", "helo", "word_length", 4, "bundle", "com.example")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry["word"] != "[REDACTED]" {
		t.Errorf("word not redacted: %v", entry["word"])
	}
	if entry["bundle"] != "[REDACTED]" {
		t.Errorf("extra key not redacted: %v", entry["bundle"])
	}
	if entry["word_length"] != float64(4) {
		t.Errorf("word_length altered: %v", entry["word_length"])
	}
	if entry["component"] != "test" {
		t.Errorf("component missing: %v", entry["component"])
	}
}

func TestWithRequestIDAndComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, &Config{Level: LevelInfo, Format: FormatText})

	ctx := ContextWithRequestID(context.Background(), "01HZX")
	logger.WithContext(ctx).WithComponent("cache").Info("hit")

	out := buf.String()
	if !strings.Contains(out, "request_id=01HZX") {
		t.Errorf("missing request_id in %q", out)
	}
	if !strings.Contains(out, "component=cache") {
		t.Errorf("missing component in %q", out)
	}
}

func TestRequestIDFromContext(t *testing.T) {
	if got := RequestIDFromContext(nil); got != "" { //nolint:staticcheck
		t.Errorf("expected empty, got %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
	ctx := ContextWithRequestID(context.Background(), "abc")
	if got := RequestIDFromContext(ctx); got != "abc" {
		t.Errorf("expected abc, got %q", got)
	}
}

func TestLoggerFileOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = filepath.Join(t.TempDir(), "wordfill.log")
	cfg.Compress = false

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	logger.Info("started", "socket", "/tmp/x.sock")
	if err := logger.Sync(); err != nil {
		t.Errorf("sync: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("close: %v", err)
	}

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "started") {
		t.Errorf("log file missing entry: %q", data)
	}
}

func TestFileRotatorRotatesBySize(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	rotator, err := NewFileRotator(&Config{FilePath: logPath, MaxSize: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}

	line := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 4; i++ {
		if _, err := rotator.Write(line); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := rotator.Close(); err != nil {
		t.Fatal(err)
	}

	files, err := rotator.LogFiles()
	if err != nil {
		t.Fatal(err)
	}
	// current + at most MaxBackups rotated files
	if len(files) < 2 || len(files) > 3 {
		t.Errorf("expected 2..3 files, got %d: %v", len(files), files)
	}
}

func TestFileRotatorRotatesDaily(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "daily.log")
	rotator, err := NewFileRotator(&Config{FilePath: logPath, MaxSize: 10, MaxBackups: 5})
	if err != nil {
		t.Fatal(err)
	}
	defer rotator.Close()

	rotator.Write([]byte("day one\n"))
	tomorrow := time.Now().Add(24 * time.Hour)
	rotator.now = func() time.Time { return tomorrow }
	rotator.Write([]byte("day two\n"))
	rotator.pending.Wait()

	files, _ := rotator.LogFiles()
	if len(files) != 2 {
		t.Errorf("expected a rotated file, got %v", files)
	}
}

func TestCrashHandlerRecover(t *testing.T) {
	var got CrashReport
	handler := NewCrashHandler(&CrashHandlerConfig{
		CrashDir:  t.TempDir(),
		Version:   "1.0.0",
		Component: "test",
		OnCrash:   func(r CrashReport) { got = r },
	})

	panicked := handler.Recover("cycle-1", func() { panic("boom") })
	if !panicked {
		t.Fatal("expected panic to be recovered")
	}
	if got.PanicValue != "boom" || got.CycleID != "cycle-1" {
		t.Errorf("unexpected report: %+v", got)
	}

	reports, err := handler.CrashReports()
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 || reports[0].Version != "1.0.0" {
		t.Errorf("expected one stored report, got %+v", reports)
	}

	if err := handler.ClearCrashReports(); err != nil {
		t.Fatal(err)
	}
	reports, _ = handler.CrashReports()
	if len(reports) != 0 {
		t.Error("crash reports were not cleared")
	}
}

func TestCrashHandlerNoPanic(t *testing.T) {
	handler := NewCrashHandler(&CrashHandlerConfig{CrashDir: t.TempDir()})
	ran := false
	if handler.Recover("", func() { ran = true }) {
		t.Error("reported panic for clean run")
	}
	if !ran {
		t.Error("function did not run")
	}
}

func TestSetLevelReachesDerivedLoggers(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = LevelInfo
	root := NewWithWriter(&buf, cfg)
	child := root.WithComponent("cache")

	child.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug logged at info level: %q", buf.String())
	}

	root.SetLevel(LevelDebug)
	child.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("debug not logged after SetLevel: %q", buf.String())
	}
}
