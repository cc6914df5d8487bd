package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		format string
		level  string
	}{
		{"json info", "json", "info"},
		{"json debug", "json", "DEBUG"},
		{"default format", "", "warn"},
		{"console error", "console", "error"},
		{"text warning", "text", "warning"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := NewLogger(Config{Format: tt.format, Level: tt.level, Output: &buf})
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			logger.Error().Msg("iteration failed")
			if !strings.Contains(buf.String(), "iteration failed") {
				t.Errorf("missing message in %q", buf.String())
			}
		})
	}
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	if _, err := NewLogger(Config{Format: "json", Level: "verbose"}); err == nil {
		t.Error("Expected error for invalid log level")
	}
	if _, err := NewLogger(Config{Format: "xml", Level: "info"}); err == nil {
		t.Error("Expected error for invalid log format")
	}
}

func TestJSONRunFields(t *testing.T) {
	var buf bytes.Buffer
	base, err := NewLogger(Config{Format: "json", Level: "debug", Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	logger := base.With().Str("run_id", "0badcafe").Str("algorithm", "xmeans").Logger()
	logger.Debug().Int("iter", 3).Int("changed", 17).Msg("iteration")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse JSON output: %v, output: %s", err, buf.String())
	}
	if entry["message"] != "iteration" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["run_id"] != "0badcafe" || entry["algorithm"] != "xmeans" {
		t.Errorf("context fields missing: %v", entry)
	}
	if entry["changed"] != float64(17) {
		t.Errorf("changed = %v", entry["changed"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("timestamp missing")
	}
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger(Config{Format: "json", Level: "warn", Output: &buf})

	logger.Debug().Msg("phase published")
	logger.Info().Msg("run started")
	logger.Warn().Msg("empty cluster")
	logger.Error().Msg("singular covariance")

	output := buf.String()
	for _, dropped := range []string{"phase published", "run started"} {
		if strings.Contains(output, dropped) {
			t.Errorf("%q should be filtered at warn level", dropped)
		}
	}
	for _, kept := range []string{"empty cluster", "singular covariance"} {
		if !strings.Contains(output, kept) {
			t.Errorf("%q should be present", kept)
		}
	}
}

func TestLoggingMetrics(t *testing.T) {
	logger, err := NewLogger(Config{Format: "json", Level: "info", Output: io.Discard})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	infoBefore := testutil.ToFloat64(LogEntriesTotal.WithLabelValues("info"))
	debugBefore := testutil.ToFloat64(LogEntriesTotal.WithLabelValues("debug"))
	errorsBefore := testutil.ToFloat64(LogErrorsTotal)

	logger.Info().Msg("one")
	logger.Info().Msg("two")
	logger.Debug().Msg("filtered")
	logger.Error().Msg("three")

	if got := testutil.ToFloat64(LogEntriesTotal.WithLabelValues("info")) - infoBefore; got != 2 {
		t.Errorf("Expected 2 info entries, got %v", got)
	}
	if got := testutil.ToFloat64(LogEntriesTotal.WithLabelValues("debug")) - debugBefore; got != 0 {
		t.Errorf("filtered entries were counted: %v", got)
	}
	if got := testutil.ToFloat64(LogErrorsTotal) - errorsBefore; got != 1 {
		t.Errorf("Expected 1 error entry, got %v", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Format != "json" || cfg.Level != "info" || cfg.Output == nil {
		t.Errorf("unexpected default %+v", cfg)
	}
}
