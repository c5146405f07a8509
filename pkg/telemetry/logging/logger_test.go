package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"mercator-hq/compass/pkg/config"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("invalid JSON log line %q: %v", buf.String(), err)
	}
	return m
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		wantErr bool
	}{
		{"defaults", config.LoggingConfig{}, false},
		{"text debug", config.LoggingConfig{Level: "debug", Format: "text"}, false},
		{"bad level", config.LoggingConfig{Level: "verbose"}, true},
		{"bad format", config.LoggingConfig{Format: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(&tt.cfg, &bytes.Buffer{})
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&config.LoggingConfig{Level: "warn"}, &buf)
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info record written at warn level: %s", buf.String())
	}
	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn record missing: %s", buf.String())
	}
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&config.LoggingConfig{}, &buf)
	if err != nil {
		t.Fatal(err)
	}

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithContextID(ctx, "deal-42")
	ctx = WithRecommendationID(ctx, "rec-7")
	logger.InfoContext(ctx, "evaluated", "candidates", 2)

	m := decodeLine(t, &buf)
	for key, want := range map[string]string{
		"request_id":        "req-1",
		"context_id":        "deal-42",
		"recommendation_id": "rec-7",
	} {
		if m[key] != want {
			t.Errorf("%s = %v, want %q", key, m[key], want)
		}
	}
	if m["candidates"] != float64(2) {
		t.Errorf("candidates = %v, want 2", m["candidates"])
	}
}

func TestLogger_RedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&config.LoggingConfig{}, &buf)
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("connecting", "redis_password", "hunter2", "address", "localhost:6379")
	m := decodeLine(t, &buf)
	if m["redis_password"] != Redacted {
		t.Errorf("redis_password = %v, want %q", m["redis_password"], Redacted)
	}
	if m["address"] != "localhost:6379" {
		t.Errorf("address = %v, want unchanged", m["address"])
	}
}

func TestContextGetters_Empty(t *testing.T) {
	ctx := context.Background()
	if GetRequestID(ctx) != "" || GetContextID(ctx) != "" || GetRecommendationID(ctx) != "" {
		t.Error("getters on empty context returned non-empty values")
	}
}

func TestParseLevel(t *testing.T) {
	for _, in := range []string{"debug", "INFO", "", "warning", "error"} {
		if _, err := ParseLevel(in); err != nil {
			t.Errorf("ParseLevel(%q) error = %v", in, err)
		}
	}
	if _, err := ParseLevel("trace"); err == nil {
		t.Error("ParseLevel(trace) error = nil, want error")
	}
}
