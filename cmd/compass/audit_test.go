package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"mercator-hq/compass/pkg/audit"
	auditstorage "mercator-hq/compass/pkg/audit/storage"
	"mercator-hq/compass/pkg/cli"
	"mercator-hq/compass/pkg/config"
)

// seedAudit creates a sqlite audit store with a few events and points the
// config file at it.
func seedAudit(t *testing.T, retentionDays int) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "audit.db")

	cfg := config.Default()
	cfg.Audit.Backend = "sqlite"
	cfg.Audit.SQLite.Path = dbPath

	ctx := context.Background()
	store, err := auditstorage.New(ctx, &cfg.Audit)
	if err != nil {
		t.Fatalf("auditstorage.New() error = %v", err)
	}
	now := time.Now().UTC()
	events := []*audit.Event{
		{RecommendationID: "rec-1", Status: audit.StatusShown, RuleID: "follow-up", ContextID: "D-1", Timestamp: now.Add(-90 * 24 * time.Hour)},
		{RecommendationID: "rec-1", Status: audit.StatusAccepted, RuleID: "follow-up", ContextID: "D-1", ActorID: "u-1", Timestamp: now.Add(-2 * time.Hour)},
		{RecommendationID: "rec-2", Status: audit.StatusFailed, RuleID: "discount", ContextID: "D-2", Outcome: "timeout", Timestamp: now.Add(-time.Hour)},
	}
	for _, ev := range events {
		if _, err := store.Append(ctx, ev); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	useConfig(t, strings.Join([]string{
		"audit:",
		"  backend: sqlite",
		"  sqlite:",
		"    path: " + dbPath,
		"  retention:",
		"    days: " + strconv.Itoa(retentionDays),
		"",
	}, "\n"))

	auditFlags.recommendationID = ""
	auditFlags.status = ""
	auditFlags.ruleID = ""
	auditFlags.contextID = ""
	auditFlags.actorID = ""
	auditFlags.since = ""
	auditFlags.until = ""
	auditFlags.limit = 1000
	auditFlags.order = "asc"
	auditFlags.format = "json"
	auditFlags.count = false
	auditFlags.dryRun = false
}

func TestAuditQueryJSON(t *testing.T) {
	seedAudit(t, 0)
	auditFlags.recommendationID = "rec-1"

	cmd, out := testCommand()
	if err := runAuditQuery(cmd, nil); err != nil {
		t.Fatalf("runAuditQuery() error = %v", err)
	}

	var events []*audit.Event
	if err := json.Unmarshal(out.Bytes(), &events); err != nil {
		t.Fatalf("Unmarshal() error = %v\n%s", err, out.String())
	}
	if len(events) != 2 {
		t.Fatalf("runAuditQuery() returned %d events, want 2", len(events))
	}
	if events[0].Status != audit.StatusShown || events[1].Status != audit.StatusAccepted {
		t.Errorf("statuses = %s, %s, want shown, accepted", events[0].Status, events[1].Status)
	}
}

func TestAuditQueryCSVSince(t *testing.T) {
	seedAudit(t, 0)
	auditFlags.since = "24h"
	auditFlags.order = "desc"
	auditFlags.format = "csv"

	cmd, out := testCommand()
	if err := runAuditQuery(cmd, nil); err != nil {
		t.Fatalf("runAuditQuery() error = %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(out.String())).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("runAuditQuery() wrote %d CSV records, want header + 2", len(records))
	}
	if !strings.Contains(strings.Join(records[1], ","), "rec-2") {
		t.Errorf("first row = %v, want the newest event (rec-2)", records[1])
	}
}

func TestAuditQueryCount(t *testing.T) {
	seedAudit(t, 0)
	auditFlags.status = audit.StatusFailed
	auditFlags.count = true

	cmd, out := testCommand()
	if err := runAuditQuery(cmd, nil); err != nil {
		t.Fatalf("runAuditQuery() error = %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "1" {
		t.Errorf("runAuditQuery() count = %q, want %q", got, "1")
	}
}

func TestAuditQueryInvalidFlags(t *testing.T) {
	tests := []struct {
		name  string
		apply func()
	}{
		{"unknown status", func() { auditFlags.status = "generated" }},
		{"bad order", func() { auditFlags.order = "sideways" }},
		{"bad since", func() { auditFlags.since = "last week" }},
		{"bad format", func() { auditFlags.format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seedAudit(t, 0)
			tt.apply()

			cmd, _ := testCommand()
			err := runAuditQuery(cmd, nil)
			if code := cli.ExitCode(err); code != cli.ExitConfig {
				t.Errorf("runAuditQuery() exit code = %d, want %d (err %v)", code, cli.ExitConfig, err)
			}
		})
	}
}

func TestAuditPrune(t *testing.T) {
	seedAudit(t, 30)

	cmd, out := testCommand()
	auditFlags.dryRun = true
	if err := runAuditPrune(cmd, nil); err != nil {
		t.Fatalf("runAuditPrune(dry-run) error = %v", err)
	}
	if !strings.Contains(out.String(), "1 events") {
		t.Errorf("dry-run output = %q, want 1 event to prune", out.String())
	}

	cmd, out = testCommand()
	auditFlags.dryRun = false
	if err := runAuditPrune(cmd, nil); err != nil {
		t.Fatalf("runAuditPrune() error = %v", err)
	}
	if !strings.Contains(out.String(), "Pruned 1 events") {
		t.Errorf("runAuditPrune() output = %q, want 1 event pruned", out.String())
	}

	cmd, out = testCommand()
	auditFlags.count = true
	if err := runAuditQuery(cmd, nil); err != nil {
		t.Fatalf("runAuditQuery() error = %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "2" {
		t.Errorf("events after prune = %q, want %q", got, "2")
	}
}

func TestAuditPruneDisabled(t *testing.T) {
	seedAudit(t, 0)

	cmd, out := testCommand()
	if err := runAuditPrune(cmd, nil); err != nil {
		t.Fatalf("runAuditPrune() error = %v", err)
	}
	if !strings.Contains(out.String(), "disabled") {
		t.Errorf("runAuditPrune() output = %q, want retention disabled", out.String())
	}
}

func TestParseTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in      string
		want    time.Time
		wantNil bool
		wantErr bool
	}{
		{in: "", wantNil: true},
		{in: "2026-01-02T03:04:05Z", want: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{in: "90m", want: now.Add(-90 * time.Minute)},
		{in: "tomorrow", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseTime(tt.in, now)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseTime(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			continue
		}
		if tt.wantNil {
			if got != nil {
				t.Errorf("parseTime(%q) = %v, want nil", tt.in, got)
			}
			continue
		}
		if got == nil || !got.Equal(tt.want) {
			t.Errorf("parseTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
