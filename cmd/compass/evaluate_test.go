package main

import (
	"encoding/json"
	"strings"
	"testing"

	"mercator-hq/compass/pkg/cli"
	"mercator-hq/compass/pkg/recommend"
)

func setupEvaluate(t *testing.T) string {
	t.Helper()
	dir := useConfig(t, "")
	packs := writeFile(t, dir, "rules/deal.yaml", dealPack)
	useConfig(t, "rules:\n  source: file\n  path: "+packs+"\nevaluation:\n  max_batch_size: 1\n")

	evaluateFlags.rulesPath = ""
	evaluateFlags.asOf = ""
	evaluateFlags.topN = 0
	evaluateFlags.format = cli.FormatText
	evaluateFlags.progress = false
	return dir
}

func TestEvaluateText(t *testing.T) {
	dir := setupEvaluate(t)
	evaluateFlags.contextFile = writeFile(t, dir, "deal.json",
		`{"context_type": "deal", "context_id": "D-1", "attributes": {"amount": 5000}}`)

	cmd, out := testCommand()
	if err := runEvaluate(cmd, nil); err != nil {
		t.Fatalf("runEvaluate() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("runEvaluate() printed %d lines, want 3:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[1], "follow-up") || !strings.Contains(lines[1], "Deal D-1 needs a follow up") {
		t.Errorf("first row = %q, want the follow-up rule with its reason", lines[1])
	}
	if !strings.Contains(lines[2], "discount") {
		t.Errorf("second row = %q, want the discount rule", lines[2])
	}
}

func TestEvaluateJSONBatch(t *testing.T) {
	dir := setupEvaluate(t)
	evaluateFlags.contextFile = writeFile(t, dir, "deals.json", `[
		{"context_type": "deal", "context_id": "D-1", "attributes": {"amount": 5000}},
		{"context_type": "deal", "context_id": "D-2", "attributes": {"amount": 10}},
		{"context_type": "deal", "context_id": "D-3", "attributes": {"amount": 2000}}
	]`)
	evaluateFlags.format = cli.FormatJSON
	evaluateFlags.topN = 1
	evaluateFlags.progress = true

	cmd, out := testCommand()
	var progress strings.Builder
	cmd.SetErr(&progress)
	if err := runEvaluate(cmd, nil); err != nil {
		t.Fatalf("runEvaluate() error = %v", err)
	}

	var resp recommend.EvaluateResponse
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("Unmarshal() error = %v\n%s", err, out.String())
	}
	if len(resp.Results) != 3 {
		t.Fatalf("len(Results) = %d, want 3", len(resp.Results))
	}
	for i, res := range resp.Results {
		if len(res.Items) != 1 {
			t.Errorf("Results[%d] has %d items, want 1 (top 1)", i, len(res.Items))
			continue
		}
		if res.Items[0].RuleID != "follow-up" {
			t.Errorf("Results[%d].Items[0].RuleID = %q, want %q", i, res.Items[0].RuleID, "follow-up")
		}
	}
	if !strings.Contains(progress.String(), "3/3 contexts") {
		t.Errorf("progress output = %q, want it to reach 3/3 contexts", progress.String())
	}
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		name     string
		context  string
		asOf     string
		format   cli.OutputFormat
		wantCode int
	}{
		{name: "malformed context", context: `{"context_type": `, wantCode: cli.ExitFailure},
		{name: "invalid as-of", context: `{"context_type": "deal", "context_id": "D-1"}`, asOf: "yesterday", wantCode: cli.ExitConfig},
		{name: "csv format", context: `{"context_type": "deal", "context_id": "D-1"}`, format: cli.FormatCSV, wantCode: cli.ExitConfig},
		{name: "missing context id", context: `{"context_type": "deal"}`, wantCode: cli.ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupEvaluate(t)
			evaluateFlags.contextFile = writeFile(t, dir, "ctx.json", tt.context)
			evaluateFlags.asOf = tt.asOf
			if tt.format != "" {
				evaluateFlags.format = tt.format
			}

			cmd, _ := testCommand()
			err := runEvaluate(cmd, nil)
			if code := cli.ExitCode(err); code != tt.wantCode {
				t.Errorf("runEvaluate() exit code = %d, want %d (err %v)", code, tt.wantCode, err)
			}
		})
	}
}
