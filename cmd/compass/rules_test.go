package main

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"mercator-hq/compass/pkg/cli"
	"mercator-hq/compass/pkg/rules"
)

const unknownModifierPack = `
format_version: "1.0"
context_type: deal
rules:
  - id: stale
    base_score: 10
    action_type: log_call
    modifiers:
      - name: moon_phase
`

const badCELPack = `
format_version: "1.0"
context_type: deal
rules:
  - id: broken-cel
    base_score: 10
    action_type: log_call
    condition:
      kind: cel
      expression: 'attributes.amount >'
`

func TestRulesLint(t *testing.T) {
	tests := []struct {
		name     string
		files    map[string]string
		wantCode int
		wantOut  []string
	}{
		{
			name:    "valid pack",
			files:   map[string]string{"deal.yaml": dealPack},
			wantOut: []string{"✓", "(2 rules)"},
		},
		{
			name:     "unknown modifier",
			files:    map[string]string{"deal.yaml": unknownModifierPack},
			wantCode: cli.ExitInvalid,
			wantOut:  []string{"✗", "moon_phase"},
		},
		{
			name:     "condition does not compile",
			files:    map[string]string{"deal.yaml": badCELPack},
			wantCode: cli.ExitInvalid,
			wantOut:  []string{"✗", "broken-cel"},
		},
		{
			name:     "duplicate ids across packs",
			files:    map[string]string{"a.yaml": dealPack, "b.yaml": dealPack},
			wantCode: cli.ExitInvalid,
			wantOut:  []string{"duplicate rule id"},
		},
		{
			name:     "invalid yaml",
			files:    map[string]string{"deal.yaml": "format_version: \"1.0\"\nrules: ["},
			wantCode: cli.ExitInvalid,
			wantOut:  []string{"✗"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := useConfig(t, "rules:\n  path: ./rules\n")
			packs := dir + "/rules"
			for name, content := range tt.files {
				writeFile(t, packs, name, content)
			}
			rulesFlags.quiet = false

			cmd, out := testCommand()
			err := runRulesLint(cmd, []string{packs})

			if code := cli.ExitCode(err); code != tt.wantCode {
				t.Errorf("runRulesLint() exit code = %d, want %d (err %v)", code, tt.wantCode, err)
			}
			for _, want := range tt.wantOut {
				if !strings.Contains(out.String(), want) {
					t.Errorf("runRulesLint() output = %q, want it to contain %q", out.String(), want)
				}
			}
		})
	}
}

func TestRulesLintMissingPath(t *testing.T) {
	useConfig(t, "rules:\n  path: ./rules\n")
	cmd, _ := testCommand()

	err := runRulesLint(cmd, []string{"/nonexistent/rules"})
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != cli.ExitInvalid {
		t.Errorf("runRulesLint() = %v, want exit code %d", err, cli.ExitInvalid)
	}
}

func TestRulesList(t *testing.T) {
	dir := useConfig(t, "")
	packs := writeFile(t, dir, "rules/deal.yaml", dealPack)
	useConfig(t, "rules:\n  source: file\n  path: "+packs+"\n")

	t.Run("text", func(t *testing.T) {
		rulesFlags.contextType = ""
		rulesFlags.format = cli.FormatText
		cmd, out := testCommand()
		if err := runRulesList(cmd, nil); err != nil {
			t.Fatalf("runRulesList() error = %v", err)
		}

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		if len(lines) != 3 {
			t.Fatalf("runRulesList() printed %d lines, want 3:\n%s", len(lines), out.String())
		}
		if !strings.HasPrefix(lines[1], "deal") || !strings.Contains(lines[1], "discount") {
			t.Errorf("first row = %q, want the discount rule (sorted by id)", lines[1])
		}
		if !strings.Contains(lines[2], "always") {
			t.Errorf("second row = %q, want condition %q", lines[2], "always")
		}
	})

	t.Run("json filtered", func(t *testing.T) {
		rulesFlags.contextType = "lead"
		rulesFlags.format = cli.FormatJSON
		cmd, out := testCommand()
		if err := runRulesList(cmd, nil); err != nil {
			t.Fatalf("runRulesList() error = %v", err)
		}

		var got []*rules.Rule
		if err := json.Unmarshal(out.Bytes(), &got); err != nil {
			t.Fatalf("Unmarshal() error = %v\n%s", err, out.String())
		}
		if len(got) != 0 {
			t.Errorf("runRulesList() returned %d lead rules, want 0", len(got))
		}
	})
}
