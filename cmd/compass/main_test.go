package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

const dealPack = `
format_version: "1.0"
context_type: deal
rules:
  - id: follow-up
    base_score: 80
    priority_tier: 1
    action_type: log_call
    reason: "Deal {{.ContextID}} needs a follow up"
  - id: discount
    base_score: 40
    action_type: offer_discount
    condition:
      kind: cel
      expression: 'attributes.amount > 1000.0'
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	return path
}

// useConfig writes a config file into a temp dir and points the --config
// flag at it. The returned dir holds the file.
func useConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	orig, origVerbose := cfgFile, verbose
	cfgFile = writeFile(t, dir, "config.yaml", content)
	verbose = false
	t.Cleanup(func() {
		cfgFile, verbose = orig, origVerbose
	})
	return dir
}

// testCommand returns a command whose output is captured.
func testCommand() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetContext(context.Background())
	return cmd, &out
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"run", "evaluate", "rules", "audit", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("rootCmd.Find(%q) = %v, %v, want registered command", name, cmd, err)
		}
	}
}
