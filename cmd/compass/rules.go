package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/compass/pkg/cli"
	"mercator-hq/compass/pkg/config"
	"mercator-hq/compass/pkg/rules"
	"mercator-hq/compass/pkg/rules/source"
	"mercator-hq/compass/pkg/scoring"
	"mercator-hq/compass/pkg/telemetry/logging"
)

var rulesFlags struct {
	contextType string
	format      cli.OutputFormat
	quiet       bool
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate rule packs",
}

var rulesLintCmd = &cobra.Command{
	Use:   "lint <path>...",
	Short: "Validate rule pack files or directories",
	Long: `Validate rule packs without loading them into a server.

Each path is checked for YAML syntax, the pack schema, field constraints,
duplicate ids, condition compilation and unknown score modifiers.

Exit codes:
  0 - all packs are valid
  3 - at least one pack has problems

Examples:
  compass rules lint ./rules
  compass rules lint deals.yaml leads.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRulesLint,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the rules published by the configured source",
	RunE:  runRulesList,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesLintCmd, rulesListCmd)

	rulesLintCmd.Flags().BoolVarP(&rulesFlags.quiet, "quiet", "q", false, "only print problems")

	rulesListCmd.Flags().StringVar(&rulesFlags.contextType, "context-type", "", "only list rules for this context type")
	rulesListCmd.Flags().StringVarP((*string)(&rulesFlags.format), "format", "f", string(cli.FormatText), "output format (text, json, csv)")
}

// lintConfig returns the configuration when the config file exists and the
// defaults otherwise, so packs can be linted without a deployment config.
func lintConfig() (*config.Config, error) {
	if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return loadConfig()
}

func runRulesLint(cmd *cobra.Command, args []string) error {
	cfg, err := lintConfig()
	if err != nil {
		return err
	}

	logger := logging.Discard()
	evaluator, err := newEvaluator(&cfg.Evaluation, logger, nil)
	if err != nil {
		return cli.NewCommandError("lint", err)
	}
	validate := ruleValidator(evaluator, scoring.NewEngine(scoring.WithLogger(logger)))

	out := cmd.OutOrStdout()
	failed := 0
	for _, path := range args {
		n, err := lintPath(cmd, path, validate)
		if err != nil {
			failed++
			fmt.Fprintf(out, "✗ %s\n", path)
			printProblems(out, err)
			continue
		}
		if !rulesFlags.quiet {
			fmt.Fprintf(out, "✓ %s (%d rules)\n", path, n)
		}
	}

	if failed > 0 {
		fmt.Fprintf(out, "\n%d of %d paths failed validation\n", failed, len(args))
		return &cli.ExitError{Code: cli.ExitInvalid}
	}
	return nil
}

// lintPath loads every pack under path and runs the repository validator on
// each rule.
func lintPath(cmd *cobra.Command, path string, validate func(*rules.Rule) error) (int, error) {
	loaded, err := source.NewFileSource(path, logging.Discard()).Load(cmd.Context())
	if err != nil {
		return 0, err
	}

	var errs rules.ErrorList
	for _, r := range loaded {
		errs.Add(validate(r))
	}
	return len(loaded), errs.Err()
}

// printProblems prints one line per error in a (possibly nested) error list.
func printProblems(w io.Writer, err error) {
	var list *rules.ErrorList
	if errors.As(err, &list) {
		for _, e := range list.Errors {
			printProblems(w, e)
		}
		return
	}
	fmt.Fprintf(w, "  - %v\n", err)
}

func runRulesList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	formatter, err := cli.NewFormatter(rulesFlags.format)
	if err != nil {
		return cli.NewConfigError("format", err.Error())
	}

	src, err := newRuleSource(&cfg.Rules, logging.Discard())
	if err != nil {
		return cli.NewConfigError("rules.source", err.Error())
	}
	loaded, err := src.Load(cmd.Context())
	if err != nil {
		return cli.NewCommandError("rules list", err)
	}

	var table ruleTable
	for _, r := range loaded {
		if rulesFlags.contextType == "" || string(r.ContextType) == rulesFlags.contextType {
			table = append(table, r)
		}
	}
	slices.SortFunc(table, func(a, b *rules.Rule) int {
		if c := strings.Compare(string(a.ContextType), string(b.ContextType)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	if rulesFlags.format == cli.FormatJSON {
		return formatter.FormatTo(cmd.OutOrStdout(), []*rules.Rule(table))
	}
	return formatter.FormatTo(cmd.OutOrStdout(), table)
}

// ruleTable renders rules one per row.
type ruleTable []*rules.Rule

func (t ruleTable) Headers() []string {
	return []string{"CONTEXT_TYPE", "ID", "ACTIVE", "SCORE", "TIER", "CONDITION", "ACTION"}
}

func (t ruleTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		cond := "always"
		if r.Condition != nil {
			cond = string(r.Condition.Kind)
		}
		rows = append(rows, []string{
			string(r.ContextType),
			r.ID,
			strconv.FormatBool(r.IsActive()),
			strconv.FormatFloat(r.BaseScore, 'f', -1, 64),
			strconv.Itoa(r.PriorityTier),
			cond,
			r.ActionType,
		})
	}
	return rows
}
