package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/compass/pkg/cli"
	"mercator-hq/compass/pkg/recommend"
	"mercator-hq/compass/pkg/rules"
	"mercator-hq/compass/pkg/telemetry/logging"
)

var evaluateFlags struct {
	contextFile string
	rulesPath   string
	asOf        string
	topN        int
	format      cli.OutputFormat
	progress    bool
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate contexts against the configured rules",
	Long: `Evaluate one or more contexts offline and print the ranked recommendations.

The context file holds a single context object or an array of them. Nothing
is cached or executed and lifecycle state is discarded on exit.

Examples:
  # Evaluate a deal
  compass evaluate --context deal.json

  # Evaluate with a different rule pack as of a fixed time
  compass evaluate --context deals.json --rules ./rules --as-of 2026-01-02T15:04:05Z

  # JSON output with a progress bar for large batches
  compass evaluate --context deals.json --format json --progress`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&evaluateFlags.contextFile, "context", "", "context file (JSON object or array)")
	evaluateCmd.Flags().StringVar(&evaluateFlags.rulesPath, "rules", "", "override rule file or directory")
	evaluateCmd.Flags().StringVar(&evaluateFlags.asOf, "as-of", "", "evaluation time (RFC 3339)")
	evaluateCmd.Flags().IntVar(&evaluateFlags.topN, "top", 0, "maximum recommendations per context")
	evaluateCmd.Flags().StringVarP((*string)(&evaluateFlags.format), "format", "f", string(cli.FormatText), "output format (text, json)")
	evaluateCmd.Flags().BoolVar(&evaluateFlags.progress, "progress", false, "show progress on stderr")

	_ = evaluateCmd.MarkFlagRequired("context")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if evaluateFlags.rulesPath != "" {
		cfg.Rules.Source = "file"
		cfg.Rules.Path = evaluateFlags.rulesPath
	}
	if evaluateFlags.format == cli.FormatCSV {
		return cli.NewConfigError("format", "csv is not supported for evaluation results")
	}
	formatter, err := cli.NewFormatter(evaluateFlags.format)
	if err != nil {
		return cli.NewConfigError("format", err.Error())
	}

	req := &recommend.EvaluateRequest{TopN: evaluateFlags.topN}
	if evaluateFlags.asOf != "" {
		if req.AsOf, err = time.Parse(time.RFC3339, evaluateFlags.asOf); err != nil {
			return cli.NewConfigError("as-of", err.Error())
		}
	}
	if req.Contexts, err = readContexts(evaluateFlags.contextFile); err != nil {
		return cli.NewCommandError("evaluate", err)
	}

	logger := logging.Discard()
	if verbose {
		logger = slog.Default()
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, appOptions{logger: logger, offline: true})
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}
	defer a.Close()

	if err := a.repo.RefreshAll(ctx); err != nil {
		return cli.NewCommandError("evaluate", fmt.Errorf("failed to load rules: %w", err))
	}

	var progress cli.ProgressReporter
	if evaluateFlags.progress {
		progress = cli.NewProgressReporter(cmd.ErrOrStderr(), "contexts")
		progress.Start(int64(len(req.Contexts)))
	}

	results := make([]recommend.ContextResult, 0, len(req.Contexts))
	batch := max(cfg.Evaluation.MaxBatchSize, 1)
	for start := 0; start < len(req.Contexts); start += batch {
		end := min(start+batch, len(req.Contexts))
		resp, err := a.service.Evaluate(ctx, &recommend.EvaluateRequest{
			Contexts: req.Contexts[start:end],
			AsOf:     req.AsOf,
			TopN:     req.TopN,
		})
		if err != nil {
			if progress != nil {
				progress.Error(err)
			}
			return cli.NewCommandError("evaluate", err)
		}
		results = append(results, resp.Results...)
		if progress != nil {
			progress.Update(int64(end))
		}
	}
	if progress != nil {
		progress.Finish()
	}

	if evaluateFlags.format == cli.FormatJSON {
		return formatter.FormatTo(cmd.OutOrStdout(), &recommend.EvaluateResponse{Results: results})
	}
	return formatter.FormatTo(cmd.OutOrStdout(), resultTable(results))
}

// readContexts reads a single context or an array of contexts from path.
// "-" reads standard input.
func readContexts(path string) ([]*rules.Context, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read contexts: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var contexts []*rules.Context
		if err := json.Unmarshal(data, &contexts); err != nil {
			return nil, fmt.Errorf("failed to parse contexts: %w", err)
		}
		return contexts, nil
	}

	var c rules.Context
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse context: %w", err)
	}
	return []*rules.Context{&c}, nil
}

// resultTable renders evaluation results one recommendation per row.
type resultTable []recommend.ContextResult

func (t resultTable) Headers() []string {
	return []string{"CONTEXT", "RANK", "RULE", "ACTION", "SCORE", "TIER", "REASON"}
}

func (t resultTable) Rows() [][]string {
	var rows [][]string
	for _, res := range t {
		id := string(res.ContextType) + "/" + res.ContextID
		switch {
		case res.Aborted:
			rows = append(rows, []string{id, "-", "-", "-", "-", "-", "(aborted)"})
			continue
		case res.Degraded:
			rows = append(rows, []string{id, "-", "-", "-", "-", "-", "(degraded)"})
			continue
		case len(res.Items) == 0:
			rows = append(rows, []string{id, "-", "-", "-", "-", "-", "(no recommendations)"})
			continue
		}
		for i, item := range res.Items {
			rows = append(rows, []string{
				id,
				strconv.Itoa(i + 1),
				item.RuleID,
				item.ActionType,
				strconv.FormatFloat(item.Score, 'f', -1, 64),
				strconv.Itoa(item.PriorityTier),
				item.Reason,
			})
		}
	}
	return rows
}
