package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/compass/pkg/audit"
	"mercator-hq/compass/pkg/audit/export"
	"mercator-hq/compass/pkg/audit/retention"
	auditstorage "mercator-hq/compass/pkg/audit/storage"
	"mercator-hq/compass/pkg/cli"
	"mercator-hq/compass/pkg/telemetry/logging"
)

var auditFlags struct {
	recommendationID string
	status           string
	ruleID           string
	contextID        string
	actorID          string
	since            string
	until            string
	limit            int
	order            string
	format           string
	count            bool

	days   int
	dryRun bool
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query and maintain the lifecycle audit log",
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Export audit events matching filters",
	Long: `Export lifecycle audit events from the configured audit store.

Time bounds accept RFC 3339 timestamps or a duration relative to now.

Examples:
  # Every event for one recommendation
  compass audit query --recommendation-id 7f9c...

  # Failed executions in the last day as CSV
  compass audit query --status failed --since 24h --format csv

  # Count events for a deal
  compass audit query --context-id D-1 --count`,
	RunE: runAuditQuery,
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete audit events older than the retention period",
	RunE:  runAuditPrune,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd, auditPruneCmd)

	f := auditQueryCmd.Flags()
	f.StringVar(&auditFlags.recommendationID, "recommendation-id", "", "filter by recommendation id")
	f.StringVar(&auditFlags.status, "status", "", "filter by status (shown, accepted, rejected, executed, succeeded, failed)")
	f.StringVar(&auditFlags.ruleID, "rule-id", "", "filter by rule id")
	f.StringVar(&auditFlags.contextID, "context-id", "", "filter by context id")
	f.StringVar(&auditFlags.actorID, "actor-id", "", "filter by actor id")
	f.StringVar(&auditFlags.since, "since", "", "events at or after this time (RFC 3339 or duration)")
	f.StringVar(&auditFlags.until, "until", "", "events at or before this time (RFC 3339 or duration)")
	f.IntVar(&auditFlags.limit, "limit", 1000, "maximum events to export (at most 10000)")
	f.StringVar(&auditFlags.order, "order", "asc", "sort order by timestamp (asc, desc)")
	f.StringVarP(&auditFlags.format, "format", "f", "json", "output format (json, csv)")
	f.BoolVar(&auditFlags.count, "count", false, "print the number of matching events only")

	auditPruneCmd.Flags().IntVar(&auditFlags.days, "days", 0, "override the configured retention days")
	auditPruneCmd.Flags().BoolVar(&auditFlags.dryRun, "dry-run", false, "count the events that would be pruned")
}

// parseTime accepts an RFC 3339 timestamp or a duration before now.
func parseTime(s string, now time.Time) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q: want RFC 3339 or a duration", s)
	}
	t := now.Add(-d)
	return &t, nil
}

// buildQuery converts the query flags into an audit query.
func buildQuery(now time.Time) (*audit.Query, error) {
	switch auditFlags.status {
	case "", audit.StatusShown, audit.StatusAccepted, audit.StatusRejected,
		audit.StatusExecuted, audit.StatusSucceeded, audit.StatusFailed:
	default:
		return nil, cli.NewConfigError("status", fmt.Sprintf("unknown status %q", auditFlags.status))
	}
	if auditFlags.order != "asc" && auditFlags.order != "desc" {
		return nil, cli.NewConfigError("order", "must be asc or desc")
	}

	since, err := parseTime(auditFlags.since, now)
	if err != nil {
		return nil, cli.NewConfigError("since", err.Error())
	}
	until, err := parseTime(auditFlags.until, now)
	if err != nil {
		return nil, cli.NewConfigError("until", err.Error())
	}

	return &audit.Query{
		StartTime:        since,
		EndTime:          until,
		RecommendationID: auditFlags.recommendationID,
		Status:           auditFlags.status,
		RuleID:           auditFlags.ruleID,
		ContextID:        auditFlags.contextID,
		ActorID:          auditFlags.actorID,
		Limit:            auditFlags.limit,
		SortOrder:        auditFlags.order,
	}, nil
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	exporter, ok := export.ForFormat(auditFlags.format)
	if !ok && !auditFlags.count {
		return cli.NewConfigError("format", fmt.Sprintf("unsupported format %q", auditFlags.format))
	}
	query, err := buildQuery(time.Now().UTC())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := auditstorage.New(ctx, &cfg.Audit)
	if err != nil {
		return cli.NewCommandError("audit query", err)
	}
	defer store.Close()

	if auditFlags.count {
		n, err := store.Count(ctx, query)
		if err != nil {
			return cli.NewCommandError("audit query", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	}

	events, err := store.Query(ctx, query)
	if err != nil {
		return cli.NewCommandError("audit query", err)
	}
	if err := exporter.Export(ctx, events, cmd.OutOrStdout()); err != nil {
		return cli.NewCommandError("audit query", err)
	}
	return nil
}

func runAuditPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	retentionCfg := cfg.Audit.Retention
	if cmd.Flags().Changed("days") {
		retentionCfg.Days = auditFlags.days
	}

	ctx := cmd.Context()
	store, err := auditstorage.New(ctx, &cfg.Audit)
	if err != nil {
		return cli.NewCommandError("audit prune", err)
	}
	defer store.Close()

	pruner := retention.NewPruner(store, retentionCfg, retention.WithLogger(logging.Discard()))
	out := cmd.OutOrStdout()

	cutoff, ok := pruner.Cutoff()
	if !ok {
		fmt.Fprintln(out, "Retention is disabled; nothing to prune")
		return nil
	}

	if auditFlags.dryRun {
		n, err := store.Count(ctx, &audit.Query{EndTime: &cutoff})
		if err != nil {
			return cli.NewCommandError("audit prune", err)
		}
		fmt.Fprintf(out, "%d events older than %s would be pruned\n", n, cutoff.Format(time.RFC3339))
		return nil
	}

	deleted, err := pruner.Prune(ctx)
	if err != nil {
		return cli.NewCommandError("audit prune", err)
	}
	fmt.Fprintf(out, "✓ Pruned %d events older than %s\n", deleted, cutoff.Format(time.RFC3339))
	return nil
}
