package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"time"

	"mercator-hq/compass/pkg/audit"
)

// CSVExporter exports audit events as CSV. Details are written as a JSON
// object in a single column.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

var csvHeader = []string{
	"id", "recommendation_id", "status", "outcome", "rule_id",
	"context_id", "actor_id", "timestamp", "details",
}

// Export writes events to w.
func (e *CSVExporter) Export(ctx context.Context, events []*audit.Event, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return &audit.ExportError{Format: "csv", Count: len(events), Cause: err}
		}
	}

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := eventToRow(ev)
		if err != nil {
			return &audit.ExportError{Format: "csv", Count: len(events), Cause: err}
		}
		if err := writer.Write(row); err != nil {
			return &audit.ExportError{Format: "csv", Count: len(events), Cause: err}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return &audit.ExportError{Format: "csv", Count: len(events), Cause: err}
	}
	return nil
}

// ContentType returns the CSV MIME type.
func (e *CSVExporter) ContentType() string {
	return "text/csv"
}

func eventToRow(ev *audit.Event) ([]string, error) {
	details := ""
	if len(ev.Details) > 0 {
		data, err := json.Marshal(ev.Details)
		if err != nil {
			return nil, err
		}
		details = string(data)
	}
	return []string{
		ev.ID,
		ev.RecommendationID,
		ev.Status,
		ev.Outcome,
		ev.RuleID,
		ev.ContextID,
		ev.ActorID,
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		details,
	}, nil
}

// ForFormat returns the exporter for a format name ("json" or "csv").
func ForFormat(format string) (audit.Exporter, bool) {
	switch format {
	case "json":
		return NewJSONExporter(true), true
	case "csv":
		return NewCSVExporter(true), true
	default:
		return nil, false
	}
}
