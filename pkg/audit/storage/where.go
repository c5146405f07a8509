package storage

import (
	"strconv"
	"strings"

	"mercator-hq/compass/pkg/audit"
)

// placeholder returns the bind parameter for the n-th (1-based) argument.
type placeholder func(n int) string

func questionMark(int) string { return "?" }

func dollar(n int) string { return "$" + strconv.Itoa(n) }

// buildWhereClause builds a SQL WHERE clause from query filters.
// Returns the WHERE clause (without "WHERE" keyword) and the query arguments.
func buildWhereClause(query *audit.Query, ph placeholder) (string, []any) {
	var conditions []string
	var args []any

	add := func(column string, op string, value any) {
		args = append(args, value)
		conditions = append(conditions, column+" "+op+" "+ph(len(args)))
	}

	// Time range filter
	if query.StartTime != nil {
		add("timestamp", ">=", query.StartTime.UTC())
	}
	if query.EndTime != nil {
		add("timestamp", "<=", query.EndTime.UTC())
	}

	if query.RecommendationID != "" {
		add("recommendation_id", "=", query.RecommendationID)
	}
	if query.Status != "" {
		add("status", "=", query.Status)
	}
	if query.RuleID != "" {
		add("rule_id", "=", query.RuleID)
	}
	if query.ContextID != "" {
		add("context_id", "=", query.ContextID)
	}
	if query.ActorID != "" {
		add("actor_id", "=", query.ActorID)
	}

	return strings.Join(conditions, " AND "), args
}

// selectSQL builds the full query statement for the events table.
func selectSQL(query *audit.Query, ph placeholder) (string, []any) {
	where, args := buildWhereClause(query, ph)

	sqlQuery := "SELECT " + eventColumns + " FROM audit_events"
	if where != "" {
		sqlQuery += " WHERE " + where
	}

	order := "ASC"
	if query.Descending() {
		order = "DESC"
	}
	sqlQuery += " ORDER BY timestamp " + order + ", id " + order

	limit := audit.DefaultLimit
	if query.Limit > 0 {
		limit = query.Limit
	}
	sqlQuery += " LIMIT " + strconv.Itoa(limit)
	if query.Offset > 0 {
		sqlQuery += " OFFSET " + strconv.Itoa(query.Offset)
	}
	return sqlQuery, args
}

// eventColumns lists the columns in scan order.
const eventColumns = "id, recommendation_id, status, outcome, details, rule_id, context_id, actor_id, timestamp"
