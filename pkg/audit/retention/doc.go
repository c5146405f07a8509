// Package retention prunes audit events older than the configured retention
// period, on demand or on a cron schedule.
package retention
