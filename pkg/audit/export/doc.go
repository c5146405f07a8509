// Package export writes audit events as JSON or CSV for reporting.
package export
