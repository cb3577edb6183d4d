/*
Copyright (C) 2026 Lopan Works

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// IssueSeverity distinguishes blocking issues from advisory warnings.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// IssueCode identifies the check that produced a validation issue.
type IssueCode string

const (
	IssueMachineMissing   IssueCode = "machine_missing"
	IssueNoProducts       IssueCode = "no_products"
	IssueProductInvalid   IssueCode = "product_invalid"
	IssueStationRange     IssueCode = "station_out_of_range"
	IssueStationOverlap   IssueCode = "station_overlap"
	IssueShiftNotAllowed  IssueCode = "shift_not_allowed"
	IssueMachineConflict  IssueCode = "machine_conflict"
	IssueStaleTimeContext IssueCode = "stale_time_context"
)

// ValidationIssue represents a single failed or degraded check. Issues are
// data, never Go errors: callers collect and display all of them at once.
type ValidationIssue struct {
	Code     IssueCode      `json:"code"`
	Severity IssueSeverity  `json:"severity"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
}

// BatchValidationResult contains every issue found for one batch.
type BatchValidationResult struct {
	Valid     bool              `json:"valid"` // True if no errors (warnings OK)
	Issues    []ValidationIssue `json:"issues"`
	Warnings  []ValidationIssue `json:"warnings"`
	CheckedAt time.Time         `json:"checked_at"`
}

// AddIssue appends a blocking issue and clears the valid flag.
func (r *BatchValidationResult) AddIssue(issue ValidationIssue) {
	issue.Severity = SeverityError
	r.Issues = append(r.Issues, issue)
	r.Valid = false
}

// AddWarning appends a non-blocking warning.
func (r *BatchValidationResult) AddWarning(issue ValidationIssue) {
	issue.Severity = SeverityWarning
	r.Warnings = append(r.Warnings, issue)
}
