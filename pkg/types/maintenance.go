package types

import "time"

// MaintenanceRunSummary is the append-only report emitted after each
// maintenance cycle.
type MaintenanceRunSummary struct {
	ID                string     `json:"id"`
	RunType           string     `json:"run_type"` // "daily" or "manual"
	ArchivedCount     int        `json:"archived_count"`
	ConsolidatedCount int        `json:"consolidated_count"`
	DecayedCount      int        `json:"decayed_count"`
	BackfilledCount   int        `json:"backfilled_count"`
	Details           RunDetails `json:"details"`
	StartedAt         time.Time  `json:"started_at"`
	CreatedAt         time.Time  `json:"created_at"`
}

// RunDetails carries per-step diagnostics for a maintenance run.
// A failed scope records its error here; it never aborts the run.
type RunDetails struct {
	ScopesProcessed int          `json:"scopes_processed"`
	ScopeErrors     []ScopeError `json:"scope_errors,omitempty"`
	BackfillFailed  int          `json:"backfill_failed"` // Records whose embedding retry failed again
	Duration        string       `json:"duration"`
}

// ScopeError records a failure confined to a single scope.
type ScopeError struct {
	Scope string `json:"scope"` // Scope key (visibility:owner)
	Step  string `json:"step"`  // decay, archive, consolidate, or backfill
	Error string `json:"error"`
}
