// Package types defines the core data structures for the agent memory
// system: memory records, conflict audit entries, and maintenance run
// summaries shared between the storage, index, and engine layers.
package types

// RecordStatus represents the lifecycle status of a memory record.
type RecordStatus string

// Memory record status constants.
const (
	// StatusActive indicates the record is live and retrievable.
	StatusActive RecordStatus = "active"

	// StatusArchived indicates the record was retired by maintenance for
	// low importance. Archived records are invisible to retrieval but can
	// be reactivated explicitly.
	StatusArchived RecordStatus = "archived"

	// StatusContradicted indicates the record was superseded by a newer
	// conflicting record or folded into a consolidation representative.
	// This status is terminal.
	StatusContradicted RecordStatus = "contradicted"
)

// Visibility controls which agents may retrieve a record.
type Visibility string

const (
	// VisibilityPrivate restricts retrieval to the owning agent.
	VisibilityPrivate Visibility = "private"

	// VisibilityShared makes the record retrievable by every agent.
	VisibilityShared Visibility = "shared"
)

// Resolution classifies the outcome recorded in a conflict audit entry.
type Resolution string

const (
	// ResolutionDuplicate: the candidate matched an existing record at or
	// above the duplicate threshold and was folded into it.
	ResolutionDuplicate Resolution = "duplicate"

	// ResolutionSuperseded: the candidate replaced a conflicting record,
	// which was marked contradicted.
	ResolutionSuperseded Resolution = "superseded"

	// ResolutionKeptBoth: similarity fell inside the ambiguity margin and
	// both records remain active.
	ResolutionKeptBoth Resolution = "kept_both"

	// ResolutionConsolidated: maintenance merged a duplicate cluster into
	// a single representative.
	ResolutionConsolidated Resolution = "consolidated"
)

// ValidStatuses lists every valid record status for validation.
var ValidStatuses = []RecordStatus{
	StatusActive,
	StatusArchived,
	StatusContradicted,
}

// ValidVisibilities lists every valid visibility for validation.
var ValidVisibilities = []Visibility{
	VisibilityPrivate,
	VisibilityShared,
}

// IsValidStatus checks if the given status is valid.
func IsValidStatus(s RecordStatus) bool {
	for _, valid := range ValidStatuses {
		if valid == s {
			return true
		}
	}
	return false
}

// IsValidVisibility checks if the given visibility is valid.
func IsValidVisibility(v Visibility) bool {
	for _, valid := range ValidVisibilities {
		if valid == v {
			return true
		}
	}
	return false
}
