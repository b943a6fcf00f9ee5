package types

import "time"

// ConflictAuditEntry records the outcome of one conflict resolution.
// Entries are append-only; they are never updated or deleted.
type ConflictAuditEntry struct {
	ID              string     `json:"id"`
	OwnerAgent      string     `json:"owner_agent"`      // Scope owner the resolution happened in
	WinningID       string     `json:"winning_id"`       // Record that remained (or became) active
	LosingID        string     `json:"losing_id"`        // Record folded, superseded, or kept alongside
	SimilarityScore float64    `json:"similarity_score"` // Cosine similarity that triggered the resolution
	Resolution      Resolution `json:"resolution"`
	Reason          string     `json:"reason,omitempty"` // Human-readable explanation
	CreatedAt       time.Time  `json:"created_at"`
}
