package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"
)

// MemoryRecord is a single factual statement written by an agent.
// Records are never physically deleted; lifecycle transitions move them
// between active, archived, and contradicted while preserving the audit
// trail and supersession chains.
type MemoryRecord struct {
	// Core identification fields
	ID         string    `json:"id"`          // Unique identifier (format: mem:owner:slug)
	OwnerAgent string    `json:"owner_agent"` // Agent that wrote the record; immutable
	Content    string    `json:"content"`     // Normalized factual statement
	CreatedAt  time.Time `json:"created_at"`  // When the record entered the system

	// Semantic index fields
	Embedding []float32 `json:"embedding,omitempty"` // Fixed-dimension vector; nil while the provider is unavailable
	FactHash  string    `json:"fact_hash"`           // SHA-256 of normalized content for exact-duplicate detection

	// Lifecycle
	Status       RecordStatus `json:"status"`
	SupersededBy string       `json:"superseded_by,omitempty"` // Set only when Status is contradicted

	// Retrieval signals
	Importance     float64    `json:"importance"`   // [0,1]; decays with inactivity, boosted on access
	AccessCount    int        `json:"access_count"` // Number of times returned by retrieval
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	DecayedAt      *time.Time `json:"decayed_at,omitempty"` // Last time decay was applied; at most once per day

	// Cross-agent visibility
	Visibility  Visibility `json:"visibility"`
	SourceAgent string     `json:"source_agent,omitempty"` // Originating agent when promoted across scopes
}

// Scope identifies the isolation unit a record belongs to. Private
// records are scoped per owner; shared records all live in one scope.
type Scope struct {
	OwnerAgent string
	Visibility Visibility
}

// SharedScopeOwner is the owner key used for the single shared scope.
const SharedScopeOwner = "*"

// ScopeOf returns the scope a record belongs to.
func ScopeOf(r *MemoryRecord) Scope {
	if r.Visibility == VisibilityShared {
		return Scope{OwnerAgent: SharedScopeOwner, Visibility: VisibilityShared}
	}
	return Scope{OwnerAgent: r.OwnerAgent, Visibility: VisibilityPrivate}
}

// Key returns a stable string form of the scope, used for lock and
// index-collection names.
func (s Scope) Key() string {
	return string(s.Visibility) + ":" + s.OwnerAgent
}

// HasEmbedding reports whether the record carries an embedding and is
// therefore eligible for the vector index.
func (r *MemoryRecord) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// NormalizeContent canonicalizes content before hashing: trims, lowers,
// and collapses internal whitespace so trivially reworded duplicates
// hash identically.
func NormalizeContent(content string) string {
	fields := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(content)), unicode.IsSpace)
	return strings.Join(fields, " ")
}

// HashContent computes the fact hash of normalized content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(NormalizeContent(content)))
	return hex.EncodeToString(sum[:])
}
