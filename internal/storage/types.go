package storage

import (
	"errors"
	"time"

	"github.com/Alan6195/PersonalAgentSwarm-sub001/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCasConflict indicates a compare-and-swap status transition lost a
	// race: the record was no longer in the expected status.
	ErrCasConflict = errors.New("concurrent status change")
)

// PaginatedResult represents a paginated result set with type safety using generics.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page.
	Items []T

	// Total is the total number of items across all pages.
	Total int

	// Page is the current page number (1-indexed).
	Page int

	// PageSize is the number of items per page.
	PageSize int

	// HasMore indicates whether there are more pages available.
	HasMore bool
}

// ListOptions provides pagination and filtering options for list operations.
type ListOptions struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// Limit is the number of items per page (default: 50, max: 1000).
	Limit int

	// SortBy specifies the field to sort by (e.g., "created_at", "importance").
	SortBy string

	// SortOrder specifies the sort direction ("asc" or "desc", default: "desc").
	SortOrder string

	// Status filters by record status. Empty string means no filter.
	Status types.RecordStatus

	// MaxImportance filters to records with importance strictly below this
	// value. Zero means no upper bound; used by the archive sweep.
	MaxImportance float64

	// AccessedBefore filters to records whose last access (or creation,
	// when never accessed) is strictly before this instant. Zero value
	// means no bound.
	AccessedBefore time.Time

	// WithEmbedding restricts results to records that carry an embedding.
	WithEmbedding bool
}

// Normalize applies defaults and validates the ListOptions.
func (o *ListOptions) Normalize() {
	// Whitelist validation for SortBy to prevent SQL injection
	allowedSortFields := map[string]bool{
		"created_at":       true,
		"last_accessed_at": true,
		"importance":       true,
		"access_count":     true,
		"id":               true,
		"status":           true,
	}

	if !allowedSortFields[o.SortBy] {
		o.SortBy = "created_at"
	}

	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc"
	}

	if o.Page < 1 {
		o.Page = 1
	}

	if o.Limit < 1 {
		o.Limit = 50
	}

	if o.Limit > 1000 {
		o.Limit = 1000
	}
}

// Offset calculates the offset for SQL queries based on page and limit.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}
