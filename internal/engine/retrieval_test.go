package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alan6195/PersonalAgentSwarm-sub001/internal/storage"
	"github.com/Alan6195/PersonalAgentSwarm-sub001/pkg/types"
)

func TestSearchRanksBySimilarity(t *testing.T) {
	h := newTestHarness(t)
	h.embedder.vectors["standup time"] = baseVec()
	h.embedder.vectors["standup is at ten"] = vecAt(0.92)
	h.embedder.vectors["lunch is at noon"] = vecAt(0.30)
	p := h.newPipeline()
	ctx := context.Background()

	_, err := p.Ingest(ctx, IngestRequest{OwnerAgent: "planner", Content: "standup is at ten"})
	require.NoError(t, err)
	_, err = p.Ingest(ctx, IngestRequest{OwnerAgent: "planner", Content: "lunch is at noon"})
	require.NoError(t, err)

	results, err := h.newRetrieval().Search(ctx, "planner", "standup time", 5, false)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "standup is at ten", results[0].Record.Content)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.InDelta(t, 0.92, results[0].Components.Similarity, 0.01)
}

func TestSearchRecordsAccess(t *testing.T) {
	h := newTestHarness(t)
	h.embedder.vectors["the query"] = baseVec()
	h.embedder.vectors["the fact"] = vecAt(0.90)
	p := h.newPipeline()
	ctx := context.Background()

	stored, err := p.Ingest(ctx, IngestRequest{OwnerAgent: "planner", Content: "the fact"})
	require.NoError(t, err)

	_, err = h.newRetrieval().Search(ctx, "planner", "the query", 5, false)
	require.NoError(t, err)

	after, err := h.store.Get(ctx, stored.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.AccessCount)
	assert.NotNil(t, after.LastAccessedAt)
	assert.Greater(t, after.Importance, stored.Record.Importance)
}

func TestSearchVisibilityIsolation(t *testing.T) {
	h := newTestHarness(t)
	h.embedder.vectors["secrets"] = baseVec()
	h.embedder.vectors["planner private fact"] = vecAt(0.9)
	h.embedder.vectors["auditor private fact"] = vecAt(0.91)
	h.embedder.vectors["team shared fact"] = vecAt(0.89)
	p := h.newPipeline()
	ctx := context.Background()

	_, err := p.Ingest(ctx, IngestRequest{OwnerAgent: "planner", Content: "planner private fact"})
	require.NoError(t, err)
	_, err = p.Ingest(ctx, IngestRequest{OwnerAgent: "auditor", Content: "auditor private fact"})
	require.NoError(t, err)
	_, err = p.Ingest(ctx, IngestRequest{OwnerAgent: "auditor", Content: "team shared fact", Visibility: types.VisibilityShared})
	require.NoError(t, err)

	r := h.newRetrieval()

	// Private only: just the requester's own record.
	results, err := r.Search(ctx, "planner", "secrets", 10, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "planner private fact", results[0].Record.Content)

	// With shared: the shared record appears, the other private does not.
	results, err = r.Search(ctx, "planner", "secrets", 10, true)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, result := range results {
		assert.NotEqual(t, "auditor private fact", result.Record.Content)
	}
}

func TestSearchFailsWhenEmbedderDown(t *testing.T) {
	h := newTestHarness(t)
	h.embedder.fail = true

	_, err := h.newRetrieval().Search(context.Background(), "planner", "anything", 5, false)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestSearchExcludesArchivedRecords(t *testing.T) {
	h := newTestHarness(t)
	h.embedder.vectors["the query"] = baseVec()
	h.embedder.vectors["stale fact"] = vecAt(0.9)
	p := h.newPipeline()
	ctx := context.Background()

	stored, err := p.Ingest(ctx, IngestRequest{OwnerAgent: "planner", Content: "stale fact"})
	require.NoError(t, err)
	require.NoError(t, h.store.CasStatus(ctx, stored.Record.ID, types.StatusActive, types.StatusArchived, ""))

	results, err := h.newRetrieval().Search(ctx, "planner", "the query", 5, false)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestReactivate(t *testing.T) {
	h := newTestHarness(t)
	h.embedder.vectors["the query"] = baseVec()
	h.embedder.vectors["archived fact"] = vecAt(0.9)
	p := h.newPipeline()
	r := h.newRetrieval()
	ctx := context.Background()

	stored, err := p.Ingest(ctx, IngestRequest{OwnerAgent: "planner", Content: "archived fact"})
	require.NoError(t, err)
	require.NoError(t, h.store.CasStatus(ctx, stored.Record.ID, types.StatusActive, types.StatusArchived, ""))

	record, err := r.Reactivate(ctx, "planner", stored.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, record.Status)

	// Back in the index and searchable.
	results, err := r.Search(ctx, "planner", "the query", 5, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, stored.Record.ID, results[0].Record.ID)
}

func TestReactivateRejectsContradicted(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	record := &types.MemoryRecord{
		ID:           "mem:planner:dead",
		OwnerAgent:   "planner",
		Content:      "contradicted fact",
		Status:       types.StatusContradicted,
		SupersededBy: "mem:planner:alive",
	}
	require.NoError(t, h.store.Insert(ctx, record))

	_, err := h.newRetrieval().Reactivate(ctx, "planner", record.ID)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestReactivateRespectsOwnership(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	record := &types.MemoryRecord{
		ID:         "mem:planner:priv",
		OwnerAgent: "planner",
		Content:    "private archived fact",
		Status:     types.StatusArchived,
	}
	require.NoError(t, h.store.Insert(ctx, record))

	_, err := h.newRetrieval().Reactivate(ctx, "intruder", record.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetConflictAudit(t *testing.T) {
	h := newTestHarness(t)
	h.embedder.vectors["old fact"] = baseVec()
	h.embedder.vectors["new fact"] = vecAt(0.90)
	p := h.newPipeline()
	ctx := context.Background()

	_, err := p.Ingest(ctx, IngestRequest{OwnerAgent: "planner", Content: "old fact"})
	require.NoError(t, err)
	result, err := p.Ingest(ctx, IngestRequest{OwnerAgent: "planner", Content: "new fact"})
	require.NoError(t, err)
	require.Equal(t, OutcomeSuperseded, result.Outcome)

	entries, err := h.newRetrieval().GetConflictAudit(ctx, "planner", time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.ResolutionSuperseded, entries[0].Resolution)

	// A since bound in the future filters everything out.
	entries, err = h.newRetrieval().GetConflictAudit(ctx, "planner", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
