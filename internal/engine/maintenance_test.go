package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alan6195/PersonalAgentSwarm-sub001/pkg/types"
)

func insertRecord(t *testing.T, h *testHarness, record *types.MemoryRecord) *types.MemoryRecord {
	t.Helper()
	require.NoError(t, h.store.Insert(context.Background(), record))
	if record.HasEmbedding() {
		scope := types.ScopeOf(record)
		require.NoError(t, h.index.Upsert(context.Background(), record.ID, scope, record.Embedding))
	}
	return record
}

func daysAgo(d int) *time.Time {
	t := time.Now().UTC().AddDate(0, 0, -d)
	return &t
}

func TestDecayReducesImportance(t *testing.T) {
	h := newTestHarness(t)
	m := h.newMaintenance()
	ctx := context.Background()

	record := insertRecord(t, h, &types.MemoryRecord{
		ID:             "mem:planner:decay",
		OwnerAgent:     "planner",
		Content:        "untouched for ten days",
		Status:         types.StatusActive,
		Importance:     0.8,
		LastAccessedAt: daysAgo(10),
		CreatedAt:      time.Now().UTC().AddDate(0, 0, -30),
	})

	summary, err := m.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DecayedCount)

	after, err := h.store.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Less(t, after.Importance, 0.8)
	assert.InDelta(t, 0.8*math.Pow(0.98, 10), after.Importance, 1e-9)
	assert.NotNil(t, after.DecayedAt)
}

func TestDecayIsIdempotentWithinADay(t *testing.T) {
	h := newTestHarness(t)
	m := h.newMaintenance()
	ctx := context.Background()

	record := insertRecord(t, h, &types.MemoryRecord{
		ID:             "mem:planner:idem",
		OwnerAgent:     "planner",
		Content:        "decayed once today",
		Status:         types.StatusActive,
		Importance:     0.8,
		LastAccessedAt: daysAgo(5),
		CreatedAt:      time.Now().UTC().AddDate(0, 0, -30),
	})

	_, err := m.RunCycle(ctx)
	require.NoError(t, err)
	first, err := h.store.Get(ctx, record.ID)
	require.NoError(t, err)

	// A second cycle the same day changes nothing.
	summary, err := m.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.DecayedCount)

	second, err := h.store.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Importance, second.Importance)
}

func TestDecayClampsToFloor(t *testing.T) {
	h := newTestHarness(t)
	m := h.newMaintenance()
	ctx := context.Background()

	record := insertRecord(t, h, &types.MemoryRecord{
		ID:             "mem:planner:floor",
		OwnerAgent:     "planner",
		Content:        "ancient fact",
		Status:         types.StatusActive,
		Importance:     0.06,
		LastAccessedAt: daysAgo(365),
		CreatedAt:      time.Now().UTC().AddDate(-2, 0, 0),
	})

	_, err := m.RunCycle(ctx)
	require.NoError(t, err)

	after, err := h.store.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.05, after.Importance)
}

func TestArchiveRequiresBothConditions(t *testing.T) {
	h := newTestHarness(t)
	h.cfg.Maintenance.DecayRate = 1.0 // isolate the archive step
	m := h.newMaintenance()
	ctx := context.Background()

	lowAndOld := insertRecord(t, h, &types.MemoryRecord{
		ID:             "mem:planner:arch1",
		OwnerAgent:     "planner",
		Content:        "low importance, long untouched",
		Status:         types.StatusActive,
		Importance:     0.1,
		LastAccessedAt: daysAgo(30),
		CreatedAt:      time.Now().UTC().AddDate(0, 0, -60),
	})
	lowButRecent := insertRecord(t, h, &types.MemoryRecord{
		ID:             "mem:planner:arch2",
		OwnerAgent:     "planner",
		Content:        "low importance but touched recently",
		Status:         types.StatusActive,
		Importance:     0.1,
		LastAccessedAt: daysAgo(1),
		CreatedAt:      time.Now().UTC().AddDate(0, 0, -60),
	})
	oldButImportant := insertRecord(t, h, &types.MemoryRecord{
		ID:             "mem:planner:arch3",
		OwnerAgent:     "planner",
		Content:        "long untouched but important",
		Status:         types.StatusActive,
		Importance:     0.9,
		LastAccessedAt: daysAgo(30),
		CreatedAt:      time.Now().UTC().AddDate(0, 0, -60),
	})

	summary, err := m.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ArchivedCount)

	statuses := map[string]types.RecordStatus{}
	for _, id := range []string{lowAndOld.ID, lowButRecent.ID, oldButImportant.ID} {
		record, err := h.store.Get(ctx, id)
		require.NoError(t, err)
		statuses[id] = record.Status
	}
	assert.Equal(t, types.StatusArchived, statuses[lowAndOld.ID])
	assert.Equal(t, types.StatusActive, statuses[lowButRecent.ID])
	assert.Equal(t, types.StatusActive, statuses[oldButImportant.ID])
}

func TestConsolidateMergesDuplicateCluster(t *testing.T) {
	h := newTestHarness(t)
	h.cfg.Maintenance.DecayRate = 1.0
	m := h.newMaintenance()
	ctx := context.Background()

	// Three mutually near-duplicate records; the middle one is the most
	// accessed and must become the representative.
	a := insertRecord(t, h, &types.MemoryRecord{
		ID: "mem:planner:dupa", OwnerAgent: "planner", Content: "release day is friday a",
		Status: types.StatusActive, Importance: 0.5, AccessCount: 1,
		Embedding: vecAt(0.999), CreatedAt: time.Now().UTC().AddDate(0, 0, -3),
	})
	b := insertRecord(t, h, &types.MemoryRecord{
		ID: "mem:planner:dupb", OwnerAgent: "planner", Content: "release day is friday b",
		Status: types.StatusActive, Importance: 0.5, AccessCount: 7,
		Embedding: baseVec(), CreatedAt: time.Now().UTC().AddDate(0, 0, -2),
	})
	c := insertRecord(t, h, &types.MemoryRecord{
		ID: "mem:planner:dupc", OwnerAgent: "planner", Content: "release day is friday c",
		Status: types.StatusActive, Importance: 0.5, AccessCount: 2,
		Embedding: vecAt(0.998), CreatedAt: time.Now().UTC().AddDate(0, 0, -1),
	})
	unrelated := insertRecord(t, h, &types.MemoryRecord{
		ID: "mem:planner:other", OwnerAgent: "planner", Content: "coffee is in the kitchen",
		Status: types.StatusActive, Importance: 0.5,
		Embedding: vecAt(0.1), CreatedAt: time.Now().UTC(),
	})

	summary, err := m.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ConsolidatedCount)

	rep, err := h.store.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, rep.Status)

	for _, loser := range []string{a.ID, c.ID} {
		record, err := h.store.Get(ctx, loser)
		require.NoError(t, err)
		assert.Equal(t, types.StatusContradicted, record.Status)
		assert.Equal(t, b.ID, record.SupersededBy)
	}

	kept, err := h.store.Get(ctx, unrelated.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, kept.Status)

	entries, err := h.store.AuditSince(ctx, "planner", time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, types.ResolutionConsolidated, entry.Resolution)
		assert.Equal(t, b.ID, entry.WinningID)
	}
}

func TestConsolidateTieBreaksByNewestCreation(t *testing.T) {
	h := newTestHarness(t)
	h.cfg.Maintenance.DecayRate = 1.0
	m := h.newMaintenance()
	ctx := context.Background()

	older := insertRecord(t, h, &types.MemoryRecord{
		ID: "mem:planner:tie1", OwnerAgent: "planner", Content: "same access count older",
		Status: types.StatusActive, Importance: 0.5, AccessCount: 3,
		Embedding: baseVec(), CreatedAt: time.Now().UTC().AddDate(0, 0, -5),
	})
	newer := insertRecord(t, h, &types.MemoryRecord{
		ID: "mem:planner:tie2", OwnerAgent: "planner", Content: "same access count newer",
		Status: types.StatusActive, Importance: 0.5, AccessCount: 3,
		Embedding: vecAt(0.999), CreatedAt: time.Now().UTC().AddDate(0, 0, -1),
	})

	_, err := m.RunCycle(ctx)
	require.NoError(t, err)

	winner, err := h.store.Get(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusActive, winner.Status)

	loser, err := h.store.Get(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusContradicted, loser.Status)
	assert.Equal(t, newer.ID, loser.SupersededBy)
}

func TestBackfillRepairsOutageRecords(t *testing.T) {
	h := newTestHarness(t)
	h.embedder.vectors["the query"] = baseVec()
	h.embedder.vectors["written during outage"] = vecAt(0.9)
	p := h.newPipeline()
	m := h.newMaintenance()
	ctx := context.Background()

	h.embedder.fail = true
	degraded, err := p.Ingest(ctx, IngestRequest{OwnerAgent: "planner", Content: "written during outage"})
	require.NoError(t, err)
	require.True(t, degraded.Degraded)

	// Provider still down: backfill counts the failure and moves on.
	summary, err := m.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.BackfilledCount)
	assert.Equal(t, 1, summary.Details.BackfillFailed)

	// Provider recovers: backfill embeds and indexes the record.
	h.embedder.fail = false
	summary, err = m.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.BackfilledCount)
	assert.Equal(t, 0, summary.Details.BackfillFailed)

	repaired, err := h.store.Get(ctx, degraded.Record.ID)
	require.NoError(t, err)
	assert.True(t, repaired.HasEmbedding())

	results, err := h.newRetrieval().Search(ctx, "planner", "the query", 5, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, degraded.Record.ID, results[0].Record.ID)
}

func TestRunCycleWritesSummary(t *testing.T) {
	h := newTestHarness(t)
	m := h.newMaintenance()
	ctx := context.Background()

	insertRecord(t, h, &types.MemoryRecord{
		ID: "mem:planner:one", OwnerAgent: "planner", Content: "a fact",
		Status: types.StatusActive, Importance: 0.5,
		Embedding: baseVec(), CreatedAt: time.Now().UTC(),
	})
	insertRecord(t, h, &types.MemoryRecord{
		ID: "mem:executor:shared", OwnerAgent: "executor", Content: "a shared fact",
		Status: types.StatusActive, Importance: 0.5, Visibility: types.VisibilityShared,
		Embedding: vecAt(0.2), CreatedAt: time.Now().UTC(),
	})

	var completed *types.MaintenanceRunSummary
	m.SetOnCycleComplete(func(s *types.MaintenanceRunSummary) { completed = s })

	summary, err := m.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "daily", summary.RunType)
	assert.Equal(t, 2, summary.Details.ScopesProcessed)
	assert.Empty(t, summary.Details.ScopeErrors)
	assert.NotEmpty(t, summary.Details.Duration)
	assert.Same(t, summary, completed)

	stored, err := h.store.ListRunSummaries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, summary.ID, stored[0].ID)
	assert.Equal(t, 2, stored[0].Details.ScopesProcessed)
}
