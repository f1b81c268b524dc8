package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/build-sensor/internal/adapter/store/sqlite"
	"github.com/bkyoung/build-sensor/internal/store"
)

func setupTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	// Use in-memory database for testing
	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err, "failed to create test store")

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func testRun(id string, ts time.Time) store.Run {
	return store.Run{
		RunID:      id,
		Timestamp:  ts,
		BuildFrom:  "22A100",
		BuildTo:    "22B200",
		Component:  "libparser",
		ConfigHash: "abc123",
		Seed:       4242424242,
	}
}

func testDiff(diffID, runID string, score float64) store.DiffRecord {
	return store.DiffRecord{
		DiffID:         diffID,
		RunID:          runID,
		BuildFrom:      "22A100",
		BuildTo:        "22B200",
		Component:      "libparser",
		TotalScore:     score,
		RuleSetVersion: "sensor-rules-v1+wdeadbeef",
		TriageState:    store.TriagePending,
		BundleJSON:     []byte(`{"diffId":"` + diffID + `"}`),
		ScoreJSON:      []byte(`{"diffId":"` + diffID + `","totalScore":0}`),
		CreatedAt:      time.Now().Truncate(time.Second),
	}
}

func TestStore_CreateRun_GetRun(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	run := testRun("run-123", time.Now().Truncate(time.Second))

	err := s.CreateRun(ctx, run)
	require.NoError(t, err)

	retrieved, err := s.GetRun(ctx, run.RunID)
	require.NoError(t, err)

	assert.Equal(t, run.RunID, retrieved.RunID)
	assert.Equal(t, run.BuildFrom, retrieved.BuildFrom)
	assert.Equal(t, run.BuildTo, retrieved.BuildTo)
	assert.Equal(t, run.Component, retrieved.Component)
	assert.Equal(t, run.ConfigHash, retrieved.ConfigHash)
	assert.Equal(t, run.Seed, retrieved.Seed)
	assert.True(t, run.Timestamp.Equal(retrieved.Timestamp))
}

func TestStore_GetRun_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetRun(context.Background(), "missing")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStore_ListRuns_NewestFirst(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	require.NoError(t, s.CreateRun(ctx, testRun("run-old", now.Add(-2*time.Hour))))
	require.NoError(t, s.CreateRun(ctx, testRun("run-new", now)))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)

	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].RunID)
	assert.Equal(t, "run-old", runs[1].RunID)
}

func TestStore_SaveDiff_GetDiff(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, testRun("run-1", time.Now())))
	record := testDiff("diff_aaaa", "run-1", 4.5)

	require.NoError(t, s.SaveDiff(ctx, record))

	retrieved, err := s.GetDiff(ctx, "diff_aaaa")
	require.NoError(t, err)

	assert.Equal(t, record.DiffID, retrieved.DiffID)
	assert.Equal(t, record.RunID, retrieved.RunID)
	assert.Equal(t, record.TotalScore, retrieved.TotalScore)
	assert.Equal(t, record.RuleSetVersion, retrieved.RuleSetVersion)
	assert.Equal(t, store.TriagePending, retrieved.TriageState)
	assert.JSONEq(t, string(record.BundleJSON), string(retrieved.BundleJSON))
	assert.JSONEq(t, string(record.ScoreJSON), string(retrieved.ScoreJSON))
}

func TestStore_SaveDiff_ResaveKeepsTriageState(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, testRun("run-1", time.Now())))
	record := testDiff("diff_aaaa", "run-1", 4.5)
	require.NoError(t, s.SaveDiff(ctx, record))
	require.NoError(t, s.SetTriageState(ctx, "diff_aaaa", store.TriageAccepted, "confirmed regression"))

	// Rerunning the pipeline on the same diff updates the artifacts only.
	record.TotalScore = 6.0
	require.NoError(t, s.SaveDiff(ctx, record))

	retrieved, err := s.GetDiff(ctx, "diff_aaaa")
	require.NoError(t, err)
	assert.Equal(t, 6.0, retrieved.TotalScore)
	assert.Equal(t, store.TriageAccepted, retrieved.TriageState)
	assert.Equal(t, "confirmed regression", retrieved.TriageNote)
}

func TestStore_ListQueue_OrderedByScore(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, testRun("run-1", time.Now())))
	require.NoError(t, s.SaveDiff(ctx, testDiff("diff_low", "run-1", 1.0)))
	require.NoError(t, s.SaveDiff(ctx, testDiff("diff_high", "run-1", 9.0)))
	require.NoError(t, s.SaveDiff(ctx, testDiff("diff_mid", "run-1", 5.0)))
	require.NoError(t, s.SetTriageState(ctx, "diff_mid", store.TriageDenied, ""))

	queue, err := s.ListQueue(ctx, store.TriagePending, 10)
	require.NoError(t, err)

	require.Len(t, queue, 2)
	assert.Equal(t, "diff_high", queue[0].DiffID)
	assert.Equal(t, "diff_low", queue[1].DiffID)
}

func TestStore_SetTriageState(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, testRun("run-1", time.Now())))
	require.NoError(t, s.SaveDiff(ctx, testDiff("diff_aaaa", "run-1", 2.0)))

	t.Run("valid transition", func(t *testing.T) {
		err := s.SetTriageState(ctx, "diff_aaaa", store.TriageInProgress, "looking at the allocator change")
		require.NoError(t, err)

		retrieved, err := s.GetDiff(ctx, "diff_aaaa")
		require.NoError(t, err)
		assert.Equal(t, store.TriageInProgress, retrieved.TriageState)
		assert.Equal(t, "looking at the allocator change", retrieved.TriageNote)
	})

	t.Run("empty note keeps existing note", func(t *testing.T) {
		err := s.SetTriageState(ctx, "diff_aaaa", store.TriageAccepted, "")
		require.NoError(t, err)

		retrieved, err := s.GetDiff(ctx, "diff_aaaa")
		require.NoError(t, err)
		assert.Equal(t, store.TriageAccepted, retrieved.TriageState)
		assert.Equal(t, "looking at the allocator change", retrieved.TriageNote)
	})

	t.Run("unknown state rejected", func(t *testing.T) {
		err := s.SetTriageState(ctx, "diff_aaaa", store.TriageState("bogus"), "")
		assert.Error(t, err)
	})

	t.Run("missing diff", func(t *testing.T) {
		err := s.SetTriageState(ctx, "diff_missing", store.TriageAccepted, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}
