package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Padu76/lifeOS-sub000/internal"
)

func setupFileStorage(t *testing.T) (*FileStorage, FilePaths) {
	t.Helper()
	dir := t.TempDir()
	paths := FilePaths{
		Interventions: filepath.Join(dir, "interventions.json"),
		Activities:    filepath.Join(dir, "activities.json"),
		CheckIns:      filepath.Join(dir, "checkins.json"),
		Patterns:      filepath.Join(dir, "patterns.json"),
	}
	s, err := NewFileStorage(paths, internal.NopLogger())
	require.NoError(t, err)
	return s, paths
}

func TestFileStorage_InterventionLifecycle(t *testing.T) {
	s, _ := setupFileStorage(t)
	defer s.Close()
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

	it := &internal.ScheduledIntervention{
		ID: "i1", UserID: "u1", Category: internal.CategoryReminder, Urgency: internal.UrgencyMedium,
		Payload: json.RawMessage(`{"title":"x"}`), DueAt: now, State: internal.StatePending, CreatedAt: now,
	}
	require.NoError(t, s.SaveIntervention(ctx, it))

	// callers keep ownership of the pointer they passed in
	it.State = internal.StateCancelled
	got, err := s.GetIntervention(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, internal.StatePending, got.State)

	pending, err := s.ListInterventionsByState(ctx, internal.StatePending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, s.SaveIntervention(ctx, it))
	pending, err = s.ListInterventionsByState(ctx, internal.StatePending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = s.GetIntervention(ctx, "missing")
	assert.ErrorIs(t, err, internal.ErrNotFound)
}

func TestFileStorage_HistoryFilteredAndOrdered(t *testing.T) {
	s, _ := setupFileStorage(t)
	defer s.Close()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	for i, d := range []int{5, 1, 3} {
		rec := &internal.ActivityRecord{ID: string(rune('a' + i)), UserID: "u1", Category: internal.CategoryStressRelief, Completed: true, Timestamp: base.AddDate(0, 0, d)}
		require.NoError(t, s.SaveActivity(ctx, rec))
	}
	require.NoError(t, s.SaveCheckIn(ctx, &internal.CheckInRecord{ID: "c1", UserID: "u2", Stress: 7, Energy: 3, Timestamp: base}))

	acts, err := s.ListActivities(ctx, "u1", base.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.True(t, acts[0].Timestamp.Before(acts[1].Timestamp))

	// re-saving an id replaces the record
	require.NoError(t, s.SaveActivity(ctx, &internal.ActivityRecord{ID: "a", UserID: "u1", Category: internal.CategoryStressRelief, Completed: false, Timestamp: base.AddDate(0, 0, 5)}))
	acts, err = s.ListActivities(ctx, "u1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, acts, 3)
	assert.False(t, acts[2].Completed)

	none, err := s.ListActivities(ctx, "nobody", time.Time{})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	ids, err := s.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, ids)
}

func TestFileStorage_PatternLastWriteWins(t *testing.T) {
	s, _ := setupFileStorage(t)
	defer s.Close()
	ctx := context.Background()

	_, err := s.GetPattern(ctx, "u1")
	assert.ErrorIs(t, err, internal.ErrNotFound)

	require.NoError(t, s.SavePattern(ctx, &internal.UserPattern{UserID: "u1", Chronotype: internal.ChronotypeEarlyBird}))
	require.NoError(t, s.SavePattern(ctx, &internal.UserPattern{UserID: "u1", Chronotype: internal.ChronotypeNightOwl}))
	p, err := s.GetPattern(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, internal.ChronotypeNightOwl, p.Chronotype)
}

func TestFileStorage_CloseFlushesAndReloads(t *testing.T) {
	s, paths := setupFileStorage(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.FixedZone("CET", 3600))

	require.NoError(t, s.SaveIntervention(ctx, &internal.ScheduledIntervention{ID: "i1", UserID: "u1", DueAt: now, State: internal.StatePending, CreatedAt: now}))
	require.NoError(t, s.SaveActivity(ctx, &internal.ActivityRecord{ID: "a1", UserID: "u1", Category: internal.CategoryReminder, Timestamp: now}))
	require.NoError(t, s.SaveCheckIn(ctx, &internal.CheckInRecord{ID: "c1", UserID: "u1", Stress: 4, Energy: 6, Timestamp: now}))
	require.NoError(t, s.SavePattern(ctx, &internal.UserPattern{UserID: "u1", Chronotype: internal.ChronotypeIntermediate, ResponseByHour: map[int]float64{9: 0.5}}))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	for _, p := range []string{paths.Interventions, paths.Activities, paths.CheckIns, paths.Patterns} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.True(t, info.Size() > 0)
	}

	reloaded, err := NewFileStorage(paths, internal.NopLogger())
	require.NoError(t, err)
	defer reloaded.Close()

	it, err := reloaded.GetIntervention(ctx, "i1")
	require.NoError(t, err)
	assert.True(t, now.Equal(it.DueAt))

	acts, err := reloaded.ListActivities(ctx, "u1", time.Time{})
	require.NoError(t, err)
	require.Len(t, acts, 1)
	// the record's own offset survives the round trip
	assert.Equal(t, 9, acts[0].Timestamp.Hour())

	p, err := reloaded.GetPattern(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0.5, p.ResponseByHour[9])
}

func TestFileStorage_DebouncedWrite(t *testing.T) {
	dir := t.TempDir()
	paths := FilePaths{Patterns: filepath.Join(dir, "patterns.json")}
	s, err := newFileStorage(paths, 10*time.Millisecond, internal.NopLogger())
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.SavePattern(ctx, &internal.UserPattern{UserID: "u1"}))
	assert.Eventually(t, func() bool {
		info, err := os.Stat(paths.Patterns)
		return err == nil && info.Size() > 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestFileStorage_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "interventions.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err := NewFileStorage(FilePaths{Interventions: bad}, internal.NopLogger())
	assert.Error(t, err)
}

func TestNewFileRepositories_CreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	repos, err := NewFileRepositories(dir, internal.NopLogger())
	require.NoError(t, err)
	defer repos.Close()
	_, err = os.Stat(dir)
	assert.NoError(t, err)
}
