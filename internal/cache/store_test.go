package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmellor/marginboard/internal/leaderboard"
)

// fakeKV is an in-memory KV backend for store tests
type fakeKV struct {
	data    map[string]string
	getErr  error
	setErr  error
	setKeys []string
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (f *fakeKV) Get(_ context.Context, key string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	value, ok := f.data[key]
	return value, ok, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.setKeys = append(f.setKeys, key)
	f.data[key] = value
	return nil
}

func snapshotAt(universeName string, at time.Time) *leaderboard.Snapshot {
	t := at.UTC()
	return &leaderboard.Snapshot{
		Universe:   universeName,
		UpdatedAt:  &t,
		PeriodHint: "FY2025",
		TopNet: []leaderboard.MetricSample{
			{Symbol: "NYSE:A", NetMargin: 20, GrossMargin: 30},
		},
	}
}

func TestPutGetSnapshotRoundTrip(t *testing.T) {
	kv := newFakeKV()
	store := NewStore(kv)
	ctx := context.Background()

	original := snapshotAt("DOW30", time.Now())
	require.NoError(t, store.PutSnapshot(ctx, original))

	got, found, err := store.GetSnapshot(ctx, "DOW30")
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, "DOW30", got.Universe)
	assert.Equal(t, "FY2025", got.PeriodHint)
	require.Len(t, got.TopNet, 1)
	assert.Equal(t, "NYSE:A", got.TopNet[0].Symbol)

	assert.Equal(t, []string{"leaderboard:DOW30"}, kv.setKeys)
}

func TestGetSnapshotMissingKey(t *testing.T) {
	store := NewStore(newFakeKV())

	got, found, err := store.GetSnapshot(context.Background(), "DOW30")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestGetSnapshotBackendError(t *testing.T) {
	kv := newFakeKV()
	kv.getErr = errors.New("connection refused")
	store := NewStore(kv)

	_, found, err := store.GetSnapshot(context.Background(), "DOW30")
	assert.Error(t, err)
	assert.False(t, found)
}

func TestPutSnapshotNeverBackDates(t *testing.T) {
	kv := newFakeKV()
	store := NewStore(kv)
	ctx := context.Background()

	later := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	require.NoError(t, store.PutSnapshot(ctx, snapshotAt("DOW30", later)))

	// A stale snapshot still replaces the boards but keeps the newer stamp
	stale := snapshotAt("DOW30", earlier)
	stale.PeriodHint = "FY2024"
	require.NoError(t, store.PutSnapshot(ctx, stale))

	got, found, err := store.GetSnapshot(ctx, "DOW30")
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, "FY2024", got.PeriodHint)
	require.NotNil(t, got.UpdatedAt)
	assert.True(t, got.UpdatedAt.Equal(later))
}

func TestPutSnapshotDoesNotMutateCaller(t *testing.T) {
	kv := newFakeKV()
	store := NewStore(kv)
	ctx := context.Background()

	later := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	require.NoError(t, store.PutSnapshot(ctx, snapshotAt("DOW30", later)))

	stale := snapshotAt("DOW30", earlier)
	require.NoError(t, store.PutSnapshot(ctx, stale))

	assert.True(t, stale.UpdatedAt.Equal(earlier))
}

func TestPutSnapshotNilTimestampInheritsStored(t *testing.T) {
	kv := newFakeKV()
	store := NewStore(kv)
	ctx := context.Background()

	stamp := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.PutSnapshot(ctx, snapshotAt("DOW30", stamp)))

	unstamped := &leaderboard.Snapshot{Universe: "DOW30", PeriodHint: leaderboard.PeriodUnknown}
	require.NoError(t, store.PutSnapshot(ctx, unstamped))

	got, found, err := store.GetSnapshot(ctx, "DOW30")
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, got.UpdatedAt)
	assert.True(t, got.UpdatedAt.Equal(stamp))
}

func TestPutSnapshotNil(t *testing.T) {
	store := NewStore(newFakeKV())
	assert.Error(t, store.PutSnapshot(context.Background(), nil))
}

func TestSnapshotKeyUppercasesUniverse(t *testing.T) {
	assert.Equal(t, "leaderboard:DOW30", SnapshotKey("dow30"))
	assert.Equal(t, "leaderboard:TECH", SnapshotKey("TECH"))
}

func TestLastRunRoundTrip(t *testing.T) {
	store := NewStore(newFakeKV())
	ctx := context.Background()

	before, err := store.GetLastRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, before)

	at := time.Date(2026, 8, 29, 6, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetLastRun(ctx, at))

	after, err := store.GetLastRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.True(t, after.Equal(at))
}

func TestGetLastRunMalformed(t *testing.T) {
	kv := newFakeKV()
	kv.data[lastRunKey] = "not a timestamp"
	store := NewStore(kv)

	_, err := store.GetLastRun(context.Background())
	assert.Error(t, err)
}
