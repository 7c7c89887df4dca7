package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wang-bp/AR-Detection/internal/config"
	"github.com/Wang-bp/AR-Detection/internal/detect"
	"github.com/Wang-bp/AR-Detection/internal/export"
	"github.com/Wang-bp/AR-Detection/internal/track"
)

var baseTime = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testTrack(id int64, entries int) *track.Track {
	tr := &track.Track{ID: id, State: track.StateTerminated}
	for i := 0; i < entries; i++ {
		tr.Entries = append(tr.Entries, track.Entry{
			Timestamp: baseTime.Add(time.Duration(i) * 6 * time.Hour),
			Candidate: &detect.Candidate{
				AxisCoords:     []detect.Coord{{Lat: 20, Lon: 110}, {Lat: 35, Lon: 118}},
				CellCount:      96,
				LengthKm:       2100.75,
				WidthKm:        325.5,
				OrientationDeg: 18.25,
				MeanIntensity:  402.125,
				PeakIntensity:  577.5,
				CentroidLat:    27.5,
				CentroidLon:    114.25,
			},
		})
	}
	return tr
}

func TestInsertRun(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	runA, err := store.InsertRun(config.Default())
	require.NoError(t, err)
	runB, err := store.InsertRun(config.Default())
	require.NoError(t, err)
	assert.NotEmpty(t, runA)
	assert.NotEqual(t, runA, runB)
}

func TestInsertTrack(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	runID, err := store.InsertRun(config.Default())
	require.NoError(t, err)

	require.NoError(t, store.InsertTrack(runID, testTrack(1, 5)))
	require.NoError(t, store.InsertTrack(runID, testTrack(2, 4)))
	// Re-inserting the same track updates rather than duplicates.
	require.NoError(t, store.InsertTrack(runID, testTrack(2, 4)))

	ids, err := store.GetTrackIDs(runID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestRecordRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	runID, err := store.InsertRun(config.Default())
	require.NoError(t, err)

	records := export.Records([]*track.Track{testTrack(1, 5), testTrack(2, 4)}, 4)
	require.NoError(t, store.InsertRecords(runID, records))

	back, err := store.GetRecords(runID)
	require.NoError(t, err)
	if diff := cmp.Diff(records, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordsScopedToRun(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	runA, err := store.InsertRun(config.Default())
	require.NoError(t, err)
	runB, err := store.InsertRun(config.Default())
	require.NoError(t, err)

	require.NoError(t, store.InsertRecords(runA, export.Records([]*track.Track{testTrack(1, 4)}, 4)))

	fromB, err := store.GetRecords(runB)
	require.NoError(t, err)
	assert.Empty(t, fromB)
}

func TestMigrations(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	migrationsDir := filepath.Join("..", "..", "..", "migrations")

	require.NoError(t, store.MigrateUp(migrationsDir))

	version, dirty, err := store.MigrateVersion(migrationsDir)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// A second up is a no-op.
	require.NoError(t, store.MigrateUp(migrationsDir))
}
