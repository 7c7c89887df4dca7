package detect_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wang-bp/AR-Detection/internal/config"
	"github.com/Wang-bp/AR-Detection/internal/detect"
	"github.com/Wang-bp/AR-Detection/internal/grid"
)

const (
	testRows = 41 // latitudes 15..55
	testCols = 40 // longitudes 100..139
)

var testTime = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

// blob stamps a rectangular region of elevated intensity.
type blob struct {
	row, col      int
	height, width int
	value         float64
}

func buildField(t *testing.T, cyclic bool, blobs ...blob) *grid.Field {
	t.Helper()
	values := make([][]float64, testRows)
	lats := make([]float64, testRows)
	lons := make([]float64, testCols)
	for r := 0; r < testRows; r++ {
		values[r] = make([]float64, testCols)
		lats[r] = 15 + float64(r)
		for c := 0; c < testCols; c++ {
			values[r][c] = 10
		}
	}
	for c := 0; c < testCols; c++ {
		lons[c] = 100 + float64(c)
	}
	for _, b := range blobs {
		for r := b.row; r < b.row+b.height; r++ {
			for c := b.col; c < b.col+b.width; c++ {
				values[r][(c+testCols)%testCols] = b.value
			}
		}
	}
	f, err := grid.NewField(values, lats, lons, testTime, cyclic)
	require.NoError(t, err)
	return f
}

// goodBand is a meridional band that passes every default filter: 30 cells
// tall, 4 wide, roughly 3200 km long.
func goodBand(col int) blob {
	return blob{row: 3, col: col, height: 30, width: 4, value: 400}
}

func TestDetect(t *testing.T) {
	t.Parallel()

	t.Run("nil field", func(t *testing.T) {
		t.Parallel()
		_, err := detect.Detect(nil, config.Default())
		var dataErr *grid.DataError
		require.ErrorAs(t, err, &dataErr)
	})

	t.Run("quiet field yields no candidates", func(t *testing.T) {
		t.Parallel()
		f := buildField(t, false)
		cands, err := detect.Detect(f, config.Default())
		require.NoError(t, err)
		assert.Empty(t, cands)
	})

	t.Run("single band yields one candidate", func(t *testing.T) {
		t.Parallel()
		f := buildField(t, false, goodBand(10))
		cands, err := detect.Detect(f, config.Default())
		require.NoError(t, err)
		require.Len(t, cands, 1)

		c := cands[0]
		assert.Equal(t, 120, c.CellCount)
		assert.Equal(t, testTime, c.Timestamp)
		assert.False(t, c.Relaxed)
		assert.InDelta(t, 400, c.MeanIntensity, 1e-9)
		assert.Equal(t, 400.0, c.PeakIntensity)
		assert.InDelta(t, 111.5, c.CentroidLon, 0.5)
	})

	t.Run("every candidate satisfies the configured filters", func(t *testing.T) {
		t.Parallel()
		cfg := config.Default()
		f := buildField(t, false,
			goodBand(10),
			// Compact square: too round to survive the aspect filter.
			blob{row: 3, col: 25, height: 10, width: 10, value: 400},
			// Degenerate speck below the region cell minimum.
			blob{row: 38, col: 30, height: 1, width: 2, value: 400},
		)
		cands, err := detect.Detect(f, cfg)
		require.NoError(t, err)
		require.NotEmpty(t, cands)

		for _, c := range cands {
			assert.GreaterOrEqual(t, c.CellCount, cfg.GetMinRegionCells())
			assert.GreaterOrEqual(t, c.AreaKm2, cfg.GetMinAreaKm2())
			assert.LessOrEqual(t, c.AreaKm2, cfg.GetMaxAreaKm2())
			assert.GreaterOrEqual(t, c.LengthKm, cfg.GetMinLengthHardKm())
			assert.GreaterOrEqual(t, c.LengthKm/c.WidthKm, cfg.GetMinAspect())
			assert.LessOrEqual(t, math.Abs(c.CentroidLat), cfg.GetMaxCentroidAbsLat())
			assert.GreaterOrEqual(t, c.MeanIntensity, cfg.GetMinMeanIntensity())
		}
		// Only the elongated band survives.
		assert.Len(t, cands, 1)
	})

	t.Run("short band rejected", func(t *testing.T) {
		t.Parallel()
		f := buildField(t, false, blob{row: 15, col: 10, height: 5, width: 3, value: 400})
		cands, err := detect.Detect(f, config.Default())
		require.NoError(t, err)
		assert.Empty(t, cands)
	})

	t.Run("relaxed flag for bands between floor and preferred length", func(t *testing.T) {
		t.Parallel()
		cfg := &config.Config{MinAreaKm2: new(float64)}
		*cfg.MinAreaKm2 = 2e5
		// Nine degrees of latitude: roughly 900 km, above the 800 km
		// floor but short of the preferred 1000 km.
		f := buildField(t, false, blob{row: 15, col: 10, height: 9, width: 3, value: 400})
		cands, err := detect.Detect(f, cfg)
		require.NoError(t, err)
		require.Len(t, cands, 1)
		assert.True(t, cands[0].Relaxed)
		assert.Less(t, cands[0].LengthKm, cfg.GetMinLengthKm())
		assert.GreaterOrEqual(t, cands[0].LengthKm, cfg.GetMinLengthHardKm())
	})

	t.Run("two separated bands yield two candidates", func(t *testing.T) {
		t.Parallel()
		f := buildField(t, false, goodBand(6), goodBand(26))
		cands, err := detect.Detect(f, config.Default())
		require.NoError(t, err)
		require.Len(t, cands, 2)
		assert.Less(t, cands[0].CentroidLon, cands[1].CentroidLon)
	})

	t.Run("deterministic output", func(t *testing.T) {
		t.Parallel()
		f := buildField(t, false, goodBand(6), goodBand(26),
			blob{row: 3, col: 14, height: 10, width: 10, value: 400})
		first, err := detect.Detect(f, config.Default())
		require.NoError(t, err)
		second, err := detect.Detect(f, config.Default())
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("band across the longitude seam labels as one region", func(t *testing.T) {
		t.Parallel()
		seam := blob{row: 3, col: testCols - 2, height: 30, width: 4, value: 400}

		cyclic := buildField(t, true, seam)
		cands, err := detect.Detect(cyclic, config.Default())
		require.NoError(t, err)
		require.Len(t, cands, 1)
		assert.Equal(t, 120, cands[0].CellCount)

		flat := buildField(t, false, seam)
		split, err := detect.Detect(flat, config.Default())
		require.NoError(t, err)
		assert.Len(t, split, 2)
	})

	t.Run("percentile threshold selects the top of the distribution", func(t *testing.T) {
		t.Parallel()
		cfg := &config.Config{ThresholdPercentile: new(float64)}
		*cfg.ThresholdPercentile = 0.95
		f := buildField(t, false, goodBand(10))
		cands, err := detect.Detect(f, cfg)
		require.NoError(t, err)
		require.Len(t, cands, 1)
		assert.Equal(t, 120, cands[0].CellCount)
	})
}

func TestCandidateOverlap(t *testing.T) {
	t.Parallel()

	base := buildField(t, false, goodBand(10))
	baseCands, err := detect.Detect(base, config.Default())
	require.NoError(t, err)
	require.Len(t, baseCands, 1)

	t.Run("identical regions overlap fully", func(t *testing.T) {
		t.Parallel()
		again, err := detect.Detect(buildField(t, false, goodBand(10)), config.Default())
		require.NoError(t, err)
		assert.InDelta(t, 1.0, baseCands[0].Overlap(again[0]), 1e-12)
	})

	t.Run("shifted region overlaps partially and symmetrically", func(t *testing.T) {
		t.Parallel()
		shifted, err := detect.Detect(buildField(t, false, goodBand(11)), config.Default())
		require.NoError(t, err)
		ov := baseCands[0].Overlap(shifted[0])
		assert.InDelta(t, 0.75, ov, 1e-12)
		assert.InDelta(t, ov, shifted[0].Overlap(baseCands[0]), 1e-12)
	})

	t.Run("disjoint regions do not overlap", func(t *testing.T) {
		t.Parallel()
		far, err := detect.Detect(buildField(t, false, goodBand(26)), config.Default())
		require.NoError(t, err)
		assert.Equal(t, 0.0, baseCands[0].Overlap(far[0]))
	})
}
