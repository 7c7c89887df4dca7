package ivt

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wang-bp/AR-Detection/internal/grid"
)

var (
	testLats = []float64{20, 21, 22}
	testLons = []float64{100, 101}
	testTime = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
)

func TestMagnitude(t *testing.T) {
	t.Parallel()

	t.Run("hypotenuse of the flux components", func(t *testing.T) {
		t.Parallel()
		uflux := [][]float64{{3, 0}, {0, 5}, {-3, 0}}
		vflux := [][]float64{{4, 0}, {12, 0}, {-4, 0}}

		f, err := Magnitude(uflux, vflux, testLats, testLons, testTime, false)
		require.NoError(t, err)
		assert.Equal(t, 5.0, f.At(grid.CellIndex{Row: 0, Col: 0}))
		assert.Equal(t, 13.0, f.At(grid.CellIndex{Row: 1, Col: 0}))
		assert.Equal(t, 5.0, f.At(grid.CellIndex{Row: 2, Col: 0}))
		assert.Equal(t, testTime, f.Timestamp())
	})

	t.Run("component shape mismatch", func(t *testing.T) {
		t.Parallel()
		uflux := [][]float64{{3, 0}, {0, 5}, {0, 0}}
		vflux := [][]float64{{4, 0}, {12, 0}}

		_, err := Magnitude(uflux, vflux, testLats, testLons, testTime, false)
		var dataErr *grid.DataError
		require.ErrorAs(t, err, &dataErr)
	})
}

func TestAnomaly(t *testing.T) {
	t.Parallel()

	t.Run("cell-wise subtraction", func(t *testing.T) {
		t.Parallel()
		f, err := grid.NewField(
			[][]float64{{300, 280}, {260, 240}, {220, 200}},
			testLats, testLons, testTime, false)
		require.NoError(t, err)

		clim := [][]float64{{250, 250}, {250, 250}, {250, 250}}
		anom, err := Anomaly(f, clim)
		require.NoError(t, err)
		assert.Equal(t, 50.0, anom.At(grid.CellIndex{Row: 0, Col: 0}))
		assert.Equal(t, -50.0, anom.At(grid.CellIndex{Row: 2, Col: 1}))
	})

	t.Run("climatology shape mismatch", func(t *testing.T) {
		t.Parallel()
		f, err := grid.NewField(
			[][]float64{{300, 280}, {260, 240}, {220, 200}},
			testLats, testLons, testTime, false)
		require.NoError(t, err)

		_, err = Anomaly(f, [][]float64{{250, 250}})
		var dataErr *grid.DataError
		require.ErrorAs(t, err, &dataErr)
	})
}

func TestLoadFields(t *testing.T) {
	t.Parallel()

	writeInput := func(t *testing.T, body string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "series.json")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	t.Run("ivt timesteps sorted by timestamp", func(t *testing.T) {
		t.Parallel()
		path := writeInput(t, `{
			"lats": [20, 21],
			"lons": [100, 101],
			"timesteps": [
				{"timestamp": "2021-01-01T06:00:00Z", "ivt": [[1, 2], [3, 4]]},
				{"timestamp": "2021-01-01T00:00:00Z", "ivt": [[5, 6], [7, 8]]}
			]
		}`)

		fields, err := LoadFields(path, false)
		require.NoError(t, err)
		require.Len(t, fields, 2)
		assert.True(t, fields[0].Timestamp().Before(fields[1].Timestamp()))
		assert.Equal(t, 5.0, fields[0].At(grid.CellIndex{Row: 0, Col: 0}))
	})

	t.Run("flux components converted to magnitude", func(t *testing.T) {
		t.Parallel()
		path := writeInput(t, `{
			"lats": [20, 21],
			"lons": [100, 101],
			"timesteps": [
				{"timestamp": "2021-01-01T00:00:00Z",
				 "uflux": [[3, 0], [0, 0]],
				 "vflux": [[4, 0], [0, 1]]}
			]
		}`)

		fields, err := LoadFields(path, false)
		require.NoError(t, err)
		require.Len(t, fields, 1)
		assert.Equal(t, 5.0, fields[0].At(grid.CellIndex{Row: 0, Col: 0}))
	})

	t.Run("climatology applied to every timestep", func(t *testing.T) {
		t.Parallel()
		path := writeInput(t, `{
			"lats": [20, 21],
			"lons": [100, 101],
			"climatology": [[10, 10], [10, 10]],
			"timesteps": [
				{"timestamp": "2021-01-01T00:00:00Z", "ivt": [[15, 25], [35, 45]]}
			]
		}`)

		fields, err := LoadFields(path, false)
		require.NoError(t, err)
		assert.Equal(t, 5.0, fields[0].At(grid.CellIndex{Row: 0, Col: 0}))
		assert.Equal(t, 35.0, fields[0].At(grid.CellIndex{Row: 1, Col: 1}))
	})

	t.Run("default cyclicity used when file is silent", func(t *testing.T) {
		t.Parallel()
		path := writeInput(t, `{
			"lats": [20, 21],
			"lons": [100, 101],
			"timesteps": [
				{"timestamp": "2021-01-01T00:00:00Z", "ivt": [[1, 2], [3, 4]]}
			]
		}`)

		fields, err := LoadFields(path, true)
		require.NoError(t, err)
		require.Len(t, fields, 1)
		assert.True(t, fields[0].Cyclic())
	})

	t.Run("file zonal_cyclic flag overrides the default", func(t *testing.T) {
		t.Parallel()
		path := writeInput(t, `{
			"lats": [20, 21],
			"lons": [100, 101],
			"zonal_cyclic": false,
			"timesteps": [
				{"timestamp": "2021-01-01T00:00:00Z", "ivt": [[1, 2], [3, 4]]}
			]
		}`)

		fields, err := LoadFields(path, true)
		require.NoError(t, err)
		require.Len(t, fields, 1)
		assert.False(t, fields[0].Cyclic())
	})

	t.Run("duplicate timestamps rejected", func(t *testing.T) {
		t.Parallel()
		path := writeInput(t, `{
			"lats": [20, 21],
			"lons": [100, 101],
			"timesteps": [
				{"timestamp": "2021-01-01T00:00:00Z", "ivt": [[1, 2], [3, 4]]},
				{"timestamp": "2021-01-01T00:00:00Z", "ivt": [[5, 6], [7, 8]]}
			]
		}`)

		_, err := LoadFields(path, false)
		var dataErr *grid.DataError
		require.ErrorAs(t, err, &dataErr)
	})

	t.Run("timestep without data arrays rejected", func(t *testing.T) {
		t.Parallel()
		path := writeInput(t, `{
			"lats": [20, 21],
			"lons": [100, 101],
			"timesteps": [{"timestamp": "2021-01-01T00:00:00Z"}]
		}`)

		_, err := LoadFields(path, false)
		var dataErr *grid.DataError
		require.ErrorAs(t, err, &dataErr)
	})

	t.Run("empty series rejected", func(t *testing.T) {
		t.Parallel()
		path := writeInput(t, `{"lats": [20], "lons": [100], "timesteps": []}`)
		_, err := LoadFields(path, false)
		var dataErr *grid.DataError
		require.ErrorAs(t, err, &dataErr)
	})
}
