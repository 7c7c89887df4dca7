// Package ivt holds the closed-form collaborators that prepare detection
// input: IVT magnitude from flux components and the anomaly relative to a
// climatology. Neither carries state; climatology is always passed in
// explicitly.
package ivt

import (
	"math"
	"time"

	"github.com/Wang-bp/AR-Detection/internal/grid"
)

// Magnitude builds an IVT magnitude field from eastward (u) and northward
// (v) vapour flux components on the same grid: ivt = sqrt(u² + v²).
// Dimension or axis mismatches surface as *grid.DataError from field
// construction.
func Magnitude(uflux, vflux [][]float64, lats, lons []float64, ts time.Time, cyclic bool) (*grid.Field, error) {
	if len(uflux) != len(vflux) {
		return nil, &grid.DataError{Reason: "uflux and vflux row counts differ"}
	}
	values := make([][]float64, len(uflux))
	for r := range uflux {
		if len(uflux[r]) != len(vflux[r]) {
			return nil, &grid.DataError{Reason: "uflux and vflux column counts differ"}
		}
		values[r] = make([]float64, len(uflux[r]))
		for c := range uflux[r] {
			values[r][c] = math.Hypot(uflux[r][c], vflux[r][c])
		}
	}
	return grid.NewField(values, lats, lons, ts, cyclic)
}

// Anomaly subtracts a climatology field cell-wise from an IVT field,
// yielding the anomalous transport the detector thresholds. The climatology
// must share the field's grid shape.
func Anomaly(field *grid.Field, climatology [][]float64) (*grid.Field, error) {
	if len(climatology) != field.Rows() {
		return nil, &grid.DataError{Reason: "climatology row count does not match field"}
	}
	values := make([][]float64, field.Rows())
	lats := make([]float64, field.Rows())
	lons := make([]float64, field.Cols())
	for r := 0; r < field.Rows(); r++ {
		if len(climatology[r]) != field.Cols() {
			return nil, &grid.DataError{Reason: "climatology column count does not match field"}
		}
		values[r] = make([]float64, field.Cols())
		for c := 0; c < field.Cols(); c++ {
			cell := grid.CellIndex{Row: r, Col: c}
			values[r][c] = field.At(cell) - climatology[r][c]
			if r == 0 {
				_, lons[c] = field.LatLon(cell)
			}
		}
		lat, _ := field.LatLon(grid.CellIndex{Row: r})
		lats[r] = lat
	}
	return grid.NewField(values, lats, lons, field.Timestamp(), field.Cyclic())
}
