// Package grid provides the immutable per-timestep view of a gridded IVT
// field: scalar intensities, coordinate axes, and neighbour enumeration over
// the latitude/longitude lattice. It is the leaf dependency for the
// detection, axis and tracking layers, which read fields but never mutate
// them.
package grid

import (
	"fmt"
	"math"
	"time"

	"github.com/Wang-bp/AR-Detection/internal/geo"
)

// DataError reports a malformed or inconsistent input field. It is fatal:
// callers abort the run rather than retry.
type DataError struct {
	Reason string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("malformed field: %s", e.Reason)
}

// CellIndex addresses one grid cell: Row indexes the latitude axis, Col the
// longitude axis.
type CellIndex struct {
	Row int
	Col int
}

// Field is one timestep's scalar IVT field plus coordinate metadata.
// Values[r][c] is the intensity (kg·m⁻¹·s⁻¹) at latitude Lats[r], longitude
// Lons[c]. Fields are read-only once constructed.
type Field struct {
	values [][]float64
	lats   []float64
	lons   []float64
	ts     time.Time

	// Zonally cyclic grids wrap neighbour lookups across the longitude
	// seam so regions spanning the dateline label as one component.
	cyclic bool
}

// NewField validates the raw arrays and returns an immutable Field.
// The field fails fast with a *DataError when dimensions and coordinate
// lengths disagree, when either axis is not strictly monotonic, or when the
// field contains no finite value at all.
func NewField(values [][]float64, lats, lons []float64, ts time.Time, cyclic bool) (*Field, error) {
	if len(values) == 0 || len(values[0]) == 0 {
		return nil, &DataError{Reason: "empty value array"}
	}
	if len(values) != len(lats) {
		return nil, &DataError{Reason: fmt.Sprintf("row count %d does not match latitude axis length %d", len(values), len(lats))}
	}
	for r, row := range values {
		if len(row) != len(lons) {
			return nil, &DataError{Reason: fmt.Sprintf("row %d has %d columns, longitude axis length is %d", r, len(row), len(lons))}
		}
	}
	if err := checkMonotonic(lats, "latitude"); err != nil {
		return nil, err
	}
	if err := checkMonotonic(lons, "longitude"); err != nil {
		return nil, err
	}

	finite := false
	for _, row := range values {
		for _, v := range row {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				finite = true
				break
			}
		}
		if finite {
			break
		}
	}
	if !finite {
		return nil, &DataError{Reason: "field has no finite values"}
	}

	return &Field{values: values, lats: lats, lons: lons, ts: ts, cyclic: cyclic}, nil
}

// checkMonotonic requires strictly increasing or strictly decreasing axes.
// Strictness also guarantees no two cells share a coordinate.
func checkMonotonic(axis []float64, name string) error {
	if len(axis) < 2 {
		return nil
	}
	increasing := axis[1] > axis[0]
	for i := 1; i < len(axis); i++ {
		if increasing && axis[i] <= axis[i-1] {
			return &DataError{Reason: fmt.Sprintf("%s axis not strictly monotonic at index %d", name, i)}
		}
		if !increasing && axis[i] >= axis[i-1] {
			return &DataError{Reason: fmt.Sprintf("%s axis not strictly monotonic at index %d", name, i)}
		}
	}
	return nil
}

// Rows returns the latitude dimension length.
func (f *Field) Rows() int { return len(f.lats) }

// Cols returns the longitude dimension length.
func (f *Field) Cols() int { return len(f.lons) }

// Timestamp returns the field's timestep.
func (f *Field) Timestamp() time.Time { return f.ts }

// Cyclic reports whether neighbour lookups wrap the longitude seam.
func (f *Field) Cyclic() bool { return f.cyclic }

// At returns the intensity at a cell.
func (f *Field) At(c CellIndex) float64 { return f.values[c.Row][c.Col] }

// LatLon returns the coordinate of a cell in degrees.
func (f *Field) LatLon(c CellIndex) (lat, lon float64) {
	return f.lats[c.Row], f.lons[c.Col]
}

// Contains reports whether the index lies inside the grid.
func (f *Field) Contains(c CellIndex) bool {
	return c.Row >= 0 && c.Row < len(f.lats) && c.Col >= 0 && c.Col < len(f.lons)
}

// Finite reports whether the value at a cell is a usable number.
func (f *Field) Finite(c CellIndex) bool {
	v := f.values[c.Row][c.Col]
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FiniteValues returns every finite cell value in row-major order. Used for
// percentile thresholding.
func (f *Field) FiniteValues() []float64 {
	out := make([]float64, 0, len(f.lats)*len(f.lons))
	for _, row := range f.values {
		for _, v := range row {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				out = append(out, v)
			}
		}
	}
	return out
}

// Neighbors appends the in-grid neighbours of a cell to dst and returns it.
// connectivity is 4 or 8. On cyclic grids the longitude index wraps at the
// seam; the latitude axis never wraps.
func (f *Field) Neighbors(c CellIndex, connectivity int, dst []CellIndex) []CellIndex {
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			if connectivity == 4 && dr != 0 && dc != 0 {
				continue
			}
			r := c.Row + dr
			if r < 0 || r >= len(f.lats) {
				continue
			}
			col := c.Col + dc
			if col < 0 || col >= len(f.lons) {
				if !f.cyclic {
					continue
				}
				col = (col + len(f.lons)) % len(f.lons)
			}
			dst = append(dst, CellIndex{Row: r, Col: col})
		}
	}
	return dst
}

// CellAreaKm2 approximates the surface area of one cell in km². Cell extents
// are taken as half the spacing to each adjacent coordinate, which handles
// non-uniform axes; edge cells reuse their single inner spacing.
func (f *Field) CellAreaKm2(c CellIndex) float64 {
	dLat := axisSpacing(f.lats, c.Row)
	dLon := axisSpacing(f.lons, c.Col)

	latRad := f.lats[c.Row] * math.Pi / 180
	heightKm := dLat * math.Pi / 180 * geo.EarthRadiusKm
	widthKm := dLon * math.Pi / 180 * geo.EarthRadiusKm * math.Cos(latRad)
	return math.Abs(heightKm * widthKm)
}

// axisSpacing returns the local coordinate spacing around index i, averaging
// the two adjacent gaps where both exist.
func axisSpacing(axis []float64, i int) float64 {
	switch {
	case len(axis) < 2:
		return 0
	case i == 0:
		return math.Abs(axis[1] - axis[0])
	case i == len(axis)-1:
		return math.Abs(axis[i] - axis[i-1])
	default:
		return math.Abs(axis[i+1]-axis[i-1]) / 2
	}
}

// Distance returns the great-circle distance in km between two cells.
func (f *Field) Distance(a, b CellIndex) float64 {
	alat, alon := f.LatLon(a)
	blat, blon := f.LatLon(b)
	return geo.Distance(alat, alon, blat, blon)
}

// BearingBetween returns the initial bearing in degrees from cell a to cell b.
func (f *Field) BearingBetween(a, b CellIndex) float64 {
	alat, alon := f.LatLon(a)
	blat, blon := f.LatLon(b)
	return geo.Bearing(alat, alon, blat, blon)
}
