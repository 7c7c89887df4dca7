// Package detect finds AR candidate regions in a single timestep's IVT
// field: thresholding, connected-component labeling, geometric filtering and
// axis construction. Detection of distinct timesteps is independent, so the
// runner may invoke Detect from many goroutines at once.
package detect

import (
	"errors"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/Wang-bp/AR-Detection/internal/axis"
	"github.com/Wang-bp/AR-Detection/internal/config"
	"github.com/Wang-bp/AR-Detection/internal/geo"
	"github.com/Wang-bp/AR-Detection/internal/grid"
)

// Coord is one latitude/longitude pair in degrees.
type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Candidate is a detected region within one field. Every Candidate has
// already passed the configured geometric and physical filters; a region
// failing any of them never materialises as a Candidate.
type Candidate struct {
	Timestamp time.Time

	// Region membership, in labeling order.
	Cells []grid.CellIndex

	// Axis through the region, as cells and as coordinates.
	AxisCells  []grid.CellIndex
	AxisCoords []Coord

	// Derived geometry and intensity.
	CellCount      int
	AreaKm2        float64
	LengthKm       float64
	WidthKm        float64
	OrientationDeg float64
	MeanIntensity  float64
	PeakIntensity  float64
	CentroidLat    float64
	CentroidLon    float64

	// Relaxed marks candidates shorter than the preferred minimum length
	// but at or above the hard floor.
	Relaxed bool

	cellSet map[grid.CellIndex]struct{}
}

// Contains reports region membership for a single cell.
func (c *Candidate) Contains(cell grid.CellIndex) bool {
	_, ok := c.cellSet[cell]
	return ok
}

// Overlap returns the fraction of the smaller of the two region masks that
// both candidates share, in [0, 1].
func (c *Candidate) Overlap(other *Candidate) float64 {
	small, large := c, other
	if len(large.Cells) < len(small.Cells) {
		small, large = large, small
	}
	if len(small.Cells) == 0 {
		return 0
	}
	shared := 0
	for _, cell := range small.Cells {
		if large.Contains(cell) {
			shared++
		}
	}
	return float64(shared) / float64(len(small.Cells))
}

// Detect thresholds the field, labels connected regions, filters them and
// attaches an axis to each survivor. A timestep with zero candidates returns
// an empty slice and no error; a nil field is a *grid.DataError. Detection
// is deterministic: the same field and configuration always produce the
// same candidates in the same order.
func Detect(field *grid.Field, cfg *config.Config) ([]*Candidate, error) {
	if field == nil {
		return nil, &grid.DataError{Reason: "nil field"}
	}

	threshold := cfg.GetThreshold()
	if cfg.UsesPercentile() {
		values := field.FiniteValues()
		sort.Float64s(values)
		threshold = stat.Quantile(cfg.GetThresholdPercentile(), stat.Empirical, values, nil)
	}

	components := labelComponents(field, threshold, cfg.GetConnectivity())

	candidates := make([]*Candidate, 0, len(components))
	for _, component := range components {
		cand, ok := buildCandidate(component, field, cfg)
		if !ok {
			continue
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

// buildCandidate computes region geometry, applies every configured filter,
// and extracts the axis. It returns ok=false when the region fails a filter
// or its axis extraction degenerates.
func buildCandidate(component []grid.CellIndex, field *grid.Field, cfg *config.Config) (*Candidate, bool) {
	if len(component) < cfg.GetMinRegionCells() {
		return nil, false
	}

	var (
		areaKm2   float64
		sumW      float64
		sumWLat   float64
		sumSinLon float64
		sumCosLon float64
		sumI      float64
		peak      = math.Inf(-1)
	)
	for _, cell := range component {
		w := field.CellAreaKm2(cell)
		lat, lon := field.LatLon(cell)
		v := field.At(cell)

		areaKm2 += w
		sumW += w
		sumWLat += w * lat
		// Longitudes average on the circle so regions spanning the
		// seam centre correctly.
		lonRad := lon * math.Pi / 180
		sumSinLon += w * math.Sin(lonRad)
		sumCosLon += w * math.Cos(lonRad)
		sumI += v
		if v > peak {
			peak = v
		}
	}
	if sumW == 0 {
		return nil, false
	}
	mean := sumI / float64(len(component))
	centroidLat := sumWLat / sumW
	centroidLon := math.Atan2(sumSinLon, sumCosLon) * 180 / math.Pi

	if areaKm2 < cfg.GetMinAreaKm2() || areaKm2 > cfg.GetMaxAreaKm2() {
		return nil, false
	}
	absLat := math.Abs(centroidLat)
	if absLat < cfg.GetMinCentroidAbsLat() || absLat > cfg.GetMaxCentroidAbsLat() {
		return nil, false
	}
	if mean < cfg.GetMinMeanIntensity() {
		return nil, false
	}

	ax, err := axis.Extract(component, field, axis.Options{
		Connectivity: cfg.GetConnectivity(),
		MinCells:     cfg.GetMinRegionCells(),
	})
	if err != nil {
		var geomErr *axis.GeometryError
		if errors.As(err, &geomErr) {
			// Degenerate region: drop this component, keep the rest.
			return nil, false
		}
		return nil, false
	}

	lengthKm := ax.LengthKm(field)
	if lengthKm < cfg.GetMinLengthHardKm() || lengthKm == 0 {
		return nil, false
	}
	relaxed := lengthKm < cfg.GetMinLengthKm()

	widthKm := areaKm2 / lengthKm
	if widthKm > 0 && lengthKm/widthKm < cfg.GetMinAspect() {
		return nil, false
	}

	orientation := ax.MeanBearing(field)
	if geo.MeridionalFraction(orientation) < cfg.GetMinPolewardFrac() {
		return nil, false
	}

	cand := &Candidate{
		Timestamp:      field.Timestamp(),
		Cells:          component,
		AxisCells:      ax.Cells,
		AxisCoords:     make([]Coord, len(ax.Cells)),
		CellCount:      len(component),
		AreaKm2:        areaKm2,
		LengthKm:       lengthKm,
		WidthKm:        widthKm,
		OrientationDeg: orientation,
		MeanIntensity:  mean,
		PeakIntensity:  peak,
		CentroidLat:    centroidLat,
		CentroidLon:    centroidLon,
		Relaxed:        relaxed,
		cellSet:        make(map[grid.CellIndex]struct{}, len(component)),
	}
	for i, cell := range ax.Cells {
		lat, lon := field.LatLon(cell)
		cand.AxisCoords[i] = Coord{Lat: lat, Lon: lon}
	}
	for _, cell := range component {
		cand.cellSet[cell] = struct{}{}
	}
	return cand, true
}
