package ivt

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/Wang-bp/AR-Detection/internal/grid"
)

// inputFile is the on-disk JSON layout for a detection input series. Each
// timestep carries either a precomputed "ivt" array or "uflux"/"vflux"
// component arrays; an optional top-level climatology turns the series into
// anomalies. ZonalCyclic, when present, overrides the configured default.
type inputFile struct {
	Lats        []float64       `json:"lats"`
	Lons        []float64       `json:"lons"`
	ZonalCyclic *bool           `json:"zonal_cyclic,omitempty"`
	Climatology [][]float64     `json:"climatology,omitempty"`
	Timesteps   []inputTimestep `json:"timesteps"`
}

type inputTimestep struct {
	Timestamp time.Time   `json:"timestamp"`
	IVT       [][]float64 `json:"ivt,omitempty"`
	UFlux     [][]float64 `json:"uflux,omitempty"`
	VFlux     [][]float64 `json:"vflux,omitempty"`
}

// LoadFields reads a JSON input series and returns one field per timestep,
// sorted by timestamp. Timesteps with flux components are converted to
// magnitude; if the file carries a climatology every field is reduced to
// its anomaly. Grids are cyclic per defaultCyclic unless the file sets its
// own zonal_cyclic flag.
func LoadFields(path string, defaultCyclic bool) ([]*grid.Field, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input file: %w", err)
	}

	var in inputFile
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, &grid.DataError{Reason: fmt.Sprintf("decode input file: %v", err)}
	}
	if len(in.Timesteps) == 0 {
		return nil, &grid.DataError{Reason: "input file has no timesteps"}
	}

	cyclic := defaultCyclic
	if in.ZonalCyclic != nil {
		cyclic = *in.ZonalCyclic
	}

	fields := make([]*grid.Field, 0, len(in.Timesteps))
	for i, step := range in.Timesteps {
		if step.Timestamp.IsZero() {
			return nil, &grid.DataError{Reason: fmt.Sprintf("timestep %d has no timestamp", i)}
		}

		var (
			f   *grid.Field
			err error
		)
		switch {
		case step.IVT != nil:
			f, err = grid.NewField(step.IVT, in.Lats, in.Lons, step.Timestamp, cyclic)
		case step.UFlux != nil && step.VFlux != nil:
			f, err = Magnitude(step.UFlux, step.VFlux, in.Lats, in.Lons, step.Timestamp, cyclic)
		default:
			return nil, &grid.DataError{
				Reason: fmt.Sprintf("timestep %d has neither ivt nor uflux/vflux arrays", i),
			}
		}
		if err != nil {
			return nil, fmt.Errorf("timestep %d: %w", i, err)
		}

		if in.Climatology != nil {
			f, err = Anomaly(f, in.Climatology)
			if err != nil {
				return nil, fmt.Errorf("timestep %d: %w", i, err)
			}
		}
		fields = append(fields, f)
	}

	sort.Slice(fields, func(a, b int) bool {
		return fields[a].Timestamp().Before(fields[b].Timestamp())
	})
	for i := 1; i < len(fields); i++ {
		if !fields[i].Timestamp().After(fields[i-1].Timestamp()) {
			return nil, &grid.DataError{
				Reason: fmt.Sprintf("duplicate timestamp %s", fields[i].Timestamp()),
			}
		}
	}
	return fields, nil
}
