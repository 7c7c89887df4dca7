// Package export defines the per-(track, timestep) output record and its
// CSV encoding. The record shape is the engine's external contract; storage
// formats beyond CSV and SQLite are collaborator concerns.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Wang-bp/AR-Detection/internal/detect"
	"github.com/Wang-bp/AR-Detection/internal/track"
)

// Record is one row of tracker output: a single track at a single timestep.
type Record struct {
	TrackID        int64
	Timestamp      time.Time
	State          track.State
	Axis           []detect.Coord
	CellCount      int
	LengthKm       float64
	WidthKm        float64
	OrientationDeg float64
	MeanIntensity  float64
	PeakIntensity  float64
	CentroidLat    float64
	CentroidLon    float64
}

// Records flattens finalized tracks into output rows, one per entry, in
// (track ID, time) order. The state column reports the track's lifecycle
// state at that entry: provisional below the duration threshold, active
// from the threshold on, terminated at the final entry.
func Records(tracks []*track.Track, minDuration int) []Record {
	var out []Record
	for _, tr := range tracks {
		for i, e := range tr.Entries {
			state := track.StateProvisional
			if i+1 >= minDuration {
				state = track.StateActive
			}
			if i == len(tr.Entries)-1 {
				state = track.StateTerminated
			}
			c := e.Candidate
			out = append(out, Record{
				TrackID:        tr.ID,
				Timestamp:      e.Timestamp.UTC(),
				State:          state,
				Axis:           c.AxisCoords,
				CellCount:      c.CellCount,
				LengthKm:       c.LengthKm,
				WidthKm:        c.WidthKm,
				OrientationDeg: c.OrientationDeg,
				MeanIntensity:  c.MeanIntensity,
				PeakIntensity:  c.PeakIntensity,
				CentroidLat:    c.CentroidLat,
				CentroidLon:    c.CentroidLon,
			})
		}
	}
	return out
}

var csvHeader = []string{
	"track_id", "time", "state", "axis",
	"cell_count", "length_km", "width_km", "orientation_deg",
	"mean_intensity", "peak_intensity", "centroid_lat", "centroid_lon",
}

// WriteCSV writes records with a header row. Floats use the shortest exact
// representation so a read-back reproduces identical values.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		axisJSON, err := json.Marshal(r.Axis)
		if err != nil {
			return fmt.Errorf("encode axis for track %d: %w", r.TrackID, err)
		}
		row := []string{
			strconv.FormatInt(r.TrackID, 10),
			r.Timestamp.Format(time.RFC3339Nano),
			string(r.State),
			string(axisJSON),
			strconv.Itoa(r.CellCount),
			formatFloat(r.LengthKm),
			formatFloat(r.WidthKm),
			formatFloat(r.OrientationDeg),
			formatFloat(r.MeanIntensity),
			formatFloat(r.PeakIntensity),
			formatFloat(r.CentroidLat),
			formatFloat(r.CentroidLon),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row for track %d: %w", r.TrackID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses records written by WriteCSV.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("read csv: missing header row")
	}
	if len(rows[0]) != len(csvHeader) {
		return nil, fmt.Errorf("read csv: expected %d columns, got %d", len(csvHeader), len(rows[0]))
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("parse csv row %d: %w", i+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string) (Record, error) {
	var rec Record
	var err error

	if rec.TrackID, err = strconv.ParseInt(row[0], 10, 64); err != nil {
		return rec, fmt.Errorf("track_id: %w", err)
	}
	if rec.Timestamp, err = time.Parse(time.RFC3339Nano, row[1]); err != nil {
		return rec, fmt.Errorf("time: %w", err)
	}
	rec.State = track.State(row[2])
	if err = json.Unmarshal([]byte(row[3]), &rec.Axis); err != nil {
		return rec, fmt.Errorf("axis: %w", err)
	}
	if rec.CellCount, err = strconv.Atoi(row[4]); err != nil {
		return rec, fmt.Errorf("cell_count: %w", err)
	}

	floats := []*float64{
		&rec.LengthKm, &rec.WidthKm, &rec.OrientationDeg,
		&rec.MeanIntensity, &rec.PeakIntensity,
		&rec.CentroidLat, &rec.CentroidLon,
	}
	for j, dst := range floats {
		if *dst, err = strconv.ParseFloat(row[5+j], 64); err != nil {
			return rec, fmt.Errorf("%s: %w", csvHeader[5+j], err)
		}
	}
	return rec, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
