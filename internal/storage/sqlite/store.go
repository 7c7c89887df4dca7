// Package sqlite persists tracking runs, tracks and per-timestep records to
// a SQLite database.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Wang-bp/AR-Detection/internal/detect"
	"github.com/Wang-bp/AR-Detection/internal/export"
	"github.com/Wang-bp/AR-Detection/internal/track"
)

// Store wraps the database handle for one results file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) a results database and ensures the
// baseline schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS ar_runs (
			run_id            TEXT PRIMARY KEY,
			config_json       TEXT,
			created_unix_nanos BIGINT
		);
		CREATE TABLE IF NOT EXISTS ar_tracks (
			run_id            TEXT,
			track_id          BIGINT,
			parent_track_id   BIGINT,
			merged_into       BIGINT,
			state             TEXT,
			start_unix_nanos  BIGINT,
			end_unix_nanos    BIGINT,
			entry_count       BIGINT,
			cum_intensity     DOUBLE,
			PRIMARY KEY (run_id, track_id),
			FOREIGN KEY (run_id) REFERENCES ar_runs(run_id)
		);
		CREATE TABLE IF NOT EXISTS ar_records (
			run_id            TEXT,
			track_id          BIGINT,
			ts_unix_nanos     BIGINT,
			state             TEXT,
			axis_json         TEXT,
			cell_count        BIGINT,
			length_km         DOUBLE,
			width_km          DOUBLE,
			orientation_deg   DOUBLE,
			mean_intensity    DOUBLE,
			peak_intensity    DOUBLE,
			centroid_lat      DOUBLE,
			centroid_lon      DOUBLE,
			PRIMARY KEY (run_id, track_id, ts_unix_nanos),
			FOREIGN KEY (run_id) REFERENCES ar_runs(run_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for migrations.
func (s *Store) DB() *sql.DB { return s.db }

// InsertRun records a new tracking run and returns its UUID. The
// configuration is stored as JSON so a run's parameters stay inspectable.
func (s *Store) InsertRun(cfg any) (string, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode run config: %w", err)
	}
	runID := uuid.NewString()
	_, err = s.db.Exec(
		`INSERT INTO ar_runs (run_id, config_json, created_unix_nanos) VALUES (?, ?, ?)`,
		runID, string(cfgJSON), time.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return runID, nil
}

// InsertTrack persists one finalized track's summary row.
func (s *Store) InsertTrack(runID string, tr *track.Track) error {
	_, err := s.db.Exec(`
		INSERT INTO ar_tracks (
			run_id, track_id, parent_track_id, merged_into, state,
			start_unix_nanos, end_unix_nanos, entry_count, cum_intensity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, track_id) DO UPDATE SET
			state = excluded.state,
			end_unix_nanos = excluded.end_unix_nanos,
			entry_count = excluded.entry_count,
			cum_intensity = excluded.cum_intensity
	`,
		runID, tr.ID, tr.ParentID, tr.MergedInto, string(tr.State),
		tr.FirstTimestamp().UnixNano(), tr.LastTimestamp().UnixNano(),
		tr.Duration(), tr.CumulativeIntensity(),
	)
	if err != nil {
		return fmt.Errorf("insert track %d: %w", tr.ID, err)
	}
	return nil
}

// InsertRecords persists per-timestep records in one transaction.
func (s *Store) InsertRecords(runID string, records []export.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin record insert tx: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO ar_records (
			run_id, track_id, ts_unix_nanos, state, axis_json,
			cell_count, length_km, width_km, orientation_deg,
			mean_intensity, peak_intensity, centroid_lat, centroid_lon
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare record insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		axisJSON, err := json.Marshal(r.Axis)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encode axis for track %d: %w", r.TrackID, err)
		}
		if _, err := stmt.Exec(
			runID, r.TrackID, r.Timestamp.UnixNano(), string(r.State), string(axisJSON),
			r.CellCount, r.LengthKm, r.WidthKm, r.OrientationDeg,
			r.MeanIntensity, r.PeakIntensity, r.CentroidLat, r.CentroidLon,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert record for track %d: %w", r.TrackID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record insert tx: %w", err)
	}
	return nil
}

// GetRecords reloads a run's records in (track, time) order.
func (s *Store) GetRecords(runID string) ([]export.Record, error) {
	rows, err := s.db.Query(`
		SELECT track_id, ts_unix_nanos, state, axis_json,
			cell_count, length_km, width_km, orientation_deg,
			mean_intensity, peak_intensity, centroid_lat, centroid_lon
		FROM ar_records
		WHERE run_id = ?
		ORDER BY track_id ASC, ts_unix_nanos ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []export.Record
	for rows.Next() {
		var r export.Record
		var tsNanos int64
		var state, axisJSON string
		if err := rows.Scan(
			&r.TrackID, &tsNanos, &state, &axisJSON,
			&r.CellCount, &r.LengthKm, &r.WidthKm, &r.OrientationDeg,
			&r.MeanIntensity, &r.PeakIntensity, &r.CentroidLat, &r.CentroidLon,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Timestamp = time.Unix(0, tsNanos).UTC()
		r.State = track.State(state)
		var coords []detect.Coord
		if err := json.Unmarshal([]byte(axisJSON), &coords); err != nil {
			return nil, fmt.Errorf("decode axis: %w", err)
		}
		r.Axis = coords
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// GetTrackIDs returns a run's track IDs in ascending order.
func (s *Store) GetTrackIDs(runID string) ([]int64, error) {
	rows, err := s.db.Query(
		`SELECT track_id FROM ar_tracks WHERE run_id = ? ORDER BY track_id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query track ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan track id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
