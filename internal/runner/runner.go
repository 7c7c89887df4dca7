// Package runner drives detection and tracking over a sequence of gridded
// fields. Detection fans out over a bounded worker pool; tracking consumes
// the per-timestep results strictly in timestamp order.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Wang-bp/AR-Detection/internal/config"
	"github.com/Wang-bp/AR-Detection/internal/detect"
	"github.com/Wang-bp/AR-Detection/internal/export"
	"github.com/Wang-bp/AR-Detection/internal/grid"
	"github.com/Wang-bp/AR-Detection/internal/track"
)

// Result summarizes one completed run.
type Result struct {
	Tracks     []*track.Track
	Records    []export.Record
	Timesteps  int
	Candidates int
}

// Runner owns the per-run configuration and logger.
type Runner struct {
	cfg *config.Config
	log *slog.Logger
}

// New validates the configuration and returns a runner. A nil logger
// falls back to slog.Default().
func New(cfg *config.Config, log *slog.Logger) (*Runner, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{cfg: cfg, log: log}, nil
}

// detection carries one timestep's detector output back to the sequential
// tracking stage.
type detection struct {
	candidates []*detect.Candidate
	err        error
}

// Run detects candidates in every field and threads them through the
// tracker. Fields must be ordered by strictly increasing timestamp; the
// tracker rejects out-of-order input. On context cancellation the open
// tracks are finalized and the partial result is returned with ctx.Err().
func (r *Runner) Run(ctx context.Context, fields []*grid.Field) (*Result, error) {
	if len(fields) == 0 {
		return nil, &grid.DataError{Reason: "no input fields"}
	}

	tracker, err := track.New(r.cfg)
	if err != nil {
		return nil, err
	}

	workers := r.cfg.GetDetectWorkers()
	if workers > len(fields) {
		workers = len(fields)
	}
	r.log.Info("run starting",
		"timesteps", len(fields),
		"detect_workers", workers,
		"threshold", r.cfg.GetThreshold())

	detections := make([]detection, len(fields))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				cands, err := detect.Detect(fields[i], r.cfg)
				detections[i] = detection{candidates: cands, err: err}
			}
		}()
	}

	cancelled := false
feed:
	for i := range fields {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			cancelled = true
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	result := &Result{}
	for i, f := range fields {
		if cancelled {
			break
		}
		d := detections[i]
		if d.err != nil {
			return nil, fmt.Errorf("detect at %s: %w", f.Timestamp(), d.err)
		}
		if err := tracker.Step(f.Timestamp(), d.candidates); err != nil {
			return nil, err
		}
		result.Timesteps++
		result.Candidates += len(d.candidates)
		r.log.Debug("timestep tracked",
			"timestamp", f.Timestamp(),
			"candidates", len(d.candidates),
			"open_tracks", len(tracker.Store().Open()))
	}

	result.Tracks = tracker.Finalize()
	result.Records = export.Records(result.Tracks, r.cfg.GetMinDuration())

	r.log.Info("run finished",
		"timesteps", result.Timesteps,
		"candidates", result.Candidates,
		"tracks", len(result.Tracks),
		"cancelled", cancelled)

	if cancelled {
		return result, ctx.Err()
	}
	return result, nil
}
