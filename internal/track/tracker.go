// Package track links per-timestep candidate sets into persistent tracks.
// The Tracker is strictly sequential: one Step call per timestep, in time
// order, with all state carried forward in its Store. No other component
// reads or writes track state concurrently, so the package holds no locks.
package track

import (
	"sort"
	"time"

	"github.com/Wang-bp/AR-Detection/internal/config"
	"github.com/Wang-bp/AR-Detection/internal/detect"
	"github.com/Wang-bp/AR-Detection/internal/geo"
	"github.com/Wang-bp/AR-Detection/internal/grid"
)

// Tracker consumes ordered (timestamp, candidate set) pairs and maintains
// the open-track registry.
type Tracker struct {
	cfg   *config.Config
	store *Store

	prevTimestamp time.Time
	stepped       bool
}

// New validates the configuration and returns a Tracker with an empty
// store. Invalid configuration is a *config.ConfigError.
func New(cfg *config.Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Tracker{cfg: cfg, store: NewStore()}, nil
}

// Store exposes the tracker-owned track registry, primarily for inspection
// in tests and export.
func (t *Tracker) Store() *Store { return t.store }

// pair is one scored (track, candidate) compatibility edge.
type pair struct {
	trackIdx int
	candIdx  int
	score    float64
	overlap  float64
}

// Step links one timestep's candidates into the open tracks. Timestamps
// must be strictly increasing across calls; a regression is malformed input
// and fails fast.
func (t *Tracker) Step(ts time.Time, cands []*detect.Candidate) error {
	if t.stepped && !ts.After(t.prevTimestamp) {
		return &grid.DataError{Reason: "timestep not after previous timestep"}
	}

	var dtHours float64
	if t.stepped {
		dtHours = ts.Sub(t.prevTimestamp).Hours()
	}
	t.prevTimestamp = ts
	t.stepped = true

	open := append([]*Track(nil), t.store.open...)
	pairs := t.scorePairs(open, cands, dtHours)

	matchedTrack := make([]bool, len(open))
	matchedCand := make([]bool, len(cands))

	// Spawn requests accumulate through merge/split handling and are
	// realised at the end in candidate order, keeping track IDs monotone
	// in candidate index within the timestep.
	type spawnReq struct {
		candIdx  int
		parentID int64
	}
	var spawns []spawnReq

	// Merge resolution: several open tracks overlapping one new candidate
	// above threshold. The track with the greatest cumulative intensity
	// carries the lineage forward (tie: earliest creation); the rest
	// terminate with their pre-merge candidate as last state.
	threshold := t.cfg.GetOverlapThreshold()
	for ci := range cands {
		var claimants []int
		for _, p := range pairs {
			if p.candIdx == ci && p.overlap >= threshold && !matchedTrack[p.trackIdx] {
				claimants = append(claimants, p.trackIdx)
			}
		}
		if len(claimants) < 2 {
			continue
		}
		winner := claimants[0]
		for _, ti := range claimants[1:] {
			if open[ti].cumIntensity > open[winner].cumIntensity ||
				(open[ti].cumIntensity == open[winner].cumIntensity && open[ti].ID < open[winner].ID) {
				winner = ti
			}
		}
		for _, ti := range claimants {
			if ti == winner {
				continue
			}
			open[ti].MergedInto = open[winner].ID
			matchedTrack[ti] = true
			t.store.terminate(open[ti], t.cfg.GetMinNonRelaxed())
		}
		t.extend(open[winner], ts, cands[ci])
		matchedTrack[winner] = true
		matchedCand[ci] = true
	}

	// Split resolution: one open track overlapping several remaining
	// candidates above threshold. The track continues with the most
	// compatible; each other overlapping candidate spawns a Provisional
	// child recording the parent.
	for ti := range open {
		if matchedTrack[ti] {
			continue
		}
		var fragments []pair
		for _, p := range pairs {
			if p.trackIdx == ti && p.overlap >= threshold && !matchedCand[p.candIdx] {
				fragments = append(fragments, p)
			}
		}
		if len(fragments) < 2 {
			continue
		}
		best := fragments[0]
		for _, p := range fragments[1:] {
			if p.score > best.score || (p.score == best.score && p.candIdx < best.candIdx) {
				best = p
			}
		}
		t.extend(open[ti], ts, cands[best.candIdx])
		matchedTrack[ti] = true
		matchedCand[best.candIdx] = true
		for _, p := range fragments {
			if p.candIdx == best.candIdx || matchedCand[p.candIdx] {
				continue
			}
			matchedCand[p.candIdx] = true
			spawns = append(spawns, spawnReq{candIdx: p.candIdx, parentID: open[ti].ID})
		}
	}

	// Greedy one-to-one assignment of the remaining compatible pairs,
	// highest score first. Ties prefer the earlier-created track, then the
	// lower candidate index, so linking is deterministic and explainable.
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].score != pairs[j].score {
			return pairs[i].score > pairs[j].score
		}
		if open[pairs[i].trackIdx].ID != open[pairs[j].trackIdx].ID {
			return open[pairs[i].trackIdx].ID < open[pairs[j].trackIdx].ID
		}
		return pairs[i].candIdx < pairs[j].candIdx
	})
	for _, p := range pairs {
		if matchedTrack[p.trackIdx] || matchedCand[p.candIdx] {
			continue
		}
		t.extend(open[p.trackIdx], ts, cands[p.candIdx])
		matchedTrack[p.trackIdx] = true
		matchedCand[p.candIdx] = true
	}

	// Unmatched candidates spawn new Provisional tracks.
	for ci := range cands {
		if !matchedCand[ci] {
			spawns = append(spawns, spawnReq{candIdx: ci})
		}
	}
	sort.Slice(spawns, func(i, j int) bool { return spawns[i].candIdx < spawns[j].candIdx })
	for _, req := range spawns {
		nt := t.store.spawn(ts, cands[req.candIdx], req.parentID)
		if t.cfg.GetMinDuration() <= 1 {
			nt.State = StateActive
			nt.reachedActive = true
		}
	}

	// Unmatched open tracks accumulate misses; past the gap budget they
	// terminate.
	for ti, tr := range open {
		if matchedTrack[ti] || tr.State == StateTerminated {
			continue
		}
		tr.misses++
		if tr.misses > t.cfg.GetMaxGap() {
			t.store.terminate(tr, t.cfg.GetMinNonRelaxed())
		}
	}

	return nil
}

// extend appends a candidate to a track and promotes Provisional tracks
// that reach the duration threshold.
func (t *Tracker) extend(tr *Track, ts time.Time, cand *detect.Candidate) {
	tr.append(ts, cand)
	if tr.State == StateProvisional && tr.Duration() >= t.cfg.GetMinDuration() {
		tr.State = StateActive
		tr.reachedActive = true
	}
}

// scorePairs computes the compatibility of every (open track, candidate)
// combination. Overlapping masks score by overlap fraction; disjoint masks
// fall back to centroid displacement against the maximum plausible
// propagation distance for the elapsed time. Incompatible combinations are
// omitted.
func (t *Tracker) scorePairs(open []*Track, cands []*detect.Candidate, dtHours float64) []pair {
	limitKm := t.cfg.GetMaxSpeedKmh() * dtHours
	if dtHours <= 0 {
		limitKm = 0
	}

	var pairs []pair
	for ti, tr := range open {
		last := tr.Latest()
		// A coasting track has been unseen for misses extra steps;
		// widen the displacement budget accordingly.
		trackLimit := limitKm * float64(tr.misses+1)
		for ci, cand := range cands {
			ov := last.Overlap(cand)
			if ov > 0 {
				pairs = append(pairs, pair{trackIdx: ti, candIdx: ci, score: ov, overlap: ov})
				continue
			}
			if trackLimit <= 0 {
				continue
			}
			d := geo.Distance(last.CentroidLat, last.CentroidLon, cand.CentroidLat, cand.CentroidLon)
			if d > trackLimit {
				continue
			}
			// Scaled below any mask overlap of equal displacement so
			// genuinely overlapping continuations win ties.
			score := 0.5 * (1 - d/trackLimit)
			pairs = append(pairs, pair{trackIdx: ti, candIdx: ci, score: score})
		}
	}
	return pairs
}

// Finalize terminates every remaining open track and returns the surviving
// tracks sorted by ID. Call once after the last Step, or on cancellation.
func (t *Tracker) Finalize() []*Track {
	for _, tr := range append([]*Track(nil), t.store.open...) {
		t.store.terminate(tr, t.cfg.GetMinNonRelaxed())
	}
	out := append([]*Track(nil), t.store.finalized...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
