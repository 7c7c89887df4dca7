package track

import (
	"time"

	"github.com/Wang-bp/AR-Detection/internal/detect"
)

// State is the lifecycle state of a track.
type State string

const (
	// StateProvisional marks tracks below the minimum-duration threshold.
	StateProvisional State = "provisional"
	// StateActive marks tracks that met the threshold and may still extend.
	StateActive State = "active"
	// StateTerminated marks tracks closed by a gap overrun, a merge loss,
	// or stream exhaustion.
	StateTerminated State = "terminated"
)

// Entry is one (timestamp, candidate) pair within a track.
type Entry struct {
	Timestamp time.Time
	Candidate *detect.Candidate
}

// Track is a time-ordered linkage of candidates sharing one identity.
// Identifiers are unique and assigned from a monotone counter, so IDs are
// non-decreasing in first-appearance time.
type Track struct {
	ID    int64
	State State

	// Entries are strictly increasing in timestamp; gaps between
	// consecutive entries never exceed the configured maximum.
	Entries []Entry

	// ParentID is the track this one split from, or 0.
	ParentID int64
	// MergedInto is the track that absorbed this one, or 0.
	MergedInto int64

	// reachedActive records whether the track ever met the duration
	// threshold; tracks that never did are discarded at finalization.
	reachedActive bool

	// misses counts consecutive unmatched timesteps.
	misses int

	// cumIntensity is the running sum of entry mean intensities, used to
	// pick merge winners.
	cumIntensity float64

	// nonRelaxed counts entries whose candidate met the full minimum
	// length.
	nonRelaxed int
}

// Latest returns the most recent entry's candidate.
func (t *Track) Latest() *detect.Candidate {
	return t.Entries[len(t.Entries)-1].Candidate
}

// FirstTimestamp returns the track's first-appearance time.
func (t *Track) FirstTimestamp() time.Time { return t.Entries[0].Timestamp }

// LastTimestamp returns the track's most recent entry time.
func (t *Track) LastTimestamp() time.Time {
	return t.Entries[len(t.Entries)-1].Timestamp
}

// Duration returns the number of timesteps the track was observed in.
func (t *Track) Duration() int { return len(t.Entries) }

// CumulativeIntensity returns the summed mean intensity across all entries.
func (t *Track) CumulativeIntensity() float64 { return t.cumIntensity }

// append adds an entry and updates the running aggregates.
func (t *Track) append(ts time.Time, cand *detect.Candidate) {
	t.Entries = append(t.Entries, Entry{Timestamp: ts, Candidate: cand})
	t.cumIntensity += cand.MeanIntensity
	if !cand.Relaxed {
		t.nonRelaxed++
	}
	t.misses = 0
}

// Store owns every Track for the lifetime of a tracking run. It is mutated
// only by the Tracker, which is strictly sequential, so it carries no lock.
type Store struct {
	open      []*Track
	finalized []*Track
	nextID    int64
}

// NewStore returns an empty store with IDs starting at 1.
func NewStore() *Store {
	return &Store{nextID: 1}
}

// Open returns the live (non-terminated) tracks in creation order.
func (s *Store) Open() []*Track { return s.open }

// Finalized returns terminated tracks that survived the lifetime filter.
func (s *Store) Finalized() []*Track { return s.finalized }

// spawn creates a new Provisional track seeded with one candidate.
func (s *Store) spawn(ts time.Time, cand *detect.Candidate, parentID int64) *Track {
	t := &Track{
		ID:       s.nextID,
		State:    StateProvisional,
		ParentID: parentID,
	}
	s.nextID++
	t.append(ts, cand)
	s.open = append(s.open, t)
	return t
}

// terminate closes a track. Tracks that never reached Active are discarded
// rather than finalized; minNonRelaxed additionally drops tracks dominated
// by relaxed-length candidates.
func (s *Store) terminate(t *Track, minNonRelaxed int) {
	t.State = StateTerminated
	s.removeOpen(t)
	if !t.reachedActive {
		return
	}
	if t.nonRelaxed < minNonRelaxed {
		return
	}
	s.finalized = append(s.finalized, t)
}

func (s *Store) removeOpen(t *Track) {
	for i, o := range s.open {
		if o == t {
			s.open = append(s.open[:i], s.open[i+1:]...)
			return
		}
	}
}
