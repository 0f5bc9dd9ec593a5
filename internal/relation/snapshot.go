package relation

import (
	"context"
	"slices"
)

// LoadState reports whether a collection has captured its baseline.
type LoadState int

const (
	// Unloaded means no baseline has been captured in this load cycle.
	Unloaded LoadState = iota
	// Loaded means baseline and working set are present and diffable.
	Loaded
)

// String implements fmt.Stringer.
func (s LoadState) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// loader fetches the persisted membership of the relationship.
type loader[R Entity] func(ctx context.Context) ([]R, error)

// Snapshot holds the baseline and working set of one load cycle.
//
// INVARIANTS:
//   - baseline is captured at most once per cycle and never mutated
//   - working never holds two entries denoting the same record
//   - both are nil while Unloaded
type Snapshot[R Entity] struct {
	state    LoadState
	baseline []R
	working  []R
}

// State returns the current load state.
func (s *Snapshot[R]) State() LoadState {
	return s.state
}

// load captures the baseline if the snapshot is Unloaded. It reports whether
// storage was queried.
func (s *Snapshot[R]) load(ctx context.Context, fetch loader[R]) (bool, error) {
	if s.state == Loaded {
		return false, nil
	}
	rs, err := fetch(ctx)
	if err != nil {
		return false, err
	}
	s.baseline = slices.Clip(normalize(rs))
	s.working = slices.Clone(s.baseline)
	s.state = Loaded
	return true, nil
}

// replace swaps the working set for rs. The baseline stays the pre-replace
// persisted state. It returns the records that entered and left the working
// set relative to its previous contents.
func (s *Snapshot[R]) replace(ctx context.Context, fetch loader[R], rs []R) (added, removed []R, err error) {
	if _, err := s.load(ctx, fetch); err != nil {
		return nil, nil, err
	}
	next := normalize(rs)
	added = subtract(next, s.working)
	removed = subtract(s.working, next)
	s.working = next
	return added, removed, nil
}

// diff returns the pending links and unlinks. Both are empty while Unloaded.
func (s *Snapshot[R]) diff() (links, unlinks []R) {
	if s.state == Unloaded {
		return nil, nil
	}
	return subtract(s.working, s.baseline), subtract(s.baseline, s.working)
}

func (s *Snapshot[R]) changed() bool {
	links, unlinks := s.diff()
	return len(links) > 0 || len(unlinks) > 0
}

func (s *Snapshot[R]) contains(r R) bool {
	return indexOf(s.working, r) >= 0
}

func (s *Snapshot[R]) insert(r R) {
	s.working = append(s.working, r)
}

// delete removes r from the working set and returns the stored instance.
func (s *Snapshot[R]) delete(r R) (R, bool) {
	i := indexOf(s.working, r)
	if i < 0 {
		var zero R
		return zero, false
	}
	stored := s.working[i]
	s.working = slices.Delete(s.working, i, i+1)
	return stored, true
}

func (s *Snapshot[R]) reset() {
	s.state = Unloaded
	s.baseline = nil
	s.working = nil
}
