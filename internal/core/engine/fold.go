package engine

import (
	"iter"
	"time"

	"github.com/repochain/repochain/internal/core"
	"github.com/repochain/repochain/internal/core/maven"
)

// attempt is one repository answer in chain order.
type attempt struct {
	state    *QueryState
	outcome  core.ResolveOutcome
	phase    int
	duration time.Duration
}

// candidate is a resolved answer and where it came from.
type candidate struct {
	repository core.RepositoryHandle
	metadata   *core.ComponentMetadata
	phase      int
	fromCache  bool
}

// accumulator is carried through both phases.
type accumulator struct {
	failures []error
	parked   []*QueryState
	best     *candidate
	winner   *candidate
}

// foldPolicy holds the per-resolution inputs of the reduction.
type foldPolicy struct {
	coordinate   core.ModuleCoordinate
	resolutionID string
	searchLatest bool
	observer     Observer
}

// fold reduces attempts into acc, stopping at the first short-circuit winner.
// Attempts not yet pulled from the sequence when that happens are never made.
func fold(acc accumulator, attempts iter.Seq[attempt], policy foldPolicy) accumulator {
	for a := range attempts {
		acc = step(acc, a, policy)
		if acc.winner != nil {
			break
		}
	}
	return acc
}

// step applies one repository answer to the accumulator.
func step(acc accumulator, a attempt, policy foldPolicy) accumulator {
	handle := a.state.Repository()
	policy.observer.Observe(Event{
		Kind:         EventRepositoryQueried,
		ResolutionID: policy.resolutionID,
		Coordinate:   policy.coordinate,
		Repository:   handle.Name,
		Phase:        a.phase,
		State:        a.outcome.State(),
		FromCache:    a.outcome.FromCache(),
		Duration:     a.duration,
		Err:          a.outcome.Err(),
	})

	switch a.outcome.State() {
	case core.StateFailed:
		acc.failures = append(acc.failures, a.outcome.Err())
		return acc
	case core.StateMissing:
		if a.state.CanMakeFurtherAttempts() {
			acc.parked = append(acc.parked, a.state)
		}
		return acc
	}

	next := &candidate{
		repository: handle,
		metadata:   a.outcome.Metadata(),
		phase:      a.phase,
		fromCache:  a.outcome.FromCache(),
	}
	md := next.metadata
	if !md.Generated && (!policy.searchLatest || !md.Changing) {
		acc.winner = next
		policy.observer.Observe(Event{
			Kind:         EventShortCircuit,
			ResolutionID: policy.resolutionID,
			Coordinate:   policy.coordinate,
			Repository:   handle.Name,
			Phase:        a.phase,
		})
		return acc
	}

	timestamp, _ := md.SnapshotTimestamp()
	policy.observer.Observe(Event{
		Kind:         EventCandidateConsidered,
		ResolutionID: policy.resolutionID,
		Coordinate:   policy.coordinate,
		Repository:   handle.Name,
		Phase:        a.phase,
		Timestamp:    timestamp,
	})

	if acc.best == nil {
		acc.best = next
		return acc
	}
	if !policy.searchLatest || !md.Changing {
		return acc
	}
	if acc.best.metadata.Maven == nil || md.Maven == nil {
		return acc
	}

	order, comparable := compareSnapshots(md, acc.best.metadata)
	replace := comparable && order > 0
	// Generated metadata only stands in until an authored answer shows up.
	if acc.best.metadata.Generated && !md.Generated && (!comparable || order >= 0) {
		replace = true
	}

	switch {
	case replace:
		policy.observer.Observe(Event{
			Kind:         EventCandidateReplaced,
			ResolutionID: policy.resolutionID,
			Coordinate:   policy.coordinate,
			Repository:   handle.Name,
			Phase:        a.phase,
			Timestamp:    timestamp,
			Previous:     acc.best.repository.Name,
		})
		acc.best = next
	case !comparable:
		policy.observer.Observe(Event{
			Kind:         EventTimestampUnparsable,
			ResolutionID: policy.resolutionID,
			Coordinate:   policy.coordinate,
			Repository:   handle.Name,
			Phase:        a.phase,
			Timestamp:    timestamp,
			Previous:     acc.best.repository.Name,
		})
	}
	return acc
}

// compareSnapshots orders the candidate's snapshot timestamp against best's.
// An unset timestamp ranks older than any parsed one, and two unset
// timestamps are equal. comparable is false when a present timestamp does
// not parse.
func compareSnapshots(candidate, best *core.ComponentMetadata) (order int, comparable bool) {
	candidateTime, candidateSet, ok := snapshotInstant(candidate)
	if !ok {
		return 0, false
	}
	bestTime, bestSet, ok := snapshotInstant(best)
	if !ok {
		return 0, false
	}
	switch {
	case !candidateSet && !bestSet:
		return 0, true
	case !bestSet:
		return 1, true
	case !candidateSet:
		return -1, true
	}
	return candidateTime.Compare(bestTime), true
}

func snapshotInstant(md *core.ComponentMetadata) (instant time.Time, set bool, ok bool) {
	value, set := md.SnapshotTimestamp()
	if !set {
		return time.Time{}, false, true
	}
	instant, ok = maven.ParseTimestamp(value)
	return instant, true, ok
}
