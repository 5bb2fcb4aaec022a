package engine

import (
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/repochain/repochain/internal/core"
)

// EventKind names a resolution event.
type EventKind string

const (
	EventRepositoryQueried   EventKind = "repository_queried"
	EventCandidateConsidered EventKind = "candidate_considered"
	EventCandidateReplaced   EventKind = "candidate_replaced"
	EventShortCircuit        EventKind = "short_circuit"
	EventFailureDiscarded    EventKind = "failure_discarded"
	EventTimestampUnparsable EventKind = "timestamp_unparsable"
	EventResolutionCompleted EventKind = "resolution_completed"
)

// Resolution outcomes reported by EventResolutionCompleted.
const (
	OutcomeResolved = "resolved"
	OutcomeNotFound = "not_found"
	OutcomeFailed   = "failed"
)

// Event is emitted by the chain resolver while folding repository answers.
// Events are delivered sequentially in chain order.
type Event struct {
	Kind EventKind
	// ResolutionID ties every event of one resolution together. It matches
	// Provenance.ResolutionID and, when served over HTTP, the request ID.
	ResolutionID string
	Coordinate   core.ModuleCoordinate
	Repository   string
	Phase        int
	State        core.ResolveState
	FromCache    bool
	// Timestamp is the snapshot timestamp of the candidate, if any.
	Timestamp string
	// Previous names the repository of the replaced or retained candidate.
	Previous string
	Outcome  string
	Duration time.Duration
	Err      error
}

// Observer receives resolution events.
type Observer interface {
	Observe(event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(event Event)

func (f ObserverFunc) Observe(event Event) { f(event) }

// NopObserver discards events.
type NopObserver struct{}

func (NopObserver) Observe(Event) {}

// MultiObserver fans events out to several observers.
type MultiObserver []Observer

func (m MultiObserver) Observe(event Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(event)
		}
	}
}

// LogObserver writes events to a gofulmen logger.
type LogObserver struct {
	Logger *logging.Logger
}

func (o LogObserver) Observe(event Event) {
	if o.Logger == nil {
		return
	}

	fields := []zap.Field{
		zap.String("module", event.Coordinate.String()),
		zap.String("event", string(event.Kind)),
	}
	if event.ResolutionID != "" {
		fields = append(fields, zap.String("resolution_id", event.ResolutionID))
	}
	if event.Repository != "" {
		fields = append(fields, zap.String("repository", event.Repository))
	}
	if event.Phase > 0 {
		fields = append(fields, zap.Int("phase", event.Phase))
	}

	switch event.Kind {
	case EventRepositoryQueried:
		o.Logger.Debug("repository queried", append(fields,
			zap.String("state", event.State.String()),
			zap.Bool("from_cache", event.FromCache),
			zap.Duration("duration", event.Duration))...)
	case EventCandidateConsidered:
		o.Logger.Debug("changing candidate considered", append(fields, zap.String("timestamp", event.Timestamp))...)
	case EventCandidateReplaced:
		o.Logger.Debug("newer candidate replaces previous best", append(fields,
			zap.String("timestamp", event.Timestamp),
			zap.String("previous", event.Previous))...)
	case EventShortCircuit:
		o.Logger.Debug("using module from repository", fields...)
	case EventFailureDiscarded:
		o.Logger.Debug("discarding resolve failure", append(fields, zap.Error(event.Err))...)
	case EventTimestampUnparsable:
		o.Logger.Warn("snapshot timestamp not comparable, keeping current best", append(fields,
			zap.String("timestamp", event.Timestamp),
			zap.String("previous", event.Previous))...)
	case EventResolutionCompleted:
		o.Logger.Debug("resolution completed", append(fields,
			zap.String("outcome", event.Outcome),
			zap.Duration("duration", event.Duration))...)
	}
}
