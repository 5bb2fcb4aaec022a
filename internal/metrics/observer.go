package metrics

import (
	"github.com/repochain/repochain/internal/core/engine"
)

// Observer turns resolver events into telemetry.
type Observer struct{}

func (Observer) Observe(event engine.Event) {
	switch event.Kind {
	case engine.EventRepositoryQueried:
		RecordRepositoryQuery(event.Repository, event.State.String(), event.FromCache, event.Duration)
	case engine.EventCandidateReplaced:
		RecordCandidateReplaced(event.Repository)
	case engine.EventTimestampUnparsable:
		RecordUnparsableTimestamp(event.Repository)
	case engine.EventResolutionCompleted:
		RecordResolution(event.Outcome, event.Duration)
	}
}
