package core

// ResolveState classifies a single repository answer.
type ResolveState int

const (
	StateMissing ResolveState = iota
	StateResolved
	StateFailed
)

func (s ResolveState) String() string {
	switch s {
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	default:
		return "missing"
	}
}

// ResolveOutcome is the answer of one repository query attempt.
// Exactly one of metadata or err is set, according to state.
type ResolveOutcome struct {
	state    ResolveState
	metadata *ComponentMetadata
	err      error
	cached   bool
}

// Resolved builds a successful outcome. Nil metadata yields Missing.
func Resolved(metadata *ComponentMetadata) ResolveOutcome {
	if metadata == nil {
		return Missing()
	}
	return ResolveOutcome{state: StateResolved, metadata: metadata}
}

// Missing builds a "nothing here" outcome.
func Missing() ResolveOutcome {
	return ResolveOutcome{state: StateMissing}
}

// Failed builds a failed outcome. Nil err yields Missing.
func Failed(err error) ResolveOutcome {
	if err == nil {
		return Missing()
	}
	return ResolveOutcome{state: StateFailed, err: err}
}

func (o ResolveOutcome) State() ResolveState           { return o.state }
func (o ResolveOutcome) Metadata() *ComponentMetadata { return o.metadata }
func (o ResolveOutcome) Err() error                   { return o.err }

// FromCache reports whether the answer was served from the module cache.
func (o ResolveOutcome) FromCache() bool { return o.cached }

// Cached marks the outcome as served from the module cache.
func (o ResolveOutcome) Cached() ResolveOutcome {
	o.cached = true
	return o
}
