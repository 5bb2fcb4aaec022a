package engine

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/repochain/repochain/internal/core"
	"github.com/repochain/repochain/internal/core/repository"
)

// ChainResolver resolves module metadata across an ordered repository chain.
type ChainResolver struct {
	Repositories []repository.Repository
	// SearchLatestChanging selects the most recent changing module across
	// the chain instead of the first match. Overridable per request.
	SearchLatestChanging bool
	Observer             Observer
	// Parallelism above 1 queries the repositories of a phase concurrently.
	// Answers are still folded in chain order.
	Parallelism int
	Clock       func() time.Time
	ToolVersion string
}

// Resolve finds metadata for coord. The request ID carried by ctx, if any,
// becomes the resolution ID. It returns a *NotFoundError when no
// repository has the module, or a *ResolutionFailedError when nothing was
// found and at least one repository failed.
func (r *ChainResolver) Resolve(ctx context.Context, coord core.ModuleCoordinate, override core.Override) (*core.ChainResolution, error) {
	if r == nil {
		return nil, errors.New("chain resolver is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := coord.Validate(); err != nil {
		return nil, err
	}

	requestedAt := r.now()
	resolutionID := core.RequestIDFrom(ctx)
	if resolutionID == "" {
		resolutionID = uuid.New().String()
	}
	policy := foldPolicy{
		coordinate:   coord,
		resolutionID: resolutionID,
		searchLatest: r.SearchLatestChanging,
		observer:     r.observer(),
	}
	if override.SearchLatestChanging != nil {
		policy.searchLatest = *override.SearchLatestChanging
	}

	states := make([]*QueryState, 0, len(r.Repositories))
	for i, repo := range r.Repositories {
		if repo == nil {
			continue
		}
		states = append(states, NewQueryState(i, repo, coord, override))
	}

	acc := fold(accumulator{}, r.attempts(ctx, states, 1), policy)
	if acc.winner == nil && len(acc.parked) > 0 {
		parked := acc.parked
		acc.parked = nil
		acc = fold(acc, r.attempts(ctx, parked, 2), policy)
	}

	chosen := acc.winner
	if chosen == nil {
		chosen = acc.best
	}

	if chosen != nil {
		for _, failure := range acc.failures {
			policy.observer.Observe(Event{Kind: EventFailureDiscarded, ResolutionID: resolutionID, Coordinate: coord, Err: failure})
		}
		r.complete(policy, OutcomeResolved, chosen.repository.Name, requestedAt)
		return &core.ChainResolution{
			Metadata:   chosen.metadata,
			Repository: chosen.repository,
			Provenance: core.Provenance{
				ResolutionID: resolutionID,
				RequestedAt:  requestedAt,
				ResolvedAt:   r.now(),
				Phase:        chosen.phase,
				FromCache:    chosen.fromCache,
				ToolVersion:  r.ToolVersion,
			},
		}, nil
	}

	if err := ctx.Err(); err != nil {
		r.complete(policy, OutcomeFailed, "", requestedAt)
		return nil, err
	}

	if len(acc.failures) > 0 {
		r.complete(policy, OutcomeFailed, "", requestedAt)
		return nil, &ResolutionFailedError{Coordinate: coord, Causes: acc.failures}
	}

	notFound := &NotFoundError{Coordinate: coord}
	for _, state := range states {
		state.ApplyTo(notFound)
	}
	r.complete(policy, OutcomeNotFound, "", requestedAt)
	return nil, notFound
}

// attempts yields one answer per state in chain order. Sequential sequences
// query lazily, so repositories after a short-circuit are never contacted.
func (r *ChainResolver) attempts(ctx context.Context, states []*QueryState, phase int) iter.Seq[attempt] {
	if r.Parallelism <= 1 || len(states) < 2 {
		return func(yield func(attempt) bool) {
			for _, state := range states {
				if ctx.Err() != nil {
					return
				}
				if !yield(r.query(ctx, state, phase)) {
					return
				}
			}
		}
	}

	return func(yield func(attempt) bool) {
		results := make([]attempt, len(states))
		var group errgroup.Group
		group.SetLimit(r.Parallelism)
		for i, state := range states {
			group.Go(func() error {
				results[i] = r.query(ctx, state, phase)
				return nil
			})
		}
		_ = group.Wait()

		for _, result := range results {
			if !yield(result) {
				return
			}
		}
	}
}

func (r *ChainResolver) query(ctx context.Context, state *QueryState, phase int) attempt {
	start := time.Now()
	outcome := state.Resolve(ctx)
	return attempt{state: state, outcome: outcome, phase: phase, duration: time.Since(start)}
}

func (r *ChainResolver) complete(policy foldPolicy, outcome, repositoryName string, requestedAt time.Time) {
	policy.observer.Observe(Event{
		Kind:         EventResolutionCompleted,
		ResolutionID: policy.resolutionID,
		Coordinate:   policy.coordinate,
		Repository:   repositoryName,
		Outcome:      outcome,
		Duration:     r.now().Sub(requestedAt),
	})
}

func (r *ChainResolver) observer() Observer {
	if r.Observer == nil {
		return NopObserver{}
	}
	return r.Observer
}

func (r *ChainResolver) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}
