package engine

import (
	"context"
	"fmt"

	"github.com/repochain/repochain/internal/core"
	"github.com/repochain/repochain/internal/core/repository"
)

// QueryState tracks one repository's progress through a single resolution.
// The first Resolve asks the local tier (falling through to the remote tier
// when the local tier cannot tell); a second Resolve asks the remote tier.
type QueryState struct {
	index    int
	repo     repository.Repository
	handle   core.RepositoryHandle
	coord    core.ModuleCoordinate
	override core.Override

	attempts      int
	remotePending bool
	reason        string
}

// NewQueryState prepares the state for one repository at chain position index.
func NewQueryState(index int, repo repository.Repository, coord core.ModuleCoordinate, override core.Override) *QueryState {
	return &QueryState{
		index:         index,
		repo:          repo,
		handle:        repo.Handle(),
		coord:         coord,
		override:      override,
		remotePending: repo.Remote() != nil,
		reason:        "not queried",
	}
}

// Repository returns the handle of the wrapped repository.
func (s *QueryState) Repository() core.RepositoryHandle { return s.handle }

// Index is the chain position of the repository.
func (s *QueryState) Index() int { return s.index }

// CanMakeFurtherAttempts reports whether a tier is still unexercised.
func (s *QueryState) CanMakeFurtherAttempts() bool { return s.remotePending }

// Resolve runs the next lookup tier. Errors and panics become Failed outcomes.
func (s *QueryState) Resolve(ctx context.Context) (outcome core.ResolveOutcome) {
	s.attempts++
	defer func() {
		if recovered := recover(); recovered != nil {
			s.remotePending = false
			s.reason = "failed"
			outcome = core.Failed(&RepositoryError{
				Repository: s.handle.Name,
				Err:        fmt.Errorf("panic while querying: %v", recovered),
			})
		}
	}()

	if s.attempts == 1 {
		if local := s.repo.Local(); local != nil {
			answer, err := local.QueryMetadata(ctx, s.coord, s.override)
			if err != nil {
				return s.fail(err)
			}
			if !answer.Unknown {
				if answer.Outcome.State() != core.StateMissing || answer.Authoritative {
					s.remotePending = false
				}
				return s.record(answer.Outcome, "local")
			}
		}
	}

	if !s.remotePending {
		s.reason = "not found"
		return core.Missing()
	}
	s.remotePending = false

	answer, err := s.repo.Remote().QueryMetadata(ctx, s.coord, s.override)
	if err != nil {
		return s.fail(err)
	}
	return s.record(answer.Outcome, "remote")
}

func (s *QueryState) fail(err error) core.ResolveOutcome {
	s.remotePending = false
	s.reason = "failed: " + err.Error()
	return core.Failed(&RepositoryError{Repository: s.handle.Name, Err: err})
}

func (s *QueryState) record(outcome core.ResolveOutcome, tier string) core.ResolveOutcome {
	switch outcome.State() {
	case core.StateResolved:
		s.reason = "resolved"
	case core.StateFailed:
		s.remotePending = false
		s.reason = "failed: " + outcome.Err().Error()
		return core.Failed(&RepositoryError{Repository: s.handle.Name, Err: outcome.Err()})
	default:
		s.reason = "not found in " + tier + " tier"
		if outcome.FromCache() {
			s.reason += " (cached)"
		}
	}
	return outcome
}

// ApplyTo records why this repository produced nothing.
func (s *QueryState) ApplyTo(result *NotFoundError) {
	if result == nil {
		return
	}
	result.Diagnostics = append(result.Diagnostics, RepositoryDiagnostic{
		Repository: s.handle.Name,
		Location:   s.handle.Location,
		Attempts:   s.attempts,
		Reason:     s.reason,
	})
}
