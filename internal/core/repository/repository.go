// Package repository implements the metadata primitive each chain entry
// exposes: a local access tier and an optional remote tier.
package repository

import (
	"context"
	"time"

	"github.com/repochain/repochain/internal/core"
)

// Answer is the reply of one access tier.
type Answer struct {
	Outcome core.ResolveOutcome
	// Unknown means the tier could not tell and the next tier should be asked.
	Unknown bool
	// Authoritative marks a Missing outcome as final for the repository.
	Authoritative bool
}

// Known wraps a definite outcome.
func Known(outcome core.ResolveOutcome, authoritative bool) Answer {
	return Answer{Outcome: outcome, Authoritative: authoritative}
}

// NoAnswer reports that the tier has no information.
func NoAnswer() Answer {
	return Answer{Outcome: core.Missing(), Unknown: true}
}

// Access is one lookup tier of a repository.
type Access interface {
	QueryMetadata(ctx context.Context, coord core.ModuleCoordinate, override core.Override) (Answer, error)
}

// AccessFunc adapts a function to Access.
type AccessFunc func(ctx context.Context, coord core.ModuleCoordinate, override core.Override) (Answer, error)

func (f AccessFunc) QueryMetadata(ctx context.Context, coord core.ModuleCoordinate, override core.Override) (Answer, error) {
	return f(ctx, coord, override)
}

// Repository is an entry of the resolution chain. Remote returns nil for
// repositories without a second tier.
type Repository interface {
	Handle() core.RepositoryHandle
	Local() Access
	Remote() Access
}

// ModuleCache persists module answers between runs. A nil metadata in
// PutModule records a miss.
type ModuleCache interface {
	GetModule(ctx context.Context, repository string, coord core.ModuleCoordinate) (*core.CachedModule, error)
	PutModule(ctx context.Context, repository string, coord core.ModuleCoordinate, md *core.ComponentMetadata, ttl time.Duration) error
}

// CachePolicy holds module cache TTLs.
type CachePolicy struct {
	ModuleTTL   time.Duration
	ChangingTTL time.Duration
	MissingTTL  time.Duration
}

func (p CachePolicy) withDefaults() CachePolicy {
	if p.ModuleTTL == 0 {
		p.ModuleTTL = 24 * time.Hour
	}
	if p.ChangingTTL == 0 {
		p.ChangingTTL = 10 * time.Minute
	}
	if p.MissingTTL == 0 {
		p.MissingTTL = 10 * time.Minute
	}
	return p
}

// TTLFor picks the TTL for an answer. Nil metadata is a miss.
func (p CachePolicy) TTLFor(md *core.ComponentMetadata) time.Duration {
	p = p.withDefaults()
	switch {
	case md == nil:
		return p.MissingTTL
	case md.Changing:
		return p.ChangingTTL
	default:
		return p.ModuleTTL
	}
}
