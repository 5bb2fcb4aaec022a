package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/repochain/repochain/internal/core"
	apperrors "github.com/repochain/repochain/internal/errors"
	"github.com/repochain/repochain/internal/output"
	servermw "github.com/repochain/repochain/internal/server/middleware"
)

const (
	defaultMaxBatch = 100
	maxRequestBytes = 1 << 20
)

// Resolver resolves one module across the configured chain.
type Resolver interface {
	Resolve(ctx context.Context, coord core.ModuleCoordinate, override core.Override) (*core.ChainResolution, error)
}

// RepositoryLister is implemented by resolvers whose chain can change at runtime.
type RepositoryLister interface {
	Handles() []core.RepositoryHandle
}

// ResolveAPI serves the /v1 resolution endpoints.
type ResolveAPI struct {
	Resolver     Resolver
	Repositories []core.RepositoryHandle
	// Timeout bounds a single resolution. Zero means no bound beyond the request context.
	Timeout  time.Duration
	Workers  int
	MaxBatch int
}

// BatchRequest is the body of POST /v1/resolve.
type BatchRequest struct {
	Coordinates    []string `json:"coordinates"`
	LatestChanging *bool    `json:"latest_changing,omitempty"`
	Changing       bool     `json:"changing,omitempty"`
}

// BatchResponse is returned by POST /v1/resolve.
type BatchResponse struct {
	Results []*output.Result `json:"results"`
	Summary output.Summary   `json:"summary"`
}

// RepositoriesResponse is returned by GET /v1/repositories.
type RepositoriesResponse struct {
	Repositories []core.RepositoryHandle `json:"repositories"`
}

// Resolve handles GET /v1/resolve?coordinate=group:name:version.
func (a *ResolveAPI) Resolve(w http.ResponseWriter, r *http.Request) {
	if a == nil || a.Resolver == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("resolver not configured"))
		return
	}

	query := r.URL.Query()
	raw := strings.TrimSpace(query.Get("coordinate"))
	if raw == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("coordinate query parameter is required"))
		return
	}

	override, err := overrideFromQuery(query.Get("latest_changing"), query.Get("changing"))
	if err != nil {
		respondWithError(w, r, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	coord, err := core.ParseCoordinate(raw)
	if err != nil {
		respondWithError(w, r, apperrors.FromResolution(r.Context(), err))
		return
	}

	resolution, err := a.resolve(r.Context(), coord, override)
	if err != nil {
		servermw.NoteResolution(r.Context(), 1, 0)
		respondWithError(w, r, apperrors.FromResolution(r.Context(), err))
		return
	}
	servermw.NoteResolution(r.Context(), 1, 1)
	writeJSON(w, http.StatusOK, resolution)
}

// ResolveBatch handles POST /v1/resolve. Per-coordinate failures are
// reported in the results, not as an HTTP error.
func (a *ResolveAPI) ResolveBatch(w http.ResponseWriter, r *http.Request) {
	if a == nil || a.Resolver == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("resolver not configured"))
		return
	}

	var req BatchRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		respondWithError(w, r, apperrors.NewInvalidInputError("invalid request body: "+err.Error()))
		return
	}
	if len(req.Coordinates) == 0 {
		respondWithError(w, r, apperrors.NewInvalidInputError("coordinates must not be empty"))
		return
	}
	maxBatch := a.MaxBatch
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatch
	}
	if len(req.Coordinates) > maxBatch {
		respondWithError(w, r, apperrors.NewInvalidInputError(fmt.Sprintf("at most %d coordinates per request", maxBatch)))
		return
	}

	override := core.Override{Changing: req.Changing, SearchLatestChanging: req.LatestChanging}
	results := make([]*output.Result, len(req.Coordinates))

	workers := a.Workers
	if workers <= 0 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i, raw := range req.Coordinates {
		g.Go(func() error {
			coord, err := core.ParseCoordinate(raw)
			if err != nil {
				results[i] = output.NewResult(raw, nil, err)
				return nil
			}
			resolution, err := a.resolve(core.WithBatchItem(r.Context(), i), coord, override)
			results[i] = output.NewResult(raw, resolution, err)
			return nil
		})
	}
	_ = g.Wait()

	summary := output.Summarize(results)
	servermw.NoteResolution(r.Context(), len(results), summary.Resolved)
	writeJSON(w, http.StatusOK, BatchResponse{Results: results, Summary: summary})
}

// ListRepositories handles GET /v1/repositories.
func (a *ResolveAPI) ListRepositories(w http.ResponseWriter, r *http.Request) {
	handles := []core.RepositoryHandle{}
	if a != nil {
		if lister, ok := a.Resolver.(RepositoryLister); ok {
			handles = append(handles, lister.Handles()...)
		} else {
			handles = append(handles, a.Repositories...)
		}
	}
	writeJSON(w, http.StatusOK, RepositoriesResponse{Repositories: handles})
}

func (a *ResolveAPI) resolve(ctx context.Context, coord core.ModuleCoordinate, override core.Override) (*core.ChainResolution, error) {
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	return a.Resolver.Resolve(ctx, coord, override)
}

func overrideFromQuery(latestChanging, changing string) (core.Override, error) {
	var override core.Override
	if value := strings.TrimSpace(latestChanging); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return override, fmt.Errorf("latest_changing must be a boolean, got %q", value)
		}
		override.SearchLatestChanging = &parsed
	}
	if value := strings.TrimSpace(changing); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return override, fmt.Errorf("changing must be a boolean, got %q", value)
		}
		override.Changing = parsed
	}
	return override, nil
}
