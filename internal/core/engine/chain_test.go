package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/repochain/repochain/internal/core"
	"github.com/repochain/repochain/internal/core/repository"
)

type stubTier struct {
	calls  int
	answer repository.Answer
	err    error
	panics bool
}

func (t *stubTier) QueryMetadata(ctx context.Context, coord core.ModuleCoordinate, override core.Override) (repository.Answer, error) {
	t.calls++
	if t.panics {
		panic("repository exploded")
	}
	return t.answer, t.err
}

type stubRepo struct {
	name   string
	local  *stubTier
	remote *stubTier
}

func (s *stubRepo) Handle() core.RepositoryHandle {
	return core.RepositoryHandle{Name: s.name, Kind: core.RepositoryKindMavenRemote, Location: "https://" + s.name + ".example"}
}

func (s *stubRepo) Local() repository.Access {
	if s.local == nil {
		return nil
	}
	return s.local
}

func (s *stubRepo) Remote() repository.Access {
	if s.remote == nil {
		return nil
	}
	return s.remote
}

var testCoord = core.ModuleCoordinate{Group: "org.example", Name: "lib", Version: "1.0-SNAPSHOT"}

func authored() *core.ComponentMetadata {
	return &core.ComponentMetadata{ID: testCoord, Maven: &core.MavenSnapshotInfo{Packaging: "jar"}}
}

func changing(timestamp string) *core.ComponentMetadata {
	return &core.ComponentMetadata{
		ID:       testCoord,
		Changing: true,
		Maven:    &core.MavenSnapshotInfo{Packaging: "jar", SnapshotTimestamp: timestamp},
	}
}

func resolvedTier(md *core.ComponentMetadata) *stubTier {
	return &stubTier{answer: repository.Known(core.Resolved(md), true)}
}

func missingTier(authoritative bool) *stubTier {
	return &stubTier{answer: repository.Known(core.Missing(), authoritative)}
}

func failingTier(err error) *stubTier {
	return &stubTier{err: err}
}

type recorder struct {
	events []Event
}

func (r *recorder) Observe(event Event) {
	r.events = append(r.events, event)
}

func (r *recorder) kinds(kind EventKind) []Event {
	var out []Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func resolver(repos ...*stubRepo) *ChainResolver {
	chain := make([]repository.Repository, 0, len(repos))
	for _, r := range repos {
		chain = append(chain, r)
	}
	return &ChainResolver{Repositories: chain}
}

func TestChainShortCircuitsOnFirstAuthoredMatch(t *testing.T) {
	repo1 := &stubRepo{name: "repo1", local: missingTier(false), remote: missingTier(true)}
	repo2 := &stubRepo{name: "repo2", local: resolvedTier(authored())}
	repo3 := &stubRepo{name: "repo3", local: resolvedTier(authored())}

	result, err := resolver(repo1, repo2, repo3).Resolve(context.Background(), testCoord, core.Override{})
	require.NoError(t, err)
	require.Equal(t, "repo2", result.Repository.Name)
	require.Equal(t, 1, result.Provenance.Phase)
	require.NotEmpty(t, result.Provenance.ResolutionID)
	require.Zero(t, repo3.local.calls)
	require.Zero(t, repo1.remote.calls)
}

func TestChainPicksLatestChangingCandidate(t *testing.T) {
	older := "20240101.120000"
	newer := "20240102.090000"

	for _, parallelism := range []int{1, 4} {
		forward := resolver(
			&stubRepo{name: "repo1", local: resolvedTier(changing(older))},
			&stubRepo{name: "repo2", local: resolvedTier(changing(newer))},
		)
		forward.SearchLatestChanging = true
		forward.Parallelism = parallelism
		result, err := forward.Resolve(context.Background(), testCoord, core.Override{})
		require.NoError(t, err)
		require.Equal(t, "repo2", result.Repository.Name)

		reversed := resolver(
			&stubRepo{name: "repo1", local: resolvedTier(changing(newer))},
			&stubRepo{name: "repo2", local: resolvedTier(changing(older))},
		)
		reversed.SearchLatestChanging = true
		reversed.Parallelism = parallelism
		result, err = reversed.Resolve(context.Background(), testCoord, core.Override{})
		require.NoError(t, err)
		require.Equal(t, "repo1", result.Repository.Name)
	}
}

func TestChainComparesAcrossTimestampFormats(t *testing.T) {
	chain := resolver(
		&stubRepo{name: "repo1", local: resolvedTier(changing("20240102.093000"))},
		&stubRepo{name: "repo2", local: resolvedTier(changing("20240102100000"))},
	)
	chain.SearchLatestChanging = true

	result, err := chain.Resolve(context.Background(), testCoord, core.Override{})
	require.NoError(t, err)
	require.Equal(t, "repo2", result.Repository.Name)
}

func TestChainKeepsBestWhenTimestampNotComparable(t *testing.T) {
	cases := []struct {
		name   string
		first  string
		second string
	}{
		{name: "candidate unparsable", first: "20240101.120000", second: "garbage"},
		{name: "best unparsable", first: "garbage", second: "20240102.090000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events := &recorder{}
			chain := resolver(
				&stubRepo{name: "repo1", local: resolvedTier(changing(tc.first))},
				&stubRepo{name: "repo2", local: resolvedTier(changing(tc.second))},
			)
			chain.SearchLatestChanging = true
			chain.Observer = events

			result, err := chain.Resolve(context.Background(), testCoord, core.Override{})
			require.NoError(t, err)
			require.Equal(t, "repo1", result.Repository.Name)
			require.Len(t, events.kinds(EventTimestampUnparsable), 1)
			require.Empty(t, events.kinds(EventCandidateReplaced))
		})
	}
}

func TestChainUnsetTimestampRanksOldest(t *testing.T) {
	cases := []struct {
		name   string
		first  string
		second string
		winner string
	}{
		{name: "best unset", first: "", second: "20240102.090000", winner: "repo2"},
		{name: "candidate unset", first: "20240101.120000", second: "", winner: "repo1"},
		{name: "both unset", first: "", second: "", winner: "repo1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events := &recorder{}
			chain := resolver(
				&stubRepo{name: "repo1", local: resolvedTier(changing(tc.first))},
				&stubRepo{name: "repo2", local: resolvedTier(changing(tc.second))},
			)
			chain.SearchLatestChanging = true
			chain.Observer = events

			result, err := chain.Resolve(context.Background(), testCoord, core.Override{})
			require.NoError(t, err)
			require.Equal(t, tc.winner, result.Repository.Name)
			require.Empty(t, events.kinds(EventTimestampUnparsable))
		})
	}
}

func TestChainAuthoredChangingReplacesGeneratedBest(t *testing.T) {
	generatedUnset := changing("")
	generatedUnset.Generated = true
	generatedNewer := changing("20240105.000000")
	generatedNewer.Generated = true

	cases := []struct {
		name      string
		generated *core.ComponentMetadata
		authored  *core.ComponentMetadata
		winner    string
	}{
		{name: "generated unset", generated: generatedUnset, authored: changing("20240102.090000"), winner: "repo2"},
		{name: "both unset", generated: generatedUnset, authored: changing(""), winner: "repo2"},
		{name: "generated unparsable", generated: &core.ComponentMetadata{ID: testCoord, Changing: true, Generated: true, Maven: &core.MavenSnapshotInfo{Packaging: "jar", SnapshotTimestamp: "garbage"}}, authored: changing("20240102.090000"), winner: "repo2"},
		{name: "generated strictly newer", generated: generatedNewer, authored: changing("20240102.090000"), winner: "repo1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chain := resolver(
				&stubRepo{name: "repo1", local: resolvedTier(tc.generated)},
				&stubRepo{name: "repo2", local: resolvedTier(tc.authored)},
			)
			chain.SearchLatestChanging = true

			result, err := chain.Resolve(context.Background(), testCoord, core.Override{})
			require.NoError(t, err)
			require.Equal(t, tc.winner, result.Repository.Name)
			require.Equal(t, tc.winner == "repo1", result.Metadata.Generated)
		})
	}
}

func TestChainEqualTimestampsKeepFirst(t *testing.T) {
	chain := resolver(
		&stubRepo{name: "repo1", local: resolvedTier(changing("20240101.120000"))},
		&stubRepo{name: "repo2", local: resolvedTier(changing("20240101120000"))},
	)
	chain.SearchLatestChanging = true

	result, err := chain.Resolve(context.Background(), testCoord, core.Override{})
	require.NoError(t, err)
	require.Equal(t, "repo1", result.Repository.Name)
}

func TestChainSearchLatestOverride(t *testing.T) {
	repo1 := &stubRepo{name: "repo1", local: resolvedTier(changing("20240101.120000"))}
	repo2 := &stubRepo{name: "repo2", local: resolvedTier(changing("20240102.090000"))}
	chain := resolver(repo1, repo2)

	result, err := chain.Resolve(context.Background(), testCoord, core.Override{})
	require.NoError(t, err)
	require.Equal(t, "repo1", result.Repository.Name)
	require.Zero(t, repo2.local.calls)

	enabled := true
	result, err = chain.Resolve(context.Background(), testCoord, core.Override{SearchLatestChanging: &enabled})
	require.NoError(t, err)
	require.Equal(t, "repo2", result.Repository.Name)

	chain.SearchLatestChanging = true
	disabled := false
	result, err = chain.Resolve(context.Background(), testCoord, core.Override{SearchLatestChanging: &disabled})
	require.NoError(t, err)
	require.Equal(t, "repo1", result.Repository.Name)
}

func TestChainGeneratedMetadataNeverShortCircuits(t *testing.T) {
	generated := authored()
	generated.Generated = true

	repo1 := &stubRepo{name: "repo1", local: resolvedTier(generated)}
	repo2 := &stubRepo{name: "repo2", local: resolvedTier(authored())}
	result, err := resolver(repo1, repo2).Resolve(context.Background(), testCoord, core.Override{})
	require.NoError(t, err)
	require.Equal(t, "repo2", result.Repository.Name)

	onlyGenerated := &stubRepo{name: "repo1", local: resolvedTier(generated)}
	empty := &stubRepo{name: "repo2", local: missingTier(true)}
	result, err = resolver(onlyGenerated, empty).Resolve(context.Background(), testCoord, core.Override{})
	require.NoError(t, err)
	require.Equal(t, "repo1", result.Repository.Name)
	require.True(t, result.Metadata.Generated)
	require.Equal(t, 1, empty.local.calls)
}

func TestChainSecondPhaseQueriesParkedRepositoriesOnce(t *testing.T) {
	repo1 := &stubRepo{name: "repo1", local: missingTier(false), remote: missingTier(true)}
	repo2 := &stubRepo{name: "repo2", local: missingTier(true)}

	_, err := resolver(repo1, repo2).Resolve(context.Background(), testCoord, core.Override{})
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 1, repo1.local.calls)
	require.Equal(t, 1, repo1.remote.calls)
	require.Equal(t, 1, repo2.local.calls)

	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	require.Len(t, notFound.Diagnostics, 2)
	require.Equal(t, "repo1", notFound.Diagnostics[0].Repository)
	require.Equal(t, 2, notFound.Diagnostics[0].Attempts)
	require.Equal(t, "not found in remote tier", notFound.Diagnostics[0].Reason)
	require.Contains(t, err.Error(), "Searched in: repo1")
}

func TestChainSecondPhaseResolves(t *testing.T) {
	repo1 := &stubRepo{name: "repo1", local: missingTier(false), remote: resolvedTier(authored())}
	repo2 := &stubRepo{name: "repo2", local: missingTier(true)}

	result, err := resolver(repo1, repo2).Resolve(context.Background(), testCoord, core.Override{})
	require.NoError(t, err)
	require.Equal(t, "repo1", result.Repository.Name)
	require.Equal(t, 2, result.Provenance.Phase)
}

func TestChainSecondPhaseCanReplacePhaseOneBest(t *testing.T) {
	repo1 := &stubRepo{name: "repo1", local: resolvedTier(changing("20240101.120000"))}
	repo2 := &stubRepo{name: "repo2", local: missingTier(false), remote: resolvedTier(changing("20240102.090000"))}
	chain := resolver(repo1, repo2)
	chain.SearchLatestChanging = true

	result, err := chain.Resolve(context.Background(), testCoord, core.Override{})
	require.NoError(t, err)
	require.Equal(t, "repo2", result.Repository.Name)
	require.Equal(t, 2, result.Provenance.Phase)
}

func TestChainUnknownLocalFallsThroughToRemote(t *testing.T) {
	repo := &stubRepo{
		name:   "repo1",
		local:  &stubTier{answer: repository.NoAnswer()},
		remote: resolvedTier(authored()),
	}

	result, err := resolver(repo).Resolve(context.Background(), testCoord, core.Override{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Provenance.Phase)
	require.Equal(t, 1, repo.remote.calls)
}

func TestChainSuccessSuppressesFailures(t *testing.T) {
	events := &recorder{}
	repo1 := &stubRepo{name: "repo1", local: failingTier(errors.New("connection refused"))}
	repo2 := &stubRepo{name: "repo2", local: &stubTier{panics: true}}
	repo3 := &stubRepo{name: "repo3", local: resolvedTier(authored())}
	chain := resolver(repo1, repo2, repo3)
	chain.Observer = events

	result, err := chain.Resolve(context.Background(), testCoord, core.Override{})
	require.NoError(t, err)
	require.Equal(t, "repo3", result.Repository.Name)
	require.Len(t, events.kinds(EventFailureDiscarded), 2)

	completed := events.kinds(EventResolutionCompleted)
	require.Len(t, completed, 1)
	require.Equal(t, OutcomeResolved, completed[0].Outcome)
}

var errUnreachable = errors.New("host unreachable")

func TestChainAggregatesFailures(t *testing.T) {
	repo1 := &stubRepo{name: "repo1", local: failingTier(errUnreachable)}
	repo2 := &stubRepo{name: "repo2", local: missingTier(true)}
	repo3 := &stubRepo{name: "repo3", local: &stubTier{answer: repository.Known(core.Failed(errors.New("bad checksum")), true)}}

	_, err := resolver(repo1, repo2, repo3).Resolve(context.Background(), testCoord, core.Override{})
	var failed *ResolutionFailedError
	require.True(t, errors.As(err, &failed))
	require.Len(t, failed.Causes, 2)
	require.ErrorIs(t, err, errUnreachable)
	require.False(t, errors.Is(err, ErrNotFound))

	var repoErr *RepositoryError
	require.True(t, errors.As(failed.Causes[1], &repoErr))
	require.Equal(t, "repo3", repoErr.Repository)
	require.Contains(t, err.Error(), "bad checksum")
}

func TestChainParallelKeepsChainOrder(t *testing.T) {
	repo1 := &stubRepo{name: "repo1", local: missingTier(true)}
	repo2 := &stubRepo{name: "repo2", local: resolvedTier(authored())}
	repo3 := &stubRepo{name: "repo3", local: resolvedTier(authored())}
	repo4 := &stubRepo{name: "repo4", local: failingTier(errUnreachable)}
	chain := resolver(repo1, repo2, repo3, repo4)
	chain.Parallelism = 3

	for i := 0; i < 10; i++ {
		result, err := chain.Resolve(context.Background(), testCoord, core.Override{})
		require.NoError(t, err)
		require.Equal(t, "repo2", result.Repository.Name)
	}
}

func TestChainCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := &stubRepo{name: "repo1", local: resolvedTier(authored())}

	_, err := resolver(repo).Resolve(ctx, testCoord, core.Override{})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, repo.local.calls)
}

func TestChainRejectsInvalidCoordinate(t *testing.T) {
	_, err := resolver().Resolve(context.Background(), core.ModuleCoordinate{Group: "g"}, core.Override{})
	require.Error(t, err)
}

func TestChainEmptyIsNotFound(t *testing.T) {
	_, err := resolver().Resolve(context.Background(), testCoord, core.Override{})
	require.ErrorIs(t, err, ErrNotFound)
	require.Contains(t, err.Error(), "no repositories configured")
}

func TestChainProvenanceClock(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	chain := resolver(&stubRepo{name: "repo1", local: &stubTier{answer: repository.Known(core.Resolved(authored()).Cached(), true)}})
	chain.Clock = func() time.Time { return now }
	chain.ToolVersion = "1.2.3"

	result, err := chain.Resolve(context.Background(), testCoord, core.Override{})
	require.NoError(t, err)
	require.Equal(t, now, result.Provenance.RequestedAt)
	require.True(t, result.Provenance.FromCache)
	require.Equal(t, "1.2.3", result.Provenance.ToolVersion)
}

func TestChainReusesRequestIDAsResolutionID(t *testing.T) {
	events := &recorder{}
	chain := resolver(&stubRepo{name: "repo1", local: resolvedTier(authored())})
	chain.Observer = events

	ctx := core.WithRequestID(context.Background(), "req-7")
	result, err := chain.Resolve(ctx, testCoord, core.Override{})
	require.NoError(t, err)
	require.Equal(t, "req-7", result.Provenance.ResolutionID)
	require.NotEmpty(t, events.events)
	for _, event := range events.events {
		require.Equal(t, "req-7", event.ResolutionID, event.Kind)
	}

	result, err = chain.Resolve(core.WithBatchItem(ctx, 3), testCoord, core.Override{})
	require.NoError(t, err)
	require.Equal(t, "req-7/3", result.Provenance.ResolutionID)

	result, err = chain.Resolve(context.Background(), testCoord, core.Override{})
	require.NoError(t, err)
	require.NotEqual(t, "req-7", result.Provenance.ResolutionID)
	require.NotEmpty(t, result.Provenance.ResolutionID)
}
