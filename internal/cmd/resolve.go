package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/repochain/repochain/internal/config"
	"github.com/repochain/repochain/internal/core"
	"github.com/repochain/repochain/internal/core/store"
	"github.com/repochain/repochain/internal/output"
	"github.com/repochain/repochain/internal/server/handlers"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <group:name:version>...",
	Short: "Resolve module metadata across the repository chain",
	Long: `Resolve module metadata across the configured repository chain.

Each repository's local tier (local Maven layout or module cache) is asked
first. Remote tiers are only queried when no local tier produced a usable
answer. With --latest-changing, every repository is searched and the changing
module with the newest snapshot timestamp wins.`,
	Example: `  repochain resolve org.example:lib:1.0
  repochain resolve --latest-changing org.example:lib:1.0-SNAPSHOT
  repochain resolve --chain chain.yaml --output-format json org.example:lib:[1.0,2.0)`,
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	addResolveFlags(resolveCmd)
}

func addResolveFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("latest-changing", false, "search every repository for the most recent changing module")
	cmd.Flags().Bool("changing", false, "treat the module as changing")
	cmd.Flags().String("chain", "", "chain definition file (replaces configured repositories)")
	cmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown")
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
	cmd.Flags().Bool("no-cache", false, "skip cache reads (fresh answers are still cached)")
	cmd.Flags().Int("parallelism", 0, "repositories queried concurrently per phase (default from config)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	coords, err := collectCoordinates(args, "")
	if err != nil {
		return withExitCode(foundry.ExitConfigInvalid, err)
	}
	return executeResolution(cmd, coords, 1)
}

// resolutionSession bundles what a resolving command needs.
type resolutionSession struct {
	cfg      *config.Config
	db       *store.Store
	resolver handlers.Resolver
	handles  []core.RepositoryHandle
}

func (s *resolutionSession) Close() {
	if s != nil && s.db != nil {
		_ = s.db.Close()
	}
}

// openSession loads configuration, applies --chain and --parallelism, and
// builds the resolver.
func openSession(cmd *cobra.Command) (*resolutionSession, error) {
	ctx := cmd.Context()

	var overrides map[string]any
	if cmd.Flags().Changed("parallelism") {
		parallelism, err := cmd.Flags().GetInt("parallelism")
		if err != nil {
			return nil, err
		}
		if parallelism < 1 {
			return nil, withExitCode(foundry.ExitConfigInvalid, errors.New("--parallelism must be at least 1"))
		}
		overrides = map[string]any{"resolution": map[string]any{"parallelism": parallelism}}
	}

	cfg, err := loadConfig(ctx, overrides)
	if err != nil {
		return nil, err
	}

	if chainPath, _ := cmd.Flags().GetString("chain"); strings.TrimSpace(chainPath) != "" {
		chain, err := loadChain(chainPath)
		if err != nil {
			return nil, err
		}
		parallelism := cfg.Resolution.Parallelism
		cfg.ApplyChain(chain)
		if overrides != nil {
			cfg.Resolution.Parallelism = parallelism
		}
	}

	if len(cfg.Repositories) == 0 {
		cliLogger().Warn("No repositories configured; add repositories to the config file or pass --chain")
	}

	session := &resolutionSession{cfg: cfg}
	if cfg.Cache.Enabled {
		db, err := openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		session.db = db
	}

	noCache, _ := cmd.Flags().GetBool("no-cache")
	resolver, handles, err := buildResolver(cfg, session.db, chainOptions{
		UseCache: !noCache,
		Logger:   cliLogger(),
	})
	if err != nil {
		session.Close()
		return nil, err
	}
	session.resolver = resolver
	session.handles = handles
	return session, nil
}

// loadChain reads a --chain file, classifying failures for the exit code.
func loadChain(path string) (*config.ChainFile, error) {
	chain, err := config.LoadChainFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, withExitCode(foundry.ExitFileNotFound, err)
		}
		return nil, withExitCode(foundry.ExitConfigInvalid, fmt.Errorf("%s: %w", path, err))
	}
	return chain, nil
}

func overrideFromFlags(cmd *cobra.Command) (core.Override, error) {
	var override core.Override
	if cmd.Flags().Changed("latest-changing") {
		latest, err := cmd.Flags().GetBool("latest-changing")
		if err != nil {
			return override, err
		}
		override.SearchLatestChanging = &latest
	}
	changing, err := cmd.Flags().GetBool("changing")
	if err != nil {
		return override, err
	}
	override.Changing = changing
	return override, nil
}

func executeResolution(cmd *cobra.Command, coords []string, workers int) error {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return withExitCode(foundry.ExitConfigInvalid, err)
	}
	override, err := overrideFromFlags(cmd)
	if err != nil {
		return err
	}

	session, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer session.Close()

	startedAt := time.Now()
	results := resolveCoordinates(cmd.Context(), session.resolver, coords, override, workers, session.cfg.Resolution.Timeout)

	rendered, err := output.NewFormatter(format).FormatResults(results)
	if err != nil {
		return err
	}
	outPath, _ := cmd.Flags().GetString("out")
	if err := writeRendered(outPath, rendered); err != nil {
		return err
	}

	summary := output.Summarize(results)
	cliLogger().Debug("Resolution finished",
		zap.Int("coordinates", len(coords)),
		zap.String("summary", summary.String()),
		zap.Duration("elapsed", time.Since(startedAt)))
	return summaryError(summary)
}

type resolveJob struct {
	index int
	raw   string
}

// resolveCoordinates resolves coords with a pool of workers. Results keep
// the input order; per-coordinate failures are captured in each result.
func resolveCoordinates(ctx context.Context, resolver handlers.Resolver, coords []string, override core.Override, workers int, timeout time.Duration) []*output.Result {
	results := make([]*output.Result, len(coords))
	if workers < 1 {
		workers = 1
	}
	if workers > len(coords) {
		workers = len(coords)
	}

	jobs := make(chan resolveJob)
	var wg sync.WaitGroup
	worker := func() {
		defer wg.Done()
		for job := range jobs {
			results[job.index] = resolveOne(ctx, resolver, job.raw, override, timeout)
		}
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker()
	}

sendLoop:
	for i, raw := range coords {
		select {
		case <-ctx.Done():
			break sendLoop
		case jobs <- resolveJob{index: i, raw: raw}:
		}
	}
	close(jobs)
	wg.Wait()

	for i, result := range results {
		if result == nil {
			results[i] = output.NewResult(coords[i], nil, ctx.Err())
		}
	}
	return results
}

func resolveOne(ctx context.Context, resolver handlers.Resolver, raw string, override core.Override, timeout time.Duration) *output.Result {
	coord, err := core.ParseCoordinate(raw)
	if err != nil {
		return output.NewResult(raw, nil, err)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resolution, err := resolver.Resolve(ctx, coord, override)
	return output.NewResult(raw, resolution, err)
}

// summaryError turns unresolved results into a command error.
func summaryError(summary output.Summary) error {
	switch {
	case summary.Invalid > 0 && summary.Resolved+summary.NotFound+summary.Failed == 0:
		return withExitCode(foundry.ExitConfigInvalid, errors.New(summary.String()))
	case summary.NotFound+summary.Failed+summary.Invalid > 0:
		return withExitCode(foundry.ExitFailure, errors.New(summary.String()))
	default:
		return nil
	}
}
