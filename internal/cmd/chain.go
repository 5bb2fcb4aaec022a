package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"

	"github.com/repochain/repochain/internal/appid"
	"github.com/repochain/repochain/internal/config"
	"github.com/repochain/repochain/internal/core"
	"github.com/repochain/repochain/internal/core/engine"
	"github.com/repochain/repochain/internal/core/repository"
	"github.com/repochain/repochain/internal/core/store"
	"github.com/repochain/repochain/internal/core/transport"
	"github.com/repochain/repochain/internal/metrics"
)

const remoteRequestTimeout = 30 * time.Second

// chainOptions adjusts how the configured chain is built for one command.
type chainOptions struct {
	// UseCache enables cache reads. Fresh answers are written either way.
	UseCache bool
	Logger   *logging.Logger
}

// buildResolver assembles the chain resolver for cfg. db may be nil, in
// which case nothing is cached and rate limits are not persisted.
func buildResolver(cfg *config.Config, db *store.Store, opts chainOptions) (*engine.ChainResolver, []core.RepositoryHandle, error) {
	limiter := &transport.RateLimiter{}
	limiter.ApplyOverrides(cfg.RateLimits)
	limiter.ApplySafetyMargin(cfg.RateLimitMargin)

	deps := repository.Deps{
		HTTPClient: &http.Client{Timeout: remoteRequestTimeout},
		Limiter:    limiter,
		CachePolicy: repository.CachePolicy{
			ModuleTTL:   cfg.Cache.ModuleTTL,
			ChangingTTL: cfg.Cache.ChangingTTL,
			MissingTTL:  cfg.Cache.MissingTTL,
		},
		UseCache:  opts.UseCache && cfg.Cache.Enabled,
		UserAgent: appid.BinaryName + "/" + versionInfo.Version,
		Logger:    opts.Logger,
	}
	if db != nil {
		limiter.Store = db
		if cfg.Cache.Enabled {
			deps.Resources = db
			deps.ResourceTTL = cfg.Cache.ResourceTTL
			deps.Modules = db
		}
	}

	repos := make([]repository.Repository, 0, len(cfg.Repositories))
	handles := make([]core.RepositoryHandle, 0, len(cfg.Repositories))
	for _, rc := range cfg.Repositories {
		repo, err := repository.New(specFromConfig(rc), deps)
		if err != nil {
			return nil, nil, withExitCode(foundry.ExitConfigInvalid, fmt.Errorf("build chain: %w", err))
		}
		repos = append(repos, repo)
		handles = append(handles, repo.Handle())
	}

	observers := engine.MultiObserver{metrics.Observer{}}
	if opts.Logger != nil {
		observers = append(observers, engine.LogObserver{Logger: opts.Logger})
	}

	resolver := &engine.ChainResolver{
		Repositories:         repos,
		SearchLatestChanging: cfg.Resolution.LatestChanging,
		Observer:             observers,
		Parallelism:          cfg.Resolution.Parallelism,
		ToolVersion:          versionInfo.Version,
	}
	return resolver, handles, nil
}

func specFromConfig(rc config.RepositoryConfig) repository.Spec {
	return repository.Spec{
		Name:                 rc.Name,
		Kind:                 core.RepositoryKind(rc.Kind),
		URL:                  rc.URL,
		Path:                 rc.Path,
		Username:             rc.Username,
		Password:             rc.Password,
		AllowGenerated:       rc.AllowGenerated,
		AuthoritativeMissing: rc.AuthoritativeMissing,
	}
}
