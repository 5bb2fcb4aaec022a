package repository

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"

	"github.com/repochain/repochain/internal/core"
	"github.com/repochain/repochain/internal/core/transport"
)

// Spec describes one configured chain entry.
type Spec struct {
	Name                 string
	Kind                 core.RepositoryKind
	URL                  string
	Path                 string
	Username             string
	Password             string
	AllowGenerated       bool
	AuthoritativeMissing bool
}

// Deps are the shared collaborators repositories are built with.
type Deps struct {
	HTTPClient  *http.Client
	Limiter     *transport.RateLimiter
	Resources   transport.ResourceCache
	ResourceTTL time.Duration
	Modules     ModuleCache
	CachePolicy CachePolicy
	// UseCache enables cache reads. Writes happen either way.
	UseCache  bool
	UserAgent string
	Logger    *logging.Logger
}

// New builds the repository described by spec.
func New(spec Spec, deps Deps) (Repository, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, errors.New("repository name is required")
	}

	switch spec.Kind {
	case core.RepositoryKindMavenRemote, "":
		if strings.TrimSpace(spec.URL) == "" {
			return nil, fmt.Errorf("repository %s: url is required", name)
		}
		httpFetcher := &transport.HTTPFetcher{
			Client:    deps.HTTPClient,
			Limiter:   deps.Limiter,
			Username:  spec.Username,
			Password:  spec.Password,
			UserAgent: deps.UserAgent,
		}
		cached := &transport.CachingFetcher{
			Next:    &transport.SchemeFetcher{HTTP: httpFetcher},
			Cache:   deps.Resources,
			TTL:     deps.ResourceTTL,
			Refresh: !deps.UseCache,
			Logger:  deps.Logger,
		}
		return &MavenRepository{
			Name:                 name,
			URL:                  strings.TrimSpace(spec.URL),
			Fetcher:              cached,
			Cache:                deps.Modules,
			CachePolicy:          deps.CachePolicy,
			UseCache:             deps.UseCache,
			AllowGenerated:       spec.AllowGenerated,
			AuthoritativeMissing: spec.AuthoritativeMissing,
			Logger:               deps.Logger,
		}, nil
	case core.RepositoryKindMavenLocal:
		path, err := ExpandPath(spec.Path)
		if err != nil {
			return nil, fmt.Errorf("repository %s: %w", name, err)
		}
		return &MavenLocalRepository{Name: name, Path: path, Logger: deps.Logger}, nil
	default:
		return nil, fmt.Errorf("repository %s: unsupported kind %q", name, spec.Kind)
	}
}

// ExpandPath resolves a leading ~ and defaults to the user's Maven repository.
func ExpandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "~/.m2/repository"
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Clean(path), nil
}
