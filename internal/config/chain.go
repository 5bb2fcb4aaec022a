package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ChainFile is a standalone resolution chain definition.
type ChainFile struct {
	LatestChanging *bool              `yaml:"latest_changing,omitempty"`
	Parallelism    *int               `yaml:"parallelism,omitempty"`
	Repositories   []RepositoryConfig `yaml:"repositories"`
}

// LoadChainFile reads and validates a chain definition from path.
func LoadChainFile(path string) (*ChainFile, error) {
	// #nosec G304 -- path is an explicit CLI argument
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint:errcheck // read-only file

	return ParseChain(f)
}

// ParseChain decodes a chain definition. Unknown keys are rejected.
func ParseChain(r io.Reader) (*ChainFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var chain ChainFile
	if err := dec.Decode(&chain); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("chain file is empty")
		}
		return nil, fmt.Errorf("parse chain file: %w", err)
	}
	if len(chain.Repositories) == 0 {
		return nil, errors.New("chain file defines no repositories")
	}
	if err := ValidateRepositories(chain.Repositories); err != nil {
		return nil, err
	}
	return &chain, nil
}

// ApplyChain replaces the configured chain with the file's definition.
func (c *Config) ApplyChain(chain *ChainFile) {
	if c == nil || chain == nil {
		return
	}
	c.Repositories = append([]RepositoryConfig(nil), chain.Repositories...)
	if chain.LatestChanging != nil {
		c.Resolution.LatestChanging = *chain.LatestChanging
	}
	if chain.Parallelism != nil {
		c.Resolution.Parallelism = *chain.Parallelism
	}
}
