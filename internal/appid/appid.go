// Package appid holds the application identity used for config paths,
// environment prefixes and telemetry namespaces.
package appid

import (
	"context"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"
)

const (
	Vendor             = "repochain"
	BinaryName         = "repochain"
	ConfigName         = "repochain"
	EnvPrefix          = "REPOCHAIN_"
	TelemetryNamespace = "repochain"
	Description        = "Resolve component metadata across an ordered chain of repositories"
)

// Get returns the application identity. REPOCHAIN_CONFIG_NAME renames the
// config directory, which keeps test runs away from the user's files.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	configName := ConfigName
	if override := strings.TrimSpace(os.Getenv(EnvPrefix + "CONFIG_NAME")); override != "" {
		configName = override
	}

	return &appidentity.Identity{
		Vendor:      Vendor,
		BinaryName:  BinaryName,
		ConfigName:  configName,
		EnvPrefix:   EnvPrefix,
		Description: Description,
	}, nil
}
