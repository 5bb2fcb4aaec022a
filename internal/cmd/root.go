package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"github.com/spf13/cobra"

	"github.com/repochain/repochain/internal/appid"
	"github.com/repochain/repochain/internal/config"
	"github.com/repochain/repochain/internal/observability"
)

var (
	cfgFile string
	verbose bool

	identityOnce sync.Once
	appIdentity  *appidentity.Identity

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the application identity, falling back to the
// built-in constants.
func GetAppIdentity() *appidentity.Identity {
	identityOnce.Do(func() {
		identity, err := appid.Get(context.Background())
		if err != nil || identity == nil {
			identity = &appidentity.Identity{
				BinaryName: appid.BinaryName,
				ConfigName: appid.ConfigName,
				EnvPrefix:  appid.EnvPrefix,
			}
		}
		appIdentity = identity
	})
	return appIdentity
}

var rootCmd = &cobra.Command{
	Use:   appid.BinaryName,
	Short: appid.Description,
	Long: fmt.Sprintf(`%s - %s

Modules are looked up in each configured repository in chain order. Local
tiers are consulted for every repository before any remote tier.`, appid.BinaryName, appid.Description),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Config loading must not emit metrics to stdout; serve initializes real telemetry.
	observability.DisableGlobalTelemetry()

	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", appid.ConfigName))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
}

func initLogging() {
	observability.InitCLILogger(GetAppIdentity().BinaryName, verbose)
}

func cliLogger() *logging.Logger {
	if observability.CLILogger == nil {
		initLogging()
	}
	return observability.CLILogger
}

// loadConfig loads configuration honoring --config.
func loadConfig(ctx context.Context, overrides ...map[string]any) (*config.Config, error) {
	cfg, err := config.Load(ctx, cfgFile, overrides...)
	if err != nil {
		return nil, withExitCode(foundry.ExitConfigInvalid, err)
	}
	return cfg, nil
}

// configSource names the config file in effect for messages.
func configSource() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}
