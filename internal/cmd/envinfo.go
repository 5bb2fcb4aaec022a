package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/repochain/repochain/internal/config"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration, resolution chain and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := cliLogger()
		version := crucible.GetVersion()
		identity := GetAppIdentity()

		logger.Info("=== " + identity.BinaryName + " Environment Information ===")
		logger.Info("")

		logger.Info("Application:")
		logger.Info("  Name:       " + identity.BinaryName)
		logger.Info("  Version:    " + versionInfo.Version)
		logger.Info("  Commit:     " + versionInfo.Commit)
		logger.Info("  Built:      " + versionInfo.BuildDate)
		logger.Info("")

		logger.Info("SSOT:")
		logger.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		logger.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		logger.Info("")

		logger.Info("Runtime:")
		logger.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		logger.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		logger.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		logger.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		logger.Info("")

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			logger.Warn("Config load failed", zap.Error(err))
			return
		}

		logger.Info("Configuration:")
		logger.Info("  Config File:    "+configSource(), zap.String("config_file", configSource()))
		logger.Info("  Server Host:    "+cfg.Server.Host, zap.String("host", cfg.Server.Host))
		logger.Info(fmt.Sprintf("  Server Port:    %d", cfg.Server.Port), zap.Int("port", cfg.Server.Port))
		logger.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		logger.Info("  Log Profile:    "+cfg.Logging.Profile, zap.String("log_profile", cfg.Logging.Profile))
		logger.Info(fmt.Sprintf("  Metrics Port:   %d", cfg.Metrics.Port), zap.Int("metrics_port", cfg.Metrics.Port))
		logger.Info(fmt.Sprintf("  Workers:        %d", cfg.Workers), zap.Int("workers", cfg.Workers))
		logger.Info("")

		logger.Info("Store:")
		logger.Info("  Driver:         "+cfg.Store.Driver, zap.String("db_driver", cfg.Store.Driver))
		if strings.TrimSpace(cfg.Store.URL) != "" {
			logger.Info("  URL:            "+cfg.Store.URL, zap.String("db_url", cfg.Store.URL))
		} else {
			logger.Info("  Path:           "+cfg.Store.Path, zap.String("db_path", cfg.Store.Path))
		}
		logger.Info("")

		logger.Info("Cache:")
		logger.Info(fmt.Sprintf("  Enabled:        %t", cfg.Cache.Enabled), zap.Bool("cache_enabled", cfg.Cache.Enabled))
		logger.Info("  Module TTL:     " + cfg.Cache.ModuleTTL.String())
		logger.Info("  Changing TTL:   " + cfg.Cache.ChangingTTL.String())
		logger.Info("  Missing TTL:    " + cfg.Cache.MissingTTL.String())
		logger.Info("  Resource TTL:   " + cfg.Cache.ResourceTTL.String())
		logger.Info("")

		logger.Info("Resolution:")
		logger.Info(fmt.Sprintf("  Latest Changing: %t", cfg.Resolution.LatestChanging), zap.Bool("latest_changing", cfg.Resolution.LatestChanging))
		logger.Info(fmt.Sprintf("  Parallelism:     %d", cfg.Resolution.Parallelism), zap.Int("parallelism", cfg.Resolution.Parallelism))
		logger.Info("  Timeout:         " + cfg.Resolution.Timeout.String())
		logger.Info("")

		logger.Info(fmt.Sprintf("Repositories (%d):", len(cfg.Repositories)))
		if len(cfg.Repositories) == 0 {
			logger.Info("  (none configured)")
		}
		for i, repo := range cfg.Repositories {
			location := repo.URL
			if repo.Kind == config.KindMavenLocal {
				location = repo.Path
			}
			logger.Info(fmt.Sprintf("  %d. %s [%s] %s", i+1, repo.Name, repo.Kind, location))
			if repo.Username != "" {
				logger.Info("     credentials: (set)")
			}
		}
		logger.Info("")

		logger.Info("=== End Environment Information ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
