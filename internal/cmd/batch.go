package cmd

import (
	"errors"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch --file <coordinates.txt>",
	Short: "Resolve many coordinates from a file",
	Long: `Read coordinates from a file (one group:name:version per line, # comments
allowed, "-" for stdin) and resolve them with a pool of workers.`,
	Args: cobra.ArbitraryArgs,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	addResolveFlags(batchCmd)
	batchCmd.Flags().String("file", "", "file with one coordinate per line (- for stdin)")
	batchCmd.Flags().Int("concurrency", 0, "concurrent resolutions (default from config workers)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file, err := cmd.Flags().GetString("file")
	if err != nil {
		return err
	}
	if file == "" && len(args) == 0 {
		return withExitCode(foundry.ExitConfigInvalid, errors.New("--file is required"))
	}

	coords, err := collectCoordinates(args, file)
	if err != nil {
		return err
	}

	concurrency, err := cmd.Flags().GetInt("concurrency")
	if err != nil {
		return err
	}
	if concurrency < 0 {
		return withExitCode(foundry.ExitConfigInvalid, errors.New("--concurrency must not be negative"))
	}
	if concurrency == 0 {
		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		concurrency = cfg.Workers
	}

	return executeResolution(cmd, coords, concurrency)
}
