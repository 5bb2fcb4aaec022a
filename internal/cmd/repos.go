package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/repochain/repochain/internal/core"
	"github.com/repochain/repochain/internal/output"
)

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Inspect the repository chain",
}

var reposListCmd = &cobra.Command{
	Use:   "list",
	Short: "List repositories in resolution order",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		if chainPath, _ := cmd.Flags().GetString("chain"); chainPath != "" {
			chain, err := loadChain(chainPath)
			if err != nil {
				return err
			}
			cfg.ApplyChain(chain)
		}

		// Handles come from the built repositories so paths are expanded.
		_, handles, err := buildResolver(cfg, nil, chainOptions{})
		if err != nil {
			return err
		}

		var rendered string
		switch format {
		case output.FormatJSON:
			if handles == nil {
				handles = []core.RepositoryHandle{}
			}
			payload, err := json.MarshalIndent(handles, "", "  ")
			if err != nil {
				return err
			}
			rendered = string(payload)
		default:
			rendered = output.FormatRepositories(handles)
		}

		outPath, _ := cmd.Flags().GetString("out")
		if len(handles) == 0 && format != output.FormatJSON {
			rendered = fmt.Sprintf("No repositories configured (config: %s)", configSource())
		}
		return writeRendered(outPath, rendered)
	},
}

func init() {
	reposListCmd.Flags().String("chain", "", "chain definition file (replaces configured repositories)")
	reposListCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json")
	reposListCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	reposCmd.AddCommand(reposListCmd)
	rootCmd.AddCommand(reposCmd)
}
