package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/repochain/repochain/internal/core"
	"github.com/repochain/repochain/internal/core/store"
	"github.com/repochain/repochain/internal/output"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and purge the module metadata cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached module answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		query, err := moduleQueryFromFlags(cmd)
		if err != nil {
			return err
		}
		if !query.All && query.Repository == "" && query.Group == "" && query.Name == "" && !query.Expired {
			query.All = true
		}

		db, err := openConfiguredStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		entries, err := db.ListModules(cmd.Context(), query)
		if err != nil {
			return err
		}

		outPath, _ := cmd.Flags().GetString("out")
		if format == output.FormatJSON {
			if entries == nil {
				entries = []store.ModuleEntry{}
			}
			payload, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			return writeRendered(outPath, string(payload))
		}

		if len(entries) == 0 {
			return writeRendered(outPath, "(module cache is empty)")
		}
		modules := make([]core.CachedModule, 0, len(entries))
		for _, entry := range entries {
			modules = append(modules, entry.CachedModule)
		}
		return writeRendered(outPath, output.FormatCachedModules(modules, time.Now().UTC()))
	},
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete cached module answers and metadata documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		query, err := moduleQueryFromFlags(cmd)
		if err != nil {
			return err
		}
		yes, _ := cmd.Flags().GetBool("yes")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		resources, _ := cmd.Flags().GetBool("resources")

		if query.All && !yes && !dryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, err := openConfiguredStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.ListModules(cmd.Context(), query)
		if err != nil {
			return err
		}

		result := cachePurgeResult{Matched: len(matched), DryRun: dryRun}
		if !dryRun {
			result.Deleted, err = db.PurgeModules(cmd.Context(), query)
			if err != nil {
				return err
			}
			if resources {
				result.Resources, err = db.PurgeResources(cmd.Context(), !query.All)
				if err != nil {
					return err
				}
			}
		}

		outPath, _ := cmd.Flags().GetString("out")
		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()
		return writeCachePurgeResult(format, sink.writer, result)
	},
}

type cachePurgeResult struct {
	Matched   int   `json:"matched"`
	Deleted   int64 `json:"deleted"`
	Resources int64 `json:"resources_deleted"`
	DryRun    bool  `json:"dry_run"`
}

func writeCachePurgeResult(format output.Format, w io.Writer, result cachePurgeResult) error {
	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if result.DryRun {
		_, err := fmt.Fprintf(w, "Would delete %d cached module entr(ies)\n", result.Matched)
		return err
	}
	_, err := fmt.Fprintf(w, "Deleted %d/%d cached module entr(ies)", result.Deleted, result.Matched)
	if err != nil {
		return err
	}
	if result.Resources > 0 {
		_, err = fmt.Fprintf(w, " and %d metadata document(s)", result.Resources)
		if err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(w)
	return err
}

func moduleQueryFromFlags(cmd *cobra.Command) (store.ModuleQuery, error) {
	var (
		query store.ModuleQuery
		err   error
	)
	if query.All, err = cmd.Flags().GetBool("all"); err != nil {
		return query, err
	}
	if query.Expired, err = cmd.Flags().GetBool("expired"); err != nil {
		return query, err
	}
	if query.Repository, err = cmd.Flags().GetString("repository"); err != nil {
		return query, err
	}
	module, err := cmd.Flags().GetString("module")
	if err != nil {
		return query, err
	}
	if module = strings.TrimSpace(module); module != "" {
		group, name, found := strings.Cut(module, ":")
		if group == "" || strings.Contains(name, ":") || (found && name == "") {
			return query, fmt.Errorf("--module must be group or group:name, got %q", module)
		}
		query.Group, query.Name = group, name
	}
	return query, nil
}

func addCacheQueryFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("all", false, "select every entry")
	cmd.Flags().Bool("expired", false, "select entries past their TTL")
	cmd.Flags().String("repository", "", "select entries of one repository")
	cmd.Flags().String("module", "", "select entries of group:name")
	cmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json")
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
}

func init() {
	addCacheQueryFlags(cacheListCmd)
	addCacheQueryFlags(cachePurgeCmd)
	cachePurgeCmd.Flags().Bool("resources", false, "also purge cached metadata documents (expired only unless --all)")
	cachePurgeCmd.Flags().Bool("yes", false, "Confirm destructive purge")
	cachePurgeCmd.Flags().Bool("dry-run", false, "Show what would be deleted")

	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
