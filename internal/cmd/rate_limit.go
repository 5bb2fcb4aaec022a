package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/repochain/repochain/internal/core/store"
	"github.com/repochain/repochain/internal/core/transport"
	"github.com/repochain/repochain/internal/output"
)

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Manage persisted per-host rate limit state",
}

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rate limit windows",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		query, err := rateLimitQueryFromFlags(cmd)
		if err != nil {
			return err
		}
		if !query.All && query.Endpoint == "" && query.Prefix == "" {
			query.All = true
		}

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		entries, err := db.ListRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}

		outPath, _ := cmd.Flags().GetString("out")
		if format == output.FormatJSON {
			payload, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			return writeRendered(outPath, string(payload))
		}
		limiter := &transport.RateLimiter{}
		limiter.ApplyOverrides(cfg.RateLimits)
		limiter.ApplySafetyMargin(cfg.RateLimitMargin)
		return writeRendered(outPath, renderRateLimits(entries, limiter))
	},
}

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset stored rate limit windows",
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := rateLimitQueryFromFlags(cmd)
		if err != nil {
			return err
		}
		if err := query.Validate(); err != nil {
			return err
		}
		yes, _ := cmd.Flags().GetBool("yes")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if query.All && !yes && !dryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, err := openConfiguredStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.ListRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}

		outPath, _ := cmd.Flags().GetString("out")
		if dryRun {
			return writeRendered(outPath, fmt.Sprintf("Would reset %d rate limit entr(ies)", len(matched)))
		}
		deleted, err := db.ResetRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}
		return writeRendered(outPath, fmt.Sprintf("Reset %d/%d rate limit entr(ies)", deleted, len(matched)))
	},
}

func renderRateLimits(entries []store.RateLimitEntry, limiter *transport.RateLimiter) string {
	lines := []string{"Rate Limits", ""}
	if len(entries) == 0 {
		lines = append(lines, "(no stored rate limit state)")
		return ascii.DrawBox(strings.Join(lines, "\n"), 0)
	}

	for _, entry := range entries {
		backoff := "-"
		if entry.State.BackoffUntil != nil {
			backoff = entry.State.BackoffUntil.UTC().Format(time.RFC3339)
		}
		limit := limiter.LimitFor(entry.Endpoint)
		lines = append(lines, fmt.Sprintf("%s: count=%d/%d per %s backoff_until=%s",
			entry.Endpoint, entry.State.RequestCount, limit.RequestsPerWindow, limit.WindowDuration, backoff))
	}
	return ascii.DrawBox(strings.Join(lines, "\n"), 0)
}

func rateLimitQueryFromFlags(cmd *cobra.Command) (store.RateLimitQuery, error) {
	var (
		query store.RateLimitQuery
		err   error
	)
	if query.All, err = cmd.Flags().GetBool("all"); err != nil {
		return query, err
	}
	if query.Endpoint, err = cmd.Flags().GetString("endpoint"); err != nil {
		return query, err
	}
	if query.Prefix, err = cmd.Flags().GetString("prefix"); err != nil {
		return query, err
	}
	query.Endpoint = strings.ToLower(strings.TrimSpace(query.Endpoint))
	query.Prefix = strings.ToLower(strings.TrimSpace(query.Prefix))
	return query, nil
}

func init() {
	for _, cmd := range []*cobra.Command{rateLimitListCmd, rateLimitResetCmd} {
		cmd.Flags().Bool("all", false, "select every endpoint")
		cmd.Flags().String("endpoint", "", "select one host (exact match)")
		cmd.Flags().String("prefix", "", "select hosts with a matching prefix")
		cmd.Flags().String("out", "", "Write output to a file (default stdout)")
	}
	rateLimitListCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json")
	rateLimitResetCmd.Flags().Bool("yes", false, "Confirm destructive reset")
	rateLimitResetCmd.Flags().Bool("dry-run", false, "Show what would be reset")

	rateLimitCmd.AddCommand(rateLimitListCmd)
	rateLimitCmd.AddCommand(rateLimitResetCmd)
	rootCmd.AddCommand(rateLimitCmd)
}
