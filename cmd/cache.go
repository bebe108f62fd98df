package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catchment/internal/fetchcache"
	"github.com/sells-group/catchment/internal/provider"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the provider fetch cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cached payload counts per kind",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		cache, err := openCache(ctx, cfg.Cache.Path)
		if err != nil {
			return err
		}
		defer cache.Close() //nolint:errcheck

		stats, err := cache.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "cache stats")
		}
		formatCacheStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired cache entries, or every entry of a kind with --all",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		all, _ := cmd.Flags().GetBool("all")
		kind, _ := cmd.Flags().GetString("kind")

		cache, err := openCache(ctx, cfg.Cache.Path)
		if err != nil {
			return err
		}
		defer cache.Close() //nolint:errcheck

		var n int
		if all {
			n, err = cache.Clear(ctx, kind)
		} else {
			n, err = cache.Prune(ctx)
		}
		if err != nil {
			return eris.Wrap(err, "cache prune")
		}
		zap.L().Info("cache pruned", zap.Int("deleted", n), zap.Bool("all", all), zap.String("kind", kind))
		return nil
	},
}

func init() {
	cachePruneCmd.Flags().Bool("all", false, "delete live entries too")
	cachePruneCmd.Flags().String("kind", "", fmt.Sprintf("limit --all to one kind (%s, %s)", provider.CacheKindNetwork, provider.CacheKindFeatures))
	cacheCmd.AddCommand(cacheStatsCmd, cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}

// formatCacheStats writes a table of cache entries per kind.
func formatCacheStats(out io.Writer, stats []fetchcache.KindStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KIND\tLIVE\tEXPIRED")
	_, _ = fmt.Fprintln(w, "----\t----\t-------")
	for _, s := range stats {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\n", s.Kind, s.Live, s.Expired)
	}
	_ = w.Flush()
}
