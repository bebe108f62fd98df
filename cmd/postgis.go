package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catchment/internal/postgis"
)

var postgisCmd = &cobra.Command{
	Use:   "postgis",
	Short: "Manage the PostGIS backend",
}

var postgisMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply walk network and feature schema migrations",
	Long:  "Applies all pending SQL migrations to the geo schema in lexicographic order.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("postgis"); err != nil {
			return err
		}

		pool, err := postgis.Connect(ctx, cfg.PostGIS.DatabaseURL, cfg.PostGIS.Pool)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := postgis.Migrate(ctx, pool); err != nil {
			return eris.Wrap(err, "postgis migrate")
		}

		zap.L().Info("all postgis migrations applied successfully")
		return nil
	},
}

func init() {
	postgisCmd.AddCommand(postgisMigrateCmd)
	rootCmd.AddCommand(postgisCmd)
}
