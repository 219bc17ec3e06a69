package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmlr-go/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export <edges.parquet>",
	Short: "Export edges with their profile and meta attributes to Parquet",
	Long: `Write one row per edge: edge_id, distance, profile_id, meta_id and the
profile and meta attributes as JSON objects.`,
	Args: cobra.ExactArgs(1),
	Run:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Rows per Parquet record batch")
}

func runExport(cmd *cobra.Command, args []string) {
	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	ctx := context.Background()
	db, closeDB, err := openRouterDB(ctx, true)
	if err != nil {
		exitWithError("failed to open router database", err)
	}
	defer closeDB()

	if _, err := export.Export(ctx, db, args[0], cfg.BatchSize); err != nil {
		closeDB()
		exitWithError("export failed", err)
	}
}
