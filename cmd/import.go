package cmd

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmlr-go/internal/config"
	"github.com/wegman-software/osmlr-go/internal/graphbuild"
	"github.com/wegman-software/osmlr-go/internal/logger"
	"github.com/wegman-software/osmlr-go/internal/pgstore"
	"github.com/wegman-software/osmlr-go/internal/profile"
	"github.com/wegman-software/osmlr-go/internal/routerdb"
)

var dropExisting bool

var importCmd = &cobra.Command{
	Use:   "import <input.osm.pbf>",
	Short: "Build a router database from an OSM PBF file",
	Long: `Build a router database with one edge per routable way:

  1. Pass 1: Collect routable ways (highway=*, route=ferry)
  2. Pass 2: Read the coordinates of the nodes those ways reference

Edge distances are geodesic lengths of the way geometry. Way tags are split
into edge profile and edge meta by the vehicle profile.`,
	Args: cobra.ExactArgs(1),
	Run:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&dropExisting, "drop-existing", false, "Drop existing tables before loading (postgres store)")
}

func runImport(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	vehicle, err := profile.Resolve(cfg.Vehicle, cfg.ProfileFile)
	if err != nil {
		exitWithError("invalid vehicle profile", err)
	}

	log.Info("Starting import",
		zap.String("input", args[0]),
		zap.String("store", cfg.Store),
		zap.String("vehicle", vehicle.Name),
		zap.Int("workers", cfg.Workers),
	)

	ctx := context.Background()
	start := time.Now()

	db, stats, err := graphbuild.ImportFile(ctx, args[0], vehicle, cfg.Workers)
	if err != nil {
		exitWithError("import failed", err)
	}

	switch cfg.Store {
	case config.StorePostgres:
		pool, err := pgstore.Connect(ctx, cfg)
		if err != nil {
			exitWithError("failed to connect", err)
		}
		defer pool.Close()

		if err := pgstore.EnsureTables(ctx, pool, cfg.DBSchema, dropExisting); err != nil {
			exitWithError("failed to prepare tables", err)
		}
		if err := pgstore.Load(ctx, pool, cfg.DBSchema, db); err != nil {
			exitWithError("load failed", err)
		}
	default:
		if err := routerdb.Create(ctx, cfg.RouterDBDir, db); err != nil {
			exitWithError("failed to write router database", err)
		}
	}

	log.Info("Import complete",
		zap.Int64("ways", stats.Ways),
		zap.Int64("edges", stats.Edges),
		zap.Int64("nodes", stats.Nodes),
		zap.Int64("skipped_ways", stats.SkippedWays),
		zap.Duration("total_time", time.Since(start).Round(time.Millisecond)),
	)
}
