package cmd

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmlr-go/internal/batch"
	"github.com/wegman-software/osmlr-go/internal/logger"
)

var failFast bool

var batchCmd = &cobra.Command{
	Use:   "batch <requests.yaml>",
	Short: "Apply a file of line references with their attributes",
	Long: `Apply every request of a YAML batch file in order:

  requests:
    - id: roadworks-17
      line: '{"edges":[12,-13],"positiveOffset":4.5}'
      attributes:
        maxspeed: "30"

Failed requests are logged and skipped unless --fail-fast is set. System
metrics and batch counters are logged every --metrics-interval.`,
	Args: cobra.ExactArgs(1),
	Run:  runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop at the first failed request")
}

func runBatch(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	requests, err := batch.LoadFile(args[0])
	if err != nil {
		exitWithError("invalid batch file", err)
	}

	ctx := context.Background()
	db, closeDB, err := openRouterDB(ctx, cfg.Readonly)
	if err != nil {
		exitWithError("failed to open router database", err)
	}

	coder, vehicle, err := newCoder(db)
	if err != nil {
		closeDB()
		exitWithError("invalid vehicle profile", err)
	}
	reverseFn, closeReverse, err := newReverse()
	if err != nil {
		closeDB()
		exitWithError("invalid reversal script", err)
	}
	defer closeReverse()

	log.Info("Starting batch",
		zap.String("file", args[0]),
		zap.Int("requests", len(requests)),
		zap.String("vehicle", vehicle.Name),
	)

	runner := batch.NewRunner(coder, reverseFn, batch.Config{
		FailFast:        failFast,
		MetricsInterval: cfg.MetricsInterval,
	})
	stats, runErr := runner.Run(ctx, requests)

	// keep what was applied before a failure
	if err := closeDB(); err != nil {
		exitWithError("failed to save router database", err)
	}
	if runErr != nil {
		exitWithError("batch failed", runErr)
	}

	log.Info("Batch summary",
		zap.Int64("requests", stats.Requests),
		zap.Int64("decoded", stats.Decoded),
		zap.Int64("augmented", stats.Augmented),
		zap.Int64("failed", stats.Failed),
		zap.Int64("edges_covered", stats.EdgesCovered),
		zap.Int64("edges_updated", stats.EdgesUpdated),
		zap.Int64("profiles_added", stats.ProfilesAdded),
		zap.Int64("meta_added", stats.MetaAdded),
		zap.Duration("total_time", stats.Duration.Round(time.Millisecond)),
	)
}
