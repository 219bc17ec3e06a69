package cmd

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmlr-go/internal/config"
	"github.com/wegman-software/osmlr-go/internal/logger"
)

var (
	cfg             = config.DefaultConfig()
	verbose         bool
	logFile         string
	metricsInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "osmlr-go",
	Short: "Augment a routable road network with attributes along line references",
	Long: `osmlr-go applies attributes to the road segments covered by location
references, such as closures, speed limits or roadworks.

Features:
  - Offset-aware coverage of referenced lines with a tolerance band
  - Deduplicated edge profile and edge meta attribute pools
  - Direction-aware attribute reversal (suffix swap or Lua scripts)
  - File (memory-mapped) and PostgreSQL router databases
  - OSM PBF import, batch processing and Parquet export`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg.Verbose = verbose
		cfg.LogFile = logFile
		cfg.MetricsInterval = metricsInterval

		logger.InitWithOptions(logger.Options{Debug: verbose, LogFile: logFile})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of parallel workers")

	// Logging and metrics flags
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&metricsInterval, "metrics-interval", 30*time.Second, "Interval for system metrics logging (e.g., 10s, 1m)")

	// Router database flags
	rootCmd.PersistentFlags().StringVar(&cfg.Store, "store", cfg.Store, "Router database backend: file or postgres")
	rootCmd.PersistentFlags().StringVarP(&cfg.RouterDBDir, "routerdb", "r", cfg.RouterDBDir, "Router database directory (file store)")
	rootCmd.PersistentFlags().BoolVar(&cfg.Readonly, "readonly", false, "Open the router database read-only")

	// Augmentation flags
	rootCmd.PersistentFlags().StringVar(&cfg.Vehicle, "vehicle", cfg.Vehicle, "Built-in vehicle profile (car, bicycle, pedestrian)")
	rootCmd.PersistentFlags().StringVar(&cfg.ProfileFile, "profile-file", "", "Vehicle profile YAML file (overrides --vehicle)")
	rootCmd.PersistentFlags().Float64Var(&cfg.Tolerance, "tolerance", cfg.Tolerance, "Coverage tolerance in percent of the line length")
	rootCmd.PersistentFlags().StringVar(&cfg.ReverseScript, "reverse-script", "", "Lua script defining reverse(tags) for backward edges")
	rootCmd.PersistentFlags().BoolVar(&cfg.SwapDirection, "swap-direction", cfg.SwapDirection, "Swap directional suffixes on backward edges")

	// Database flags (persistent so they're available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfg.DBHost, "db-host", cfg.DBHost, "PostgreSQL host")
	rootCmd.PersistentFlags().IntVar(&cfg.DBPort, "db-port", cfg.DBPort, "PostgreSQL port")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBName, "db-name", "d", cfg.DBName, "PostgreSQL database name")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBUser, "db-user", "U", cfg.DBUser, "PostgreSQL user")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBPassword, "db-password", "W", cfg.DBPassword, "PostgreSQL password")
	rootCmd.PersistentFlags().StringVar(&cfg.DBSchema, "db-schema", cfg.DBSchema, "PostgreSQL schema")
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	logger.Sync()
	os.Exit(1)
}
