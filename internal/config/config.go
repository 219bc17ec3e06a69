package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Store backends
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// Config holds the global configuration shared by all commands
type Config struct {
	// Router database settings
	Store       string // "file" or "postgres"
	RouterDBDir string // Directory of the file store
	Readonly    bool   // Open the router database read-only

	// Database settings
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSchema   string

	// Augmentation settings
	Vehicle       string  // Built-in vehicle profile name
	ProfileFile   string  // Path to vehicle profile YAML (overrides Vehicle)
	Tolerance     float64 // Coverage tolerance in percent of line length
	ReverseScript string  // Lua script with a reverse(tags) function
	SwapDirection bool    // Swap directional suffixes on backward edges

	// Processing settings
	Workers   int
	BatchSize int
	Verbose   bool

	// Logging and metrics
	LogFile         string        // Path to log file (empty = no file logging)
	MetricsInterval time.Duration // Interval for system metrics logging
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Store:           StoreFile,
		RouterDBDir:     "./routerdb",
		DBHost:          "localhost",
		DBPort:          5432,
		DBName:          "osm",
		DBUser:          "postgres",
		DBPassword:      "",
		DBSchema:        "public",
		Vehicle:         "car",
		Tolerance:       1.0,
		SwapDirection:   true,
		Workers:         runtime.NumCPU(),
		BatchSize:       100000,
		Verbose:         false,
		LogFile:         "",               // No file logging by default
		MetricsInterval: 30 * time.Second, // Log system metrics every 30 seconds
	}
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	if c.DBSchema != "" && c.DBSchema != "public" {
		connStr += fmt.Sprintf(" search_path=%s", c.DBSchema)
	}
	return connStr
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	c.Store = strings.ToLower(c.Store)
	switch c.Store {
	case StoreFile:
		if c.RouterDBDir == "" {
			return fmt.Errorf("router database directory is required for the file store")
		}
	case StorePostgres:
		if c.DBName == "" {
			return fmt.Errorf("database name is required for the postgres store")
		}
		if c.DBPort < 1 || c.DBPort > 65535 {
			return fmt.Errorf("invalid database port %d", c.DBPort)
		}
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, StoreFile, StorePostgres)
	}
	if c.Vehicle == "" && c.ProfileFile == "" {
		return fmt.Errorf("a vehicle or profile file is required")
	}
	if c.Tolerance < 0 || c.Tolerance > 100 {
		return fmt.Errorf("tolerance must be between 0 and 100, got %f", c.Tolerance)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.BatchSize < 1000 {
		return fmt.Errorf("batch size must be at least 1000")
	}
	return nil
}
