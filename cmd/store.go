package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wegman-software/osmlr-go/internal/attrs"
	"github.com/wegman-software/osmlr-go/internal/augment"
	"github.com/wegman-software/osmlr-go/internal/config"
	"github.com/wegman-software/osmlr-go/internal/graph"
	"github.com/wegman-software/osmlr-go/internal/logger"
	"github.com/wegman-software/osmlr-go/internal/lr"
	"github.com/wegman-software/osmlr-go/internal/pgstore"
	"github.com/wegman-software/osmlr-go/internal/profile"
	"github.com/wegman-software/osmlr-go/internal/reverse"
	"github.com/wegman-software/osmlr-go/internal/routerdb"
)

// openRouterDB opens the configured store. The returned function releases it
// and, for writable file stores, persists changes.
func openRouterDB(ctx context.Context, readonly bool) (*graph.RouterDB, func() error, error) {
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := pgstore.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		db := pgstore.Open(pool, cfg.DBSchema, readonly)
		return db, func() error { pool.Close(); return nil }, nil
	default:
		s, err := routerdb.Open(cfg.RouterDBDir, readonly)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open router database: %w", err)
		}
		return s.RouterDB, s.Close, nil
	}
}

// newCoder builds a coder for db from the global configuration
func newCoder(db *graph.RouterDB) (*augment.Coder, *profile.Vehicle, error) {
	vehicle, err := profile.Resolve(cfg.Vehicle, cfg.ProfileFile)
	if err != nil {
		return nil, nil, err
	}
	coder := augment.NewCoder(db, lr.NewJSONDecoder(), vehicle, augment.WithTolerance(cfg.Tolerance))
	return coder, vehicle, nil
}

// newReverse returns the reversal transform for backward edges and a cleanup
// function
func newReverse() (attrs.Transform, func(), error) {
	if cfg.ReverseScript != "" {
		script, err := reverse.LoadScript(cfg.ReverseScript)
		if err != nil {
			return nil, nil, err
		}
		logger.Get().Info("Using Lua reversal script", zap.String("path", cfg.ReverseScript))
		return script.Transform(), script.Close, nil
	}
	if cfg.SwapDirection {
		return reverse.SwapDirections(), func() {}, nil
	}
	return nil, func() {}, nil
}
