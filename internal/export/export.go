// Package export writes router database edges to Parquet
package export

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/osmlr-go/internal/attrs"
	"github.com/wegman-software/osmlr-go/internal/graph"
	"github.com/wegman-software/osmlr-go/internal/logger"
)

// Export writes every edge of db with its profile and meta attributes to a
// Parquet file at path and returns the number of rows written
func Export(ctx context.Context, db *graph.RouterDB, path string, batchSize int) (int64, error) {
	log := logger.Named("export")
	start := time.Now()

	count, err := db.Network.EdgeCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count edges: %w", err)
	}

	w, err := NewEdgeWriter(path, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}

	// pool entries are shared by many edges
	profiles := make(map[uint32]attrs.Set)
	metas := make(map[uint32]attrs.Set)
	lookup := func(pool graph.AttributePool, cache map[uint32]attrs.Set, id uint32) (attrs.Set, error) {
		if s, ok := cache[id]; ok {
			return s, nil
		}
		s, err := pool.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		cache[id] = s
		return s, nil
	}

	var rows int64
	for i := uint32(0); i < count; i++ {
		if i%100000 == 0 {
			if err := ctx.Err(); err != nil {
				w.Close()
				return rows, err
			}
		}

		e, err := db.Network.Edge(ctx, i)
		if err != nil {
			w.Close()
			return rows, err
		}
		p, err := lookup(db.EdgeProfiles, profiles, e.Data.Profile)
		if err != nil {
			w.Close()
			return rows, fmt.Errorf("edge %d profile: %w", i, err)
		}
		m, err := lookup(db.EdgeMeta, metas, e.Data.MetaID)
		if err != nil {
			w.Close()
			return rows, fmt.Errorf("edge %d meta: %w", i, err)
		}

		if err := w.Write(e, p, m); err != nil {
			w.Close()
			return rows, fmt.Errorf("failed to write edge %d: %w", i, err)
		}
		rows++
	}

	if err := w.Close(); err != nil {
		return rows, fmt.Errorf("failed to close %s: %w", path, err)
	}

	log.Info("Edges exported",
		zap.String("path", path),
		zap.Int64("rows", rows),
		zap.Int("profiles", len(profiles)),
		zap.Int("meta", len(metas)),
		zap.Duration("duration", time.Since(start)),
	)
	return rows, nil
}
