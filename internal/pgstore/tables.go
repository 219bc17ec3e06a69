// Package pgstore keeps a router database in PostgreSQL tables
package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osmlr-go/internal/attrs"
	"github.com/wegman-software/osmlr-go/internal/config"
	"github.com/wegman-software/osmlr-go/internal/graph"
	"github.com/wegman-software/osmlr-go/internal/logger"
)

const (
	EdgesTable    = "lr_edges"
	ProfilesTable = "lr_edge_profiles"
	MetaTable     = "lr_edge_meta"
)

// Connect opens a connection pool for cfg
func Connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if cfg.Workers > 0 {
		// a writer keeps one connection for its advisory lock
		poolCfg.MaxConns = int32(max(cfg.Workers, 2))
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// tableSchema holds the statements creating and dropping one table
type tableSchema struct {
	name   string
	create string
	drop   string
}

// tableSchemas returns the statements for the router database tables in schema
func tableSchemas(schema string) []tableSchema {
	columns := []struct{ name, columns string }{
		{EdgesTable, `
					id BIGINT PRIMARY KEY,
					distance REAL NOT NULL,
					profile_id BIGINT NOT NULL,
					meta_id BIGINT NOT NULL`},
		{ProfilesTable, `
					id BIGINT PRIMARY KEY,
					digest BYTEA NOT NULL UNIQUE,
					tags JSONB NOT NULL`},
		{MetaTable, `
					id BIGINT PRIMARY KEY,
					digest BYTEA NOT NULL UNIQUE,
					tags JSONB NOT NULL`},
	}

	tables := make([]tableSchema, len(columns))
	for i, c := range columns {
		table := pgx.Identifier{schema, c.name}.Sanitize()
		tables[i] = tableSchema{
			name:   c.name,
			create: fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, c.columns),
			drop:   fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table),
		}
	}
	return tables
}

// EnsureTables creates the router database tables if they don't exist
func EnsureTables(ctx context.Context, pool *pgxpool.Pool, schema string, dropExisting bool) error {
	log := logger.Named("pgstore")

	for _, t := range tableSchemas(schema) {
		if dropExisting {
			log.Info("Dropping table", zap.String("table", t.name))
			if _, err := pool.Exec(ctx, t.drop); err != nil {
				return fmt.Errorf("failed to drop table %s: %w", t.name, err)
			}
		}

		log.Debug("Creating table", zap.String("table", t.name))
		if _, err := pool.Exec(ctx, t.create); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.name, err)
		}
	}
	return nil
}

// Load bulk copies src into empty router database tables
func Load(ctx context.Context, pool *pgxpool.Pool, schema string, src *graph.RouterDB) error {
	log := logger.Named("pgstore")
	start := time.Now()

	edgeCount, err := src.Network.EdgeCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to count edges: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := copyRows(ctx, pool, pgx.Identifier{schema, EdgesTable},
			[]string{"id", "distance", "profile_id", "meta_id"},
			func(emit func([]any) bool) error {
				for i := uint32(0); i < edgeCount; i++ {
					e, err := src.Network.Edge(ctx, i)
					if err != nil {
						return err
					}
					if !emit([]any{int64(e.ID), e.Data.Distance, int64(e.Data.Profile), int64(e.Data.MetaID)}) {
						return ctx.Err()
					}
				}
				return nil
			})
		if err != nil {
			return err
		}
		log.Info("Edges loaded", zap.Int64("rows", n))
		return nil
	})

	for _, p := range []struct {
		table string
		pool  graph.AttributePool
	}{
		{ProfilesTable, src.EdgeProfiles},
		{MetaTable, src.EdgeMeta},
	} {
		g.Go(func() error {
			n, err := copyRows(ctx, pool, pgx.Identifier{schema, p.table},
				[]string{"id", "digest", "tags"},
				func(emit func([]any) bool) error {
					count, err := p.pool.Count(ctx)
					if err != nil {
						return err
					}
					for i := uint32(0); i < count; i++ {
						set, err := p.pool.Get(ctx, i)
						if err != nil {
							return err
						}
						row, err := poolRow(i, set)
						if err != nil {
							return err
						}
						if !emit(row) {
							return ctx.Err()
						}
					}
					return nil
				})
			if err != nil {
				return err
			}
			log.Info("Attribute pool loaded", zap.String("table", p.table), zap.Int64("rows", n))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("Router database loaded",
		zap.Uint32("edges", edgeCount),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// poolRow renders an attribute pool entry as a COPY row
func poolRow(id uint32, set attrs.Set) ([]any, error) {
	tags, err := set.MarshalJSON()
	if err != nil {
		return nil, err
	}
	digest := set.Digest()
	return []any{int64(id), digest[:], tags}, nil
}

// copyRows streams rows from produce into table with COPY
func copyRows(ctx context.Context, pool *pgxpool.Pool, table pgx.Identifier, columns []string,
	produce func(emit func([]any) bool) error) (int64, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	src := &rowSource{rows: make(chan []any, 10000)}
	go func() {
		defer close(src.rows)
		src.err = produce(func(row []any) bool {
			select {
			case src.rows <- row:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()

	count, err := conn.Conn().CopyFrom(ctx, table, columns, src)
	if err != nil {
		// unblock the producer
		for range src.rows {
		}
		return 0, fmt.Errorf("COPY to %s failed: %w", table.Sanitize(), err)
	}
	return count, nil
}

// rowSource implements pgx.CopyFromSource for streaming rows from a channel.
// err is set by the producer before it closes rows.
type rowSource struct {
	rows    chan []any
	current []any
	err     error
}

func (r *rowSource) Next() bool {
	row, ok := <-r.rows
	if !ok {
		return false
	}
	r.current = row
	return true
}

func (r *rowSource) Values() ([]any, error) {
	return r.current, nil
}

func (r *rowSource) Err() error {
	return r.err
}
