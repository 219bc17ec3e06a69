package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wegman-software/osmlr-go/internal/attrs"
	"github.com/wegman-software/osmlr-go/internal/graph"
)

// Open returns a router database backed by the tables in schema. Augmenting
// a writable database holds an advisory lock on the schema, which serializes
// writers in different processes.
func Open(pool *pgxpool.Pool, schema string, readonly bool) *graph.RouterDB {
	edges := pgx.Identifier{schema, EdgesTable}.Sanitize()
	db := graph.NewRouterDB(
		&Network{pool: pool, table: edges, readonly: readonly},
		&Pool{pool: pool, table: pgx.Identifier{schema, ProfilesTable}.Sanitize(), readonly: readonly},
		&Pool{pool: pool, table: pgx.Identifier{schema, MetaTable}.Sanitize(), readonly: readonly},
	)
	if !readonly {
		db.SetWriteLock(&advisoryLock{pool: pool, key: edges})
	}
	return db
}

// Network is a graph.Network stored in the lr_edges table
type Network struct {
	pool     *pgxpool.Pool
	table    string
	readonly bool
}

// Edge implements graph.Network
func (n *Network) Edge(ctx context.Context, id uint32) (graph.Edge, error) {
	var profile, meta int64
	var distance float32
	err := n.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT distance, profile_id, meta_id FROM %s WHERE id = $1", n.table),
		int64(id),
	).Scan(&distance, &profile, &meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return graph.Edge{}, fmt.Errorf("%w: %d", graph.ErrEdgeNotFound, id)
	}
	if err != nil {
		return graph.Edge{}, fmt.Errorf("failed to read edge %d: %w", id, err)
	}
	return graph.Edge{ID: id, Data: graph.EdgeData{
		Distance: distance,
		Profile:  uint32(profile),
		MetaID:   uint32(meta),
	}}, nil
}

// UpdateEdgeData implements graph.Network
func (n *Network) UpdateEdgeData(ctx context.Context, id uint32, data graph.EdgeData) error {
	if n.readonly {
		return &graph.ReadonlyError{Store: "Network"}
	}
	tag, err := n.pool.Exec(ctx,
		fmt.Sprintf("UPDATE %s SET distance = $2, profile_id = $3, meta_id = $4 WHERE id = $1", n.table),
		int64(id), data.Distance, int64(data.Profile), int64(data.MetaID),
	)
	if err != nil {
		return fmt.Errorf("failed to update edge %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", graph.ErrEdgeNotFound, id)
	}
	return nil
}

// EdgeCount implements graph.Network. Edge ids are dense, so the count is
// one past the highest id.
func (n *Network) EdgeCount(ctx context.Context) (uint32, error) {
	return countRows(ctx, n.pool, n.table)
}

// IsReadonly implements graph.Network
func (n *Network) IsReadonly() bool {
	return n.readonly
}

// Pool is a graph.AttributePool stored in a digest-indexed table
type Pool struct {
	pool     *pgxpool.Pool
	table    string
	readonly bool
}

// Get implements graph.AttributePool
func (p *Pool) Get(ctx context.Context, id uint32) (attrs.Set, error) {
	var tags []byte
	err := p.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT tags FROM %s WHERE id = $1", p.table),
		int64(id),
	).Scan(&tags)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", graph.ErrPoolEntryNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s entry %d: %w", p.table, id, err)
	}

	var set attrs.Set
	if err := set.UnmarshalJSON(tags); err != nil {
		return nil, fmt.Errorf("%s entry %d: %w", p.table, id, err)
	}
	return set, nil
}

// Add implements graph.AttributePool. An existing entry with the same digest
// is returned instead of inserting a duplicate.
func (p *Pool) Add(ctx context.Context, set attrs.Set) (uint32, error) {
	if p.readonly {
		return 0, &graph.ReadonlyError{Store: "AttributePool"}
	}
	tags, err := set.MarshalJSON()
	if err != nil {
		return 0, err
	}
	digest := set.Digest()

	// ids come from MAX(id), so concurrent adds to one table take turns
	var id int64
	err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", p.table); err != nil {
			return err
		}
		return tx.QueryRow(ctx, addSQL(p.table), digest[:], tags).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add %s entry: %w", p.table, err)
	}
	return uint32(id), nil
}

// addSQL allocates the next dense id; the no-op update makes RETURNING yield
// the existing id on a digest conflict
func addSQL(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %[1]s (id, digest, tags)
		SELECT COALESCE(MAX(id) + 1, 0), $1, $2 FROM %[1]s
		ON CONFLICT (digest) DO UPDATE SET digest = EXCLUDED.digest
		RETURNING id`, table)
}

// Count implements graph.AttributePool
func (p *Pool) Count(ctx context.Context) (uint32, error) {
	return countRows(ctx, p.pool, p.table)
}

// IsReadonly implements graph.AttributePool
func (p *Pool) IsReadonly() bool {
	return p.readonly
}

func countRows(ctx context.Context, pool *pgxpool.Pool, table string) (uint32, error) {
	var n int64
	if err := pool.QueryRow(ctx, fmt.Sprintf("SELECT COALESCE(MAX(id) + 1, 0) FROM %s", table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return uint32(n), nil
}
