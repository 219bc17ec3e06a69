package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// advisoryLock is a graph.WriteLock held as a session advisory lock on a
// dedicated connection. All writers of one schema share the key.
type advisoryLock struct {
	pool *pgxpool.Pool
	key  string
	conn *pgxpool.Conn
}

func (l *advisoryLock) Lock(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock(hashtext($1))", l.key); err != nil {
		conn.Release()
		return fmt.Errorf("failed to lock %s: %w", l.key, err)
	}
	l.conn = conn
	return nil
}

func (l *advisoryLock) Unlock() error {
	conn := l.conn
	if conn == nil {
		return nil
	}
	l.conn = nil
	defer conn.Release()

	ctx := context.Background()
	var released bool
	if err := conn.QueryRow(ctx, "SELECT pg_advisory_unlock(hashtext($1))", l.key).Scan(&released); err != nil {
		// the session may still hold the lock, don't hand it back to the pool
		conn.Conn().Close(ctx)
		return fmt.Errorf("failed to unlock %s: %w", l.key, err)
	}
	if !released {
		return fmt.Errorf("lock %s was not held", l.key)
	}
	return nil
}
