// Package routerdb stores a router database in a directory: the edge table
// is memory mapped from edges.bin, the attribute pools are JSON arrays in
// profiles.json and meta.json.
package routerdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/wegman-software/osmlr-go/internal/attrs"
	"github.com/wegman-software/osmlr-go/internal/graph"
	"github.com/wegman-software/osmlr-go/internal/logger"
)

const (
	EdgesFile    = "edges.bin"
	ProfilesFile = "profiles.json"
	MetaFile     = "meta.json"
	LockFile     = ".lock"
)

// ErrLocked is returned when another open store holds a conflicting lock on the
// router database directory
var ErrLocked = errors.New("router database is locked")

// Store is a router database opened from a directory
type Store struct {
	*graph.RouterDB

	dir      string
	edges    *EdgeFile
	profiles *graph.MemoryPool
	meta     *graph.MemoryPool
	lock     *flock.Flock
	readonly bool

	flushEdges func() error
}

// lockDir locks dir for the lifetime of a store: shared for readers,
// exclusive for a writer
func lockDir(dir string, readonly bool) (*flock.Flock, error) {
	l := flock.New(filepath.Join(dir, LockFile))
	var ok bool
	var err error
	if readonly {
		ok, err = l.TryRLock()
	} else {
		ok, err = l.TryLock()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", dir, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
	}
	return l, nil
}

// Create writes src to dir, replacing an existing router database
func Create(ctx context.Context, dir string, src *graph.RouterDB) error {
	log := logger.Named("routerdb")
	start := time.Now()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create router database directory: %w", err)
	}
	lock, err := lockDir(dir, false)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	count, err := src.Network.EdgeCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to count edges: %w", err)
	}

	err = writeFile(filepath.Join(dir, EdgesFile), func(f *os.File) error {
		return writeEdges(f, count, func(i uint32) (graph.EdgeData, error) {
			if i%100000 == 0 {
				if err := ctx.Err(); err != nil {
					return graph.EdgeData{}, err
				}
			}
			e, err := src.Network.Edge(ctx, i)
			return e.Data, err
		})
	})
	if err != nil {
		return fmt.Errorf("failed to write edges: %w", err)
	}

	profiles, err := readPool(ctx, src.EdgeProfiles)
	if err != nil {
		return fmt.Errorf("failed to read edge profiles: %w", err)
	}
	if err := writePool(filepath.Join(dir, ProfilesFile), profiles); err != nil {
		return err
	}

	meta, err := readPool(ctx, src.EdgeMeta)
	if err != nil {
		return fmt.Errorf("failed to read edge meta: %w", err)
	}
	if err := writePool(filepath.Join(dir, MetaFile), meta); err != nil {
		return err
	}

	log.Info("Router database written",
		zap.String("dir", dir),
		zap.Uint32("edges", count),
		zap.Int("profiles", len(profiles)),
		zap.Int("meta", len(meta)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// Open opens the router database in dir. A readonly store refuses every
// mutation with a *graph.ReadonlyError.
//
// The directory stays locked until Close: any number of readonly stores or a
// single writable one. A conflicting Open fails with ErrLocked.
func Open(dir string, readonly bool) (*Store, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("failed to open router database: %w", err)
	}
	lock, err := lockDir(dir, readonly)
	if err != nil {
		return nil, err
	}

	edges, err := OpenEdgeFile(filepath.Join(dir, EdgesFile), readonly)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	profiles, err := loadPool(filepath.Join(dir, ProfilesFile))
	if err != nil {
		edges.Close()
		lock.Unlock()
		return nil, err
	}
	meta, err := loadPool(filepath.Join(dir, MetaFile))
	if err != nil {
		edges.Close()
		lock.Unlock()
		return nil, err
	}
	profiles.SetReadonly(readonly)
	meta.SetReadonly(readonly)

	logger.Named("routerdb").Debug("Router database opened",
		zap.String("dir", dir),
		zap.Uint32("edges", edges.count),
		zap.Int("profiles", profiles.Len()),
		zap.Int("meta", meta.Len()),
		zap.Bool("readonly", readonly),
	)

	return &Store{
		RouterDB:   graph.NewRouterDB(edges, profiles, meta),
		dir:        dir,
		edges:      edges,
		profiles:   profiles,
		meta:       meta,
		lock:       lock,
		readonly:   readonly,
		flushEdges: edges.Flush,
	}, nil
}

// Dir returns the store directory
func (s *Store) Dir() string {
	return s.dir
}

// Flush persists the attribute pools and then the edge updates. Pools only
// grow, so edges on disk never point at entries missing from disk.
func (s *Store) Flush() error {
	if s.readonly || s.lock == nil {
		return nil
	}
	s.Lock()
	defer s.Unlock()

	if err := writePool(filepath.Join(s.dir, ProfilesFile), s.profiles.All()); err != nil {
		return err
	}
	if err := writePool(filepath.Join(s.dir, MetaFile), s.meta.All()); err != nil {
		return err
	}
	if err := s.flushEdges(); err != nil {
		return fmt.Errorf("failed to flush edges: %w", err)
	}
	return nil
}

// Close flushes a writable store, releases the edge mapping and unlocks the
// directory
func (s *Store) Close() error {
	if s.lock == nil {
		return nil
	}
	err := errors.Join(s.Flush(), s.edges.Close(), s.lock.Unlock())
	s.lock = nil
	return err
}

func readPool(ctx context.Context, pool graph.AttributePool) ([]attrs.Set, error) {
	n, err := pool.Count(ctx)
	if err != nil {
		return nil, err
	}
	sets := make([]attrs.Set, n)
	for i := uint32(0); i < n; i++ {
		if sets[i], err = pool.Get(ctx, i); err != nil {
			return nil, err
		}
	}
	return sets, nil
}

func loadPool(path string) (*graph.MemoryPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attribute pool: %w", err)
	}
	var sets []attrs.Set
	if err := json.Unmarshal(data, &sets); err != nil {
		return nil, fmt.Errorf("failed to parse attribute pool %s: %w", path, err)
	}
	pool := graph.NewMemoryPool()
	pool.Load(sets)
	return pool, nil
}

func writePool(path string, sets []attrs.Set) error {
	if sets == nil {
		sets = []attrs.Set{}
	}
	err := writeFile(path, func(f *os.File) error {
		enc := json.NewEncoder(f)
		return enc.Encode(sets)
	})
	if err != nil {
		return fmt.Errorf("failed to write attribute pool %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeFile writes path through a temporary file and renames it into place
func writeFile(path string, write func(f *os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
