package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wegman-software/osmlr-go/internal/attrs"
)

var (
	// ErrReadonly is matched by every *ReadonlyError
	ErrReadonly = errors.New("store is readonly")
	// ErrEdgeNotFound is returned for an edge id outside the network
	ErrEdgeNotFound = errors.New("edge not found")
	// ErrPoolEntryNotFound is returned for an unknown attribute pool id
	ErrPoolEntryNotFound = errors.New("attribute pool entry not found")
)

// ReadonlyError names the store that refused a mutation
type ReadonlyError struct {
	Store string
}

func (e *ReadonlyError) Error() string {
	return fmt.Sprintf("cannot augment router database, %s is readonly", e.Store)
}

// Is makes errors.Is(err, ErrReadonly) match
func (e *ReadonlyError) Is(target error) bool {
	return target == ErrReadonly
}

// EdgeData is the mutable part of an edge. Profile and MetaID point into the
// edge profile and edge meta attribute pools.
type EdgeData struct {
	Distance float32 // meters
	Profile  uint32
	MetaID   uint32
}

// Edge is an edge snapshot
type Edge struct {
	ID   uint32
	Data EdgeData
}

// Network holds the edges of the routing graph
type Network interface {
	Edge(ctx context.Context, id uint32) (Edge, error)
	UpdateEdgeData(ctx context.Context, id uint32, data EdgeData) error
	EdgeCount(ctx context.Context) (uint32, error)
	IsReadonly() bool
}

// AttributePool stores attribute sets by id. Add is content addressed: adding
// a set equal to a stored one returns the stored id.
type AttributePool interface {
	Get(ctx context.Context, id uint32) (attrs.Set, error)
	Add(ctx context.Context, set attrs.Set) (uint32, error)
	Count(ctx context.Context) (uint32, error)
	IsReadonly() bool
}

// WriteLock serializes writers of a store shared between processes
type WriteLock interface {
	Lock(ctx context.Context) error
	Unlock() error
}

// RouterDB groups a network with its two attribute pools. EdgeProfiles holds
// routing-relevant attributes, EdgeMeta descriptive ones.
type RouterDB struct {
	Network      Network
	EdgeProfiles AttributePool
	EdgeMeta     AttributePool

	mu        sync.Mutex
	writeLock WriteLock
}

// NewRouterDB groups existing stores
func NewRouterDB(network Network, profiles, meta AttributePool) *RouterDB {
	return &RouterDB{
		Network:      network,
		EdgeProfiles: profiles,
		EdgeMeta:     meta,
	}
}

// NewMemoryRouterDB creates an empty writable in-memory router database
func NewMemoryRouterDB() *RouterDB {
	return NewRouterDB(NewMemoryNetwork(), NewMemoryPool(), NewMemoryPool())
}

// CheckWritable returns a *ReadonlyError for the first readonly store
func (db *RouterDB) CheckWritable() error {
	if db.EdgeProfiles.IsReadonly() {
		return &ReadonlyError{Store: "EdgeProfiles"}
	}
	if db.EdgeMeta.IsReadonly() {
		return &ReadonlyError{Store: "EdgeMeta"}
	}
	if db.Network.IsReadonly() {
		return &ReadonlyError{Store: "Network"}
	}
	return nil
}

// Lock serializes read-modify-write sequences on the database
func (db *RouterDB) Lock() {
	db.mu.Lock()
}

// Unlock releases the lock taken by Lock
func (db *RouterDB) Unlock() {
	db.mu.Unlock()
}

// SetWriteLock installs the lock Acquire takes after the in-process lock
func (db *RouterDB) SetWriteLock(l WriteLock) {
	db.writeLock = l
}

// WriteLock returns the lock installed by SetWriteLock
func (db *RouterDB) WriteLock() WriteLock {
	return db.writeLock
}

// Acquire takes the in-process lock and then the store write lock, if any.
// Every successful Acquire must be paired with Release.
func (db *RouterDB) Acquire(ctx context.Context) error {
	db.mu.Lock()
	if db.writeLock == nil {
		return nil
	}
	if err := db.writeLock.Lock(ctx); err != nil {
		db.mu.Unlock()
		return fmt.Errorf("failed to lock router database: %w", err)
	}
	return nil
}

// Release undoes Acquire
func (db *RouterDB) Release() error {
	defer db.mu.Unlock()
	if db.writeLock == nil {
		return nil
	}
	if err := db.writeLock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock router database: %w", err)
	}
	return nil
}

// EdgeLength returns the distance of an edge. Its signature matches lr.LengthFunc.
func (db *RouterDB) EdgeLength(ctx context.Context, edgeID uint32) (float64, error) {
	e, err := db.Network.Edge(ctx, edgeID)
	if err != nil {
		return 0, err
	}
	return float64(e.Data.Distance), nil
}

// EdgeAttributes returns the profile and meta attributes of an edge
func (db *RouterDB) EdgeAttributes(ctx context.Context, e Edge) (profile, meta attrs.Set, err error) {
	profile, err = db.EdgeProfiles.Get(ctx, e.Data.Profile)
	if err != nil {
		return nil, nil, fmt.Errorf("edge %d profile %d: %w", e.ID, e.Data.Profile, err)
	}
	meta, err = db.EdgeMeta.Get(ctx, e.Data.MetaID)
	if err != nil {
		return nil, nil, fmt.Errorf("edge %d meta %d: %w", e.ID, e.Data.MetaID, err)
	}
	return profile, meta, nil
}
