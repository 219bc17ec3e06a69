package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/wegman-software/osmlr-go/internal/attrs"
)

// MemoryNetwork is a slice-backed Network
type MemoryNetwork struct {
	mu       sync.RWMutex
	edges    []EdgeData
	readonly bool
}

// NewMemoryNetwork creates an empty writable network
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{}
}

// AddEdge appends an edge and returns its id
func (n *MemoryNetwork) AddEdge(data EdgeData) uint32 {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.edges = append(n.edges, data)
	return uint32(len(n.edges) - 1)
}

// Edge implements Network
func (n *MemoryNetwork) Edge(_ context.Context, id uint32) (Edge, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if int(id) >= len(n.edges) {
		return Edge{}, fmt.Errorf("%w: %d", ErrEdgeNotFound, id)
	}
	return Edge{ID: id, Data: n.edges[id]}, nil
}

// UpdateEdgeData implements Network
func (n *MemoryNetwork) UpdateEdgeData(_ context.Context, id uint32, data EdgeData) error {
	if n.readonly {
		return &ReadonlyError{Store: "Network"}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if int(id) >= len(n.edges) {
		return fmt.Errorf("%w: %d", ErrEdgeNotFound, id)
	}
	n.edges[id] = data
	return nil
}

// EdgeCount implements Network
func (n *MemoryNetwork) EdgeCount(context.Context) (uint32, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return uint32(len(n.edges)), nil
}

// IsReadonly implements Network
func (n *MemoryNetwork) IsReadonly() bool {
	return n.readonly
}

// SetReadonly toggles write protection
func (n *MemoryNetwork) SetReadonly(readonly bool) {
	n.readonly = readonly
}

// Snapshot returns a copy of all edge data
func (n *MemoryNetwork) Snapshot() []EdgeData {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]EdgeData, len(n.edges))
	copy(out, n.edges)
	return out
}

// MemoryPool is a content-addressed AttributePool held in memory
type MemoryPool struct {
	mu       sync.RWMutex
	sets     []attrs.Set
	index    map[[32]byte]uint32
	readonly bool
}

// NewMemoryPool creates an empty writable pool
func NewMemoryPool() *MemoryPool {
	return &MemoryPool{
		index: make(map[[32]byte]uint32),
	}
}

// Get implements AttributePool. The returned set is a copy.
func (p *MemoryPool) Get(_ context.Context, id uint32) (attrs.Set, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if int(id) >= len(p.sets) {
		return nil, fmt.Errorf("%w: %d", ErrPoolEntryNotFound, id)
	}
	return p.sets[id].Clone(), nil
}

// Add implements AttributePool
func (p *MemoryPool) Add(_ context.Context, set attrs.Set) (uint32, error) {
	if p.readonly {
		return 0, &ReadonlyError{Store: "AttributePool"}
	}
	return p.add(set), nil
}

func (p *MemoryPool) add(set attrs.Set) uint32 {
	digest := set.Digest()

	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.index[digest]; ok {
		return id
	}
	id := uint32(len(p.sets))
	p.sets = append(p.sets, set.Clone())
	p.index[digest] = id
	return id
}

// Count implements AttributePool
func (p *MemoryPool) Count(context.Context) (uint32, error) {
	return uint32(p.Len()), nil
}

// Len returns the number of stored sets
func (p *MemoryPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sets)
}

// IsReadonly implements AttributePool
func (p *MemoryPool) IsReadonly() bool {
	return p.readonly
}

// SetReadonly toggles write protection
func (p *MemoryPool) SetReadonly(readonly bool) {
	p.readonly = readonly
}

// All returns copies of every stored set in id order
func (p *MemoryPool) All() []attrs.Set {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]attrs.Set, len(p.sets))
	for i, s := range p.sets {
		out[i] = s.Clone()
	}
	return out
}

// Load replaces the pool contents with sets, in id order. Duplicate sets keep
// their ids; the first occurrence is used for content lookups.
func (p *MemoryPool) Load(sets []attrs.Set) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sets = make([]attrs.Set, len(sets))
	p.index = make(map[[32]byte]uint32, len(sets))
	for i, s := range sets {
		p.sets[i] = s.Clone()
		d := s.Digest()
		if _, ok := p.index[d]; !ok {
			p.index[d] = uint32(i)
		}
	}
}
