package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/wegman-software/osmlr-go/internal/attrs"
)

func TestMemoryPoolDedup(t *testing.T) {
	ctx := context.Background()
	pool := NewMemoryPool()

	a, err := pool.Add(ctx, attrs.New("highway", "primary", "oneway", "yes"))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	b, err := pool.Add(ctx, attrs.New("oneway", "yes", "highway", "primary"))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if a != b {
		t.Errorf("equal sets got ids %d and %d", a, b)
	}

	c, _ := pool.Add(ctx, attrs.New("highway", "secondary"))
	if c == a {
		t.Error("different sets share an id")
	}
	if pool.Len() != 2 {
		t.Errorf("Len() = %d, want 2", pool.Len())
	}

	got, err := pool.Get(ctx, a)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.ContainsSame(attrs.New("highway", "primary", "oneway", "yes")) {
		t.Errorf("Get(%d) = %v", a, got)
	}

	// callers must not be able to modify stored sets
	got.AddOrReplace("highway", "changed")
	again, _ := pool.Get(ctx, a)
	if v, _ := again.Get("highway"); v != "primary" {
		t.Error("pool entry was modified through a returned set")
	}
}

func TestMemoryPoolErrors(t *testing.T) {
	ctx := context.Background()
	pool := NewMemoryPool()

	if _, err := pool.Get(ctx, 3); !errors.Is(err, ErrPoolEntryNotFound) {
		t.Errorf("Get(3) = %v, want ErrPoolEntryNotFound", err)
	}

	pool.SetReadonly(true)
	if _, err := pool.Add(ctx, attrs.New("a", "1")); !errors.Is(err, ErrReadonly) {
		t.Errorf("Add on readonly pool = %v, want ErrReadonly", err)
	}
}

func TestMemoryPoolLoad(t *testing.T) {
	ctx := context.Background()
	pool := NewMemoryPool()
	pool.Load([]attrs.Set{{}, attrs.New("a", "1"), attrs.New("b", "2")})

	id, _ := pool.Add(ctx, attrs.New("b", "2"))
	if id != 2 {
		t.Errorf("Add after Load = %d, want existing id 2", id)
	}
	id, _ = pool.Add(ctx, attrs.Set{})
	if id != 0 {
		t.Errorf("Add(empty) = %d, want 0", id)
	}
	if len(pool.All()) != 3 {
		t.Errorf("All() returned %d sets, want 3", len(pool.All()))
	}
}

func TestMemoryNetwork(t *testing.T) {
	ctx := context.Background()
	n := NewMemoryNetwork()
	id := n.AddEdge(EdgeData{Distance: 12.5, Profile: 1, MetaID: 2})

	e, err := n.Edge(ctx, id)
	if err != nil {
		t.Fatalf("Edge failed: %v", err)
	}
	if e.ID != id || e.Data.Distance != 12.5 {
		t.Errorf("Edge(%d) = %+v", id, e)
	}

	if err := n.UpdateEdgeData(ctx, id, EdgeData{Distance: 12.5, Profile: 3, MetaID: 4}); err != nil {
		t.Fatalf("UpdateEdgeData failed: %v", err)
	}
	if e, _ := n.Edge(ctx, id); e.Data.Profile != 3 || e.Data.MetaID != 4 {
		t.Errorf("update not applied: %+v", e)
	}

	if _, err := n.Edge(ctx, 9); !errors.Is(err, ErrEdgeNotFound) {
		t.Errorf("Edge(9) = %v, want ErrEdgeNotFound", err)
	}
	if err := n.UpdateEdgeData(ctx, 9, EdgeData{}); !errors.Is(err, ErrEdgeNotFound) {
		t.Errorf("UpdateEdgeData(9) = %v, want ErrEdgeNotFound", err)
	}

	n.SetReadonly(true)
	if err := n.UpdateEdgeData(ctx, id, EdgeData{}); !errors.Is(err, ErrReadonly) {
		t.Errorf("UpdateEdgeData on readonly network = %v, want ErrReadonly", err)
	}
	if count, _ := n.EdgeCount(ctx); count != 1 {
		t.Errorf("EdgeCount() = %d, want 1", count)
	}
}

func TestRouterDBCheckWritable(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(db *RouterDB)
		wantStore string
	}{
		{"writable", func(*RouterDB) {}, ""},
		{"profiles readonly", func(db *RouterDB) { db.EdgeProfiles.(*MemoryPool).SetReadonly(true) }, "EdgeProfiles"},
		{"meta readonly", func(db *RouterDB) { db.EdgeMeta.(*MemoryPool).SetReadonly(true) }, "EdgeMeta"},
		{"network readonly", func(db *RouterDB) { db.Network.(*MemoryNetwork).SetReadonly(true) }, "Network"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := NewMemoryRouterDB()
			tt.setup(db)
			err := db.CheckWritable()
			if tt.wantStore == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			var roErr *ReadonlyError
			if !errors.As(err, &roErr) || roErr.Store != tt.wantStore {
				t.Errorf("CheckWritable() = %v, want readonly %s", err, tt.wantStore)
			}
			if !errors.Is(err, ErrReadonly) {
				t.Error("error should match ErrReadonly")
			}
		})
	}
}
