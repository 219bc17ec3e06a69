package augment

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wegman-software/osmlr-go/internal/attrs"
	"github.com/wegman-software/osmlr-go/internal/graph"
	"github.com/wegman-software/osmlr-go/internal/lr"
	"github.com/wegman-software/osmlr-go/internal/profile"
	"github.com/wegman-software/osmlr-go/internal/reverse"
)

// testDB is an in-memory router database with direct access to its stores
type testDB struct {
	*graph.RouterDB
	network  *graph.MemoryNetwork
	profiles *graph.MemoryPool
	meta     *graph.MemoryPool
}

func newTestDB(t *testing.T) *testDB {
	t.Helper()
	network := graph.NewMemoryNetwork()
	profiles := graph.NewMemoryPool()
	meta := graph.NewMemoryPool()
	return &testDB{
		RouterDB: graph.NewRouterDB(network, profiles, meta),
		network:  network,
		profiles: profiles,
		meta:     meta,
	}
}

// addEdge stores an edge with the given profile and meta attributes
func (db *testDB) addEdge(t *testing.T, distance float32, profileSet, metaSet attrs.Set) uint32 {
	t.Helper()
	ctx := context.Background()
	p, err := db.profiles.Add(ctx, profileSet)
	if err != nil {
		t.Fatal(err)
	}
	m, err := db.meta.Add(ctx, metaSet)
	if err != nil {
		t.Fatal(err)
	}
	return db.network.AddEdge(graph.EdgeData{Distance: distance, Profile: p, MetaID: m})
}

func (db *testDB) attributes(t *testing.T, edgeID uint32) (profileSet, metaSet attrs.Set) {
	t.Helper()
	ctx := context.Background()
	e, err := db.Network.Edge(ctx, edgeID)
	if err != nil {
		t.Fatal(err)
	}
	profileSet, metaSet, err = db.EdgeAttributes(ctx, e)
	if err != nil {
		t.Fatal(err)
	}
	return profileSet, metaSet
}

func refs(r ...lr.DirectedEdgeRef) func(func(lr.DirectedEdgeRef) bool) {
	return slices.Values(r)
}

func TestAugmentAttributePrecedence(t *testing.T) {
	db := newTestDB(t)
	id := db.addEdge(t, 100, attrs.New("b", "2"), attrs.New("a", "1"))
	vehicle := profile.NewVehicle("test", "b")

	res, err := Augment(context.Background(), db.RouterDB, refs(lr.NewDirectedEdgeRef(id, true)),
		attrs.New("b", "3", "c", "4"), nil, vehicle)
	if err != nil {
		t.Fatalf("Augment failed: %v", err)
	}
	if !res.Augmented {
		t.Error("Augmented = false, want true")
	}

	p, m := db.attributes(t, id)
	if !p.ContainsSame(attrs.New("b", "3")) {
		t.Errorf("profile = %v, want {b=3}", p)
	}
	if !m.ContainsSame(attrs.New("a", "1", "c", "4")) {
		t.Errorf("meta = %v, want {a=1,c=4}", m)
	}

	e, _ := db.Network.Edge(context.Background(), id)
	if e.Data.Distance != 100 {
		t.Errorf("distance = %f, want 100", e.Data.Distance)
	}
	if !slices.Equal(res.Updated, []uint32{id}) {
		t.Errorf("Updated = %v, want [%d]", res.Updated, id)
	}
}

func TestAugmentProfileWinsOverMeta(t *testing.T) {
	db := newTestDB(t)
	// key x in both pools: the profile value is authoritative
	id := db.addEdge(t, 10, attrs.New("x", "profile"), attrs.New("x", "meta", "y", "1"))
	vehicle := profile.NewVehicle("test", "x")

	if _, err := Augment(context.Background(), db.RouterDB, refs(lr.NewDirectedEdgeRef(id, true)),
		attrs.New("z", "new"), nil, vehicle); err != nil {
		t.Fatalf("Augment failed: %v", err)
	}

	p, m := db.attributes(t, id)
	if !p.ContainsSame(attrs.New("x", "profile")) {
		t.Errorf("profile = %v", p)
	}
	if !m.ContainsSame(attrs.New("y", "1", "z", "new")) {
		t.Errorf("meta = %v, want x removed from meta", m)
	}
}

func TestAugmentDedupIdempotence(t *testing.T) {
	db := newTestDB(t)
	first := db.addEdge(t, 10, attrs.New("highway", "primary"), attrs.New("name", "A"))
	second := db.addEdge(t, 10, attrs.New("highway", "primary"), attrs.New("name", "A"))
	vehicle := profile.NewVehicle("test", "highway", "custom:blocked")
	update := attrs.New("custom:blocked", "yes")
	covered := refs(lr.NewDirectedEdgeRef(first, true), lr.NewDirectedEdgeRef(second, true))

	res1, err := Augment(context.Background(), db.RouterDB, covered, update, nil, vehicle)
	if err != nil {
		t.Fatalf("first Augment failed: %v", err)
	}

	// both edges share one newly allocated profile
	if db.profiles.Len() != 2 {
		t.Errorf("profile pool size = %d, want 2", db.profiles.Len())
	}
	e1, _ := db.Network.Edge(context.Background(), first)
	e2, _ := db.Network.Edge(context.Background(), second)
	if e1.Data != e2.Data {
		t.Errorf("edges with equal attributes point at different entries: %+v vs %+v", e1.Data, e2.Data)
	}

	before := db.network.Snapshot()
	profilesBefore, metaBefore := db.profiles.Len(), db.meta.Len()

	res2, err := Augment(context.Background(), db.RouterDB, covered, update, nil, vehicle)
	if err != nil {
		t.Fatalf("second Augment failed: %v", err)
	}
	if res2.Augmented != res1.Augmented {
		t.Errorf("replay Augmented = %v, want %v", res2.Augmented, res1.Augmented)
	}
	if res2.ProfilesAdded != 0 || res2.MetaAdded != 0 {
		t.Errorf("replay added %d profiles and %d meta, want none", res2.ProfilesAdded, res2.MetaAdded)
	}
	if len(res2.Updated) != 0 {
		t.Errorf("replay Updated = %v, want none", res2.Updated)
	}
	if db.profiles.Len() != profilesBefore || db.meta.Len() != metaBefore {
		t.Error("replay grew the attribute pools")
	}
	if diff := cmp.Diff(before, db.network.Snapshot()); diff != "" {
		t.Errorf("replay changed edges (-before +after):\n%s", diff)
	}
}

func TestAugmentReversal(t *testing.T) {
	db := newTestDB(t)
	fwd := db.addEdge(t, 10, attrs.Set{}, attrs.Set{})
	bwd := db.addEdge(t, 10, attrs.Set{}, attrs.Set{})
	vehicle := profile.NewVehicle("test", "highway")

	covered := refs(lr.NewDirectedEdgeRef(fwd, true), lr.NewDirectedEdgeRef(bwd, false))
	if _, err := Augment(context.Background(), db.RouterDB, covered,
		attrs.New("blocked", "fwd"), reverse.SwapDirections(), vehicle); err != nil {
		t.Fatalf("Augment failed: %v", err)
	}

	if _, m := db.attributes(t, fwd); !m.ContainsSame(attrs.New("blocked", "fwd")) {
		t.Errorf("forward edge meta = %v, want {blocked=fwd}", m)
	}
	if _, m := db.attributes(t, bwd); !m.ContainsSame(attrs.New("blocked", "bwd")) {
		t.Errorf("backward edge meta = %v, want {blocked=bwd}", m)
	}
}

func TestAugmentWithoutReverseAppliesUnchanged(t *testing.T) {
	db := newTestDB(t)
	id := db.addEdge(t, 10, attrs.Set{}, attrs.Set{})
	vehicle := profile.NewVehicle("test")

	if _, err := Augment(context.Background(), db.RouterDB, refs(lr.NewDirectedEdgeRef(id, false)),
		attrs.New("blocked:fwd", "yes"), nil, vehicle); err != nil {
		t.Fatalf("Augment failed: %v", err)
	}
	if _, m := db.attributes(t, id); !m.ContainsSame(attrs.New("blocked:fwd", "yes")) {
		t.Errorf("meta = %v, want attributes unchanged", m)
	}
}

func TestAugmentReadonlyGuard(t *testing.T) {
	tests := []struct {
		name  string
		setup func(db *testDB)
		store string
	}{
		{"profiles", func(db *testDB) { db.profiles.SetReadonly(true) }, "EdgeProfiles"},
		{"meta", func(db *testDB) { db.meta.SetReadonly(true) }, "EdgeMeta"},
		{"network", func(db *testDB) { db.network.SetReadonly(true) }, "Network"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			id := db.addEdge(t, 10, attrs.New("highway", "primary"), attrs.Set{})
			tt.setup(db)

			before := db.network.Snapshot()
			profiles, meta := db.profiles.All(), db.meta.All()

			_, err := Augment(context.Background(), db.RouterDB, refs(lr.NewDirectedEdgeRef(id, true)),
				attrs.New("highway", "closed"), nil, profile.NewVehicle("test", "highway"))

			var roErr *graph.ReadonlyError
			if !errors.As(err, &roErr) || roErr.Store != tt.store {
				t.Fatalf("Augment() = %v, want readonly %s", err, tt.store)
			}
			if diff := cmp.Diff(before, db.network.Snapshot()); diff != "" {
				t.Errorf("edges changed (-before +after):\n%s", diff)
			}
			if diff := cmp.Diff(profiles, db.profiles.All()); diff != "" {
				t.Errorf("profiles changed:\n%s", diff)
			}
			if diff := cmp.Diff(meta, db.meta.All()); diff != "" {
				t.Errorf("meta changed:\n%s", diff)
			}
		})
	}
}

func TestAugmentMissingEdgeAbortsWithoutWrites(t *testing.T) {
	db := newTestDB(t)
	id := db.addEdge(t, 10, attrs.Set{}, attrs.Set{})
	before := db.network.Snapshot()

	_, err := Augment(context.Background(), db.RouterDB,
		refs(lr.NewDirectedEdgeRef(id, true), lr.NewDirectedEdgeRef(42, true)),
		attrs.New("a", "1"), nil, profile.NewVehicle("test"))
	if !errors.Is(err, graph.ErrEdgeNotFound) {
		t.Fatalf("Augment() = %v, want ErrEdgeNotFound", err)
	}
	if diff := cmp.Diff(before, db.network.Snapshot()); diff != "" {
		t.Errorf("edges changed despite abort:\n%s", diff)
	}
}

func TestAugmentInvalidRef(t *testing.T) {
	db := newTestDB(t)
	db.addEdge(t, 10, attrs.Set{}, attrs.Set{})

	_, err := Augment(context.Background(), db.RouterDB, refs(1, 0),
		attrs.New("a", "1"), nil, profile.NewVehicle("test"))
	if !errors.Is(err, lr.ErrInvalidEdgeRef) {
		t.Errorf("Augment() = %v, want ErrInvalidEdgeRef", err)
	}
}

func TestAugmentEmptyCoverage(t *testing.T) {
	db := newTestDB(t)
	res, err := Augment(context.Background(), db.RouterDB, refs(), attrs.New("a", "1"), nil, profile.NewVehicle("test"))
	if err != nil {
		t.Fatalf("Augment failed: %v", err)
	}
	if res.Augmented {
		t.Error("Augmented = true for empty coverage")
	}
}

func TestAugmentSameEdgeTwice(t *testing.T) {
	db := newTestDB(t)
	id := db.addEdge(t, 10, attrs.Set{}, attrs.New("name", "A"))

	// traversed forwards and backwards: the second pass sees the first pass's result
	_, err := Augment(context.Background(), db.RouterDB,
		refs(lr.NewDirectedEdgeRef(id, true), lr.NewDirectedEdgeRef(id, false)),
		attrs.New("lane:fwd", "closed"), reverse.SwapDirections(), profile.NewVehicle("test"))
	if err != nil {
		t.Fatalf("Augment failed: %v", err)
	}
	want := attrs.New("name", "A", "lane:fwd", "closed", "lane:bwd", "closed")
	if _, m := db.attributes(t, id); !m.ContainsSame(want) {
		t.Errorf("meta = %v, want %v", m, want)
	}
}

// failingNetwork fails the n-th update
type failingNetwork struct {
	*graph.MemoryNetwork
	failAt  int
	updates int
}

func (f *failingNetwork) UpdateEdgeData(ctx context.Context, id uint32, data graph.EdgeData) error {
	f.updates++
	if f.updates == f.failAt {
		return errors.New("disk full")
	}
	return f.MemoryNetwork.UpdateEdgeData(ctx, id, data)
}

func TestAugmentRollsBackOnWriteFailure(t *testing.T) {
	db := newTestDB(t)
	a := db.addEdge(t, 10, attrs.Set{}, attrs.Set{})
	b := db.addEdge(t, 10, attrs.Set{}, attrs.Set{})
	c := db.addEdge(t, 10, attrs.Set{}, attrs.Set{})

	network := &failingNetwork{MemoryNetwork: db.network, failAt: 3}
	rdb := graph.NewRouterDB(network, db.profiles, db.meta)
	before := db.network.Snapshot()

	_, err := Augment(context.Background(), rdb,
		refs(lr.NewDirectedEdgeRef(a, true), lr.NewDirectedEdgeRef(b, true), lr.NewDirectedEdgeRef(c, true)),
		attrs.New("a", "1"), nil, profile.NewVehicle("test"))
	if err == nil {
		t.Fatal("expected error from failing write")
	}
	if diff := cmp.Diff(before, db.network.Snapshot()); diff != "" {
		t.Errorf("edges not restored (-before +after):\n%s", diff)
	}
}

func TestAugmentHonoursCancellation(t *testing.T) {
	db := newTestDB(t)
	id := db.addEdge(t, 10, attrs.Set{}, attrs.Set{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Augment(ctx, db.RouterDB, refs(lr.NewDirectedEdgeRef(id, true)),
		attrs.New("a", "1"), nil, profile.NewVehicle("test")); !errors.Is(err, context.Canceled) {
		t.Errorf("Augment() = %v, want context.Canceled", err)
	}
}
