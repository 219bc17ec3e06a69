// Package graphbuild builds a router database from OpenStreetMap data: one
// edge per routable way, with tags split into edge profile and edge meta by a
// vehicle profile.
package graphbuild

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/osm"

	"github.com/wegman-software/osmlr-go/internal/attrs"
	"github.com/wegman-software/osmlr-go/internal/graph"
	"github.com/wegman-software/osmlr-go/internal/profile"
)

// Stats holds build statistics
type Stats struct {
	Nodes       int64 // coordinates kept
	Ways        int64 // ways seen
	Edges       int64 // edges created
	SkippedWays int64 // routable ways with missing nodes
}

// pendingWay is a routable way waiting for its node coordinates
type pendingWay struct {
	id    osm.WayID
	nodes []osm.NodeID
	tags  attrs.Set
}

// Builder collects routable ways and their node coordinates. Ways are added
// first so only the nodes they reference are kept.
type Builder struct {
	vehicle *profile.Vehicle

	ways   []pendingWay
	needed map[osm.NodeID]struct{}
	coords map[osm.NodeID]orb.Point

	nodes       atomic.Int64
	waysSeen    atomic.Int64
	edges       atomic.Int64
	skippedWays atomic.Int64
}

// NewBuilder creates a builder splitting tags with vehicle
func NewBuilder(vehicle *profile.Vehicle) *Builder {
	return &Builder{
		vehicle: vehicle,
		needed:  make(map[osm.NodeID]struct{}),
		coords:  make(map[osm.NodeID]orb.Point),
	}
}

// excludedHighways are highway values that are not part of the road network
var excludedHighways = map[string]bool{
	"proposed":     true,
	"construction": true,
	"abandoned":    true,
	"platform":     true,
	"razed":        true,
	"no":           true,
}

// IsRoutable reports whether a way with tags becomes an edge
func IsRoutable(tags osm.Tags) bool {
	if v := tags.Find("highway"); v != "" {
		return !excludedHighways[v]
	}
	return tags.Find("route") == "ferry"
}

// AddWay queues a way. It returns false for ways that are not routable.
func (b *Builder) AddWay(w *osm.Way) bool {
	b.waysSeen.Add(1)
	if len(w.Nodes) < 2 || !IsRoutable(w.Tags) {
		return false
	}

	nodes := make([]osm.NodeID, len(w.Nodes))
	for i, n := range w.Nodes {
		nodes[i] = n.ID
		b.needed[n.ID] = struct{}{}
	}
	b.ways = append(b.ways, pendingWay{
		id:    w.ID,
		nodes: nodes,
		tags:  attrs.FromTags(w.Tags),
	})
	return true
}

// AddNode stores the coordinates of a node referenced by a queued way
func (b *Builder) AddNode(n *osm.Node) {
	if _, ok := b.needed[n.ID]; !ok {
		return
	}
	b.coords[n.ID] = orb.Point{n.Lon, n.Lat}
	b.nodes.Add(1)
}

// Build creates an in-memory router database from the queued ways. Edge ids
// follow the order in which ways were added.
func (b *Builder) Build(ctx context.Context) (*graph.RouterDB, error) {
	db := graph.NewMemoryRouterDB()
	network := db.Network.(*graph.MemoryNetwork)

	line := make(orb.LineString, 0, 64)
	for i, w := range b.ways {
		if i%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		line = line[:0]
		valid := true
		for _, id := range w.nodes {
			p, ok := b.coords[id]
			if !ok {
				valid = false
				break
			}
			line = append(line, p)
		}
		if !valid {
			b.skippedWays.Add(1)
			continue
		}

		profileSet, metaSet := w.tags.Split(b.vehicle.IsProfileKey)
		p, err := db.EdgeProfiles.Add(ctx, profileSet)
		if err != nil {
			return nil, fmt.Errorf("way %d: %w", w.id, err)
		}
		m, err := db.EdgeMeta.Add(ctx, metaSet)
		if err != nil {
			return nil, fmt.Errorf("way %d: %w", w.id, err)
		}

		network.AddEdge(graph.EdgeData{
			Distance: float32(geo.Length(line)),
			Profile:  p,
			MetaID:   m,
		})
		b.edges.Add(1)
	}
	return db, nil
}

// Stats returns a snapshot of the build statistics
func (b *Builder) Stats() Stats {
	return Stats{
		Nodes:       b.nodes.Load(),
		Ways:        b.waysSeen.Load(),
		Edges:       b.edges.Load(),
		SkippedWays: b.skippedWays.Load(),
	}
}
