package augment

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/wegman-software/osmlr-go/internal/attrs"
	"github.com/wegman-software/osmlr-go/internal/graph"
	"github.com/wegman-software/osmlr-go/internal/logger"
	"github.com/wegman-software/osmlr-go/internal/lr"
	"github.com/wegman-software/osmlr-go/internal/profile"
)

// Result describes the outcome of an augmentation
type Result struct {
	// Decoded is false when the reference did not decode to a line
	Decoded bool
	// Augmented is true when at least one covered edge was processed
	Augmented bool
	// Covered lists the covered edges in line order
	Covered []lr.DirectedEdgeRef
	// Updated lists edges whose profile or meta id changed
	Updated []uint32
	// ProfilesAdded and MetaAdded count pool Add calls
	ProfilesAdded int
	MetaAdded     int
}

// plannedEdge is an edge update computed before anything is written
type plannedEdge struct {
	id       uint32
	original graph.EdgeData
	updated  graph.EdgeData
}

// Augment merges attributes into every covered edge of db.
//
// For each edge the existing meta attributes are overlaid with the profile
// attributes and then with the new attributes, and the result is split back
// into profile and meta by the vehicle's whitelist. Edges traversed backwards
// receive reverse(attributes) when reverse is not nil.
//
// Augment is all-or-nothing for edge data: every edge is read and planned
// before the first write, and a failed write restores the edges written so
// far. Attribute pool entries created on the way are kept; pools are append
// only and deduplicated.
func Augment(ctx context.Context, db *graph.RouterDB, covered iter.Seq[lr.DirectedEdgeRef],
	attributes attrs.Set, reverse attrs.Transform, vehicle *profile.Vehicle) (result *Result, err error) {
	if err := db.CheckWritable(); err != nil {
		return nil, err
	}

	if err := db.Acquire(ctx); err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, db.Release())
	}()

	return augmentLocked(ctx, db, covered, attributes, reverse, vehicle)
}

// augmentLocked is Augment for a caller holding db.Acquire
func augmentLocked(ctx context.Context, db *graph.RouterDB, covered iter.Seq[lr.DirectedEdgeRef],
	attributes attrs.Set, reverse attrs.Transform, vehicle *profile.Vehicle) (*Result, error) {
	log := logger.Named("augment")
	result := &Result{Decoded: true}

	var plan []*plannedEdge
	planned := make(map[uint32]*plannedEdge)

	for ref := range covered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := ref.Validate(); err != nil {
			return nil, err
		}
		result.Covered = append(result.Covered, ref)

		edgeID := ref.EdgeID()
		toApply := attributes
		if !ref.Forward() && reverse != nil {
			toApply = reverse(attributes)
		}

		p, ok := planned[edgeID]
		if !ok {
			edge, err := db.Network.Edge(ctx, edgeID)
			if err != nil {
				return nil, fmt.Errorf("failed to read edge %d: %w", edgeID, err)
			}
			p = &plannedEdge{id: edgeID, original: edge.Data, updated: edge.Data}
			planned[edgeID] = p
			plan = append(plan, p)
		}

		data, profilesAdded, metaAdded, err := reconcile(ctx, db, graph.Edge{ID: edgeID, Data: p.updated}, toApply, vehicle)
		if err != nil {
			return nil, err
		}
		p.updated = data
		result.ProfilesAdded += profilesAdded
		result.MetaAdded += metaAdded

		log.Debug("Planned edge update",
			zap.Uint32("edge", edgeID),
			zap.Bool("forward", ref.Forward()),
			zap.Stringer("attributes", toApply),
			zap.Uint32("profile", data.Profile),
			zap.Uint32("meta", data.MetaID),
		)
	}

	if err := apply(ctx, db.Network, plan); err != nil {
		return nil, err
	}

	for _, p := range plan {
		if p.updated != p.original {
			result.Updated = append(result.Updated, p.id)
		}
	}
	result.Augmented = len(result.Covered) > 0
	return result, nil
}

// reconcile merges toApply into the edge's attributes and returns the edge
// data pointing at the resulting pool entries
func reconcile(ctx context.Context, db *graph.RouterDB, edge graph.Edge, toApply attrs.Set,
	vehicle *profile.Vehicle) (graph.EdgeData, int, int, error) {
	profileSet, metaSet, err := db.EdgeAttributes(ctx, edge)
	if err != nil {
		return graph.EdgeData{}, 0, 0, err
	}

	// profile values win over meta, new attributes win over both
	existing := metaSet.Clone()
	existing.Merge(profileSet)
	existing.Merge(toApply)

	newProfile, newMeta := existing.Split(vehicle.IsProfileKey)

	data := edge.Data
	profilesAdded, metaAdded := 0, 0
	if !newProfile.ContainsSame(profileSet) {
		id, err := db.EdgeProfiles.Add(ctx, newProfile)
		if err != nil {
			return graph.EdgeData{}, 0, 0, fmt.Errorf("failed to add profile for edge %d: %w", edge.ID, err)
		}
		data.Profile = id
		profilesAdded++
	}
	if !newMeta.ContainsSame(metaSet) {
		id, err := db.EdgeMeta.Add(ctx, newMeta)
		if err != nil {
			return graph.EdgeData{}, 0, 0, fmt.Errorf("failed to add meta for edge %d: %w", edge.ID, err)
		}
		data.MetaID = id
		metaAdded++
	}
	return data, profilesAdded, metaAdded, nil
}

// apply writes the planned edges in order. On failure the edges already
// written are restored to their original data.
func apply(ctx context.Context, network graph.Network, plan []*plannedEdge) error {
	for i, p := range plan {
		if err := network.UpdateEdgeData(ctx, p.id, p.updated); err != nil {
			err = fmt.Errorf("failed to update edge %d: %w", p.id, err)
			return errors.Join(err, rollback(ctx, network, plan[:i]))
		}
	}
	return nil
}

func rollback(ctx context.Context, network graph.Network, written []*plannedEdge) error {
	var errs []error
	for i := len(written) - 1; i >= 0; i-- {
		p := written[i]
		if err := network.UpdateEdgeData(context.WithoutCancel(ctx), p.id, p.original); err != nil {
			errs = append(errs, fmt.Errorf("failed to restore edge %d: %w", p.id, err))
		}
	}
	if len(errs) > 0 {
		logger.Named("augment").Error("Rollback incomplete, router database may be partially augmented",
			zap.Int("failed", len(errs)))
	}
	return errors.Join(errs...)
}
