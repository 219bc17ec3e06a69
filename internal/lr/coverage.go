package lr

import (
	"context"
	"fmt"
	"iter"
	"math"
)

// DefaultTolerancePercentage is the band around the offsets inside which an
// edge boundary counts as lying exactly on the offset.
const DefaultTolerancePercentage = 1.0

// LengthFunc returns the length of an edge
type LengthFunc func(ctx context.Context, edgeID uint32) (float64, error)

// Coverage holds the edges of a line that lie within its offsets
type Coverage struct {
	line    *ReferencedLine
	covered []bool // nil means every edge is covered
}

// Resolve determines which edges of line are covered once the offsets are
// applied. An edge is covered when it starts at or after the positive offset
// and ends at or before the negative offset; boundaries closer than
// tolerancePercentage to an offset snap onto it.
//
// Unclipped lines cover every edge and never call lengths. A line with zero
// total length cannot be trimmed and is also fully covered.
func Resolve(ctx context.Context, line *ReferencedLine, lengths LengthFunc, tolerancePercentage float64) (*Coverage, error) {
	if !line.IsClipped() {
		return &Coverage{line: line}, nil
	}

	edgeLengths := make([]float64, len(line.Edges))
	totalLength := 0.0
	for i, e := range line.Edges {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("edge %d: %w", i, err)
		}
		l, err := lengths(ctx, e.EdgeID())
		if err != nil {
			return nil, fmt.Errorf("failed to get length of edge %d: %w", e.EdgeID(), err)
		}
		edgeLengths[i] = l
		totalLength += l
	}

	if totalLength <= 0 {
		return &Coverage{line: line}, nil
	}

	covered := make([]bool, len(line.Edges))
	offset := 0.0
	for i := range line.Edges {
		endOffset := offset + edgeLengths[i]

		startPercentage := offset / totalLength * 100
		endPercentage := endOffset / totalLength * 100

		startDiff := startPercentage - line.PositiveOffsetPercentage
		if math.Abs(startDiff) < tolerancePercentage {
			startDiff = 0
		}
		endDiff := (100 - endPercentage) - line.NegativeOffsetPercentage
		if math.Abs(endDiff) < tolerancePercentage {
			endDiff = 0
		}

		covered[i] = startDiff >= 0 && endDiff >= 0
		offset = endOffset
	}

	return &Coverage{line: line, covered: covered}, nil
}

// All yields the covered edges in line order. It can be ranged over any
// number of times.
func (c *Coverage) All() iter.Seq[DirectedEdgeRef] {
	return func(yield func(DirectedEdgeRef) bool) {
		for i, e := range c.line.Edges {
			if c.covered != nil && !c.covered[i] {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// Edges returns the covered edges as a slice
func (c *Coverage) Edges() []DirectedEdgeRef {
	edges := make([]DirectedEdgeRef, 0, len(c.line.Edges))
	for e := range c.All() {
		edges = append(edges, e)
	}
	return edges
}

// Len returns the number of covered edges
func (c *Coverage) Len() int {
	if c.covered == nil {
		return len(c.line.Edges)
	}
	n := 0
	for _, ok := range c.covered {
		if ok {
			n++
		}
	}
	return n
}
