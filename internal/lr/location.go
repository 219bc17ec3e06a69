package lr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEdgeRef is returned for a directed edge reference of zero
	ErrInvalidEdgeRef = errors.New("invalid directed edge reference")
	// ErrInvalidLine is returned for a line reference that cannot be resolved
	ErrInvalidLine = errors.New("invalid line reference")
)

// DirectedEdgeRef identifies an edge and its traversal direction.
// |ref|-1 is the zero-based edge id; a negative ref means the edge is
// traversed against its stored direction.
type DirectedEdgeRef int64

// NewDirectedEdgeRef encodes an edge id and direction
func NewDirectedEdgeRef(edgeID uint32, forward bool) DirectedEdgeRef {
	ref := DirectedEdgeRef(edgeID) + 1
	if !forward {
		return -ref
	}
	return ref
}

// Validate returns ErrInvalidEdgeRef for the zero value
func (d DirectedEdgeRef) Validate() error {
	if d == 0 {
		return ErrInvalidEdgeRef
	}
	return nil
}

// EdgeID returns the zero-based edge id
func (d DirectedEdgeRef) EdgeID() uint32 {
	if d < 0 {
		return uint32(-d - 1)
	}
	return uint32(d - 1)
}

// Forward returns true if the edge is traversed in its stored direction
func (d DirectedEdgeRef) Forward() bool {
	return d > 0
}

// Reverse returns the same edge in the opposite direction
func (d DirectedEdgeRef) Reverse() DirectedEdgeRef {
	return -d
}

func (d DirectedEdgeRef) String() string {
	if d.Forward() {
		return fmt.Sprintf("%d+", d.EdgeID())
	}
	return fmt.Sprintf("%d-", d.EdgeID())
}

// Location is a decoded location reference. Only *ReferencedLine can be
// used to augment edges.
type Location interface {
	location()
}

// ReferencedLine is a path through the graph: edges in traversal order,
// trimmed at the start and end by a percentage of the total length.
type ReferencedLine struct {
	Edges                    []DirectedEdgeRef
	PositiveOffsetPercentage float64
	NegativeOffsetPercentage float64
}

func (*ReferencedLine) location() {}

// Validate rejects lines a decoder must never produce
func (l *ReferencedLine) Validate() error {
	if len(l.Edges) == 0 {
		return fmt.Errorf("%w: no edges", ErrInvalidLine)
	}
	for i, e := range l.Edges {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%w: edge %d: %v", ErrInvalidLine, i, err)
		}
	}
	if l.PositiveOffsetPercentage < 0 || l.PositiveOffsetPercentage > 100 {
		return fmt.Errorf("%w: positive offset %f out of range [0,100]", ErrInvalidLine, l.PositiveOffsetPercentage)
	}
	if l.NegativeOffsetPercentage < 0 || l.NegativeOffsetPercentage > 100 {
		return fmt.Errorf("%w: negative offset %f out of range [0,100]", ErrInvalidLine, l.NegativeOffsetPercentage)
	}
	return nil
}

// IsClipped returns true if either offset trims the line
func (l *ReferencedLine) IsClipped() bool {
	return l.PositiveOffsetPercentage != 0 || l.NegativeOffsetPercentage != 0
}

// ReferencedPoint is a position along a single directed edge
type ReferencedPoint struct {
	Edge             DirectedEdgeRef
	OffsetPercentage float64
}

func (*ReferencedPoint) location() {}
