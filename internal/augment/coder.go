package augment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/osmlr-go/internal/attrs"
	"github.com/wegman-software/osmlr-go/internal/graph"
	"github.com/wegman-software/osmlr-go/internal/logger"
	"github.com/wegman-software/osmlr-go/internal/lr"
	"github.com/wegman-software/osmlr-go/internal/profile"
)

// Coder decodes location references against a router database and augments
// the edges they cover
type Coder struct {
	db        *graph.RouterDB
	decoder   lr.Decoder
	vehicle   *profile.Vehicle
	tolerance float64
	log       *zap.Logger
}

// Option configures a Coder
type Option func(*Coder)

// WithTolerance sets the coverage tolerance in percent of the line length
func WithTolerance(tolerancePercentage float64) Option {
	return func(c *Coder) {
		c.tolerance = tolerancePercentage
	}
}

// WithLogger replaces the component logger
func WithLogger(log *zap.Logger) Option {
	return func(c *Coder) {
		c.log = log
	}
}

// NewCoder creates a coder for db. The vehicle decides which attributes are
// stored as routing profile and which as meta data.
func NewCoder(db *graph.RouterDB, decoder lr.Decoder, vehicle *profile.Vehicle, opts ...Option) *Coder {
	c := &Coder{
		db:        db,
		decoder:   decoder,
		vehicle:   vehicle,
		tolerance: lr.DefaultTolerancePercentage,
		log:       logger.Named("coder"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RouterDB returns the augmented database
func (c *Coder) RouterDB() *graph.RouterDB {
	return c.db
}

// Vehicle returns the vehicle profile used to split attributes
func (c *Coder) Vehicle() *profile.Vehicle {
	return c.vehicle
}

// DecodeLine decodes encodedLine and augments all covered edges with
// attributes. Edges traversed backwards get reverse(attributes) when reverse
// is set. A reference that decodes to something other than a line is not an
// error: the result has Decoded == false and nothing is changed.
//
// Coverage is resolved and applied under one database lock, so the edge
// lengths used for trimming are the ones the update is based on.
func (c *Coder) DecodeLine(ctx context.Context, encodedLine string, attributes attrs.Set,
	reverse attrs.Transform) (result *Result, err error) {
	if err := c.db.CheckWritable(); err != nil {
		return nil, err
	}

	start := time.Now()

	loc, err := c.decoder.Decode(encodedLine)
	if err != nil {
		return nil, fmt.Errorf("failed to decode location reference: %w", err)
	}
	line, ok := loc.(*lr.ReferencedLine)
	if !ok {
		c.log.Debug("Location is not a line, nothing to augment", zap.String("type", fmt.Sprintf("%T", loc)))
		return &Result{}, nil
	}

	if err := c.db.Acquire(ctx); err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, c.db.Release())
	}()

	coverage, err := lr.Resolve(ctx, line, c.db.EdgeLength, c.tolerance)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve covered edges: %w", err)
	}

	result, err = augmentLocked(ctx, c.db, coverage.All(), attributes, reverse, c.vehicle)
	if err != nil {
		return nil, err
	}

	c.log.Debug("Line augmented",
		zap.Int("edges", len(line.Edges)),
		zap.Int("covered", coverage.Len()),
		zap.Int("updated", len(result.Updated)),
		zap.Int("profiles_added", result.ProfilesAdded),
		zap.Int("meta_added", result.MetaAdded),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}
