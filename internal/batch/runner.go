// Package batch applies many line references to a router database in one run
package batch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osmlr-go/internal/attrs"
	"github.com/wegman-software/osmlr-go/internal/augment"
	"github.com/wegman-software/osmlr-go/internal/logger"
	"github.com/wegman-software/osmlr-go/internal/metrics"
)

// Stats holds batch statistics
type Stats struct {
	Requests      int64
	Decoded       int64
	Augmented     int64
	Failed        int64
	EdgesCovered  int64
	EdgesUpdated  int64
	ProfilesAdded int64
	MetaAdded     int64
	Duration      time.Duration
}

// Config holds runner settings
type Config struct {
	FailFast        bool          // Stop at the first failed request
	MetricsInterval time.Duration // Zero disables metrics logging
}

// Runner applies requests through a coder one at a time
type Runner struct {
	coder   *augment.Coder
	reverse attrs.Transform
	cfg     Config

	requests      atomic.Int64
	decoded       atomic.Int64
	augmented     atomic.Int64
	failed        atomic.Int64
	edgesCovered  atomic.Int64
	edgesUpdated  atomic.Int64
	profilesAdded atomic.Int64
	metaAdded     atomic.Int64
}

// NewRunner creates a runner. reverse is applied to backward edges unless a
// request disables it.
func NewRunner(coder *augment.Coder, reverse attrs.Transform, cfg Config) *Runner {
	return &Runner{
		coder:   coder,
		reverse: reverse,
		cfg:     cfg,
	}
}

// Run processes requests in order. Failed requests are logged and counted;
// with FailFast the first failure stops the run and is returned.
func (r *Runner) Run(ctx context.Context, requests []Request) (*Stats, error) {
	log := logger.Named("batch")
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	runCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()

	if r.cfg.MetricsInterval > 0 {
		collector := metrics.NewCollector(r.cfg.MetricsInterval, logger.Named("batch"), r.counters()...)
		g.Go(func() error {
			collector.Start(runCtx)
			return nil
		})
		log.Info("Progress logging started",
			zap.Duration("interval", r.cfg.MetricsInterval))
	}

	g.Go(func() error {
		defer stopMetrics()
		for i, req := range requests {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := r.apply(ctx, i, req); err != nil {
				r.failed.Add(1)
				log.Warn("Request failed", zap.String("request", req.name(i)), zap.Error(err))
				if r.cfg.FailFast {
					return fmt.Errorf("request %s: %w", req.name(i), err)
				}
			}
		}
		return nil
	})

	err := g.Wait()
	stats := r.Stats()
	stats.Duration = time.Since(start)

	log.Info("Batch complete",
		zap.Int64("requests", stats.Requests),
		zap.Int64("augmented", stats.Augmented),
		zap.Int64("failed", stats.Failed),
		zap.Int64("edges_updated", stats.EdgesUpdated),
		zap.Duration("duration", stats.Duration),
	)
	return stats, err
}

func (r *Runner) apply(ctx context.Context, i int, req Request) error {
	r.requests.Add(1)

	reverse := r.reverse
	if req.Reverse != nil && !*req.Reverse {
		reverse = nil
	}

	res, err := r.coder.DecodeLine(ctx, req.Line, req.Attributes, reverse)
	if err != nil {
		return err
	}
	if !res.Decoded {
		logger.Named("batch").Debug("Request is not a line", zap.String("request", req.name(i)))
		return nil
	}

	r.decoded.Add(1)
	if res.Augmented {
		r.augmented.Add(1)
	}
	r.edgesCovered.Add(int64(len(res.Covered)))
	r.edgesUpdated.Add(int64(len(res.Updated)))
	r.profilesAdded.Add(int64(res.ProfilesAdded))
	r.metaAdded.Add(int64(res.MetaAdded))
	return nil
}

// Stats returns a snapshot of the counters
func (r *Runner) Stats() *Stats {
	return &Stats{
		Requests:      r.requests.Load(),
		Decoded:       r.decoded.Load(),
		Augmented:     r.augmented.Load(),
		Failed:        r.failed.Load(),
		EdgesCovered:  r.edgesCovered.Load(),
		EdgesUpdated:  r.edgesUpdated.Load(),
		ProfilesAdded: r.profilesAdded.Load(),
		MetaAdded:     r.metaAdded.Load(),
	}
}

// counters exposes the run counters to the progress collector
func (r *Runner) counters() []metrics.Counter {
	return []metrics.Counter{
		{Name: "requests", Value: r.requests.Load},
		{Name: "augmented", Value: r.augmented.Load},
		{Name: "failed", Value: r.failed.Load},
		{Name: "edges_updated", Value: r.edgesUpdated.Load},
		{Name: "profiles_added", Value: r.profilesAdded.Load},
		{Name: "meta_added", Value: r.metaAdded.Load},
	}
}
