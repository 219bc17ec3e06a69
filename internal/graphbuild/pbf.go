package graphbuild

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osmlr-go/internal/graph"
	"github.com/wegman-software/osmlr-go/internal/logger"
	"github.com/wegman-software/osmlr-go/internal/profile"
)

// ImportFile builds a router database from an OSM PBF file
func ImportFile(ctx context.Context, path string, vehicle *profile.Vehicle, workers int) (*graph.RouterDB, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer f.Close()
	return ImportPBF(ctx, f, vehicle, workers)
}

// ImportPBF reads r twice: pass 1 collects routable ways, pass 2 the
// coordinates of the nodes they reference.
func ImportPBF(ctx context.Context, r io.ReadSeeker, vehicle *profile.Vehicle, workers int) (*graph.RouterDB, Stats, error) {
	log := logger.Named("graphbuild")
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	b := NewBuilder(vehicle)

	log.Info("Pass 1: Collecting routable ways")
	start := time.Now()
	err := withProgress(ctx, b, func(ctx context.Context) error {
		return scan(ctx, r, workers, func(s *osmpbf.Scanner) {
			s.SkipNodes = true
			s.SkipRelations = true
		}, func(obj osm.Object) {
			if w, ok := obj.(*osm.Way); ok {
				b.AddWay(w)
			}
		})
	})
	if err != nil {
		return nil, Stats{}, err
	}
	log.Info("Pass 1 complete",
		zap.Int64("ways", b.waysSeen.Load()),
		zap.Int("routable", len(b.ways)),
		zap.Duration("duration", time.Since(start).Round(time.Second)))

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, Stats{}, err
	}

	log.Info("Pass 2: Reading node coordinates")
	start = time.Now()
	err = withProgress(ctx, b, func(ctx context.Context) error {
		return scan(ctx, r, workers, func(s *osmpbf.Scanner) {
			s.SkipWays = true
			s.SkipRelations = true
		}, func(obj osm.Object) {
			if n, ok := obj.(*osm.Node); ok {
				b.AddNode(n)
			}
		})
	})
	if err != nil {
		return nil, Stats{}, err
	}
	log.Info("Pass 2 complete",
		zap.Int64("nodes", b.nodes.Load()),
		zap.Duration("duration", time.Since(start).Round(time.Second)))

	db, err := b.Build(ctx)
	if err != nil {
		return nil, Stats{}, err
	}
	stats := b.Stats()
	if stats.SkippedWays > 0 {
		log.Warn("Ways with missing nodes skipped", zap.Int64("ways", stats.SkippedWays))
	}
	return db, stats, nil
}

// scan runs an osmpbf scanner over r and hands every object to visit
func scan(ctx context.Context, r io.Reader, workers int, configure func(*osmpbf.Scanner), visit func(osm.Object)) error {
	scanner := osmpbf.New(ctx, r, workers)
	defer scanner.Close()
	configure(scanner)

	for scanner.Scan() {
		visit(scanner.Object())
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("failed to read PBF: %w", err)
	}
	return ctx.Err()
}

// withProgress runs fn and logs build progress until it returns
func withProgress(ctx context.Context, b *Builder, fn func(ctx context.Context) error) error {
	log := logger.Named("graphbuild")
	g, ctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)
		return fn(ctx)
	})
	g.Go(func() error {
		progressCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			<-done
			cancel()
		}()
		NewProgressTicker(progressCtx, 2*time.Second, func() {
			log.Debug("Import progress",
				zap.Int64("ways", b.waysSeen.Load()),
				zap.Int64("nodes", b.nodes.Load()))
		}).Run()
		return nil
	})
	return g.Wait()
}
