package render

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/oxbowlabs/vcmtracer/pkg/core"
)

// Kernel is one integrator variant's per-pass entry point. A Kernel value
// is owned by exactly one worker; img is that worker's private buffer and
// passIndex the global monotonic pass id (which the VCM kernel feeds into
// its radius schedule). A returned error is fatal and aborts the render.
type Kernel interface {
	Pass(rng *core.RNG, img []core.Vec3, passIndex uint64) error
}

// Counters are the driver's shared progress counters.
type Counters struct {
	kernelIndices          atomic.Uint64 // workers seen; seeds each worker's PRNG
	completedThreads       atomic.Uint64
	passCount              atomic.Uint64 // global monotonic pass id
	pathsEvaluatedPerPixel atomic.Uint64 // final normalisation divisor
}

// PassCount returns the number of passes claimed so far.
func (c *Counters) PassCount() uint64 { return c.passCount.Load() }

// PathsEvaluatedPerPixel returns the accumulated per-pixel sample count.
func (c *Counters) PathsEvaluatedPerPixel() uint64 { return c.pathsEvaluatedPerPixel.Load() }

// CompletedThreads returns the number of workers that have finished.
func (c *Counters) CompletedThreads() uint64 { return c.completedThreads.Load() }

// Stats summarises a finished render.
type Stats struct {
	Workers       int
	Passes        uint64
	PathsPerPixel uint64
	Elapsed       time.Duration
}

// Driver runs T workers over a Kernel factory until the soft wall-clock
// deadline (and optional pass budget) is exhausted, then merges and
// normalises their private images.
type Driver struct {
	Width, Height      int
	Workers            int
	IntegrationSeconds float64
	// MaxPasses caps the total pass count across all workers; zero means
	// deadline-only. The unidirectional variant sets this to RaysPerPixel
	// so the final divisor matches the configured sample count.
	MaxPasses uint64

	// NewKernel builds one worker's private kernel. It is called once per
	// worker so per-worker storage (vertex arrays, grid) is never shared.
	NewKernel func() Kernel

	Log *zap.SugaredLogger

	counters Counters
}

// Counters exposes the driver's progress counters, readable concurrently
// with a render in flight.
func (d *Driver) Counters() *Counters { return &d.counters }

// Render runs the full render and returns the normalised image. The
// context carries process-level cancellation; it is checked only between
// passes — a pass in flight always runs to completion.
func (d *Driver) Render(ctx context.Context) (*Image, Stats, error) {
	log := d.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	workers := d.Workers
	if workers < 1 {
		workers = 1
	}

	shared := NewImage(d.Width, d.Height)
	var imageLock SpinLock
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for t := 0; t < workers; t++ {
		g.Go(func() error {
			kernelIndex := d.counters.kernelIndices.Add(1)
			rng := core.NewRNG(kernelIndex)
			kernel := d.NewKernel()
			private := NewImage(d.Width, d.Height)

			var passesDone uint64
			for {
				if ctx.Err() != nil || time.Since(start).Seconds() > d.IntegrationSeconds {
					break
				}
				passIndex := d.counters.passCount.Add(1)
				if d.MaxPasses > 0 && passIndex > d.MaxPasses {
					break
				}
				if err := kernel.Pass(rng, private.Pixels, passIndex); err != nil {
					return err
				}
				passesDone++
				log.Debugw("pass complete",
					"worker", kernelIndex,
					"pass", passIndex,
					"elapsed", time.Since(start))
			}

			imageLock.Lock()
			shared.AddImage(private)
			imageLock.Unlock()

			d.counters.pathsEvaluatedPerPixel.Add(passesDone)
			d.counters.completedThreads.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	divisor := d.counters.pathsEvaluatedPerPixel.Load()
	if divisor > 0 {
		shared.Scale(1 / float64(divisor))
	}

	passes := d.counters.passCount.Load()
	if d.MaxPasses > 0 && passes > d.MaxPasses {
		// Workers claim a pass id before checking the budget; ids claimed
		// past the cap were never run.
		passes = d.MaxPasses
	}
	stats := Stats{
		Workers:       workers,
		Passes:        passes,
		PathsPerPixel: divisor,
		Elapsed:       time.Since(start),
	}
	log.Infow("render complete",
		"workers", stats.Workers,
		"pathsPerPixel", stats.PathsPerPixel,
		"elapsed", stats.Elapsed)
	return shared, stats, nil
}
