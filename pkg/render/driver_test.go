package render

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxbowlabs/vcmtracer/pkg/core"
)

// constantKernel adds a fixed value to every pixel each pass.
type constantKernel struct {
	value core.Vec3
}

func (k *constantKernel) Pass(rng *core.RNG, img []core.Vec3, passIndex uint64) error {
	for i := range img {
		img[i] = img[i].Add(k.value)
	}
	return nil
}

// failingKernel reports a fatal error on its first pass.
type failingKernel struct{}

func (failingKernel) Pass(rng *core.RNG, img []core.Vec3, passIndex uint64) error {
	return errors.New("vertex array allocation failed")
}

func TestRender_NormalisesByEvaluatedPassCount(t *testing.T) {
	d := &Driver{
		Width:              4,
		Height:             4,
		Workers:            2,
		IntegrationSeconds: 60,
		MaxPasses:          6,
		NewKernel:          func() Kernel { return &constantKernel{value: core.NewVec3(1, 2, 3)} },
	}

	img, stats, err := d.Render(context.Background())
	require.NoError(t, err)

	// Each completed pass adds (1,2,3) to every pixel of some worker's
	// private image; after merge and division by the evaluated pass count
	// the result is exactly the per-pass value again.
	assert.Equal(t, uint64(6), stats.PathsPerPixel)
	for i, p := range img.Pixels {
		assert.InDelta(t, 1.0, p.X, 1e-12, "pixel %d", i)
		assert.InDelta(t, 2.0, p.Y, 1e-12, "pixel %d", i)
		assert.InDelta(t, 3.0, p.Z, 1e-12, "pixel %d", i)
	}
}

func TestRender_AllWorkersComplete(t *testing.T) {
	d := &Driver{
		Width:              2,
		Height:             2,
		Workers:            4,
		IntegrationSeconds: 60,
		MaxPasses:          8,
		NewKernel:          func() Kernel { return &constantKernel{value: core.NewVec3(1, 1, 1)} },
	}

	_, stats, err := d.Render(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Workers)
	assert.Equal(t, uint64(4), d.Counters().CompletedThreads())
	assert.Equal(t, uint64(8), d.Counters().PathsEvaluatedPerPixel())
}

func TestRender_ExpiredDeadlineRunsNoPasses(t *testing.T) {
	d := &Driver{
		Width:              2,
		Height:             2,
		Workers:            2,
		IntegrationSeconds: -1, // already expired
		NewKernel:          func() Kernel { return &constantKernel{value: core.NewVec3(1, 1, 1)} },
	}

	img, stats, err := d.Render(context.Background())
	require.NoError(t, err)

	assert.Zero(t, stats.PathsPerPixel)
	for _, p := range img.Pixels {
		assert.True(t, p.IsZero())
	}
}

func TestRender_FatalKernelErrorAbortsRender(t *testing.T) {
	d := &Driver{
		Width:              2,
		Height:             2,
		Workers:            2,
		IntegrationSeconds: 60,
		NewKernel:          func() Kernel { return failingKernel{} },
	}

	_, _, err := d.Render(context.Background())
	assert.Error(t, err)
}

func TestRender_CancelledContextStopsBetweenPasses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &Driver{
		Width:              2,
		Height:             2,
		Workers:            2,
		IntegrationSeconds: 60,
		NewKernel:          func() Kernel { return &constantKernel{value: core.NewVec3(1, 1, 1)} },
	}

	_, stats, err := d.Render(ctx)
	require.NoError(t, err, "cancellation is a clean stop, not a failure")
	assert.Zero(t, stats.PathsPerPixel)
}

func TestSpinLock_MutualExclusion(t *testing.T) {
	var lock SpinLock
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				lock.Lock()
				counter++
				lock.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8000, counter)
}
