package core

import "math/rand"

// RNG is the per-worker random source threaded through every sampling
// decision in the kernel. It is never shared across goroutines: each
// parallel-driver worker owns exactly one, seeded from its kernel index
// (see render.Driver), which is why renders are not reproducible across
// differing thread counts (by design, per the concurrency model).
type RNG struct {
	r *rand.Rand
}

// NewRNG seeds a new RNG from a monotonic kernel index.
func NewRNG(kernelIndex uint64) *RNG {
	return &RNG{r: rand.New(rand.NewSource(int64(kernelIndex)))}
}

// Float64 returns a sample in [0, 1).
func (rng *RNG) Float64() float64 {
	return rng.r.Float64()
}

// Vec2 returns two independent canonical samples packed into a Vec2.
func (rng *RNG) Vec2() Vec2 {
	return Vec2{X: rng.r.Float64(), Y: rng.r.Float64()}
}
