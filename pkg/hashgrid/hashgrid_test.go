package hashgrid

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxbowlabs/vcmtracer/pkg/core"
)

func randomPoints(n int, seed int64, extent float64) []core.Vec3 {
	r := rand.New(rand.NewSource(seed))
	points := make([]core.Vec3, n)
	for i := range points {
		points[i] = core.NewVec3(
			(r.Float64()*2-1)*extent,
			(r.Float64()*2-1)*extent,
			(r.Float64()*2-1)*extent,
		)
	}
	return points
}

func collect(g *HashGrid, p core.Vec3) []int {
	var got []int
	g.Range(p, func(idx int) { got = append(got, idx) })
	return got
}

func TestRange_NeverReturnsPointOutsideRadius(t *testing.T) {
	const radius = 0.2
	points := randomPoints(500, 1, 1.0)
	g := Build(points, radius)

	queries := randomPoints(50, 2, 1.0)
	for _, q := range queries {
		for _, idx := range collect(g, q) {
			dist := points[idx].Subtract(q).Length()
			assert.LessOrEqual(t, dist, radius+1e-12, "index %d outside radius", idx)
		}
	}
}

func TestRange_ReturnsEveryPointInsideRadius(t *testing.T) {
	const radius = 0.25
	points := randomPoints(400, 3, 1.0)
	g := Build(points, radius)

	queries := randomPoints(50, 4, 1.0)
	for _, q := range queries {
		got := map[int]bool{}
		for _, idx := range collect(g, q) {
			got[idx] = true
		}
		for i, p := range points {
			if p.Subtract(q).LengthSquared() <= radius*radius {
				assert.True(t, got[i], "point %d inside radius but not returned", i)
			}
		}
	}
}

func TestRange_AtMostOncePerIndex(t *testing.T) {
	points := randomPoints(300, 5, 0.5)
	g := Build(points, 0.3)

	for _, q := range randomPoints(20, 6, 0.5) {
		seen := map[int]int{}
		g.Range(q, func(idx int) { seen[idx]++ })
		for idx, count := range seen {
			assert.Equal(t, 1, count, "index %d delivered %d times", idx, count)
		}
	}
}

func TestBuild_IsDeterministic(t *testing.T) {
	points := randomPoints(200, 7, 1.0)
	g1 := Build(points, 0.15)
	g2 := Build(points, 0.15)

	require.Equal(t, g1.cellStart, g2.cellStart)
	require.Equal(t, g1.indices, g2.indices)

	for _, q := range randomPoints(20, 8, 1.0) {
		assert.Equal(t, collect(g1, q), collect(g2, q))
	}
}

func TestRange_EmptyGridIsNoOp(t *testing.T) {
	g := Build(nil, 0.5)
	calls := 0
	g.Range(core.NewVec3(0, 0, 0), func(int) { calls++ })
	assert.Zero(t, calls)
}

func TestBuild_NegativeRadiusPanics(t *testing.T) {
	assert.Panics(t, func() { Build(randomPoints(4, 9, 1), -0.1) })
}

func TestBuild_SinglePointFoundAtItsOwnPosition(t *testing.T) {
	p := core.NewVec3(0.3, -0.7, 2.1)
	g := Build([]core.Vec3{p}, 0.01)

	got := collect(g, p)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0])
}

func TestBuild_BucketCountIsPowerOfTwo(t *testing.T) {
	for _, n := range []int{1, 3, 17, 100, 1000} {
		g := Build(randomPoints(n, int64(n), 1.0), 0.1)
		assert.Zero(t, g.bucketCount&(g.bucketCount-1), "bucket count %d not a power of two", g.bucketCount)
		assert.GreaterOrEqual(t, g.bucketCount, 2*n)
	}
}
