// Package hashgrid implements the uniform-cell spatial hash over a 3D
// point set that makes photon density estimation O(1) per lookup. It is
// rebuilt once per VCM pass from that pass's light-vertex positions;
// callers that store per-point payloads elsewhere (see pkg/vcm) must keep
// their payload array in lockstep with the point array passed to Build,
// since Range reports indices into that array.
package hashgrid

import (
	"math"

	"github.com/oxbowlabs/vcmtracer/pkg/core"
)

// HashGrid is a uniform-cell hash over a 3D point set, built once and
// queried many times within one VCM pass.
type HashGrid struct {
	points        []core.Vec3
	radius        float64
	radiusSquared float64
	cellSize      float64
	boundsMin     core.Vec3
	bucketCount   int
	cellStart     []int32 // size bucketCount+1
	indices       []int32 // permutation into points, size len(points)
}

// Build constructs a HashGrid over points with cell size 2*radius: bounds,
// per-point cell hash, a histogram, an exclusive prefix sum into
// cellStart, and a counting sort reordering point indices so each cell's
// members are contiguous. A zero-length points slice yields a grid whose
// Range is a no-op. radius must be non-negative.
func Build(points []core.Vec3, radius float64) *HashGrid {
	if radius < 0 {
		panic("hashgrid: negative radius is not permitted")
	}
	g := &HashGrid{radius: radius, radiusSquared: radius * radius, cellSize: 2 * radius}
	n := len(points)
	if n == 0 {
		return g
	}

	minV, maxV := points[0], points[0]
	for _, p := range points[1:] {
		minV = core.NewVec3(math.Min(minV.X, p.X), math.Min(minV.Y, p.Y), math.Min(minV.Z, p.Z))
		maxV = core.NewVec3(math.Max(maxV.X, p.X), math.Max(maxV.Y, p.Y), math.Max(maxV.Z, p.Z))
	}
	g.boundsMin = minV
	g.points = points

	bucketCount := nextPowerOfTwo(2 * n)
	g.bucketCount = bucketCount

	cellSize := g.cellSize
	if cellSize <= 0 {
		// A zero radius still needs a usable cell size so every point
		// doesn't collapse into the same cell coordinate region; fall
		// back to a size derived from the bounding box diagonal.
		diag := maxV.Subtract(minV).Length()
		if diag <= 0 {
			diag = 1
		}
		cellSize = diag / math.Cbrt(float64(n))
		if cellSize <= 0 {
			cellSize = 1
		}
	}
	g.cellSize = cellSize

	bucketOf := make([]int32, n)
	counts := make([]int32, bucketCount+1)
	for i, p := range points {
		cx, cy, cz := g.cellCoord(p)
		b := int32(hashCell(cx, cy, cz, bucketCount))
		bucketOf[i] = b
		counts[b+1]++
	}
	for i := 1; i <= bucketCount; i++ {
		counts[i] += counts[i-1]
	}
	g.cellStart = counts

	cursor := append([]int32(nil), counts[:bucketCount]...)
	indices := make([]int32, n)
	for i := range points {
		b := bucketOf[i]
		indices[cursor[b]] = int32(i)
		cursor[b]++
	}
	g.indices = indices

	return g
}

func (g *HashGrid) cellCoord(p core.Vec3) (int, int, int) {
	rel := p.Subtract(g.boundsMin)
	return int(math.Floor(rel.X / g.cellSize)),
		int(math.Floor(rel.Y / g.cellSize)),
		int(math.Floor(rel.Z / g.cellSize))
}

// hashCell mixes integer cell coordinates into a bucket index via the
// fixed prime multipliers from Teschner et al.'s optimized spatial
// hashing; collisions are expected and resolved by the radius check in
// Range, not avoided here.
func hashCell(x, y, z, bucketCount int) int {
	const p1, p2, p3 = 73856093, 19349663, 83492791
	h := uint32(x)*p1 ^ uint32(y)*p2 ^ uint32(z)*p3
	return int(h) & (bucketCount - 1)
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Range invokes cb once for every stored point index within radius of p,
// at most once per distinct index, in no guaranteed order. It visits the
// cell containing p plus the 7 neighbouring cells that can overlap a
// sphere of radius r centred at p (the ±direction of p relative to its
// cell's centre along each axis).
func (g *HashGrid) Range(p core.Vec3, cb func(idx int)) {
	if g == nil || len(g.points) == 0 {
		return
	}

	bx, by, bz := g.cellCoord(p)
	cellCenter := core.NewVec3(
		g.boundsMin.X+(float64(bx)+0.5)*g.cellSize,
		g.boundsMin.Y+(float64(by)+0.5)*g.cellSize,
		g.boundsMin.Z+(float64(bz)+0.5)*g.cellSize,
	)
	offX, offY, offZ := 1, 1, 1
	if p.X < cellCenter.X {
		offX = -1
	}
	if p.Y < cellCenter.Y {
		offY = -1
	}
	if p.Z < cellCenter.Z {
		offZ = -1
	}

	var visited [8]int
	nVisited := 0
	for _, dx := range [2]int{0, offX} {
		for _, dy := range [2]int{0, offY} {
			for _, dz := range [2]int{0, offZ} {
				bucket := hashCell(bx+dx, by+dy, bz+dz, g.bucketCount)
				already := false
				for i := 0; i < nVisited; i++ {
					if visited[i] == bucket {
						already = true
						break
					}
				}
				if already {
					continue
				}
				visited[nVisited] = bucket
				nVisited++

				start, end := g.cellStart[bucket], g.cellStart[bucket+1]
				for i := start; i < end; i++ {
					idx := g.indices[i]
					if g.points[idx].Subtract(p).LengthSquared() <= g.radiusSquared {
						cb(int(idx))
					}
				}
			}
		}
	}
}
