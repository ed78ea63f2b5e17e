package scene

import (
	"math"
	"sort"

	"github.com/oxbowlabs/vcmtracer/pkg/core"
)

// aabb is an axis-aligned bounding box; kept local to this file since no
// other package needs to name it directly.
type aabb struct {
	Min, Max core.Vec3
}

func (b aabb) union(other aabb) aabb {
	return aabb{
		Min: core.NewVec3(min(b.Min.X, other.Min.X), min(b.Min.Y, other.Min.Y), min(b.Min.Z, other.Min.Z)),
		Max: core.NewVec3(max(b.Max.X, other.Max.X), max(b.Max.Y, other.Max.Y), max(b.Max.Z, other.Max.Z)),
	}
}

func (b aabb) centroid() core.Vec3 {
	return b.Min.Add(b.Max).Multiply(0.5)
}

func (b aabb) longestAxis() int {
	d := b.Max.Subtract(b.Min)
	if d.X > d.Y && d.X > d.Z {
		return 0
	}
	if d.Y > d.Z {
		return 1
	}
	return 2
}

func (b aabb) hit(ray core.Ray, tMin, tMax float64) bool {
	origin := [3]float64{ray.Origin.X, ray.Origin.Y, ray.Origin.Z}
	dir := [3]float64{ray.Direction.X, ray.Direction.Y, ray.Direction.Z}
	bmin := [3]float64{b.Min.X, b.Min.Y, b.Min.Z}
	bmax := [3]float64{b.Max.X, b.Max.Y, b.Max.Z}

	for axis := 0; axis < 3; axis++ {
		invD := 1.0 / dir[axis]
		t0 := (bmin[axis] - origin[axis]) * invD
		t1 := (bmax[axis] - origin[axis]) * invD
		if invD < 0 {
			t0, t1 = t1, t0
		}
		tMin = math.Max(tMin, t0)
		tMax = math.Min(tMax, t1)
		if tMax < tMin {
			return false
		}
	}
	return true
}

func triangleBounds(a, b, c core.Vec3) aabb {
	return aabb{
		Min: core.NewVec3(math.Min(a.X, math.Min(b.X, c.X)), math.Min(a.Y, math.Min(b.Y, c.Y)), math.Min(a.Z, math.Min(b.Z, c.Z))),
		Max: core.NewVec3(math.Max(a.X, math.Max(b.X, c.X)), math.Max(a.Y, math.Max(b.Y, c.Y)), math.Max(a.Z, math.Max(b.Z, c.Z))),
	}
}

const bvhLeafThreshold = 8

type bvhNode struct {
	box         aabb
	left, right *bvhNode
	primitives  []int // leaf only
}

// BVHIntersector is the default Intersector: a recursive median-split
// bounding volume hierarchy over the scene's triangles.
type BVHIntersector struct {
	tables *SceneTables
	root   *bvhNode
	bounds []aabb
}

// NewBVHIntersector builds a BVH over every triangle in tables.
func NewBVHIntersector(tables *SceneTables) *BVHIntersector {
	bi := &BVHIntersector{tables: tables}
	primIDs := make([]int, tables.TriangleCount())
	bi.bounds = make([]aabb, tables.TriangleCount())
	for i := range primIDs {
		primIDs[i] = i
		a, b, c := tables.Triangle(i)
		bi.bounds[i] = triangleBounds(a.Position, b.Position, c.Position)
	}
	if len(primIDs) > 0 {
		bi.root = bi.build(primIDs)
	}
	return bi
}

func (bi *BVHIntersector) build(primIDs []int) *bvhNode {
	box := bi.bounds[primIDs[0]]
	for _, id := range primIDs[1:] {
		box = box.union(bi.bounds[id])
	}
	if len(primIDs) <= bvhLeafThreshold {
		return &bvhNode{box: box, primitives: primIDs}
	}

	axis := box.longestAxis()
	sorted := append([]int(nil), primIDs...)
	sort.Slice(sorted, func(i, j int) bool {
		ci, cj := bi.bounds[sorted[i]].centroid(), bi.bounds[sorted[j]].centroid()
		switch axis {
		case 0:
			return ci.X < cj.X
		case 1:
			return ci.Y < cj.Y
		default:
			return ci.Z < cj.Z
		}
	})

	mid := len(sorted) / 2
	return &bvhNode{
		box:   box,
		left:  bi.build(sorted[:mid]),
		right: bi.build(sorted[mid:]),
	}
}

// Intersect implements Intersector.
func (bi *BVHIntersector) Intersect(ray core.Ray, tMin, tMax float64) (Hit, bool) {
	if bi.root == nil {
		return Hit{}, false
	}
	best := Hit{}
	bestT := tMax
	found := false
	bi.intersectNode(bi.root, ray, tMin, &bestT, &best, &found)
	return best, found
}

func (bi *BVHIntersector) intersectNode(n *bvhNode, ray core.Ray, tMin float64, bestT *float64, best *Hit, found *bool) {
	if !n.box.hit(ray, tMin, *bestT) {
		return
	}
	if n.primitives != nil {
		for _, primID := range n.primitives {
			if hit, ok := intersectTriangle(bi.tables, primID, ray, tMin, *bestT); ok {
				*bestT = hit.T
				*best = hit
				*found = true
			}
		}
		return
	}
	bi.intersectNode(n.left, ray, tMin, bestT, best, found)
	bi.intersectNode(n.right, ray, tMin, bestT, best, found)
}

// Occluded implements Intersector with an any-hit query.
func (bi *BVHIntersector) Occluded(origin, direction core.Vec3, tMin, tMax float64) bool {
	if bi.root == nil {
		return false
	}
	ray := core.NewRay(origin, direction)
	return bi.occludedNode(bi.root, ray, tMin, tMax)
}

func (bi *BVHIntersector) occludedNode(n *bvhNode, ray core.Ray, tMin, tMax float64) bool {
	if !n.box.hit(ray, tMin, tMax) {
		return false
	}
	if n.primitives != nil {
		for _, primID := range n.primitives {
			if _, ok := intersectTriangle(bi.tables, primID, ray, tMin, tMax); ok {
				return true
			}
		}
		return false
	}
	return bi.occludedNode(n.left, ray, tMin, tMax) || bi.occludedNode(n.right, ray, tMin, tMax)
}

// intersectTriangle is a Moller-Trumbore ray/triangle test returning a Hit
// with barycentric (u, v) matching surface reconstruction's weights
// (a1 = u, a2 = v).
func intersectTriangle(tables *SceneTables, primID int, ray core.Ray, tMin, tMax float64) (Hit, bool) {
	a, b, c := tables.Triangle(primID)
	edge1 := b.Position.Subtract(a.Position)
	edge2 := c.Position.Subtract(a.Position)
	pvec := ray.Direction.Cross(edge2)
	det := edge1.Dot(pvec)
	if math.Abs(det) < 1e-12 {
		return Hit{}, false
	}
	invDet := 1.0 / det
	tvec := ray.Origin.Subtract(a.Position)
	u := tvec.Dot(pvec) * invDet
	if u < 0 || u > 1 {
		return Hit{}, false
	}
	qvec := tvec.Cross(edge1)
	v := ray.Direction.Dot(qvec) * invDet
	if v < 0 || u+v > 1 {
		return Hit{}, false
	}
	t := edge2.Dot(qvec) * invDet
	if t < tMin || t > tMax {
		return Hit{}, false
	}
	return Hit{
		PrimID:     primID,
		T:          t,
		U:          u,
		V:          v,
		ViewDir:    ray.Direction.Multiply(-1).Normalize(),
		ErrorBound: t * 1e-6,
	}, true
}
