package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxbowlabs/vcmtracer/pkg/core"
)

func singleTriangleTables() *SceneTables {
	verts := []VertexAttr{
		{Position: core.NewVec3(-1, -1, 0), Normal: core.NewVec3(0, 0, 1)},
		{Position: core.NewVec3(1, -1, 0), Normal: core.NewVec3(0, 0, 1)},
		{Position: core.NewVec3(0, 1, 0), Normal: core.NewVec3(0, 0, 1)},
	}
	tables := &SceneTables{
		Indices:    []int32{0, 1, 2},
		VertexData: verts,
	}
	tables.BoundingSphere = ComputeBoundingSphere(verts)
	return tables
}

func TestBVHIntersector_HitsTriangle(t *testing.T) {
	tables := singleTriangleTables()
	bvh := NewBVHIntersector(tables)

	ray := core.NewRay(core.NewVec3(0, 0, 5), core.NewVec3(0, 0, -1))
	hit, ok := bvh.Intersect(ray, 1e-4, 1e9)
	require.True(t, ok)
	assert.Equal(t, 0, hit.PrimID)
	assert.InDelta(t, 5.0, hit.T, 1e-9)
}

func TestBVHIntersector_Miss(t *testing.T) {
	tables := singleTriangleTables()
	bvh := NewBVHIntersector(tables)

	ray := core.NewRay(core.NewVec3(10, 10, 5), core.NewVec3(0, 0, -1))
	_, ok := bvh.Intersect(ray, 1e-4, 1e9)
	assert.False(t, ok)
}

func TestBVHIntersector_Occluded(t *testing.T) {
	tables := singleTriangleTables()
	bvh := NewBVHIntersector(tables)

	assert.True(t, bvh.Occluded(core.NewVec3(0, 0, 5), core.NewVec3(0, 0, -1), 1e-4, 1e9))
	assert.False(t, bvh.Occluded(core.NewVec3(10, 10, 5), core.NewVec3(0, 0, -1), 1e-4, 1e9))
}

func TestBVHIntersector_EmptyScene(t *testing.T) {
	bvh := &BVHIntersector{}
	_, ok := bvh.Intersect(core.NewRay(core.NewVec3(0, 0, 0), core.NewVec3(0, 0, -1)), 0, 1e9)
	assert.False(t, ok)
	assert.False(t, bvh.Occluded(core.NewVec3(0, 0, 0), core.NewVec3(0, 0, -1), 0, 1e9))
}
