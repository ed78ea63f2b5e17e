package surface

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxbowlabs/vcmtracer/pkg/core"
	"github.com/oxbowlabs/vcmtracer/pkg/scene"
)

func flatTriangleTables(uvDegenerate bool) *scene.SceneTables {
	uvA, uvB, uvC := core.NewVec2(0, 0), core.NewVec2(1, 0), core.NewVec2(0, 1)
	if uvDegenerate {
		uvA, uvB, uvC = core.NewVec2(0.3, 0.3), core.NewVec2(0.3, 0.3), core.NewVec2(0.3, 0.3)
	}
	verts := []scene.VertexAttr{
		{Position: core.NewVec3(-1, -1, 0), Normal: core.NewVec3(0, 0, 1), Tangent: core.NewVec3(1, 0, 0), Bitangent: 1, UV: uvA},
		{Position: core.NewVec3(1, -1, 0), Normal: core.NewVec3(0, 0, 1), Tangent: core.NewVec3(1, 0, 0), Bitangent: 1, UV: uvB},
		{Position: core.NewVec3(0, 1, 0), Normal: core.NewVec3(0, 0, 1), Tangent: core.NewVec3(1, 0, 0), Bitangent: 1, UV: uvC},
	}
	mat := scene.Material{
		Kind: scene.MaterialLambertian, Albedo: core.NewVec3(1, 1, 1), Roughness: 1, Metalness: 0, IOR: 1.5,
		AlbedoTex: -1, SpecularTex: -1, RoughnessTex: -1, MetalnessTex: -1, EmissiveTex: -1, NormalTex: -1,
	}
	return &scene.SceneTables{
		Indices:    []int32{0, 1, 2},
		VertexData: verts,
		Materials:  []scene.Material{mat},
	}
}

func centerHit() scene.Hit {
	return scene.Hit{PrimID: 0, U: 0.25, V: 0.25, ViewDir: core.NewVec3(0, 0, 1)}
}

func TestCalculateSurfaceParams_BackfaceReject(t *testing.T) {
	tables := flatTriangleTables(false)
	hit := centerHit()
	hit.ViewDir = core.NewVec3(0, 0, -1) // opposite the geometric normal

	_, ok := CalculateSurfaceParams(tables, scene.DefaultTextureFilter{}, hit, Options{})
	assert.False(t, ok)
}

func TestCalculateSurfaceParams_TransparentMaterialSkipsBackfaceReject(t *testing.T) {
	tables := flatTriangleTables(false)
	tables.Materials[0].Transparent = true
	hit := centerHit()
	hit.ViewDir = core.NewVec3(0, 0, -1)

	_, ok := CalculateSurfaceParams(tables, scene.DefaultTextureFilter{}, hit, Options{})
	assert.True(t, ok)
}

func TestCalculateSurfaceParams_DegenerateUVSynthesisesOrthonormalFrame(t *testing.T) {
	tables := flatTriangleTables(true)
	hit := centerHit()

	s, ok := CalculateSurfaceParams(tables, scene.DefaultTextureFilter{}, hit, Options{PreserveRayDifferentials: true})
	require.True(t, ok)

	assert.InDelta(t, 1.0, s.DpDu.Length(), 1e-6)
	assert.InDelta(t, 1.0, s.DpDv.Length(), 1e-6)
	assert.InDelta(t, 0.0, s.DpDu.Dot(s.DpDv), 1e-6)
	assert.True(t, s.DnDu.IsZero())
	assert.True(t, s.DnDv.IsZero())
}

func TestCalculateSurfaceParams_WorldToTangentRoundTrip(t *testing.T) {
	tables := flatTriangleTables(false)
	hit := centerHit()

	s, ok := CalculateSurfaceParams(tables, scene.DefaultTextureFilter{}, hit, Options{})
	require.True(t, ok)

	for _, w := range []core.Vec3{core.NewVec3(0, 0, 1), core.NewVec3(1, 0, 0), core.NewVec3(0.3, 0.4, 0.866)} {
		roundTripped := s.TangentToWorld(s.WorldToTangent(w))
		assert.InDelta(t, w.X, roundTripped.X, 1e-5)
		assert.InDelta(t, w.Y, roundTripped.Y, 1e-5)
		assert.InDelta(t, w.Z, roundTripped.Z, 1e-5)
	}
}

func TestCalculateSurfaceParams_NonDegenerateDerivativesAreFinite(t *testing.T) {
	tables := flatTriangleTables(false)
	hit := centerHit()

	s, ok := CalculateSurfaceParams(tables, scene.DefaultTextureFilter{}, hit, Options{PreserveRayDifferentials: true})
	require.True(t, ok)
	assert.Greater(t, s.DpDu.Length(), 0.0)
	assert.Greater(t, s.DpDv.Length(), 0.0)
}

func TestCalculateSurfaceParams_MaterialDefaults(t *testing.T) {
	tables := flatTriangleTables(false)
	hit := centerHit()

	s, ok := CalculateSurfaceParams(tables, scene.DefaultTextureFilter{}, hit, Options{})
	require.True(t, ok)
	assert.Equal(t, core.NewVec3(1, 1, 1), s.Material.Albedo)
	assert.Equal(t, s.Material.Albedo, s.Material.Specular) // default specular = albedo
	assert.True(t, s.Material.Emissive.IsZero())             // default emissive = 0
}
