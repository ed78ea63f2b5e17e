// Package scene holds the read-only asset tables and the narrow external
// collaborator interfaces the rendering core talks to: ray intersection,
// the camera, the image-based light, and texture filtering. None of the
// core packages (surface, hashgrid, vcm, pathtrace) import a concrete
// loader; they only see the interfaces defined here.
package scene

import "github.com/oxbowlabs/vcmtracer/pkg/core"

// MaterialKind tags which BSDF variant a Material selects. A tagged union
// rather than open polymorphism: the integrator never needs an unbounded
// set of material types.
type MaterialKind int

const (
	MaterialLambertian MaterialKind = iota
	MaterialMirror
	MaterialDielectric
	MaterialEmissive
)

// Material is the textured-material record referenced by vertexData.
// Texture indices of -1 mean "no texture for this channel, use the
// constant factor alone" (see surface.CalculateSurfaceParams step 7).
type Material struct {
	Kind MaterialKind

	Albedo      core.Vec3
	Specular    core.Vec3
	Roughness   float64
	Metalness   float64
	IOR         float64
	Emissive    core.Vec3
	Transparent bool

	AlbedoTex    int
	SpecularTex  int
	RoughnessTex int
	MetalnessTex int
	EmissiveTex  int
	NormalTex    int
}

// Texture is a decoded image, stored as-is (gamma-encoded for color
// channels, linear for data channels); callers pick the colorspace to
// interpret it in via TextureFilter.
type Texture struct {
	Width, Height int
	Pixels        []core.Vec3 // row-major, Pixels[y*Width+x]
}

// VertexAttr is one entry of vertexData: position plus the full shading
// basis and material binding needed to reconstruct a SurfaceParameters
// without re-deriving it from scratch at every hit.
type VertexAttr struct {
	Position  core.Vec3
	Normal    core.Vec3
	Tangent   core.Vec3
	Bitangent float64 // handedness sign, see surface.CalculateSurfaceParams step 1
	UV        core.Vec2
	Material  int
}

// BoundingSphere bounds the scene's finite geometry; it is the basis for
// the VCM radius schedule (r0 = VcmRadiusFactor * boundingSphere.Radius)
// and for IBL emission sampling over the visible disc.
type BoundingSphere struct {
	Center core.Vec3
	Radius float64
}

// SceneTables is the scene's read-only data, assembled once at load time
// and shared (never mutated) across every render worker.
type SceneTables struct {
	Indices        []int32
	VertexData     []VertexAttr
	Materials      []Material
	Textures       []Texture
	BoundingSphere BoundingSphere
}

// TriangleCount returns the number of triangles described by Indices.
func (s *SceneTables) TriangleCount() int {
	return len(s.Indices) / 3
}

// Triangle returns the three VertexAttr records of triangle primID.
func (s *SceneTables) Triangle(primID int) (a, b, c VertexAttr) {
	base := primID * 3
	return s.VertexData[s.Indices[base]], s.VertexData[s.Indices[base+1]], s.VertexData[s.Indices[base+2]]
}

// ComputeBoundingSphere derives a bounding sphere from the vertex position
// cloud: center is the AABB midpoint, radius the distance from the center
// to the farthest vertex. Falls back to a unit sphere at the origin for an
// empty scene so downstream radius-schedule math never divides by zero.
func ComputeBoundingSphere(vertices []VertexAttr) BoundingSphere {
	if len(vertices) == 0 {
		return BoundingSphere{Radius: 1}
	}

	minV, maxV := vertices[0].Position, vertices[0].Position
	for _, v := range vertices[1:] {
		minV = core.NewVec3(min(minV.X, v.Position.X), min(minV.Y, v.Position.Y), min(minV.Z, v.Position.Z))
		maxV = core.NewVec3(max(maxV.X, v.Position.X), max(maxV.Y, v.Position.Y), max(maxV.Z, v.Position.Z))
	}

	center := minV.Add(maxV).Multiply(0.5)
	radius := 0.0
	for _, v := range vertices {
		if d := v.Position.Subtract(center).Length(); d > radius {
			radius = d
		}
	}
	if radius == 0 {
		radius = 1
	}
	return BoundingSphere{Center: center, Radius: radius}
}
