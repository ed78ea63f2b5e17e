// Package surface reconstructs a fully parameterised shading point
// (SurfaceParameters) from a scene.Hit: barycentric interpolation of the
// shading frame, UV-derivative recovery with a degenerate-parameterisation
// fallback, ray-differential propagation, and textured-material lookup.
package surface

import (
	"math"

	"github.com/oxbowlabs/vcmtracer/pkg/core"
	"github.com/oxbowlabs/vcmtracer/pkg/scene"
)

// epsSmall guards the UV-parameterisation determinant against precision
// drift; below this the triangle is treated as degenerate.
const epsSmall = 1e-9

// TexturedMaterial is the resolved material at a shading point: the
// per-vertex material record combined with every texture channel lookup.
type TexturedMaterial struct {
	Kind        scene.MaterialKind
	Albedo      core.Vec3
	Specular    core.Vec3
	Roughness   float64
	Metalness   float64
	IOR         float64
	Emissive    core.Vec3
	Transparent bool
}

// SurfaceParameters is a fully-described shading point: position,
// geometric and shading frame, surface derivatives, uv differentials, and
// the textured material.
type SurfaceParameters struct {
	Position        core.Vec3
	GeometricNormal core.Vec3
	Tangent         core.Vec3
	Bitangent       core.Vec3
	PerturbedNormal core.Vec3 // shading normal after optional normal-map perturbation

	DpDu, DpDv core.Vec3
	DnDu, DnDv core.Vec3

	UV           core.Vec2
	DuvDx, DuvDy core.Vec2

	Material   TexturedMaterial
	ErrorBound float64
}

// WorldToTangent transforms a world-space vector into the (tangent,
// normal, bitangent) shading frame.
func (s SurfaceParameters) WorldToTangent(w core.Vec3) core.Vec3 {
	return core.NewVec3(w.Dot(s.Tangent), w.Dot(s.PerturbedNormal), w.Dot(s.Bitangent))
}

// TangentToWorld transforms a tangent-space vector back into world space;
// the inverse of WorldToTangent for an orthonormal frame.
func (s SurfaceParameters) TangentToWorld(t core.Vec3) core.Vec3 {
	return s.Tangent.Multiply(t.X).Add(s.PerturbedNormal.Multiply(t.Y)).Add(s.Bitangent.Multiply(t.Z))
}

// Options controls the parts of reconstruction that depend on the
// caller's needs rather than the hit itself.
type Options struct {
	// PreserveRayDifferentials requests dp/du, dp/dv even when no texture
	// on this material needs filtering, and is the only switch that makes
	// dn/du, dn/dv get computed.
	PreserveRayDifferentials bool
	// EnableEWA selects anisotropic EWA filtering over triangle filtering
	// when ray differentials are present.
	EnableEWA bool
}

func barycentric(u, v float64) (a0, a1, a2 float64) {
	a0 = 1 - u - v
	if a0 < 0 {
		a0 = 0
	} else if a0 > 1 {
		a0 = 1
	}
	return a0, u, v
}

// CalculateSurfaceParams turns hit into a SurfaceParameters. It fails
// (returns ok=false) in exactly one case: the backface reject. Every other
// precision edge (degenerate UVs, non-finite differentials) is clamped or
// zeroed silently; a path-local imperfection never aborts a bounce.
func CalculateSurfaceParams(tables *scene.SceneTables, tex scene.TextureFilter, hit scene.Hit, opts Options) (SurfaceParameters, bool) {
	va, vb, vc := tables.Triangle(hit.PrimID)
	a0, a1, a2 := barycentric(hit.U, hit.V)

	n := va.Normal.Multiply(a0).Add(vb.Normal.Multiply(a1)).Add(vc.Normal.Multiply(a2)).Normalize()
	t := va.Tangent.Multiply(a0).Add(vb.Tangent.Multiply(a1)).Add(vc.Tangent.Multiply(a2)).Normalize()
	bh := a0*va.Bitangent + a1*vb.Bitangent + a2*vc.Bitangent

	uv := core.NewVec2(
		a0*va.UV.X+a1*vb.UV.X+a2*vc.UV.X,
		a0*va.UV.Y+a1*vb.UV.Y+a2*vc.UV.Y,
	)

	mat := tables.Materials[va.Material]
	if n.Dot(hit.ViewDir) < 0 && !mat.Transparent {
		return SurfaceParameters{}, false
	}

	b := n.Cross(t).Multiply(bh)
	position := va.Position.Multiply(a0).Add(vb.Position.Multiply(a1)).Add(vc.Position.Multiply(a2))

	s := SurfaceParameters{
		Position:        position,
		GeometricNormal: n,
		Tangent:         t,
		Bitangent:       b,
		PerturbedNormal: n,
		UV:              uv,
		ErrorBound:      hit.ErrorBound,
	}

	needsFiltering := hasAnyTexture(mat)
	if needsFiltering || opts.PreserveRayDifferentials {
		computeDerivatives(&s, va.Position, vb.Position, vc.Position, va.UV, vb.UV, vc.UV, va.Normal, vb.Normal, vc.Normal, opts.PreserveRayDifferentials)
	}

	if hit.HasDifferentials {
		computeRayDifferentials(&s, hit)
	}

	s.Material = lookupMaterial(tables, tex, mat, uv, &s, opts)
	return s, true
}

func hasAnyTexture(m scene.Material) bool {
	return m.AlbedoTex >= 0 || m.SpecularTex >= 0 || m.RoughnessTex >= 0 ||
		m.MetalnessTex >= 0 || m.EmissiveTex >= 0 || m.NormalTex >= 0
}

func computeDerivatives(s *SurfaceParameters, p0, p1, p2 core.Vec3, uv0, uv1, uv2 core.Vec2, n0, n1, n2 core.Vec3, wantDn bool) {
	duv02 := uv0.Subtract(uv2)
	duv12 := uv1.Subtract(uv2)
	det := duv02.Cross(duv12)

	if math.Abs(det) < epsSmall {
		// Degenerate parameterisation: synthesise a coordinate system from
		// the triangle's geometric normal instead of failing the hit.
		geomN := p2.Subtract(p0).Cross(p1.Subtract(p0)).Normalize()
		dpdu, dpdv := core.OrthonormalBasis(geomN)
		s.DpDu, s.DpDv = dpdu, dpdv
		s.DnDu, s.DnDv = core.Vec3{}, core.Vec3{}
		return
	}

	invDet := 1.0 / det
	dp02 := p0.Subtract(p2)
	dp12 := p1.Subtract(p2)
	s.DpDu = dp02.Multiply(duv12.Y).Subtract(dp12.Multiply(duv02.Y)).Multiply(invDet)
	s.DpDv = dp12.Multiply(duv02.X).Subtract(dp02.Multiply(duv12.X)).Multiply(invDet)

	if wantDn {
		dn02 := n0.Subtract(n2)
		dn12 := n1.Subtract(n2)
		s.DnDu = dn02.Multiply(duv12.Y).Subtract(dn12.Multiply(duv02.Y)).Multiply(invDet)
		s.DnDv = dn12.Multiply(duv02.X).Subtract(dn02.Multiply(duv12.X)).Multiply(invDet)
	}
}

// computeRayDifferentials solves a 2x2 linear system for duv/dx, duv/dy
// by intersecting the auxiliary rx/ry rays with the tangent plane at
// s.Position, choosing the two world axes whose projection of the
// geometric normal is smallest to avoid a near-singular solve.
func computeRayDifferentials(s *SurfaceParameters, hit scene.Hit) {
	n := s.GeometricNormal
	axis0, axis1 := smallestTwoAxes(n)

	px, okx := intersectTangentPlane(s.Position, n, hit.RxOrigin, hit.RxDirection)
	py, oky := intersectTangentPlane(s.Position, n, hit.RyOrigin, hit.RyDirection)
	if !okx || !oky {
		s.DuvDx, s.DuvDy = core.Vec2{}, core.Vec2{}
		return
	}

	a00, a01 := component(s.DpDu, axis0), component(s.DpDv, axis0)
	a10, a11 := component(s.DpDu, axis1), component(s.DpDv, axis1)
	det := a00*a11 - a01*a10
	if math.Abs(det) < epsSmall {
		s.DuvDx, s.DuvDy = core.Vec2{}, core.Vec2{}
		return
	}
	invDet := 1.0 / det

	bx0 := component(px.Subtract(s.Position), axis0)
	bx1 := component(px.Subtract(s.Position), axis1)
	dudx := (a11*bx0 - a01*bx1) * invDet
	dvdx := (a00*bx1 - a10*bx0) * invDet

	by0 := component(py.Subtract(s.Position), axis0)
	by1 := component(py.Subtract(s.Position), axis1)
	dudy := (a11*by0 - a01*by1) * invDet
	dvdy := (a00*by1 - a10*by0) * invDet

	if !allFinite(dudx, dvdx, dudy, dvdy) {
		s.DuvDx, s.DuvDy = core.Vec2{}, core.Vec2{}
		return
	}
	s.DuvDx = core.NewVec2(dudx, dvdx)
	s.DuvDy = core.NewVec2(dudy, dvdy)
}

func intersectTangentPlane(planePoint, n, origin, direction core.Vec3) (core.Vec3, bool) {
	denom := direction.Dot(n)
	if math.Abs(denom) < epsSmall {
		return core.Vec3{}, false
	}
	t := planePoint.Subtract(origin).Dot(n) / denom
	if !allFinite(t) {
		return core.Vec3{}, false
	}
	return origin.Add(direction.Multiply(t)), true
}

func component(v core.Vec3, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// smallestTwoAxes returns the indices of the two axes whose |n| component
// is smallest, i.e. all but the dominant axis of n.
func smallestTwoAxes(n core.Vec3) (int, int) {
	abs := [3]float64{math.Abs(n.X), math.Abs(n.Y), math.Abs(n.Z)}
	dominant := 0
	for i := 1; i < 3; i++ {
		if abs[i] > abs[dominant] {
			dominant = i
		}
	}
	switch dominant {
	case 0:
		return 1, 2
	case 1:
		return 0, 2
	default:
		return 0, 1
	}
}

func allFinite(xs ...float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func lookupMaterial(tables *scene.SceneTables, tex scene.TextureFilter, mat scene.Material, uv core.Vec2, s *SurfaceParameters, opts Options) TexturedMaterial {
	sample := func(idx int, colorspaceSRGB bool) (core.Vec3, bool) {
		if idx < 0 || idx >= len(tables.Textures) {
			return core.Vec3{}, false
		}
		t := &tables.Textures[idx]
		var rgb core.Vec3
		if opts.EnableEWA && (s.DuvDx != (core.Vec2{}) || s.DuvDy != (core.Vec2{})) {
			rgb = tex.EWA(t, uv, s.DuvDx, s.DuvDy)
		} else {
			rgb = tex.Triangle(t, uv)
		}
		if colorspaceSRGB {
			rgb = scene.SRGBToLinearVec3(rgb)
		}
		return rgb, true
	}

	emissive := mat.Emissive
	if c, ok := sample(mat.EmissiveTex, false); ok {
		emissive = c
	}

	albedo := mat.Albedo
	if c, ok := sample(mat.AlbedoTex, true); ok {
		albedo = mat.Albedo.MultiplyVec(c)
	}

	specular := albedo
	if c, ok := sample(mat.SpecularTex, false); ok {
		specular = c
	}

	roughness := mat.Roughness
	if c, ok := sample(mat.RoughnessTex, false); ok {
		roughness = mat.Roughness * c.X
	}

	metalness := mat.Metalness
	if c, ok := sample(mat.MetalnessTex, false); ok {
		metalness = mat.Metalness * c.X
	}

	if mat.NormalTex >= 0 {
		if c, ok := sample(mat.NormalTex, false); ok {
			tangentSpace := c.Multiply(2).Subtract(core.NewVec3(1, 1, 1))
			perturbed := s.Tangent.Multiply(tangentSpace.X).
				Add(s.Bitangent.Multiply(-tangentSpace.Y)).
				Add(s.GeometricNormal.Multiply(tangentSpace.Z))
			if perturbed.LengthSquared() > epsSmall {
				s.PerturbedNormal = perturbed.Normalize()
			}
		}
	}

	return TexturedMaterial{
		Kind:        mat.Kind,
		Albedo:      albedo,
		Specular:    specular,
		Roughness:   roughness,
		Metalness:   metalness,
		IOR:         mat.IOR,
		Emissive:    emissive,
		Transparent: mat.Transparent,
	}
}
