package bsdf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oxbowlabs/vcmtracer/pkg/core"
	"github.com/oxbowlabs/vcmtracer/pkg/scene"
	"github.com/oxbowlabs/vcmtracer/pkg/surface"
)

func lambertianSurface(albedo core.Vec3) surface.SurfaceParameters {
	return surface.SurfaceParameters{
		PerturbedNormal: core.NewVec3(0, 1, 0),
		Tangent:         core.NewVec3(1, 0, 0),
		Bitangent:       core.NewVec3(0, 0, 1),
		Material: surface.TexturedMaterial{
			Kind:   scene.MaterialLambertian,
			Albedo: albedo,
		},
	}
}

func TestTaggedUnion_LambertianSampleStaysInHemisphere(t *testing.T) {
	b := TaggedUnion{}
	s := lambertianSurface(core.NewVec3(0.8, 0.8, 0.8))
	rng := core.NewRNG(1)
	wo := core.NewVec3(0, 1, 0)

	for i := 0; i < 200; i++ {
		res, ok := b.Sample(s, wo, rng)
		if !ok {
			continue
		}
		assert.GreaterOrEqual(t, res.Wi.Dot(s.PerturbedNormal), -1e-9)
		assert.InDelta(t, 1.0, res.Wi.Length(), 1e-6)
		assert.Greater(t, res.FwdPdfW, 0.0)
	}
}

func TestTaggedUnion_LambertianEvaluateIsAlbedoOverPi(t *testing.T) {
	b := TaggedUnion{}
	s := lambertianSurface(core.NewVec3(0.5, 0.5, 0.5))
	wo := core.NewVec3(0, 1, 0)
	wi := core.NewVec3(0, 1, 0)

	f, fwdPdfW, revPdfW := b.Evaluate(s, wo, wi)
	assert.InDelta(t, 0.5/3.14159265, f.X, 1e-3)
	assert.Greater(t, fwdPdfW, 0.0)
	assert.Greater(t, revPdfW, 0.0)
}

func TestTaggedUnion_MirrorReflectsAboutNormal(t *testing.T) {
	b := TaggedUnion{}
	s := surface.SurfaceParameters{
		PerturbedNormal: core.NewVec3(0, 1, 0),
		Material: surface.TexturedMaterial{
			Kind:     scene.MaterialMirror,
			Specular: core.NewVec3(1, 1, 1),
		},
	}
	wo := core.NewVec3(1, 1, 0).Normalize()
	res, ok := b.Sample(s, wo, core.NewRNG(2))
	assert.True(t, ok)
	assert.InDelta(t, -wo.X, res.Wi.X, 1e-9, "reflection flips the tangential component")
	assert.InDelta(t, wo.Y, res.Wi.Y, 1e-9, "reflection leaves the surface on the incoming side")
	assert.Greater(t, res.Wi.Dot(s.PerturbedNormal), 0.0)
}

func TestTaggedUnion_MirrorEvaluatesToZero(t *testing.T) {
	b := TaggedUnion{}
	s := surface.SurfaceParameters{
		PerturbedNormal: core.NewVec3(0, 1, 0),
		Material:        surface.TexturedMaterial{Kind: scene.MaterialMirror, Specular: core.NewVec3(1, 1, 1)},
	}
	f, fwdPdfW, revPdfW := b.Evaluate(s, core.NewVec3(0, 1, 0), core.NewVec3(0, 1, 0))
	assert.True(t, f.IsZero())
	assert.Zero(t, fwdPdfW)
	assert.Zero(t, revPdfW)
}

func glassSurface(ior float64) surface.SurfaceParameters {
	return surface.SurfaceParameters{
		GeometricNormal: core.NewVec3(0, 1, 0),
		PerturbedNormal: core.NewVec3(0, 1, 0),
		Material: surface.TexturedMaterial{
			Kind: scene.MaterialDielectric,
			IOR:  ior,
		},
	}
}

// sampleUntil scans RNG seeds until Sample produces a direction satisfying
// want; the Fresnel split makes any single seed's branch arbitrary.
func sampleUntil(t *testing.T, s surface.SurfaceParameters, wo core.Vec3, want func(core.Vec3) bool) SampleResult {
	t.Helper()
	b := TaggedUnion{}
	for seed := uint64(0); seed < 1000; seed++ {
		res, ok := b.Sample(s, wo, core.NewRNG(seed))
		if ok && want(res.Wi) {
			return res
		}
	}
	t.Fatal("no sample satisfied the predicate in 1000 seeds")
	return SampleResult{}
}

func TestTaggedUnion_DielectricRefractsTowardNormal(t *testing.T) {
	s := glassSurface(1.5)
	n := s.PerturbedNormal
	wo := core.NewVec3(1, 1, 0).Normalize() // 45 degrees

	res := sampleUntil(t, s, wo, func(wi core.Vec3) bool { return wi.Dot(n) < 0 })

	// Snell: sin(45°)/1.5 entering glass.
	sinT := (1.0 / 1.5) * math.Sqrt2 / 2
	assert.InDelta(t, sinT, math.Abs(res.Wi.X), 1e-9)
	assert.InDelta(t, 1.0, res.Wi.Length(), 1e-9)
	assert.Less(t, res.Wi.Y, 0.0, "transmitted ray continues through the surface")
}

func TestTaggedUnion_DielectricReflectionStaysOnIncomingSide(t *testing.T) {
	s := glassSurface(1.5)
	n := s.PerturbedNormal
	wo := core.NewVec3(1, 0.15, 0).Normalize() // grazing: strong Fresnel reflection

	res := sampleUntil(t, s, wo, func(wi core.Vec3) bool { return wi.Dot(n) > 0 })

	assert.InDelta(t, -wo.X, res.Wi.X, 1e-9)
	assert.InDelta(t, wo.Y, res.Wi.Y, 1e-9)
	assert.Equal(t, core.NewVec3(1, 1, 1), res.Reflectance, "clear glass reflects without tint")
}

func TestTaggedUnion_DielectricTotalInternalReflection(t *testing.T) {
	s := glassSurface(1.5)
	n := s.PerturbedNormal
	// Shallow exit from inside the glass, well past the critical angle.
	wo := core.NewVec3(-1, -0.1, 0).Normalize()

	b := TaggedUnion{}
	for seed := uint64(0); seed < 10; seed++ {
		res, ok := b.Sample(s, wo, core.NewRNG(seed))
		assert.True(t, ok, "total internal reflection still scatters")
		assert.Less(t, res.Wi.Dot(n), 0.0, "reflected ray stays inside the glass")
	}
}

func TestTaggedUnion_DielectricRoundTripConservesEnergy(t *testing.T) {
	s := glassSurface(1.5)
	n := s.PerturbedNormal
	wo := core.NewVec3(0, 1, 0)

	// Enter the glass at normal incidence, then cross a parallel boundary
	// from the inside: the radiance-compression factors must cancel.
	enter := sampleUntil(t, s, wo, func(wi core.Vec3) bool { return wi.Dot(n) < 0 })
	assert.InDelta(t, 1.5*1.5, enter.Reflectance.X, 1e-9)

	exit := sampleUntil(t, s, enter.Wi, func(wi core.Vec3) bool { return wi.Dot(n) > 0 })

	for _, c := range []float64{
		enter.Reflectance.X * exit.Reflectance.X,
		enter.Reflectance.Y * exit.Reflectance.Y,
		enter.Reflectance.Z * exit.Reflectance.Z,
	} {
		assert.InDelta(t, 1.0, c, 1e-9, "enter/exit weights must multiply to one")
	}
}

func TestTaggedUnion_DielectricZeroIORFallsBackToGlass(t *testing.T) {
	s := glassSurface(0) // loaders that carry no IOR leave it zero
	n := s.PerturbedNormal
	wo := core.NewVec3(1, 1, 0).Normalize()

	res := sampleUntil(t, s, wo, func(wi core.Vec3) bool { return wi.Dot(n) < 0 })

	sinT := (1.0 / 1.5) * math.Sqrt2 / 2
	assert.InDelta(t, sinT, math.Abs(res.Wi.X), 1e-9)
}

func TestTaggedUnion_EmissiveNeverScatters(t *testing.T) {
	b := TaggedUnion{}
	s := surface.SurfaceParameters{
		PerturbedNormal: core.NewVec3(0, 1, 0),
		Material:        surface.TexturedMaterial{Kind: scene.MaterialEmissive, Emissive: core.NewVec3(10, 10, 10)},
	}
	_, ok := b.Sample(s, core.NewVec3(0, 1, 0), core.NewRNG(3))
	assert.False(t, ok)
}
