// Package bsdf is the default BSDF collaborator: a tagged union over
// scene.MaterialKind (Lambertian, Mirror, Dielectric, Emissive) rather
// than open polymorphism — the integrator never needs an unbounded set of
// material variants.
//
// It lives in its own package rather than pkg/scene because it operates
// on surface.SurfaceParameters, which itself depends on pkg/scene; folding
// it into pkg/scene would create an import cycle. pkg/scene's own
// collaborator interfaces (Intersector, IBL, TextureFilter, Camera) don't
// need SurfaceParameters and stay where they are.
//
// One direction convention is used throughout, on both subpath kinds:
// Evaluate(s, wo = -incomingDir, wi = outgoingDir). Mirror and
// Dielectric are delta distributions: Evaluate always returns zero against
// an arbitrary wi (a connection or merge strategy can never land exactly
// on the delta peak), and only Sample can reach them. That is the correct
// MIS behaviour, not a shortcut: a strategy that can never produce the
// delta direction contributes zero, not a wrong density.
package bsdf

import (
	"math"

	"github.com/oxbowlabs/vcmtracer/pkg/core"
	"github.com/oxbowlabs/vcmtracer/pkg/scene"
	"github.com/oxbowlabs/vcmtracer/pkg/surface"
)

// SampleResult is returned by Sample on success: the scattered direction,
// its reflectance, and both the forward and reverse solid-angle pdfs
// the MIS accumulators need.
type SampleResult struct {
	Wi          core.Vec3
	Reflectance core.Vec3
	FwdPdfW     float64
	RevPdfW     float64
}

// BSDF is the scattering collaborator interface the integrators call.
type BSDF interface {
	Evaluate(s surface.SurfaceParameters, wo, wi core.Vec3) (rgb core.Vec3, fwdPdfW, revPdfW float64)
	Sample(s surface.SurfaceParameters, wo core.Vec3, rng *core.RNG) (SampleResult, bool)
}

// TaggedUnion is the default BSDF: dispatches on s.Material.Kind.
type TaggedUnion struct{}

func (TaggedUnion) Evaluate(s surface.SurfaceParameters, wo, wi core.Vec3) (core.Vec3, float64, float64) {
	switch s.Material.Kind {
	case scene.MaterialLambertian:
		return evaluateLambertian(s, wo, wi)
	default:
		// Mirror, Dielectric: delta distributions, zero measure against an
		// arbitrary direction. Emissive: non-reflective emitter.
		return core.Vec3{}, 0, 0
	}
}

func (TaggedUnion) Sample(s surface.SurfaceParameters, wo core.Vec3, rng *core.RNG) (SampleResult, bool) {
	switch s.Material.Kind {
	case scene.MaterialLambertian:
		return sampleLambertian(s, wo, rng)
	case scene.MaterialMirror:
		return sampleMirror(s, wo)
	case scene.MaterialDielectric:
		return sampleDielectric(s, wo, rng)
	default: // scene.MaterialEmissive
		return SampleResult{}, false
	}
}

func evaluateLambertian(s surface.SurfaceParameters, wo, wi core.Vec3) (core.Vec3, float64, float64) {
	n := s.PerturbedNormal
	cosWi := wi.Dot(n)
	cosWo := wo.Dot(n)
	if cosWi <= 0 || cosWo <= 0 {
		return core.Vec3{}, 0, 0
	}
	diffuse := s.Material.Albedo.Multiply(1 - s.Material.Metalness).Multiply(1.0 / math.Pi)
	fwdPdfW := cosWi / math.Pi
	revPdfW := cosWo / math.Pi
	return diffuse, fwdPdfW, revPdfW
}

// sampleLambertian returns a Sample whose Reflectance is already the
// throughput weight f(wo,wi)*cosTheta/fwdPdfW, not the raw f value
// Evaluate returns — the cosine-weighted hemisphere sampling makes that
// weight collapse to a flat albedo.
func sampleLambertian(s surface.SurfaceParameters, wo core.Vec3, rng *core.RNG) (SampleResult, bool) {
	n := s.PerturbedNormal
	if wo.Dot(n) <= 0 {
		return SampleResult{}, false
	}
	wi := core.SampleCosineHemisphere(n, rng.Float64(), rng.Float64())
	f, fwdPdfW, revPdfW := evaluateLambertian(s, wo, wi)
	if fwdPdfW <= 0 || f.IsZero() {
		return SampleResult{}, false
	}
	cosWi := wi.Dot(n)
	weight := f.Multiply(cosWi / fwdPdfW)
	return SampleResult{Wi: wi, Reflectance: weight, FwdPdfW: fwdPdfW, RevPdfW: revPdfW}, true
}

func sampleMirror(s surface.SurfaceParameters, wo core.Vec3) (SampleResult, bool) {
	n := s.PerturbedNormal
	cosWo := wo.Dot(n)
	if cosWo <= 0 {
		return SampleResult{}, false
	}
	// Reflect the incoming travel direction -wo; wi leaves the surface on
	// the same side wo arrived from.
	wi := core.Reflect(wo.Negate(), n)
	reflectance := s.Material.Specular
	if reflectance.IsZero() {
		return SampleResult{}, false
	}
	// Delta BSDF: f carries an implicit 1/cosTheta and the sampling pdf is
	// a unit delta (FwdPdfW = RevPdfW = 1 by convention), so the weight
	// f*cosTheta/pdf collapses to the reflectance itself.
	return SampleResult{Wi: wi, Reflectance: reflectance, FwdPdfW: 1, RevPdfW: 1}, true
}

func sampleDielectric(s surface.SurfaceParameters, wo core.Vec3, rng *core.RNG) (SampleResult, bool) {
	n := s.PerturbedNormal
	cosWo := wo.Dot(n)
	entering := cosWo > 0
	ior := s.Material.IOR
	if ior <= 0 {
		ior = 1.5
	}
	etaI, etaT := 1.0, ior
	if !entering {
		etaI, etaT = etaT, etaI
		n = n.Negate()
		cosWo = -cosWo
	}

	// Clear glass unless the material carries an explicit filter color.
	tint := s.Material.Specular
	if tint.IsZero() {
		tint = core.NewVec3(1, 1, 1)
	}

	fresnel := schlickFresnel(cosWo, etaI, etaT)
	refracted, refractOk := refract(wo, n, etaI/etaT)

	// The branch probability equals the Fresnel split, so the Fresnel term
	// cancels out of each branch's weight: reflection weighs the tint alone
	// and refraction the tint times (etaT/etaI)^2. Over a full enter/exit
	// round trip the two eta^2 factors cancel and the accumulated weight is
	// exactly tint^2.
	if !refractOk || rng.Float64() < fresnel {
		wi := core.Reflect(wo.Negate(), n)
		if wi.Dot(n) <= 0 {
			return SampleResult{}, false
		}
		return SampleResult{Wi: wi, Reflectance: tint, FwdPdfW: 1, RevPdfW: 1}, true
	}

	wi := refracted
	// Radiance compresses/expands crossing the boundary by (etaT/etaI)^2
	// under non-symmetric (radiance) transport; this is left uncorrected
	// for light subpaths, which is the conventional approximation unless
	// the integrator explicitly tracks transport mode.
	transmittance := tint.Multiply((etaT * etaT) / (etaI * etaI))
	if math.Abs(wi.Dot(n)) <= 0 {
		return SampleResult{}, false
	}
	return SampleResult{Wi: wi, Reflectance: transmittance, FwdPdfW: 1, RevPdfW: 1}, true
}

func schlickFresnel(cosTheta, etaI, etaT float64) float64 {
	r0 := (etaI - etaT) / (etaI + etaT)
	r0 *= r0
	return r0 + (1-r0)*math.Pow(1-cosTheta, 5)
}

// refract computes the transmitted direction of incident (pointing away
// from the surface along the incoming side) through a boundary with
// normal n and relative index eta = etaIncident/etaTransmitted. Returns
// false on total internal reflection.
func refract(incident, n core.Vec3, eta float64) (core.Vec3, bool) {
	cosI := incident.Dot(n)
	sin2T := eta * eta * math.Max(0, 1-cosI*cosI)
	if sin2T >= 1 {
		return core.Vec3{}, false
	}
	cosT := math.Sqrt(1 - sin2T)
	return incident.Multiply(-eta).Add(n.Multiply(eta*cosI - cosT)), true
}
