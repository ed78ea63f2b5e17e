package scene

import (
	"math"

	"github.com/oxbowlabs/vcmtracer/pkg/core"
)

// UniformIBL is the default IBL: constant radiance in every direction,
// with cosine-weighted direct sampling and disk-based emission sampling
// against the scene's bounding sphere.
type UniformIBL struct {
	emission core.Vec3
	bounds   BoundingSphere
}

// NewUniformIBL builds a constant-radiance environment light bound to the
// scene's bounding sphere (needed to turn directional emission into a
// finite-area sample).
func NewUniformIBL(emission core.Vec3, bounds BoundingSphere) *UniformIBL {
	return &UniformIBL{emission: emission, bounds: bounds}
}

// Emit implements IBL: samples a direction uniformly over the sphere, then
// a point on the disk perpendicular to it at the scene's bounding radius,
// so the resulting ray enters the scene from outside.
func (u *UniformIBL) Emit(rng *core.RNG) EmissionSample {
	u1, u2 := rng.Float64(), rng.Float64()
	z := 1 - 2*u1
	r := math.Sqrt(math.Max(0, 1-z*z))
	phi := 2 * math.Pi * u2
	direction := core.NewVec3(r*math.Cos(phi), r*math.Sin(phi), z)

	diskU, diskV := core.OrthonormalBasis(direction)
	d1, d2 := rng.Float64(), rng.Float64()
	radius := u.bounds.Radius
	diskRadius := math.Sqrt(d1) * radius
	diskAngle := 2 * math.Pi * d2
	diskPoint := diskU.Multiply(diskRadius * math.Cos(diskAngle)).Add(diskV.Multiply(diskRadius * math.Sin(diskAngle)))

	origin := u.bounds.Center.Add(direction.Multiply(radius)).Add(diskPoint)
	rayDirection := direction.Multiply(-1)

	directionPdfA := 1.0 / (4 * math.Pi)
	areaPdf := 1.0 / (math.Pi * radius * radius)

	return EmissionSample{
		Position:      origin,
		Direction:     rayDirection,
		Radiance:      u.emission,
		DirectionPdfA: directionPdfA,
		EmissionPdfW:  directionPdfA * areaPdf,
		CosThetaLight: 1,
	}
}

// SampleDirect implements IBL: cosine-weighted direction around normal,
// with the IBL treated as infinitely far away.
func (u *UniformIBL) SampleDirect(rng *core.RNG, point, normal core.Vec3) DirectSample {
	direction := core.SampleCosineHemisphere(normal, rng.Float64(), rng.Float64())
	cosTheta := direction.Dot(normal)
	if cosTheta <= 0 {
		return DirectSample{}
	}

	radius := u.bounds.Radius
	return DirectSample{
		Direction:     direction,
		Distance:      math.Inf(1),
		Radiance:      u.emission,
		DirectionPdfA: cosTheta / math.Pi,
		EmissionPdfW:  1.0 / (math.Pi * radius * radius),
		CosThetaLight: 1,
	}
}

// Eval implements IBL: the skylight radiance/pdfs in a direction a camera
// subpath escaped along.
func (u *UniformIBL) Eval(dir core.Vec3) (core.Vec3, float64, float64) {
	radius := u.bounds.Radius
	// Direct sampling pdf here is cosine-weighted at the *previous* hit;
	// the kernel supplies its own cosTheta multiplier at the call site, so
	// Eval reports the direction-only density (cosTheta/pi folded in by
	// the caller, consistent with SampleDirect's PDF above).
	directPdfA := 1.0 / (4 * math.Pi)
	emissionPdfW := directPdfA * (1.0 / (math.Pi * radius * radius))
	return u.emission, directPdfA, emissionPdfW
}
