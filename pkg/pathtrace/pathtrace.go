// Package pathtrace is the unidirectional integrator variant: a plain
// primary-ray + shade loop with next-event estimation, no light subpaths
// and no hash grid. It shares the parallel driver with the VCM kernel; the
// driver's final divisor for this variant is the ray count per pixel.
//
// The per-bounce bookkeeping (pixel index, bounce count, throughput) lives
// in a kernel stack frame here, never inside the Ray structure.
package pathtrace

import (
	"math"

	"github.com/oxbowlabs/vcmtracer/pkg/bsdf"
	"github.com/oxbowlabs/vcmtracer/pkg/core"
	"github.com/oxbowlabs/vcmtracer/pkg/scene"
	"github.com/oxbowlabs/vcmtracer/pkg/surface"
)

const rayEpsilon = 1e-4

// Kernel holds one worker's path-tracing state. All fields reference
// immutable shared scene data; the kernel itself carries nothing mutable
// between passes.
type Kernel struct {
	Tables    *scene.SceneTables
	Intersect scene.Intersector
	Camera    scene.Camera
	Sky       scene.IBL
	Tex       scene.TextureFilter
	BSDF      bsdf.BSDF

	MaxBounceCount int
}

// frame is the per-path stack state threaded through the bounce loop.
type frame struct {
	ray        core.Ray
	throughput core.Vec3
	bounce     int
	// bsdfPdfW is the solid-angle pdf of the scatter that produced ray;
	// zero marks a delta scatter or the primary ray, for which the
	// light-sampling MIS weight degenerates to 1.
	bsdfPdfW float64
}

// Pass traces one jittered sample per pixel into img. Each Pass is one
// "ray per pixel" toward the driver's divisor.
func (k *Kernel) Pass(rng *core.RNG, img []core.Vec3, passIndex uint64) error {
	width, height := k.Camera.Viewport()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			color := k.trace(rng, x, y)
			i := y*width + x
			img[i] = img[i].Add(color)
		}
	}
	return nil
}

func (k *Kernel) trace(rng *core.RNG, x, y int) core.Vec3 {
	f := frame{
		ray:        k.Camera.JitteredCameraRay(rng, x, y),
		throughput: core.NewVec3(1, 1, 1),
	}

	color := core.Vec3{}
	for f.bounce < k.MaxBounceCount {
		hit, ok := k.Intersect.Intersect(f.ray, rayEpsilon, math.Inf(1))
		if !ok {
			radiance, directPdfA, _ := k.Sky.Eval(f.ray.Direction)
			weight := 1.0
			if f.bsdfPdfW > 0 {
				weight = core.PowerHeuristic(1, f.bsdfPdfW, 1, directPdfA)
			}
			color = color.Add(f.throughput.MultiplyVec(radiance).Multiply(weight))
			break
		}

		s, ok := surface.CalculateSurfaceParams(k.Tables, k.Tex, hit, surface.Options{})
		if !ok {
			break
		}

		if !s.Material.Emissive.IsZero() {
			color = color.Add(f.throughput.MultiplyVec(s.Material.Emissive))
		}

		color = color.Add(f.throughput.MultiplyVec(k.sampleDirect(rng, &s, hit.ViewDir)))

		sample, ok := k.BSDF.Sample(s, hit.ViewDir, rng)
		if !ok || sample.Reflectance.IsZero() {
			break
		}
		f.throughput = f.throughput.MultiplyVec(sample.Reflectance)
		if f.throughput.IsZero() {
			break
		}

		f.ray = core.NewRay(offsetOrigin(&s, sample.Wi), sample.Wi)
		if isDelta(s.Material.Kind) {
			f.bsdfPdfW = 0
		} else {
			f.bsdfPdfW = sample.FwdPdfW
		}
		f.bounce++
	}
	return color
}

// sampleDirect is next-event estimation against the IBL, MIS-weighted
// against the chance the BSDF scatter would have found the same direction.
func (k *Kernel) sampleDirect(rng *core.RNG, s *surface.SurfaceParameters, inDir core.Vec3) core.Vec3 {
	if isDelta(s.Material.Kind) {
		return core.Vec3{}
	}

	ls := k.Sky.SampleDirect(rng, s.Position, s.PerturbedNormal)
	if ls.DirectionPdfA <= 0 || ls.Radiance.IsZero() {
		return core.Vec3{}
	}

	rgb, fwdPdfW, _ := k.BSDF.Evaluate(*s, inDir, ls.Direction)
	if rgb.IsZero() {
		return core.Vec3{}
	}

	cosSurf := ls.Direction.Dot(s.PerturbedNormal)
	if cosSurf <= 0 {
		return core.Vec3{}
	}

	tMax := ls.Distance
	if !math.IsInf(tMax, 1) {
		tMax *= 1 - 1e-4
	}
	if k.Intersect.Occluded(offsetOrigin(s, ls.Direction), ls.Direction, 0, tMax) {
		return core.Vec3{}
	}

	weight := core.PowerHeuristic(1, ls.DirectionPdfA, 1, fwdPdfW)
	return rgb.MultiplyVec(ls.Radiance).Multiply(weight * cosSurf / ls.DirectionPdfA)
}

func isDelta(kind scene.MaterialKind) bool {
	return kind == scene.MaterialMirror || kind == scene.MaterialDielectric
}

func offsetOrigin(s *surface.SurfaceParameters, dir core.Vec3) core.Vec3 {
	n := s.GeometricNormal
	if dir.Dot(n) < 0 {
		n = n.Negate()
	}
	return s.Position.Add(n.Multiply(0.1 * (s.ErrorBound + rayEpsilon)))
}
