// Package vcm implements the Vertex Connection and Merging integrator
// kernel: light-subpath generation, camera-subpath traversal with vertex
// connection and merging, and the streaming MIS weight propagation that
// combines every sampling strategy without storing path histories.
package vcm

import (
	"math"

	"github.com/oxbowlabs/vcmtracer/pkg/core"
	"github.com/oxbowlabs/vcmtracer/pkg/surface"
)

// PathState is a subpath extension cursor: the current ray, running
// throughput, and the three MIS accumulators dVCM/dVC/dVM mutated at each
// bounce. PathLength counts vertices produced so far and is >= 1
// immediately after generation.
type PathState struct {
	Origin     core.Vec3
	Direction  core.Vec3
	Throughput core.Vec3
	PathLength int

	DVCM, DVC, DVM float64

	// IsAreaMeasure records whether the subpath's origin was sampled in
	// area measure. An IBL emission sample is directional, so its first
	// segment skips the distance-squared conversion in the at-hit update.
	IsAreaMeasure bool
}

// Vertex is a stored light-subpath vertex, kept for vertex connection and
// merging during the same pass's camera scan and discarded at pass end.
// InDir points from the vertex back toward the previous subpath vertex; it
// is the wo argument when the vertex's BSDF is evaluated for a connection.
type Vertex struct {
	Throughput core.Vec3
	PathLength int

	DVCM, DVC, DVM float64

	InDir   core.Vec3
	Surface surface.SurfaceParameters
}

// passConstants are the per-pass strategy-count weights derived from the
// current merging radius and the light-path count N.
type passConstants struct {
	vmWeight        float64 // pi * r^2 * N
	vcWeight        float64 // 1 / vmWeight
	vmNormalization float64 // 1 / (pi * r^2 * N)
	radius          float64
	radiusSquared   float64
}

func newPassConstants(radius float64, lightPathCount int) passConstants {
	vm := math.Pi * radius * radius * float64(lightPathCount)
	c := passConstants{vmWeight: vm, radius: radius, radiusSquared: radius * radius}
	if vm > 0 {
		c.vcWeight = 1 / vm
		c.vmNormalization = 1 / vm
	}
	return c
}

// Radius returns the pass-k merging radius of the schedule
// r_k = r0 / k^(0.5*(1-alpha)), non-increasing in k with r_1 = r0.
func Radius(r0, alpha float64, k uint64) float64 {
	if k < 1 {
		k = 1
	}
	return r0 / math.Pow(float64(k), 0.5*(1-alpha))
}

// atHitUpdate applies the "at a new hit" MIS mutation: the accumulated
// dVCM picks up the squared segment length (unless this is the first
// segment of an area-measure source) and all three accumulators divide by
// the cosine at the new vertex.
//
// cosineNormal is the normal the caller wants the cosine taken against:
// the light subpath passes the perturbed (shading) normal, the camera
// subpath the geometric normal. The asymmetry is deliberate and must be
// preserved; see DESIGN.md.
func atHitUpdate(state *PathState, newPos, viewDir, cosineNormal core.Vec3) {
	distSquared := newPos.Subtract(state.Origin).LengthSquared()
	cosTheta := math.Abs(cosineNormal.Dot(viewDir))
	if cosTheta <= 0 {
		cosTheta = 1e-12
	}

	if state.PathLength > 1 || !state.IsAreaMeasure {
		state.DVCM *= distSquared
	}
	state.DVCM /= cosTheta
	state.DVC /= cosTheta
	state.DVM /= cosTheta
}

// afterScatterUpdate applies the "after a BSDF scattering step" MIS
// mutation and advances the cursor: accumulators fold in the forward and
// reverse scattering pdfs and the path grows by one vertex. It does not
// touch Throughput; the caller multiplies in the sample reflectance.
func afterScatterUpdate(state *PathState, fwdPdfW, revPdfW, cosThetaB float64, c passConstants) {
	ratio := cosThetaB / fwdPdfW
	state.DVC = ratio * (state.DVC*revPdfW + state.DVCM + c.vmWeight)
	state.DVM = ratio * (state.DVM*revPdfW + state.DVCM*c.vcWeight + 1)
	state.DVCM = 1 / fwdPdfW
	state.PathLength++
}
