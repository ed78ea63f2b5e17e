package vcm

import (
	"math"

	"github.com/oxbowlabs/vcmtracer/pkg/bsdf"
	"github.com/oxbowlabs/vcmtracer/pkg/core"
	"github.com/oxbowlabs/vcmtracer/pkg/hashgrid"
	"github.com/oxbowlabs/vcmtracer/pkg/scene"
	"github.com/oxbowlabs/vcmtracer/pkg/surface"
)

const (
	// rayEpsilon is the minimum t for extension rays, keeping a bounce
	// from re-hitting the triangle it left.
	rayEpsilon = 1e-4
	// originOffsetScale scales the conservative origin offset applied to
	// occlusion-test rays.
	originOffsetScale = 0.1
	// occlusionMargin shortens finite occlusion rays so they stop just
	// before the connection target rather than re-hitting it.
	occlusionMargin = 1e-4
)

// Kernel holds one worker's VCM state: the immutable scene collaborators
// shared by every worker, plus the per-worker vertex storage, cleared (but
// not freed) between passes, and the hash grid rebuilt over it every pass.
type Kernel struct {
	Tables    *scene.SceneTables
	Intersect scene.Intersector
	Camera    scene.Camera
	Sky       scene.IBL
	Tex       scene.TextureFilter
	BSDF      bsdf.BSDF

	MaxPathLength int
	RadiusFactor  float64
	RadiusAlpha   float64

	pathVertices []Vertex
	// vertexPositions is the parallel point array the hash grid is built
	// over; it is kept in lockstep with pathVertices so a grid query index
	// is directly a pathVertices index.
	vertexPositions []core.Vec3
	pathEnds        []int
	grid            *hashgrid.HashGrid
}

// Pass runs one full VCM pass (light subpaths, grid build, camera
// subpaths) for global pass index passIndex, accumulating one sample per
// pixel into img. img is the calling worker's private buffer, so pixel
// writes need no synchronisation.
func (k *Kernel) Pass(rng *core.RNG, img []core.Vec3, passIndex uint64) error {
	width, height := k.Camera.Viewport()
	lightPathCount := width * height

	r0 := k.RadiusFactor * k.Tables.BoundingSphere.Radius
	radius := Radius(r0, k.RadiusAlpha, passIndex)
	consts := newPassConstants(radius, lightPathCount)

	k.pathVertices = k.pathVertices[:0]
	k.vertexPositions = k.vertexPositions[:0]
	k.pathEnds = k.pathEnds[:0]

	for i := 0; i < lightPathCount; i++ {
		k.traceLightSubpath(rng, img, consts, lightPathCount)
		k.pathEnds = append(k.pathEnds, len(k.pathVertices))
	}

	k.grid = hashgrid.Build(k.vertexPositions, radius)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := y*width + x
			color := k.traceCameraSubpath(rng, x, y, i, consts, lightPathCount)
			img[i] = img[i].Add(color)
		}
	}
	return nil
}

// traceLightSubpath builds one light subpath: seed from an emission
// sample, then bounce, storing a Vertex and attempting a camera connection
// at every surface hit.
func (k *Kernel) traceLightSubpath(rng *core.RNG, img []core.Vec3, c passConstants, lightPathCount int) {
	em := k.Sky.Emit(rng)
	if em.EmissionPdfW <= 0 || em.Radiance.IsZero() {
		return
	}

	state := PathState{
		Origin:        em.Position,
		Direction:     em.Direction,
		Throughput:    em.Radiance.Multiply(1 / em.EmissionPdfW),
		PathLength:    1,
		DVCM:          em.DirectionPdfA / em.EmissionPdfW,
		DVC:           em.CosThetaLight / em.EmissionPdfW,
		IsAreaMeasure: false, // IBL emission is directional
	}
	state.DVM = state.DVC * c.vcWeight

	for state.PathLength+2 < k.MaxPathLength {
		hit, ok := k.Intersect.Intersect(core.NewRay(state.Origin, state.Direction), rayEpsilon, math.Inf(1))
		if !ok {
			break
		}
		s, ok := surface.CalculateSurfaceParams(k.Tables, k.Tex, hit, surface.Options{})
		if !ok {
			break
		}

		// Light subpath cosine uses the perturbed normal; the camera
		// subpath uses the geometric one. Preserved asymmetry, see mis.go.
		atHitUpdate(&state, s.Position, hit.ViewDir, s.PerturbedNormal)

		k.pathVertices = append(k.pathVertices, Vertex{
			Throughput: state.Throughput,
			PathLength: state.PathLength,
			DVCM:       state.DVCM,
			DVC:        state.DVC,
			DVM:        state.DVM,
			InDir:      hit.ViewDir,
			Surface:    s,
		})
		k.vertexPositions = append(k.vertexPositions, s.Position)

		k.connectToCamera(&state, &s, hit.ViewDir, img, c, lightPathCount)

		sample, ok := k.BSDF.Sample(s, hit.ViewDir, rng)
		if !ok || sample.Reflectance.IsZero() || sample.FwdPdfW <= 0 {
			break
		}
		cosThetaB := math.Abs(sample.Wi.Dot(s.PerturbedNormal))
		afterScatterUpdate(&state, sample.FwdPdfW, sample.RevPdfW, cosThetaB, c)
		state.Throughput = state.Throughput.MultiplyVec(sample.Reflectance)
		if state.Throughput.IsZero() {
			break
		}
		state.Origin = offsetRayOrigin(&s, sample.Wi)
		state.Direction = sample.Wi
		state.IsAreaMeasure = true
	}
}

// connectToCamera projects a light vertex into the image and, if visible,
// splats its weighted contribution at the projected pixel.
func (k *Kernel) connectToCamera(state *PathState, s *surface.SurfaceParameters, inDir core.Vec3, img []core.Vec3, c passConstants, lightPathCount int) {
	x, y, onScreen := k.Camera.WorldToImage(s.Position)
	if !onScreen {
		return
	}

	toCamera := k.Camera.Position().Subtract(s.Position)
	distSquared := toCamera.LengthSquared()
	if distSquared <= 0 {
		return
	}
	dist := math.Sqrt(distSquared)
	dirToCamera := toCamera.Multiply(1 / dist)

	cosAtCamera := k.Camera.Forward().Dot(dirToCamera.Negate())
	if cosAtCamera <= 0 {
		return
	}

	rgb, _, revPdfW := k.BSDF.Evaluate(*s, inDir, dirToCamera)
	if rgb.IsZero() {
		return
	}
	cosToCamera := s.PerturbedNormal.Dot(dirToCamera)
	if cosToCamera <= 0 {
		return
	}

	// Solid-angle density of the camera ray through this pixel, converted
	// to an area density at the surface. The per-pixel solid angle falls
	// off as cos^3 away from the image axis.
	pixelSolidAngle := k.Camera.ImageToSolidAngle() * cosAtCamera * cosAtCamera * cosAtCamera
	if pixelSolidAngle <= 0 {
		return
	}
	cameraPdfA := (1 / pixelSolidAngle) * cosToCamera / distSquared

	lightTerm := (cameraPdfA / float64(lightPathCount)) * (c.vmWeight + state.DVCM + state.DVC*revPdfW)
	weight := 1 / (lightTerm + 1)

	contribution := state.Throughput.MultiplyVec(rgb).Multiply(weight * cameraPdfA / float64(lightPathCount))
	if contribution.IsZero() {
		return
	}

	origin := offsetRayOrigin(s, dirToCamera)
	if k.Intersect.Occluded(origin, dirToCamera, 0, dist*(1-occlusionMargin)) {
		return
	}

	width, _ := k.Camera.Viewport()
	img[y*width+x] = img[y*width+x].Add(contribution)
}

// traceCameraSubpath walks one pixel's camera subpath, accumulating every
// strategy's contribution (sky hit, direct-light connection, vertex
// connection, vertex merging) and returning the pixel's color for this
// pass.
func (k *Kernel) traceCameraSubpath(rng *core.RNG, x, y, pixelIndex int, c passConstants, lightPathCount int) core.Vec3 {
	ray := k.Camera.JitteredCameraRay(rng, x, y)

	state := PathState{
		Origin:        ray.Origin,
		Direction:     ray.Direction,
		Throughput:    core.NewVec3(1, 1, 1),
		PathLength:    1,
		DVCM:          float64(lightPathCount) / k.Camera.ImageToSolidAngle(),
		IsAreaMeasure: true,
	}

	vertexRangeStart := 0
	if pixelIndex > 0 {
		vertexRangeStart = k.pathEnds[pixelIndex-1]
	}
	vertexRangeEnd := k.pathEnds[pixelIndex]

	color := core.Vec3{}
	for state.PathLength < k.MaxPathLength {
		hit, ok := k.Intersect.Intersect(core.NewRay(state.Origin, state.Direction), rayEpsilon, math.Inf(1))
		if !ok {
			color = color.Add(state.Throughput.MultiplyVec(k.skyConnect(&state)))
			break
		}
		s, ok := surface.CalculateSurfaceParams(k.Tables, k.Tex, hit, surface.Options{})
		if !ok {
			break
		}

		atHitUpdate(&state, s.Position, hit.ViewDir, s.GeometricNormal)

		if !s.Material.Emissive.IsZero() {
			color = color.Add(state.Throughput.MultiplyVec(s.Material.Emissive))
		}

		if state.PathLength+1 < k.MaxPathLength {
			color = color.Add(k.connectToLight(rng, &state, &s, hit.ViewDir, c))
		}

		for vi := vertexRangeStart; vi < vertexRangeEnd; vi++ {
			lv := &k.pathVertices[vi]
			if state.PathLength+lv.PathLength+1 > k.MaxPathLength {
				continue
			}
			color = color.Add(k.connectVertices(&state, &s, hit.ViewDir, lv, c))
		}

		color = color.Add(k.mergeVertices(&state, &s, hit.ViewDir, c))

		sample, ok := k.BSDF.Sample(s, hit.ViewDir, rng)
		if !ok || sample.Reflectance.IsZero() || sample.FwdPdfW <= 0 {
			break
		}
		cosThetaB := math.Abs(sample.Wi.Dot(s.PerturbedNormal))
		afterScatterUpdate(&state, sample.FwdPdfW, sample.RevPdfW, cosThetaB, c)
		state.Throughput = state.Throughput.MultiplyVec(sample.Reflectance)
		if state.Throughput.IsZero() {
			break
		}
		state.Origin = offsetRayOrigin(&s, sample.Wi)
		state.Direction = sample.Wi
	}

	return color
}

// skyConnect evaluates the skylight MIS rule for a camera ray that escaped
// the scene. The first segment's contribution is the unweighted direct
// camera-IBL lookup.
func (k *Kernel) skyConnect(state *PathState) core.Vec3 {
	radiance, directPdfA, emissionPdfW := k.Sky.Eval(state.Direction)
	if radiance.IsZero() {
		return core.Vec3{}
	}
	if state.PathLength == 1 {
		return radiance
	}
	weight := 1 / (1 + directPdfA*state.DVCM + emissionPdfW*state.DVC)
	return radiance.Multiply(weight)
}

// connectToLight is the direct-light strategy: sample the IBL from the
// camera vertex, weigh it against every other strategy that could have
// produced the same path, and occlusion-test the connection.
func (k *Kernel) connectToLight(rng *core.RNG, state *PathState, s *surface.SurfaceParameters, inDir core.Vec3, c passConstants) core.Vec3 {
	ls := k.Sky.SampleDirect(rng, s.Position, s.PerturbedNormal)
	if ls.DirectionPdfA <= 0 || ls.Radiance.IsZero() || ls.CosThetaLight <= 0 {
		return core.Vec3{}
	}

	rgb, fwdPdfW, revPdfW := k.BSDF.Evaluate(*s, inDir, ls.Direction)
	if rgb.IsZero() {
		return core.Vec3{}
	}

	cosSurf := math.Abs(ls.Direction.Dot(s.PerturbedNormal))
	lightWeight := fwdPdfW / ls.DirectionPdfA
	cameraWeight := (ls.EmissionPdfW * cosSurf / (ls.DirectionPdfA * ls.CosThetaLight)) *
		(c.vmWeight + state.DVCM + state.DVC*revPdfW)
	weight := 1 / (lightWeight + 1 + cameraWeight)

	contribution := state.Throughput.MultiplyVec(rgb).MultiplyVec(ls.Radiance).
		Multiply(weight * cosSurf / ls.DirectionPdfA)
	if contribution.IsZero() {
		return core.Vec3{}
	}

	origin := offsetRayOrigin(s, ls.Direction)
	tMax := ls.Distance
	if !math.IsInf(tMax, 1) {
		tMax *= 1 - occlusionMargin
	}
	if k.Intersect.Occluded(origin, ls.Direction, 0, tMax) {
		return core.Vec3{}
	}
	return contribution
}

// connectVertices is the vertex-connection strategy: join the current
// camera vertex to a stored light vertex, weighing the joint path against
// the strategies that could have sampled it.
func (k *Kernel) connectVertices(cam *PathState, s *surface.SurfaceParameters, camInDir core.Vec3, lv *Vertex, c passConstants) core.Vec3 {
	toLight := lv.Surface.Position.Subtract(s.Position)
	distSquared := toLight.LengthSquared()
	if distSquared <= 0 {
		return core.Vec3{}
	}
	dist := math.Sqrt(distSquared)
	dirToLight := toLight.Multiply(1 / dist)

	camRgb, camFwdPdfW, camRevPdfW := k.BSDF.Evaluate(*s, camInDir, dirToLight)
	if camRgb.IsZero() {
		return core.Vec3{}
	}
	lightRgb, lightFwdPdfW, lightRevPdfW := k.BSDF.Evaluate(lv.Surface, lv.InDir, dirToLight.Negate())
	if lightRgb.IsZero() {
		return core.Vec3{}
	}

	cosCam := s.PerturbedNormal.Dot(dirToLight)
	cosLight := lv.Surface.PerturbedNormal.Dot(dirToLight.Negate())
	geometryTerm := cosCam * cosLight / distSquared
	if geometryTerm <= 0 {
		// A shading normal flipped across a thin surface can drive the
		// geometry term negative; that strategy contributes nothing.
		return core.Vec3{}
	}

	// Solid-angle pdfs converted to area measure at the opposite vertex.
	camBsdfPdfA := camFwdPdfW * math.Abs(cosLight) / distSquared
	lightBsdfPdfA := lightFwdPdfW * math.Abs(cosCam) / distSquared

	lightTerm := camBsdfPdfA * (c.vmWeight + lv.DVCM + lv.DVC*lightRevPdfW)
	cameraTerm := lightBsdfPdfA * (c.vmWeight + cam.DVCM + cam.DVC*camRevPdfW)
	weight := 1 / (lightTerm + 1 + cameraTerm)

	contribution := cam.Throughput.MultiplyVec(lv.Throughput).
		MultiplyVec(camRgb).MultiplyVec(lightRgb).
		Multiply(weight * geometryTerm)
	if contribution.IsZero() {
		return core.Vec3{}
	}

	origin := offsetRayOrigin(s, dirToLight)
	if k.Intersect.Occluded(origin, dirToLight, 0, dist*(1-occlusionMargin)) {
		return core.Vec3{}
	}
	return contribution
}

// mergeVertices is the vertex-merging strategy: a hash-grid range query
// around the camera vertex gathers every light vertex within the pass
// radius, and the summed weighted contributions are scaled by the density
// estimation normalisation and the camera throughput.
func (k *Kernel) mergeVertices(cam *PathState, s *surface.SurfaceParameters, camInDir core.Vec3, c passConstants) core.Vec3 {
	if c.vmNormalization == 0 {
		return core.Vec3{}
	}

	sum := core.Vec3{}
	k.grid.Range(s.Position, func(idx int) {
		lv := &k.pathVertices[idx]
		if cam.PathLength+lv.PathLength > k.MaxPathLength {
			return
		}

		rgb, fwdPdfW, revPdfW := k.BSDF.Evaluate(*s, camInDir, lv.InDir)
		if rgb.IsZero() {
			return
		}

		lightTerm := lv.DVCM*c.vcWeight + lv.DVM*fwdPdfW
		cameraTerm := cam.DVCM*c.vcWeight + cam.DVM*revPdfW
		weight := 1 / (lightTerm + 1 + cameraTerm)

		sum = sum.Add(lv.Throughput.MultiplyVec(rgb).Multiply(weight))
	})

	return sum.Multiply(c.vmNormalization).MultiplyVec(cam.Throughput)
}

// offsetRayOrigin nudges a ray origin off its surface along the geometric
// normal, flipped toward the travel direction, so occlusion tests don't
// re-hit the surface they start on.
func offsetRayOrigin(s *surface.SurfaceParameters, dir core.Vec3) core.Vec3 {
	n := s.GeometricNormal
	if dir.Dot(n) < 0 {
		n = n.Negate()
	}
	offset := originOffsetScale * (s.ErrorBound + rayEpsilon)
	return s.Position.Add(n.Multiply(offset))
}
