package scene

import "github.com/oxbowlabs/vcmtracer/pkg/core"

// Hit is a ray/triangle intersection, produced by Intersect and consumed by
// surface.CalculateSurfaceParams. Rx/Ry are the optional ray-differential
// pair; HasDifferentials is false when the caller didn't request them.
type Hit struct {
	PrimID     int
	T          float64
	U, V       float64
	ViewDir    core.Vec3 // -ray.Direction, pointing back toward the ray origin
	ErrorBound float64

	HasDifferentials bool
	RxOrigin         core.Vec3
	RxDirection      core.Vec3
	RyOrigin         core.Vec3
	RyDirection      core.Vec3
}

// Intersector is the external ray-intersection engine. The core never
// builds or traverses acceleration structures itself; it only calls these
// two operations against whatever Intersector the loader constructed.
type Intersector interface {
	Intersect(ray core.Ray, tMin, tMax float64) (Hit, bool)
	Occluded(origin, direction core.Vec3, tMin, tMax float64) bool
}

// EmissionSample is returned by IBL.Emit: a full light-subpath seed sample.
type EmissionSample struct {
	Position      core.Vec3
	Direction     core.Vec3
	Radiance      core.Vec3
	DirectionPdfA float64
	EmissionPdfW  float64
	CosThetaLight float64
}

// DirectSample is returned by IBL.SampleDirect: a next-event-estimation
// sample from a surface point toward the light.
type DirectSample struct {
	Direction     core.Vec3
	Distance      float64
	Radiance      core.Vec3
	DirectionPdfA float64
	EmissionPdfW  float64
	CosThetaLight float64
}

// IBL is the image-based light module. The VCM kernel only ever samples
// emission from the IBL — local-geometry emitters contribute through the
// camera subpath alone — but the interface is left broad enough that a
// future area emitter could implement it too.
type IBL interface {
	// Emit samples a full emission event for light-subpath generation.
	Emit(rng *core.RNG) EmissionSample
	// SampleDirect samples a direction from point (with shading normal
	// normal) toward the light for next-event estimation.
	SampleDirect(rng *core.RNG, point, normal core.Vec3) DirectSample
	// Eval returns the radiance and pdfs for a ray that escaped the scene
	// in direction dir (the skylight connection).
	Eval(dir core.Vec3) (radiance core.Vec3, directPdfA, emissionPdfW float64)
}

// TextureFilter is the texture-filtering module: triangle-filter
// sampling is the default; EWA is reserved for when ray differentials are
// present and the compile-time EWA path is enabled.
type TextureFilter interface {
	Triangle(tex *Texture, uv core.Vec2) core.Vec3
	EWA(tex *Texture, uv, duvdx, duvdy core.Vec2) core.Vec3
}

// Camera is the external camera module. ImageToSolidAngle exists because
// the VCM kernel's light-path-to-camera connection needs to convert a
// camera ray's solid-angle sampling density to an area measure at the
// surface it connects to, which for a pinhole camera requires the image
// plane's physical area — a detail no concrete Camera can derive purely
// from JitteredCameraRay/WorldToImage/Viewport.
type Camera interface {
	JitteredCameraRay(rng *core.RNG, x, y int) core.Ray
	WorldToImage(p core.Vec3) (x, y int, onScreen bool)
	ImagePlaneDistance() float64
	Position() core.Vec3
	Forward() core.Vec3
	Viewport() (width, height int)
	// ImageToSolidAngle returns the solid angle subtended by one pixel at
	// normal incidence: imagePlaneArea / (width*height) / imagePlaneDistance^2.
	ImageToSolidAngle() float64
}
