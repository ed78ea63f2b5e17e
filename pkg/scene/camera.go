package scene

import (
	"math"

	"github.com/oxbowlabs/vcmtracer/pkg/core"
)

// PinholeCamera is the default Camera implementation: a simple perspective
// camera with no lens/depth-of-field, jittering only within the pixel
// footprint, built from an origin/corner/horizontal/vertical basis.
type PinholeCamera struct {
	eye, forward, right, up core.Vec3
	lowerLeft, horizontal   core.Vec3
	width, height           int
	planeDistance           float64
	imageToSolidAngle       float64
}

// NewPinholeCamera builds a camera looking from eye toward target with the
// given vertical field of view (degrees) and an image of width x height.
func NewPinholeCamera(eye, target, up core.Vec3, vfovDegrees float64, width, height int) *PinholeCamera {
	aspect := float64(width) / float64(height)
	theta := vfovDegrees * math.Pi / 180
	halfHeight := math.Tan(theta / 2)
	halfWidth := aspect * halfHeight

	forward := target.Subtract(eye).Normalize()
	right := forward.Cross(up).Normalize()
	trueUp := right.Cross(forward)

	lowerLeft := eye.Add(forward).Subtract(right.Multiply(halfWidth)).Subtract(trueUp.Multiply(halfHeight))
	horizontal := right.Multiply(2 * halfWidth)
	vertical := trueUp.Multiply(2 * halfHeight)

	planeDistance := 1.0
	planeArea := horizontal.Length() * vertical.Length()

	return &PinholeCamera{
		eye:               eye,
		forward:           forward,
		right:             right,
		up:                vertical,
		lowerLeft:         lowerLeft,
		horizontal:        horizontal,
		width:             width,
		height:            height,
		planeDistance:     planeDistance,
		imageToSolidAngle: planeArea / float64(width*height) / (planeDistance * planeDistance),
	}
}

// JitteredCameraRay implements Camera: one ray through pixel (x,y), jittered
// within the pixel footprint by the supplied RNG.
func (c *PinholeCamera) JitteredCameraRay(rng *core.RNG, x, y int) core.Ray {
	jitter := rng.Vec2()
	s := (float64(x) + jitter.X) / float64(c.width)
	t := (float64(y) + jitter.Y) / float64(c.height)
	target := c.lowerLeft.Add(c.horizontal.Multiply(s)).Add(c.up.Multiply(t))
	return core.NewRayTo(c.eye, target)
}

// WorldToImage implements Camera: projects a world point back onto the
// image plane, used by the light subpath's connect-to-camera step.
func (c *PinholeCamera) WorldToImage(p core.Vec3) (int, int, bool) {
	toPoint := p.Subtract(c.eye)
	depth := toPoint.Dot(c.forward)
	if depth <= 1e-8 {
		return 0, 0, false
	}

	// Project toPoint onto the image plane at unit distance along forward,
	// then express it in the horizontal/vertical basis used to build rays.
	planePoint := c.eye.Add(toPoint.Multiply(1.0 / depth))
	rel := planePoint.Subtract(c.lowerLeft)

	horizLen2 := c.horizontal.LengthSquared()
	vertLen2 := c.up.LengthSquared()
	if horizLen2 == 0 || vertLen2 == 0 {
		return 0, 0, false
	}
	s := rel.Dot(c.horizontal) / horizLen2
	t := rel.Dot(c.up) / vertLen2

	if s < 0 || s >= 1 || t < 0 || t >= 1 {
		return 0, 0, false
	}
	return int(s * float64(c.width)), int(t * float64(c.height)), true
}

// ImagePlaneDistance implements Camera.
func (c *PinholeCamera) ImagePlaneDistance() float64 { return c.planeDistance }

// Position implements Camera.
func (c *PinholeCamera) Position() core.Vec3 { return c.eye }

// Forward implements Camera.
func (c *PinholeCamera) Forward() core.Vec3 { return c.forward }

// Viewport implements Camera.
func (c *PinholeCamera) Viewport() (int, int) { return c.width, c.height }

// ImageToSolidAngle implements Camera: the solid angle subtended by one
// pixel of the image plane at normal incidence. Off axis a pixel subtends
// this value times cos^3(theta), the standard perspective-camera falloff,
// and a ray's solid-angle sampling density is the reciprocal of that.
func (c *PinholeCamera) ImageToSolidAngle() float64 { return c.imageToSolidAngle }
