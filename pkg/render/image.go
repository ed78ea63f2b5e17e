// Package render is the parallel driver: a fixed pool of workers, each
// owning a private image and PRNG, executing integrator passes until a
// soft wall-clock deadline and merging results into one shared image under
// a spinlock.
package render

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"sync/atomic"

	"github.com/oxbowlabs/vcmtracer/pkg/core"
)

// Image is an accumulated-radiance buffer: W*H linear RGB values.
type Image struct {
	Width, Height int
	Pixels        []core.Vec3
}

// NewImage allocates a zeroed radiance buffer.
func NewImage(width, height int) *Image {
	return &Image{Width: width, Height: height, Pixels: make([]core.Vec3, width*height)}
}

// AddImage accumulates other into im pixel-wise. The caller is responsible
// for holding the image lock when im is the shared buffer.
func (im *Image) AddImage(other *Image) {
	for i, p := range other.Pixels {
		im.Pixels[i] = im.Pixels[i].Add(p)
	}
}

// Scale multiplies every pixel by s; used exactly once per render for the
// final normalisation by the evaluated path count.
func (im *Image) Scale(s float64) {
	for i := range im.Pixels {
		im.Pixels[i] = im.Pixels[i].Multiply(s)
	}
}

// EncodePNG writes the buffer as an 8-bit PNG. Linear radiance is clamped
// and sRGB-encoded; anything beyond that (tone mapping proper) is out of
// scope.
func (im *Image) EncodePNG(w io.Writer) error {
	out := image.NewNRGBA(image.Rect(0, 0, im.Width, im.Height))
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			p := im.Pixels[y*im.Width+x].Clamp(0, 1)
			// Image rows run bottom-up in the camera's raster convention.
			out.SetNRGBA(x, im.Height-1-y, color.NRGBA{
				R: linearToSRGB8(p.X),
				G: linearToSRGB8(p.Y),
				B: linearToSRGB8(p.Z),
				A: 255,
			})
		}
	}
	return png.Encode(w, out)
}

func linearToSRGB8(c float64) uint8 {
	var s float64
	if c <= 0.0031308 {
		s = c * 12.92
	} else {
		s = 1.055*math.Pow(c, 1/2.4) - 0.055
	}
	return uint8(math.Round(math.Min(1, math.Max(0, s)) * 255))
}

// SpinLock guards the shared image during end-of-pass merges. The critical
// section is a single O(W*H) addition per worker over the whole render, so
// a busy-wait lock stays cheaper than parking through the scheduler.
type SpinLock struct {
	held atomic.Bool
}

// Lock spins until the lock is acquired.
func (l *SpinLock) Lock() {
	for !l.held.CompareAndSwap(false, true) {
	}
}

// Unlock releases the lock.
func (l *SpinLock) Unlock() {
	l.held.Store(false)
}
