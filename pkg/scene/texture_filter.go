package scene

import (
	"math"

	"github.com/oxbowlabs/vcmtracer/pkg/core"
)

// DefaultTextureFilter is the default TextureFilter: bilinear ("triangle")
// sampling, with an EWA path that widens the footprint along the
// anisotropic axis implied by the uv differentials rather than
// isotropically blurring it. Textures are row-major with V flipped, so
// v=0 addresses the bottom row.
type DefaultTextureFilter struct{}

func wrap01(x float64) float64 {
	f := x - math.Floor(x)
	return f
}

func (DefaultTextureFilter) sample(tex *Texture, u, v float64) core.Vec3 {
	u = wrap01(u)
	v = wrap01(v)
	fx := u * float64(tex.Width)
	fy := (1 - v) * float64(tex.Height)

	x0 := int(math.Floor(fx)) - 1
	y0 := int(math.Floor(fy)) - 1
	tx := fx - math.Floor(fx)
	ty := fy - math.Floor(fy)

	at := func(x, y int) core.Vec3 {
		x = ((x % tex.Width) + tex.Width) % tex.Width
		y = ((y % tex.Height) + tex.Height) % tex.Height
		return tex.Pixels[y*tex.Width+x]
	}

	c00 := at(x0, y0)
	c10 := at(x0+1, y0)
	c01 := at(x0, y0+1)
	c11 := at(x0+1, y0+1)

	top := c00.Multiply(1 - tx).Add(c10.Multiply(tx))
	bottom := c01.Multiply(1 - tx).Add(c11.Multiply(tx))
	return top.Multiply(1 - ty).Add(bottom.Multiply(ty))
}

// Triangle implements TextureFilter with bilinear interpolation.
func (f DefaultTextureFilter) Triangle(tex *Texture, uv core.Vec2) core.Vec3 {
	if tex == nil || tex.Width == 0 || tex.Height == 0 {
		return core.Vec3{}
	}
	return f.sample(tex, uv.X, uv.Y)
}

// EWA implements TextureFilter: a bounded-tap approximation that walks the
// major axis of the uv footprint implied by duv/dx, duv/dy, averaging
// bilinear taps along it. This keeps the anisotropic-footprint behaviour
// without a full elliptical-weighting kernel.
func (f DefaultTextureFilter) EWA(tex *Texture, uv, duvdx, duvdy core.Vec2) core.Vec3 {
	if tex == nil || tex.Width == 0 || tex.Height == 0 {
		return core.Vec3{}
	}

	lenX := math.Hypot(duvdx.X, duvdx.Y)
	lenY := math.Hypot(duvdy.X, duvdy.Y)
	majorLen, minorLen := lenX, lenY
	major := duvdx
	if lenY > lenX {
		majorLen, minorLen = lenY, lenX
		major = duvdy
	}
	if majorLen == 0 {
		return f.Triangle(tex, uv)
	}
	const maxAnisotropy = 8.0
	if minorLen > 0 && majorLen/minorLen > maxAnisotropy {
		majorLen = minorLen * maxAnisotropy
	}

	const numTaps = 4
	sum := core.Vec3{}
	for i := 0; i < numTaps; i++ {
		t := (float64(i)+0.5)/numTaps - 0.5
		sampleUV := core.NewVec2(uv.X+major.X*t, uv.Y+major.Y*t)
		sum = sum.Add(f.sample(tex, sampleUV.X, sampleUV.Y))
	}
	return sum.Multiply(1.0 / numTaps)
}

// SRGBToLinear converts a single gamma-encoded sRGB channel to linear.
func SRGBToLinear(c float64) float64 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

// SRGBToLinearVec3 applies SRGBToLinear component-wise.
func SRGBToLinearVec3(v core.Vec3) core.Vec3 {
	return core.NewVec3(SRGBToLinear(v.X), SRGBToLinear(v.Y), SRGBToLinear(v.Z))
}
