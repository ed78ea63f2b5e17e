package scene

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oxbowlabs/vcmtracer/pkg/core"
)

func TestUniformIBL_EmitEntersScene(t *testing.T) {
	bounds := BoundingSphere{Center: core.NewVec3(0, 0, 0), Radius: 10}
	ibl := NewUniformIBL(core.NewVec3(1, 1, 1), bounds)
	rng := core.NewRNG(3)

	for i := 0; i < 50; i++ {
		sample := ibl.Emit(rng)
		assert.Greater(t, sample.EmissionPdfW, 0.0)
		assert.Greater(t, sample.DirectionPdfA, 0.0)
		assert.InDelta(t, 1.0, sample.Direction.Length(), 1e-6)
		// the emission origin must lie on the bounding sphere's enclosing disk
		distFromCenter := sample.Position.Subtract(bounds.Center).Length()
		assert.LessOrEqual(t, distFromCenter, bounds.Radius*math.Sqrt2+1e-6)
	}
}

func TestUniformIBL_SampleDirectStaysInHemisphere(t *testing.T) {
	bounds := BoundingSphere{Radius: 5}
	ibl := NewUniformIBL(core.NewVec3(2, 2, 2), bounds)
	rng := core.NewRNG(9)
	normal := core.NewVec3(0, 1, 0)

	for i := 0; i < 50; i++ {
		sample := ibl.SampleDirect(rng, core.NewVec3(0, 0, 0), normal)
		if sample.DirectionPdfA == 0 {
			continue
		}
		assert.GreaterOrEqual(t, sample.Direction.Dot(normal), 0.0)
	}
}
