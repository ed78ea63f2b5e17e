package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPowerHeuristic_ZeroPdfContributesNothing(t *testing.T) {
	assert.Zero(t, PowerHeuristic(1, 0, 1, 0.5))
}

func TestPowerHeuristic_DominantStrategyApproachesOne(t *testing.T) {
	w := PowerHeuristic(1, 100, 1, 0.01)
	assert.InDelta(t, 1.0, w, 1e-6)

	w = PowerHeuristic(1, 0.01, 1, 100)
	assert.InDelta(t, 0.0, w, 1e-6)
}

func TestPowerHeuristic_WeightsOfBothStrategiesSumToOne(t *testing.T) {
	cases := []struct{ fPdf, gPdf float64 }{
		{0.5, 0.5},
		{1.0, 0.25},
		{0.001, 10},
		{3, 3},
	}
	for _, c := range cases {
		wf := PowerHeuristic(1, c.fPdf, 1, c.gPdf)
		wg := PowerHeuristic(1, c.gPdf, 1, c.fPdf)
		assert.InDelta(t, 1.0, wf+wg, 1e-12, "pdfs %v", c)
	}
}

func TestPowerHeuristic_EqualPdfsSplitEvenly(t *testing.T) {
	assert.InDelta(t, 0.5, PowerHeuristic(1, 0.7, 1, 0.7), 1e-12)
}

func TestPowerHeuristic_SampleCountsScaleDensities(t *testing.T) {
	// Four samples of a strategy at pdf p weigh like one sample at 4p.
	assert.InDelta(t, PowerHeuristic(1, 2.0, 1, 1.0), PowerHeuristic(4, 0.5, 1, 1.0), 1e-12)
}
