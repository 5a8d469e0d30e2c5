package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeMixedDelays(t *testing.T) {
	s, ok := Summarize("R1", []float64{2, -1, 5})
	require.True(t, ok)

	assert.Equal(t, "R1", s.RouteLongName)
	assert.InDelta(t, 2.0, s.AverageDelay, 1e-9)
	// population stdev of [2, -1, 5] = sqrt(6) ≈ 2.449
	assert.InDelta(t, math.Sqrt(6), s.StandardDeviation, 1e-9)
	assert.InDelta(t, 5.0, s.MostDelayed, 1e-9)
	assert.InDelta(t, -1.0, s.MostEarly, 1e-9)
}

func TestSummarizeSingleValue(t *testing.T) {
	s, ok := Summarize("R2", []float64{-3.5})
	require.True(t, ok)
	assert.InDelta(t, -3.5, s.AverageDelay, 1e-9)
	assert.InDelta(t, 0.0, s.StandardDeviation, 1e-9)
	assert.InDelta(t, -3.5, s.MostDelayed, 1e-9)
	assert.InDelta(t, -3.5, s.MostEarly, 1e-9)
}

func TestSummarizeUniformDelays(t *testing.T) {
	s, ok := Summarize("R3", []float64{4, 4, 4, 4})
	require.True(t, ok)
	assert.InDelta(t, 4.0, s.AverageDelay, 1e-9)
	assert.InDelta(t, 0.0, s.StandardDeviation, 1e-9)
}

func TestSummarizeEmptyRouteOmitted(t *testing.T) {
	_, ok := Summarize("ghost route", nil)
	assert.False(t, ok)
}

func TestSummarizeIsPopulationNotSample(t *testing.T) {
	// sample stdev of [1, 3] would be sqrt(2); population is 1
	s, ok := Summarize("R4", []float64{1, 3})
	require.True(t, ok)
	assert.InDelta(t, 1.0, s.StandardDeviation, 1e-9)
}
