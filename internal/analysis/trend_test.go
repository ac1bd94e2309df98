package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdantworks/verdant/internal/config"
	"github.com/verdantworks/verdant/internal/domain"
)

func seriesWithSlope(factor domain.Factor, start float64, perHour float64, points int) domain.ReadingSeries {
	var series domain.ReadingSeries
	base := time.Now().Add(-time.Duration(points-1) * time.Hour)
	for i := 0; i < points; i++ {
		series = append(series, domain.Reading{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Values:    map[domain.Factor]float64{factor: start + perHour*float64(i)},
		})
	}
	return series
}

func trendStage() *TrendStage {
	return NewTrendStage(24*time.Hour, map[domain.Factor]config.TrendRate{
		domain.FactorTemperature: {Rise: 0.5, Fall: 1.0},
		domain.FactorHumidity:    {Rise: 3.0, Fall: 2.0},
	})
}

func TestTrendStageDetectsWarming(t *testing.T) {
	in := Input{
		Unit:    domain.UnitSnapshot{ID: "u1"},
		History: seriesWithSlope(domain.FactorTemperature, 20, 0.8, 6),
	}

	out, err := trendStage().Evaluate(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, domain.InsightTrend, out[0].Type)
	assert.Equal(t, "u1:trend:temperature", out[0].SourceKey)
	assert.Equal(t, "rising", out[0].Payload["direction"])
	assert.InDelta(t, 0.8, out[0].Payload["slope_per_hour"].(float64), 0.01)
	assert.Equal(t, domain.SeverityWarning, out[0].Severity)
}

func TestTrendStageDetectsHumidityDrop(t *testing.T) {
	in := Input{
		Unit:    domain.UnitSnapshot{ID: "u1"},
		History: seriesWithSlope(domain.FactorHumidity, 65, -4.5, 6),
	}

	out, err := trendStage().Evaluate(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, "falling", out[0].Payload["direction"])
	assert.Equal(t, domain.SeverityCritical, out[0].Severity, "slope at 2x the limit escalates")
}

func TestTrendStageStableSeriesEmitsNothing(t *testing.T) {
	in := Input{
		Unit:    domain.UnitSnapshot{ID: "u1"},
		History: seriesWithSlope(domain.FactorTemperature, 23, 0.1, 6),
	}

	out, err := trendStage().Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestTrendStageNeedsMinimumSamples(t *testing.T) {
	in := Input{
		Unit:    domain.UnitSnapshot{ID: "u1"},
		History: seriesWithSlope(domain.FactorTemperature, 20, 5, 2),
	}

	out, err := trendStage().Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestTrendStageIgnoresReadingsOutsideWindow(t *testing.T) {
	stale := seriesWithSlope(domain.FactorTemperature, 10, 5, 6)
	for i := range stale {
		stale[i].Timestamp = stale[i].Timestamp.Add(-48 * time.Hour)
	}

	out, err := trendStage().Evaluate(context.Background(), Input{
		Unit: domain.UnitSnapshot{ID: "u1"}, History: stale,
	})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSlopePerHourFitsLine(t *testing.T) {
	series := seriesWithSlope(domain.FactorCO2, 800, 120, 5)
	slope, points, ok := slopePerHour(series, domain.FactorCO2, time.Now().Add(-24*time.Hour))
	require.True(t, ok)
	assert.Equal(t, 5, points)
	assert.InDelta(t, 120, slope, 0.5)
}
