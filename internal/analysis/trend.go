package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/verdantworks/verdant/internal/config"
	"github.com/verdantworks/verdant/internal/domain"
)

// TrendStage detects fast environmental drift: a least-squares slope
// over the rolling history window, compared per factor against the
// configured per-hour rise and fall rates. Pure computation over the
// history snapshot, no model involved.
type TrendStage struct {
	window time.Duration
	rates  map[domain.Factor]config.TrendRate
}

// NewTrendStage creates the trend detection stage.
func NewTrendStage(window time.Duration, rates map[domain.Factor]config.TrendRate) *TrendStage {
	return &TrendStage{window: window, rates: rates}
}

func (s *TrendStage) Name() string { return "trend" }

// minTrendPoints is the minimum readings needed before a slope is
// considered meaningful.
const minTrendPoints = 3

func (s *TrendStage) Evaluate(ctx context.Context, in Input) ([]domain.InsightCandidate, error) {
	cutoff := time.Now().Add(-s.window)

	var out []domain.InsightCandidate
	for _, factor := range domain.Factors() {
		rate, monitored := s.rates[factor]
		if !monitored {
			continue
		}

		slope, points, ok := slopePerHour(in.History, factor, cutoff)
		if !ok || points < minTrendPoints {
			continue
		}

		var direction string
		var limit float64
		switch {
		case slope > 0 && slope > rate.Rise:
			direction, limit = "rising", rate.Rise
		case slope < 0 && -slope > rate.Fall:
			direction, limit = "falling", rate.Fall
		default:
			continue
		}

		severity := domain.SeverityWarning
		magnitude := slope
		if magnitude < 0 {
			magnitude = -magnitude
		}
		if magnitude >= 2*limit {
			severity = domain.SeverityCritical
		}

		out = append(out, domain.InsightCandidate{
			UnitID:    in.Unit.ID,
			Type:      domain.InsightTrend,
			Severity:  severity,
			SourceKey: fmt.Sprintf("%s:trend:%s", in.Unit.ID, factor),
			Timestamp: time.Now().UTC(),
			Payload: map[string]any{
				"factor":         string(factor),
				"direction":      direction,
				"slope_per_hour": slope,
				"limit_per_hour": limit,
				"samples":        points,
			},
		})
	}
	return out, nil
}

// slopePerHour fits a least-squares line through the factor's readings
// at or after cutoff and returns its slope in units per hour.
func slopePerHour(history domain.ReadingSeries, factor domain.Factor, cutoff time.Time) (slope float64, points int, ok bool) {
	var xs, ys []float64
	var origin time.Time

	for _, reading := range history {
		if reading.Timestamp.Before(cutoff) {
			continue
		}
		value, present := reading.Values[factor]
		if !present {
			continue
		}
		if origin.IsZero() {
			origin = reading.Timestamp
		}
		xs = append(xs, reading.Timestamp.Sub(origin).Hours())
		ys = append(ys, value)
	}

	n := float64(len(xs))
	if len(xs) < 2 {
		return 0, len(xs), false
	}

	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, len(xs), false
	}
	return (n*sumXY - sumX*sumY) / denom, len(xs), true
}
