package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/verdantworks/verdant/internal/domain"
	"github.com/verdantworks/verdant/internal/predict"
	"github.com/verdantworks/verdant/internal/thresholds"
)

// OptimizationStage measures how much the unit's environment score
// would improve if every factor moved to its resolved recommended
// target, and emits when the delta clears a configured margin.
type OptimizationStage struct {
	resolver    *thresholds.Resolver
	predictor   *predict.Predictor // threshold model, may be gated out
	blendWeight float64
	margin      float64
}

// NewOptimizationStage creates the optimization scoring stage.
func NewOptimizationStage(resolver *thresholds.Resolver, predictor *predict.Predictor, blendWeight, margin float64) *OptimizationStage {
	return &OptimizationStage{
		resolver:    resolver,
		predictor:   predictor,
		blendWeight: blendWeight,
		margin:      margin,
	}
}

func (s *OptimizationStage) Name() string { return "optimization" }

func (s *OptimizationStage) Evaluate(ctx context.Context, in Input) ([]domain.InsightCandidate, error) {
	unit := in.Unit
	currentScore := environmentScore(s.resolver, unit, unit.Readings)

	// Resolve a recommended target per factor. When the threshold
	// model's gate is closed Predict hands back the baseline optimal
	// at confidence zero, so the blend degrades to the catalog value.
	targets := make(map[domain.Factor]float64, len(unit.Readings))
	for factor := range unit.Readings {
		baseline := s.resolver.RangeFor(unit.PlantType, unit.GrowthStage, factor)

		features := featuresFrom(unit)
		features["factor_"+string(factor)] = 1
		pred, err := s.predictor.Predict(ctx, features, baseline.Optimal)
		if err != nil {
			return nil, fmt.Errorf("threshold prediction for unit %s factor %s: %w", unit.ID, factor, err)
		}

		var predicted *float64
		if pred.Authoritative() {
			predicted = &pred.Value
		}
		targets[factor] = thresholds.Resolve(baseline, predicted, s.blendWeight)
	}

	optimizedScore := environmentScore(s.resolver, unit, targets)
	delta := optimizedScore - currentScore
	if delta <= s.margin {
		return nil, nil
	}

	severity := domain.SeverityInfo
	if delta >= 25 {
		severity = domain.SeverityWarning
	}

	payloadTargets := make(map[string]any, len(targets))
	for factor, target := range targets {
		payloadTargets[string(factor)] = target
	}

	return []domain.InsightCandidate{{
		UnitID:    unit.ID,
		Type:      domain.InsightOptimization,
		Severity:  severity,
		SourceKey: unit.ID + ":optimization",
		Timestamp: time.Now().UTC(),
		Payload: map[string]any{
			"current_score":   currentScore,
			"optimized_score": optimizedScore,
			"delta":           delta,
			"targets":         payloadTargets,
		},
	}}, nil
}
