package analysis

import (
	"context"
	"time"

	"github.com/verdantworks/verdant/internal/domain"
	"github.com/verdantworks/verdant/internal/thresholds"
)

// StressStage maps the unit's current readings to a 0-100 health
// score and emits an insight banded by score. A score above 80 means
// a healthy unit and produces nothing.
type StressStage struct {
	resolver *thresholds.Resolver
}

// NewStressStage creates the stress scoring stage.
func NewStressStage(resolver *thresholds.Resolver) *StressStage {
	return &StressStage{resolver: resolver}
}

func (s *StressStage) Name() string { return "stress" }

func (s *StressStage) Evaluate(ctx context.Context, in Input) ([]domain.InsightCandidate, error) {
	score := environmentScore(s.resolver, in.Unit, in.Unit.Readings)

	var severity domain.Severity
	switch {
	case score > 80:
		return nil, nil
	case score > 60:
		severity = domain.SeverityInfo
	case score >= 40:
		severity = domain.SeverityWarning
	default:
		severity = domain.SeverityCritical
	}

	// Name the worst factor so the alert is actionable.
	worstFactor := ""
	worstScore := 101.0
	for _, factor := range domain.Factors() {
		value, present := in.Unit.Readings[factor]
		if !present {
			continue
		}
		rng := s.resolver.RangeFor(in.Unit.PlantType, in.Unit.GrowthStage, factor)
		if fs := factorScore(value, rng); fs < worstScore {
			worstScore = fs
			worstFactor = string(factor)
		}
	}

	return []domain.InsightCandidate{{
		UnitID:    in.Unit.ID,
		Type:      domain.InsightStress,
		Severity:  severity,
		SourceKey: in.Unit.ID + ":stress",
		Timestamp: time.Now().UTC(),
		Payload: map[string]any{
			"health_score": score,
			"worst_factor": worstFactor,
		},
	}}, nil
}
