package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/verdantworks/verdant/internal/domain"
	"github.com/verdantworks/verdant/internal/predict"
)

// RiskStage flags adverse-condition likelihood above a configured
// probability. Backed by the gated response classifier; while the
// model's gate is closed the stage emits nothing rather than guessing.
type RiskStage struct {
	predictor *predict.Predictor
	threshold float64
}

// NewRiskStage creates the risk scoring stage. threshold is the
// minimum class probability that produces an insight.
func NewRiskStage(predictor *predict.Predictor, threshold float64) *RiskStage {
	return &RiskStage{predictor: predictor, threshold: threshold}
}

func (s *RiskStage) Name() string { return "risk" }

func (s *RiskStage) Evaluate(ctx context.Context, in Input) ([]domain.InsightCandidate, error) {
	pred, err := s.predictor.Predict(ctx, featuresFrom(in.Unit), 0)
	if err != nil {
		return nil, fmt.Errorf("risk prediction for unit %s: %w", in.Unit.ID, err)
	}
	if !pred.Authoritative() {
		log.Debug().Str("unit", in.Unit.ID).Str("reason", pred.Reasoning).
			Msg("risk model gated out, skipping")
		return nil, nil
	}

	var out []domain.InsightCandidate
	for condition, probability := range pred.Distribution {
		if condition == "healthy" || probability < s.threshold {
			continue
		}
		severity := domain.SeverityWarning
		if probability >= 0.75 {
			severity = domain.SeverityCritical
		}
		out = append(out, domain.InsightCandidate{
			UnitID:    in.Unit.ID,
			Type:      domain.InsightRisk,
			Severity:  severity,
			SourceKey: fmt.Sprintf("%s:risk:%s", in.Unit.ID, condition),
			Timestamp: time.Now().UTC(),
			Payload: map[string]any{
				"condition":   condition,
				"probability": probability,
				"confidence":  pred.Confidence,
				"reasoning":   pred.Reasoning,
			},
		})
	}
	return out, nil
}
