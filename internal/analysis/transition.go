package analysis

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/verdantworks/verdant/internal/domain"
	"github.com/verdantworks/verdant/internal/predict"
)

// TransitionStage predicts days until the unit's next growth stage
// change. Emits only when the prediction is near (within the horizon)
// and the model is confident about it.
type TransitionStage struct {
	predictor     *predict.Predictor // duration model
	horizonDays   float64
	minConfidence float64
}

// NewTransitionStage creates the transition prediction stage.
func NewTransitionStage(predictor *predict.Predictor, horizonDays, minConfidence float64) *TransitionStage {
	return &TransitionStage{
		predictor:     predictor,
		horizonDays:   horizonDays,
		minConfidence: minConfidence,
	}
}

func (s *TransitionStage) Name() string { return "transition" }

func (s *TransitionStage) Evaluate(ctx context.Context, in Input) ([]domain.InsightCandidate, error) {
	pred, err := s.predictor.Predict(ctx, featuresFrom(in.Unit), 0)
	if err != nil {
		return nil, fmt.Errorf("transition prediction for unit %s: %w", in.Unit.ID, err)
	}
	if !pred.Authoritative() || pred.Confidence <= s.minConfidence {
		return nil, nil
	}

	days := pred.Value
	if days > s.horizonDays {
		return nil, nil
	}

	return []domain.InsightCandidate{{
		UnitID:    in.Unit.ID,
		Type:      domain.InsightTransition,
		Severity:  domain.SeverityInfo,
		SourceKey: in.Unit.ID + ":transition",
		Timestamp: time.Now().UTC(),
		Payload: map[string]any{
			"days_until_transition": math.Max(days, 0),
			"current_stage":         in.Unit.GrowthStage,
			"confidence":            pred.Confidence,
			"reasoning":             pred.Reasoning,
		},
	}}, nil
}
