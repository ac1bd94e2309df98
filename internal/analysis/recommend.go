package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/verdantworks/verdant/internal/domain"
	"github.com/verdantworks/verdant/internal/predict"
)

// RecommendationStage synthesizes actionable recommendations from the
// candidates the earlier stages produced this tick. Runs last in the
// stage order. Only recommendations at or above the configured
// severity are persisted; the timing model, when its gate is open,
// annotates each action with the best time of day to perform it.
type RecommendationStage struct {
	timing      *predict.Predictor
	minSeverity domain.Severity
}

// NewRecommendationStage creates the synthesis stage.
func NewRecommendationStage(timing *predict.Predictor, minSeverity domain.Severity) *RecommendationStage {
	return &RecommendationStage{timing: timing, minSeverity: minSeverity}
}

func (s *RecommendationStage) Name() string { return "recommendation" }

func (s *RecommendationStage) Evaluate(ctx context.Context, in Input) ([]domain.InsightCandidate, error) {
	if len(in.Prior) == 0 {
		return nil, nil
	}

	actionTime := "00:00"
	if s.timing != nil {
		pred, err := s.timing.Predict(ctx, featuresFrom(in.Unit), 0)
		if err != nil {
			return nil, fmt.Errorf("timing prediction for unit %s: %w", in.Unit.ID, err)
		}
		if pred.Authoritative() {
			actionTime = minutesToClock(pred.Value)
		} else {
			log.Debug().Str("unit", in.Unit.ID).Str("reason", pred.Reasoning).
				Msg("timing model gated out, recommending default time")
		}
	}

	var out []domain.InsightCandidate
	for _, trigger := range in.Prior {
		action := actionFor(trigger)
		if action == "" {
			continue
		}
		if trigger.Severity.Rank() > s.minSeverity.Rank() {
			continue
		}
		out = append(out, domain.InsightCandidate{
			UnitID:    in.Unit.ID,
			Type:      domain.InsightRecommendation,
			Severity:  trigger.Severity,
			SourceKey: in.Unit.ID + ":recommendation",
			Timestamp: time.Now().UTC(),
			Payload: map[string]any{
				"action":       action,
				"trigger_type": string(trigger.Type),
				"trigger_key":  trigger.SourceKey,
				"best_time":    actionTime,
			},
		})
	}
	return out, nil
}

func actionFor(trigger domain.InsightCandidate) string {
	switch trigger.Type {
	case domain.InsightRisk:
		condition, _ := trigger.Payload["condition"].(string)
		return fmt.Sprintf("inspect unit for early signs of %s and isolate if confirmed", condition)
	case domain.InsightStress:
		worst, _ := trigger.Payload["worst_factor"].(string)
		return fmt.Sprintf("bring %s back toward its optimal range", worst)
	case domain.InsightTrend:
		factor, _ := trigger.Payload["factor"].(string)
		direction, _ := trigger.Payload["direction"].(string)
		return fmt.Sprintf("check actuators: %s is %s faster than expected", factor, direction)
	case domain.InsightOptimization:
		return "apply the recommended environment targets to the unit controller"
	case domain.InsightTransition:
		return "prepare the unit for its upcoming growth stage change"
	default:
		return ""
	}
}

// minutesToClock renders minutes-after-midnight as HH:MM.
func minutesToClock(minutes float64) string {
	if minutes < 0 {
		minutes = 0
	}
	total := int(minutes) % (24 * 60)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
