package analysis

import (
	"context"

	"github.com/verdantworks/verdant/internal/domain"
)

// Input is the read-only evaluation context handed to every stage for
// one unit in one tick. Prior carries the candidates emitted by the
// stages that ran earlier in the same evaluation; only the synthesis
// stage consumes it.
type Input struct {
	Unit    domain.UnitSnapshot
	History domain.ReadingSeries
	Prior   []domain.InsightCandidate
}

// Stage is one independent evaluator in the decision pipeline. Stages
// share nothing but the read-only input; each returns its own
// candidate list. A stage error is isolated by the scheduler to that
// stage and unit for the tick.
type Stage interface {
	Name() string
	Evaluate(ctx context.Context, in Input) ([]domain.InsightCandidate, error)
}

// featuresFrom flattens a unit snapshot into the numeric feature map
// handed to the prediction models.
func featuresFrom(unit domain.UnitSnapshot) map[string]float64 {
	features := make(map[string]float64, len(unit.Readings))
	for factor, value := range unit.Readings {
		features[string(factor)] = value
	}
	return features
}
