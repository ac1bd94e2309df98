package gates

import (
	"time"

	"github.com/verdantworks/verdant/internal/domain"
)

// Metrics is the quality metric set produced by the most recent
// training run of one model. Replaced whole on retraining, read-only
// during inference; Ready is derived once at construction by the
// model's configured gate expression.
type Metrics struct {
	ModelType   domain.ModelType
	Values      map[string]float64
	Ready       bool
	Reasons     []string // failing comparisons when not ready
	EvaluatedAt time.Time
}

// EvaluateMetrics derives a Metrics snapshot from raw metric values
// and the model's gate expression.
func EvaluateMetrics(modelType domain.ModelType, values map[string]float64, gate Expr) Metrics {
	copied := make(map[string]float64, len(values))
	for k, v := range values {
		copied[k] = v
	}
	ready, reasons := gate.Evaluate(copied)
	return Metrics{
		ModelType:   modelType,
		Values:      copied,
		Ready:       ready,
		Reasons:     reasons,
		EvaluatedAt: time.Now().UTC(),
	}
}
