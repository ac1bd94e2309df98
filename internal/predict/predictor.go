package predict

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/verdantworks/verdant/internal/domain"
	"github.com/verdantworks/verdant/internal/gates"
)

// RawPrediction is the unfiltered output of a trained model.
type RawPrediction struct {
	Value        float64            `json:"value"`
	Distribution map[string]float64 `json:"distribution,omitempty"`
	Confidence   float64            `json:"confidence"`
	Explanation  string             `json:"explanation"`
}

// ModelClient invokes the external inference service. Implementations
// must not retry: a failed call is a hard error for the calling stage,
// never converted into a gate failure.
type ModelClient interface {
	Infer(ctx context.Context, modelType domain.ModelType, features map[string]float64) (RawPrediction, error)
	GateMetrics(ctx context.Context, modelType domain.ModelType) (map[string]float64, error)
}

// Predictor wraps one trained model behind its quality gate. The gate
// metric snapshot is replaced whole on retraining; Predict reads the
// pointer exactly once so a swap mid-call is never observed partially.
type Predictor struct {
	modelType domain.ModelType
	gate      gates.Expr
	client    ModelClient
	metrics   atomic.Pointer[gates.Metrics]
}

// NewPredictor creates a predictor for one model type with its
// configured gate expression. Until the first metrics update the
// predictor reports not-evaluated and returns safe defaults.
func NewPredictor(modelType domain.ModelType, gate gates.Expr, client ModelClient) *Predictor {
	return &Predictor{
		modelType: modelType,
		gate:      gate,
		client:    client,
	}
}

// ModelType returns the model this predictor is bound to.
func (p *Predictor) ModelType() domain.ModelType { return p.modelType }

// UpdateMetrics installs a fresh metric snapshot after retraining and
// returns the derived readiness.
func (p *Predictor) UpdateMetrics(values map[string]float64) bool {
	snapshot := gates.EvaluateMetrics(p.modelType, values, p.gate)
	p.metrics.Store(&snapshot)
	log.Info().Str("model", string(p.modelType)).Bool("ready", snapshot.Ready).
		Strs("reasons", snapshot.Reasons).Msg("gate metrics replaced")
	return snapshot.Ready
}

// RefreshMetrics pulls the latest training metrics from the model
// service and installs them.
func (p *Predictor) RefreshMetrics(ctx context.Context) error {
	values, err := p.client.GateMetrics(ctx, p.modelType)
	if err != nil {
		return fmt.Errorf("fetch gate metrics for %s: %w", p.modelType, err)
	}
	p.UpdateMetrics(values)
	return nil
}

// Ready reports the current gate state without touching the model.
func (p *Predictor) Ready() bool {
	snapshot := p.metrics.Load()
	return snapshot != nil && snapshot.Ready
}

// Predict runs gated inference. When the gate has not cleared it
// returns the model type's safe default at confidence zero with a
// reason naming the failed metrics; that is a defined outcome, not an
// error. An inference failure on a ready model is returned as an
// error.
func (p *Predictor) Predict(ctx context.Context, features map[string]float64, fallback float64) (domain.Prediction, error) {
	snapshot := p.metrics.Load()

	if snapshot == nil {
		return p.safeDefault(fallback, "model not yet evaluated"), nil
	}
	if !snapshot.Ready {
		reason := fmt.Sprintf("gate %s not cleared: %s", p.gate, strings.Join(snapshot.Reasons, "; "))
		return p.safeDefault(fallback, reason), nil
	}

	raw, err := p.client.Infer(ctx, p.modelType, features)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("inference failed for %s: %w", p.modelType, err)
	}

	return domain.Prediction{
		Value:        raw.Value,
		Distribution: raw.Distribution,
		Confidence:   raw.Confidence,
		Reasoning:    raw.Explanation,
	}, nil
}

// safeDefault builds the declared non-authoritative result for a gate
// failure. No heuristic substitute is fabricated: the threshold model
// falls back to the caller-supplied baseline value, classifiers to
// zeroed probabilities, the duration model to zero days, the timing
// model to midnight (encoded as 0 minutes after 00:00).
func (p *Predictor) safeDefault(fallback float64, reason string) domain.Prediction {
	pred := domain.Prediction{Confidence: 0, Reasoning: reason}
	switch p.modelType {
	case domain.ModelThreshold:
		pred.Value = fallback
	case domain.ModelResponse:
		pred.Distribution = map[string]float64{}
	case domain.ModelDuration, domain.ModelTiming:
		pred.Value = 0
	}
	return pred
}
