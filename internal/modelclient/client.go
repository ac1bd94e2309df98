package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/verdantworks/verdant/internal/config"
	"github.com/verdantworks/verdant/internal/domain"
	"github.com/verdantworks/verdant/internal/predict"
)

// Client talks to the external model inference service over JSON HTTP.
// A circuit breaker guards the service and a token bucket bounds the
// request rate; a tripped breaker or failed call surfaces as a hard
// error to the calling stage, never as a gate failure.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// New creates a model service client from configuration.
func New(cfg config.ModelServiceConfig) *Client {
	settings := gobreaker.Settings{
		Name:        "model-service",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("model service breaker state changed")
		},
	}

	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
	}
}

type inferRequest struct {
	ModelType string             `json:"model_type"`
	Features  map[string]float64 `json:"features"`
}

type inferResponse struct {
	Value        float64            `json:"value"`
	Distribution map[string]float64 `json:"distribution,omitempty"`
	Confidence   float64            `json:"confidence"`
	Explanation  string             `json:"explanation"`
}

// Infer requests a prediction. No retries: the scheduler's failure
// isolation handles a failed call at the stage level.
func (c *Client) Infer(ctx context.Context, modelType domain.ModelType, features map[string]float64) (predict.RawPrediction, error) {
	body, err := json.Marshal(inferRequest{ModelType: string(modelType), Features: features})
	if err != nil {
		return predict.RawPrediction{}, fmt.Errorf("failed to marshal inference request: %w", err)
	}

	var resp inferResponse
	err = c.do(ctx, http.MethodPost, "/v1/infer", bytes.NewReader(body), &resp)
	if err != nil {
		return predict.RawPrediction{}, err
	}

	return predict.RawPrediction{
		Value:        resp.Value,
		Distribution: resp.Distribution,
		Confidence:   resp.Confidence,
		Explanation:  resp.Explanation,
	}, nil
}

// GateMetrics fetches the quality metrics from the model's most
// recent training run.
func (c *Client) GateMetrics(ctx context.Context, modelType domain.ModelType) (map[string]float64, error) {
	var resp struct {
		Metrics map[string]float64 `json:"metrics"`
	}
	err := c.do(ctx, http.MethodGet, "/v1/models/"+string(modelType)+"/metrics", nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Metrics, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	_, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		res, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("model service request failed: %w", err)
		}
		defer res.Body.Close()

		if res.StatusCode != http.StatusOK {
			payload, _ := io.ReadAll(io.LimitReader(res.Body, 512))
			return nil, fmt.Errorf("model service returned %d: %s", res.StatusCode, payload)
		}
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode model service response: %w", err)
		}
		return nil, nil
	})
	return err
}

// RefreshAll pulls fresh gate metrics for every predictor, typically
// on startup and after a retraining notification.
func RefreshAll(ctx context.Context, predictors []*predict.Predictor) {
	for _, p := range predictors {
		if err := p.RefreshMetrics(ctx); err != nil {
			log.Warn().Err(err).Str("model", string(p.ModelType())).
				Msg("failed to refresh gate metrics, predictor stays gated")
		}
	}
}

var _ predict.ModelClient = (*Client)(nil)
