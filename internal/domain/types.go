package domain

import (
	"time"
)

// Factor identifies one monitored environmental factor.
type Factor string

const (
	FactorTemperature  Factor = "temperature"
	FactorHumidity     Factor = "humidity"
	FactorSoilMoisture Factor = "soil_moisture"
	FactorCO2          Factor = "co2"
)

// Factors lists every monitored factor in a stable order.
func Factors() []Factor {
	return []Factor{FactorTemperature, FactorHumidity, FactorSoilMoisture, FactorCO2}
}

// Reading is one timestamped set of sensor values for a unit.
type Reading struct {
	Timestamp time.Time          `json:"ts" db:"ts"`
	Values    map[Factor]float64 `json:"values" db:"values"`
}

// ReadingSeries is a time-ordered reading history (oldest first).
type ReadingSeries []Reading

// UnitSnapshot is the read-only view of one growth unit taken at the
// start of a tick. Lifecycle of the underlying unit is owned by the
// surrounding application; the pipeline never mutates it.
type UnitSnapshot struct {
	ID          string             `json:"id" db:"id"`
	Name        string             `json:"name" db:"name"`
	PlantType   string             `json:"plant_type" db:"plant_type"`
	GrowthStage string             `json:"growth_stage" db:"growth_stage"`
	Readings    map[Factor]float64 `json:"readings"`
	ObservedAt  time.Time          `json:"observed_at"`
}

// ThresholdRange bounds one environmental factor for a plant type and
// growth stage. Immutable once loaded from the catalog.
type ThresholdRange struct {
	Min     float64 `json:"min" yaml:"min"`
	Max     float64 `json:"max" yaml:"max"`
	Optimal float64 `json:"optimal" yaml:"optimal"`
	TooLow  float64 `json:"too_low" yaml:"too_low"`
	TooHigh float64 `json:"too_high" yaml:"too_high"`
}

// ModelType identifies one of the trained decision models.
type ModelType string

const (
	ModelThreshold ModelType = "threshold" // optimal environmental value regression
	ModelResponse  ModelType = "response"  // adverse-condition likelihood classifier
	ModelDuration  ModelType = "duration"  // days-until-transition regression
	ModelTiming    ModelType = "timing"    // time-of-day action ranking
)

// Prediction is the output of a gated predictor. Confidence is zero
// whenever the owning model's gate did not clear; in that case Value
// and Distribution hold the declared safe default for the model type
// and Reasoning names the failed metrics.
type Prediction struct {
	Value        float64            `json:"value"`
	Distribution map[string]float64 `json:"distribution,omitempty"`
	Confidence   float64            `json:"confidence"`
	Reasoning    string             `json:"reasoning"`
}

// Authoritative reports whether the prediction came from a ready model
// rather than a gate-failure safe default.
func (p Prediction) Authoritative() bool { return p.Confidence > 0 }

// TimeRange is a half-open query window [From, To).
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the range. A zero From or To
// leaves that side unbounded.
func (tr TimeRange) Contains(t time.Time) bool {
	if !tr.From.IsZero() && t.Before(tr.From) {
		return false
	}
	if !tr.To.IsZero() && !t.Before(tr.To) {
		return false
	}
	return true
}
