package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/verdantworks/verdant/internal/domain"
	"github.com/verdantworks/verdant/internal/gates"
)

// Config is the full configuration surface of the monitoring pipeline.
type Config struct {
	Scheduler   SchedulerConfig                 `yaml:"scheduler"`
	Analysis    AnalysisConfig                  `yaml:"analysis"`
	Alerts      AlertsConfig                    `yaml:"alerts"`
	Gates       map[domain.ModelType]gates.Node `yaml:"gates"`
	Model       ModelServiceConfig              `yaml:"model_service"`
	HTTP        HTTPConfig                      `yaml:"http"`
	Database    DatabaseConfig                  `yaml:"database"`
	CatalogPath string                          `yaml:"catalog_path"`
	LogLevel    string                          `yaml:"log_level"`
}

// SchedulerConfig controls the periodic evaluation loop.
type SchedulerConfig struct {
	TickInterval  time.Duration `yaml:"tick_interval"`  // cadence between evaluation cycles
	TickDeadline  time.Duration `yaml:"tick_deadline"`  // total per-unit budget within a tick
	StageTimeout  time.Duration `yaml:"stage_timeout"`  // individual analysis stage budget
	Concurrency   int           `yaml:"concurrency"`    // units evaluated in parallel
	HistoryWindow time.Duration `yaml:"history_window"` // reading history fetched per unit
}

// AnalysisConfig holds per-stage thresholds.
type AnalysisConfig struct {
	BlendWeight             float64 `yaml:"blend_weight"`
	RiskThreshold           float64 `yaml:"risk_threshold"`
	OptimizationMargin      float64 `yaml:"optimization_margin"`
	TransitionHorizonDays   float64 `yaml:"transition_horizon_days"`
	TransitionMinConfidence float64 `yaml:"transition_min_confidence"`
	TrendWindow             time.Duration `yaml:"trend_window"`
	// TrendRates maps each factor to the per-hour slope magnitudes
	// that trigger a trend insight.
	TrendRates map[domain.Factor]TrendRate `yaml:"trend_rates"`
	// MinRecommendationSeverity gates which synthesized
	// recommendations are persisted.
	MinRecommendationSeverity domain.Severity `yaml:"min_recommendation_severity"`
}

// TrendRate bounds acceptable per-hour drift in one factor. Rising
// slopes above Rise or falling slopes below -Fall emit an insight.
type TrendRate struct {
	Rise float64 `yaml:"rise"`
	Fall float64 `yaml:"fall"`
}

// yaml.v3 cannot decode "5m" style strings into time.Duration, so each
// struct carrying durations parses them through an intermediate form.

func parseDuration(key, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func (s *SchedulerConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		TickInterval  string `yaml:"tick_interval"`
		TickDeadline  string `yaml:"tick_deadline"`
		StageTimeout  string `yaml:"stage_timeout"`
		Concurrency   int    `yaml:"concurrency"`
		HistoryWindow string `yaml:"history_window"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	var err error
	if s.TickInterval, err = parseDuration("tick_interval", raw.TickInterval); err != nil {
		return err
	}
	if s.TickDeadline, err = parseDuration("tick_deadline", raw.TickDeadline); err != nil {
		return err
	}
	if s.StageTimeout, err = parseDuration("stage_timeout", raw.StageTimeout); err != nil {
		return err
	}
	if s.HistoryWindow, err = parseDuration("history_window", raw.HistoryWindow); err != nil {
		return err
	}
	s.Concurrency = raw.Concurrency
	return nil
}

func (a *AnalysisConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		BlendWeight               float64                     `yaml:"blend_weight"`
		RiskThreshold             float64                     `yaml:"risk_threshold"`
		OptimizationMargin        float64                     `yaml:"optimization_margin"`
		TransitionHorizonDays     float64                     `yaml:"transition_horizon_days"`
		TransitionMinConfidence   float64                     `yaml:"transition_min_confidence"`
		TrendWindow               string                      `yaml:"trend_window"`
		TrendRates                map[domain.Factor]TrendRate `yaml:"trend_rates"`
		MinRecommendationSeverity domain.Severity             `yaml:"min_recommendation_severity"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	trendWindow, err := parseDuration("trend_window", raw.TrendWindow)
	if err != nil {
		return err
	}
	a.BlendWeight = raw.BlendWeight
	a.RiskThreshold = raw.RiskThreshold
	a.OptimizationMargin = raw.OptimizationMargin
	a.TransitionHorizonDays = raw.TransitionHorizonDays
	a.TransitionMinConfidence = raw.TransitionMinConfidence
	a.TrendWindow = trendWindow
	a.TrendRates = raw.TrendRates
	a.MinRecommendationSeverity = raw.MinRecommendationSeverity
	return nil
}

func (a *AlertsConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ClusterWindow         string `yaml:"cluster_window"`
		MaxVisible            int    `yaml:"max_visible"`
		RepublishAcknowledged bool   `yaml:"republish_acknowledged"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	window, err := parseDuration("cluster_window", raw.ClusterWindow)
	if err != nil {
		return err
	}
	a.ClusterWindow = window
	a.MaxVisible = raw.MaxVisible
	a.RepublishAcknowledged = raw.RepublishAcknowledged
	return nil
}

func (m *ModelServiceConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		BaseURL            string  `yaml:"base_url"`
		RequestTimeout     string  `yaml:"request_timeout"`
		RPS                float64 `yaml:"rps"`
		Burst              int     `yaml:"burst"`
		BreakerMaxRequests uint32  `yaml:"breaker_max_requests"`
		BreakerInterval    string  `yaml:"breaker_interval"`
		BreakerTimeout     string  `yaml:"breaker_timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	var err error
	if m.RequestTimeout, err = parseDuration("request_timeout", raw.RequestTimeout); err != nil {
		return err
	}
	if m.BreakerInterval, err = parseDuration("breaker_interval", raw.BreakerInterval); err != nil {
		return err
	}
	if m.BreakerTimeout, err = parseDuration("breaker_timeout", raw.BreakerTimeout); err != nil {
		return err
	}
	m.BaseURL = raw.BaseURL
	m.RPS = raw.RPS
	m.Burst = raw.Burst
	m.BreakerMaxRequests = raw.BreakerMaxRequests
	return nil
}

func (d *DatabaseConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		DSN          string `yaml:"dsn"`
		QueryTimeout string `yaml:"query_timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	timeout, err := parseDuration("query_timeout", raw.QueryTimeout)
	if err != nil {
		return err
	}
	d.DSN = raw.DSN
	d.QueryTimeout = timeout
	return nil
}

// AlertsConfig controls clustering and republish policy.
type AlertsConfig struct {
	ClusterWindow time.Duration `yaml:"cluster_window"`
	MaxVisible    int           `yaml:"max_visible"`
	// RepublishAcknowledged republishes clusters whose only change
	// since the last tick is to already-acknowledged insights.
	// Default off: acknowledgment means the operator has seen it.
	RepublishAcknowledged bool `yaml:"republish_acknowledged"`
}

// ModelServiceConfig configures the inference service client.
type ModelServiceConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RPS            float64       `yaml:"rps"`
	Burst          int           `yaml:"burst"`
	BreakerMaxRequests uint32    `yaml:"breaker_max_requests"`
	BreakerInterval    time.Duration `yaml:"breaker_interval"`
	BreakerTimeout     time.Duration `yaml:"breaker_timeout"`
}

// HTTPConfig configures the operational HTTP surface.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// DatabaseConfig configures the postgres repository.
type DatabaseConfig struct {
	DSN          string        `yaml:"dsn"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Default returns the documented default configuration with no file.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Scheduler.TickInterval <= 0 {
		c.Scheduler.TickInterval = 5 * time.Minute
	}
	if c.Scheduler.TickDeadline <= 0 {
		c.Scheduler.TickDeadline = 60 * time.Second
	}
	if c.Scheduler.StageTimeout <= 0 {
		c.Scheduler.StageTimeout = 10 * time.Second
	}
	if c.Scheduler.Concurrency <= 0 {
		c.Scheduler.Concurrency = 5
	}
	if c.Scheduler.HistoryWindow <= 0 {
		c.Scheduler.HistoryWindow = 24 * time.Hour
	}

	if c.Analysis.BlendWeight <= 0 {
		c.Analysis.BlendWeight = 0.7
	}
	if c.Analysis.RiskThreshold <= 0 {
		c.Analysis.RiskThreshold = 0.5
	}
	if c.Analysis.OptimizationMargin <= 0 {
		c.Analysis.OptimizationMargin = 10
	}
	if c.Analysis.TransitionHorizonDays <= 0 {
		c.Analysis.TransitionHorizonDays = 3
	}
	if c.Analysis.TransitionMinConfidence <= 0 {
		c.Analysis.TransitionMinConfidence = 0.7
	}
	if c.Analysis.TrendWindow <= 0 {
		c.Analysis.TrendWindow = 24 * time.Hour
	}
	if c.Analysis.TrendRates == nil {
		c.Analysis.TrendRates = map[domain.Factor]TrendRate{
			domain.FactorTemperature:  {Rise: 0.5, Fall: 1.0},
			domain.FactorHumidity:     {Rise: 3.0, Fall: 2.0},
			domain.FactorSoilMoisture: {Rise: 5.0, Fall: 3.0},
			domain.FactorCO2:          {Rise: 100, Fall: 100},
		}
	}
	if c.Analysis.MinRecommendationSeverity == "" {
		c.Analysis.MinRecommendationSeverity = domain.SeverityWarning
	}

	if c.Alerts.ClusterWindow <= 0 {
		c.Alerts.ClusterWindow = 5 * time.Minute
	}
	if c.Alerts.MaxVisible <= 0 {
		c.Alerts.MaxVisible = 10
	}

	if c.Gates == nil {
		c.Gates = DefaultGates()
	}

	if c.Model.RequestTimeout <= 0 {
		c.Model.RequestTimeout = 5 * time.Second
	}
	if c.Model.RPS <= 0 {
		c.Model.RPS = 10
	}
	if c.Model.Burst <= 0 {
		c.Model.Burst = 20
	}
	if c.Model.BreakerMaxRequests == 0 {
		c.Model.BreakerMaxRequests = 3
	}
	if c.Model.BreakerInterval <= 0 {
		c.Model.BreakerInterval = time.Minute
	}
	if c.Model.BreakerTimeout <= 0 {
		c.Model.BreakerTimeout = 30 * time.Second
	}

	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8788"
	}
	if c.Database.QueryTimeout <= 0 {
		c.Database.QueryTimeout = 10 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.Analysis.BlendWeight > 1 {
		return fmt.Errorf("blend_weight %v out of range (0,1]", c.Analysis.BlendWeight)
	}
	for modelType, node := range c.Gates {
		if _, err := gates.Compile(node); err != nil {
			return fmt.Errorf("gate for model %s: %w", modelType, err)
		}
	}
	return nil
}

// DefaultGates returns the per-model gate expressions. The asymmetry
// is deliberate product configuration: the threshold regression may
// clear on either error or fit, while the classifiers must clear both
// balance metrics together.
func DefaultGates() map[domain.ModelType]gates.Node {
	return map[domain.ModelType]gates.Node{
		domain.ModelThreshold: {Any: []gates.Node{
			{Metric: "mae", Op: gates.OpLE, Value: 4.0},
			{Metric: "r2", Op: gates.OpGE, Value: 0.55},
		}},
		domain.ModelResponse: {All: []gates.Node{
			{Metric: "macro_f1", Op: gates.OpGE, Value: 0.55},
			{Metric: "balanced_accuracy", Op: gates.OpGE, Value: 0.55},
		}},
		domain.ModelDuration: {Any: []gates.Node{
			{Metric: "mae", Op: gates.OpLE, Value: 2.5},
			{Metric: "r2", Op: gates.OpGE, Value: 0.5},
		}},
		domain.ModelTiming: {All: []gates.Node{
			{Metric: "top3_accuracy", Op: gates.OpGE, Value: 0.6},
			{Metric: "mrr", Op: gates.OpGE, Value: 0.45},
		}},
	}
}
