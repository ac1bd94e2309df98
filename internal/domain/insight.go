package domain

import (
	"time"
)

// Severity ranks an insight for sorting and display.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
	SeverityResolved Severity = "resolved"
)

// Rank returns the ordinal priority of the severity: critical(1) <
// warning(2) < info(3) < resolved(4). Unknown severities sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 1
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 3
	case SeverityResolved:
		return 4
	default:
		return 5
	}
}

// MostSevere returns the more severe of a and b.
func MostSevere(a, b Severity) Severity {
	if b.Rank() < a.Rank() {
		return b
	}
	return a
}

// InsightType identifies the analysis stage family that produced an
// insight.
type InsightType string

const (
	InsightRisk           InsightType = "risk"
	InsightOptimization   InsightType = "optimization"
	InsightTransition     InsightType = "transition"
	InsightTrend          InsightType = "trend"
	InsightStress         InsightType = "stress"
	InsightRecommendation InsightType = "recommendation"
)

// InsightCandidate is an insight produced by an analysis stage before
// it has been persisted and assigned a stable id.
type InsightCandidate struct {
	UnitID    string         `json:"unit_id"`
	Type      InsightType    `json:"type"`
	Severity  Severity       `json:"severity"`
	SourceKey string         `json:"source_key"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Insight is a persisted pipeline observation. Append-only: after the
// initial write the only permitted mutation is the Acknowledged flag,
// set by an explicit operator action.
type Insight struct {
	ID           string         `json:"id" db:"id"`
	UnitID       string         `json:"unit_id" db:"unit_id"`
	Type         InsightType    `json:"type" db:"type"`
	Severity     Severity       `json:"severity" db:"severity"`
	SourceKey    string         `json:"source_key" db:"source_key"`
	Timestamp    time.Time      `json:"timestamp" db:"ts"`
	Payload      map[string]any `json:"payload,omitempty"`
	Acknowledged bool           `json:"acknowledged" db:"acknowledged"`
}

// AlertCluster is a presentation-time grouping of related insights.
// Ephemeral: rebuilt from the open insight working set on every
// recompute, never persisted as its own record.
type AlertCluster struct {
	ID          string    `json:"id"`
	Primary     Insight   `json:"primary"`
	Related     []Insight `json:"related"`
	Severity    Severity  `json:"severity"`
	SourceKey   string    `json:"source_key"`
	WindowStart time.Time `json:"window_start"`
}

// Size returns the number of insights in the cluster.
func (c AlertCluster) Size() int { return 1 + len(c.Related) }
