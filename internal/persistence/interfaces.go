package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/verdantworks/verdant/internal/domain"
)

// ErrNotFound is returned when a referenced insight does not exist.
var ErrNotFound = errors.New("not found")

// InsightFilter narrows an insight query. Zero-valued fields match
// everything.
type InsightFilter struct {
	UnitID       string
	Type         domain.InsightType
	Severity     domain.Severity
	Range        domain.TimeRange
	Acknowledged *bool // nil matches both
	Limit        int
}

// UnitRepo reads the active unit set and reading history. The
// pipeline only ever reads units; lifecycle is owned by the
// surrounding application.
type UnitRepo interface {
	// ListActiveUnits returns a snapshot of every unit currently
	// under monitoring.
	ListActiveUnits(ctx context.Context) ([]domain.UnitSnapshot, error)

	// History returns readings for a unit covering the trailing
	// window, oldest first.
	History(ctx context.Context, unitID string, window time.Duration) (domain.ReadingSeries, error)
}

// InsightRepo is the durable append-only insight store. After the
// initial append the only permitted mutation is acknowledgment;
// insights are never deleted here (archival is external).
type InsightRepo interface {
	// Append persists a candidate and returns the stored insight with
	// its stable id. Fully recorded or not recorded at all.
	Append(ctx context.Context, candidate domain.InsightCandidate) (domain.Insight, error)

	// Query returns insights matching the filter, newest first.
	Query(ctx context.Context, filter InsightFilter) ([]domain.Insight, error)

	// Open returns the unacknowledged insights created within the
	// trailing window, as a consistent snapshot safe to read while
	// appends continue.
	Open(ctx context.Context, window time.Duration) ([]domain.Insight, error)

	// Acknowledge marks an insight as seen by an operator.
	Acknowledge(ctx context.Context, insightID, actorID string) error
}

// Repository bundles the stores the scheduler consumes.
type Repository interface {
	UnitRepo
	InsightRepo
}
