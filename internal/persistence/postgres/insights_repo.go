package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/verdantworks/verdant/internal/domain"
	"github.com/verdantworks/verdant/internal/persistence"
)

// insightsRepo implements persistence.InsightRepo for PostgreSQL.
type insightsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewInsightsRepo creates a PostgreSQL insight repository.
func NewInsightsRepo(db *sqlx.DB, timeout time.Duration) persistence.InsightRepo {
	return &insightsRepo{db: db, timeout: timeout}
}

type insightRow struct {
	ID           string    `db:"id"`
	UnitID       string    `db:"unit_id"`
	Type         string    `db:"type"`
	Severity     string    `db:"severity"`
	SourceKey    string    `db:"source_key"`
	Timestamp    time.Time `db:"ts"`
	Payload      []byte    `db:"payload"`
	Acknowledged bool      `db:"acknowledged"`
}

func (r insightRow) toDomain() (domain.Insight, error) {
	insight := domain.Insight{
		ID:           r.ID,
		UnitID:       r.UnitID,
		Type:         domain.InsightType(r.Type),
		Severity:     domain.Severity(r.Severity),
		SourceKey:    r.SourceKey,
		Timestamp:    r.Timestamp,
		Acknowledged: r.Acknowledged,
	}
	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, &insight.Payload); err != nil {
			return insight, fmt.Errorf("failed to unmarshal payload for insight %s: %w", r.ID, err)
		}
	}
	return insight, nil
}

// Append persists a candidate in a single statement; the row is fully
// written or not written at all.
func (r *insightsRepo) Append(ctx context.Context, candidate domain.InsightCandidate) (domain.Insight, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ts := candidate.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	payloadJSON, err := json.Marshal(candidate.Payload)
	if err != nil {
		return domain.Insight{}, fmt.Errorf("failed to marshal payload: %w", err)
	}

	insight := domain.Insight{
		UnitID:    candidate.UnitID,
		Type:      candidate.Type,
		Severity:  candidate.Severity,
		SourceKey: candidate.SourceKey,
		Timestamp: ts,
		Payload:   candidate.Payload,
	}

	query := `
		INSERT INTO insights (unit_id, type, severity, source_key, ts, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err = r.db.QueryRowxContext(ctx, query,
		candidate.UnitID, string(candidate.Type), string(candidate.Severity),
		candidate.SourceKey, ts, payloadJSON).
		Scan(&insight.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return domain.Insight{}, fmt.Errorf("unknown unit %s: %w", candidate.UnitID, err)
		}
		return domain.Insight{}, fmt.Errorf("failed to append insight: %w", err)
	}

	return insight, nil
}

func (r *insightsRepo) Query(ctx context.Context, filter persistence.InsightFilter) ([]domain.Insight, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := "SELECT id, unit_id, type, severity, source_key, ts, payload, acknowledged FROM insights"
	var clauses []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.UnitID != "" {
		clauses = append(clauses, "unit_id = "+arg(filter.UnitID))
	}
	if filter.Type != "" {
		clauses = append(clauses, "type = "+arg(string(filter.Type)))
	}
	if filter.Severity != "" {
		clauses = append(clauses, "severity = "+arg(string(filter.Severity)))
	}
	if !filter.Range.From.IsZero() {
		clauses = append(clauses, "ts >= "+arg(filter.Range.From))
	}
	if !filter.Range.To.IsZero() {
		clauses = append(clauses, "ts < "+arg(filter.Range.To))
	}
	if filter.Acknowledged != nil {
		clauses = append(clauses, "acknowledged = "+arg(*filter.Acknowledged))
	}

	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY ts DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	var rows []insightRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query insights: %w", err)
	}

	out := make([]domain.Insight, 0, len(rows))
	for _, row := range rows {
		insight, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, insight)
	}
	return out, nil
}

func (r *insightsRepo) Open(ctx context.Context, window time.Duration) ([]domain.Insight, error) {
	acked := false
	return r.Query(ctx, persistence.InsightFilter{
		Range:        domain.TimeRange{From: time.Now().Add(-window)},
		Acknowledged: &acked,
	})
}

func (r *insightsRepo) Acknowledge(ctx context.Context, insightID, actorID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE insights
		SET acknowledged = TRUE, acknowledged_by = $2, acknowledged_at = NOW()
		WHERE id = $1`,
		insightID, actorID)
	if err != nil {
		return fmt.Errorf("failed to acknowledge insight %s: %w", insightID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
