package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/verdantworks/verdant/internal/domain"
	"github.com/verdantworks/verdant/internal/persistence"
)

// unitsRepo implements persistence.UnitRepo for PostgreSQL. Units are
// written by the surrounding application; this repo only reads.
type unitsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewUnitsRepo creates a read-only PostgreSQL unit repository.
func NewUnitsRepo(db *sqlx.DB, timeout time.Duration) persistence.UnitRepo {
	return &unitsRepo{db: db, timeout: timeout}
}

type unitRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	PlantType   string    `db:"plant_type"`
	GrowthStage string    `db:"growth_stage"`
	Readings    []byte    `db:"readings"`
	ObservedAt  time.Time `db:"observed_at"`
}

func (r *unitsRepo) ListActiveUnits(ctx context.Context) ([]domain.UnitSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT u.id, u.name, u.plant_type, u.growth_stage,
		       COALESCE(lr.readings, '{}') AS readings,
		       COALESCE(lr.ts, u.created_at) AS observed_at
		FROM units u
		LEFT JOIN LATERAL (
			SELECT readings, ts FROM readings
			WHERE unit_id = u.id
			ORDER BY ts DESC LIMIT 1
		) lr ON TRUE
		WHERE u.active`

	var rows []unitRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list active units: %w", err)
	}

	units := make([]domain.UnitSnapshot, 0, len(rows))
	for _, row := range rows {
		unit := domain.UnitSnapshot{
			ID:          row.ID,
			Name:        row.Name,
			PlantType:   row.PlantType,
			GrowthStage: row.GrowthStage,
			ObservedAt:  row.ObservedAt,
		}
		if len(row.Readings) > 0 {
			if err := json.Unmarshal(row.Readings, &unit.Readings); err != nil {
				return nil, fmt.Errorf("failed to unmarshal readings for unit %s: %w", row.ID, err)
			}
		}
		units = append(units, unit)
	}
	return units, nil
}

func (r *unitsRepo) History(ctx context.Context, unitID string, window time.Duration) (domain.ReadingSeries, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type readingRow struct {
		Timestamp time.Time `db:"ts"`
		Readings  []byte    `db:"readings"`
	}

	var rows []readingRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT ts, readings FROM readings
		WHERE unit_id = $1 AND ts >= $2
		ORDER BY ts ASC`,
		unitID, time.Now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("failed to load history for unit %s: %w", unitID, err)
	}

	series := make(domain.ReadingSeries, 0, len(rows))
	for _, row := range rows {
		reading := domain.Reading{Timestamp: row.Timestamp}
		if err := json.Unmarshal(row.Readings, &reading.Values); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reading at %s: %w", row.Timestamp, err)
		}
		series = append(series, reading)
	}
	return series, nil
}
