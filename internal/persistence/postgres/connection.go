package postgres

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/verdantworks/verdant/internal/persistence"
)

// Repo bundles the postgres-backed stores behind the Repository
// interface.
type Repo struct {
	persistence.UnitRepo
	persistence.InsightRepo
	db *sqlx.DB
}

// Connect opens a pooled connection and wires both repositories.
func Connect(dsn string, queryTimeout time.Duration) (*Repo, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Repo{
		UnitRepo:    NewUnitsRepo(db, queryTimeout),
		InsightRepo: NewInsightsRepo(db, queryTimeout),
		db:          db,
	}, nil
}

// Close releases the connection pool.
func (r *Repo) Close() error { return r.db.Close() }
