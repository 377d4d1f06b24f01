// Package sink persists aggregated readings to a Postgres/TimescaleDB
// instance.
package sink

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/andrewrweber/pi-air/internal/domain"
	"github.com/andrewrweber/pi-air/internal/ports"
)

// PostgresSink stores one row per aggregated reading. Writes are
// idempotent on window_start so a replayed aggregate never duplicates.
type PostgresSink struct {
	db    *sql.DB
	table string
}

// NewPostgresSink wraps an open database handle.
func NewPostgresSink(db *sql.DB, table string) *PostgresSink {
	return &PostgresSink{db: db, table: table}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Store(ctx context.Context, r *domain.AggregatedReading) error {
	if r == nil {
		return nil
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (window_start, window_end, pm1_0, pm2_5, pm10, sample_count, aqi, aqi_level) "+
			"VALUES ($1,$2,$3,$4,$5,$6,$7,$8) ON CONFLICT (window_start) DO NOTHING",
		s.table)

	_, err := s.db.ExecContext(ctx, query,
		r.WindowStart,
		r.WindowEnd,
		r.AvgPM1,
		r.AvgPM25,
		r.AvgPM10,
		r.SampleCount,
		r.AQI,
		r.AQILevel,
	)
	if err != nil {
		return fmt.Errorf("store reading: %w", err)
	}
	return nil
}

var _ ports.ReadingSink = (*PostgresSink)(nil)
