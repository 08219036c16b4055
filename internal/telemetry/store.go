package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BrightProgrammer7/OptiBlend/pkg/live"
)

// schema creates the telemetry history table. Idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS scada_updates (
    id               BIGSERIAL PRIMARY KEY,
    received_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    total_feed_rate  DOUBLE PRECISION NOT NULL,
    avg_pci          DOUBLE PRECISION NOT NULL,
    avg_sulfur_pct   DOUBLE PRECISION NOT NULL,
    avg_chloride_pct DOUBLE PRECISION NOT NULL,
    total_cost       DOUBLE PRECISION NOT NULL,
    status           TEXT NOT NULL,
    mix              JSONB,
    new_params       JSONB
);
CREATE INDEX IF NOT EXISTS scada_updates_received_at_idx ON scada_updates (received_at DESC);
`

// Record is one stored SCADA update with its arrival time.
type Record struct {
	ReceivedAt time.Time
	Data       live.ScadaData
}

// Store keeps a history of SCADA updates in PostgreSQL so operators can
// review how the kiln trended across a session. All operations are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn and ensures the schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("telemetry store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("telemetry store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("telemetry store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping reports database connectivity, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Save appends one SCADA update to the history.
func (s *Store) Save(ctx context.Context, data live.ScadaData) error {
	mixJSON, err := json.Marshal(data.MixTonPerHour)
	if err != nil {
		return fmt.Errorf("telemetry store: marshal mix: %w", err)
	}
	paramsJSON, err := json.Marshal(data.NewParams)
	if err != nil {
		return fmt.Errorf("telemetry store: marshal params: %w", err)
	}

	const q = `
		INSERT INTO scada_updates
		    (total_feed_rate, avg_pci, avg_sulfur_pct, avg_chloride_pct, total_cost, status, mix, new_params)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = s.pool.Exec(ctx, q,
		data.TotalFeedRate,
		data.AvgPCI,
		data.AvgSulfurPercent,
		data.AvgChloridePercent,
		data.TotalCostPerHour,
		data.Status,
		mixJSON,
		paramsJSON,
	)
	if err != nil {
		return fmt.Errorf("telemetry store: save: %w", err)
	}
	return nil
}

// Recent returns up to limit updates, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	const q = `
		SELECT received_at, total_feed_rate, avg_pci, avg_sulfur_pct, avg_chloride_pct, total_cost, status, mix, new_params
		FROM   scada_updates
		ORDER  BY received_at DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("telemetry store: recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec        Record
			mixJSON    []byte
			paramsJSON []byte
		)
		if err := rows.Scan(
			&rec.ReceivedAt,
			&rec.Data.TotalFeedRate,
			&rec.Data.AvgPCI,
			&rec.Data.AvgSulfurPercent,
			&rec.Data.AvgChloridePercent,
			&rec.Data.TotalCostPerHour,
			&rec.Data.Status,
			&mixJSON,
			&paramsJSON,
		); err != nil {
			return nil, fmt.Errorf("telemetry store: scan: %w", err)
		}
		if len(mixJSON) > 0 {
			if err := json.Unmarshal(mixJSON, &rec.Data.MixTonPerHour); err != nil {
				return nil, fmt.Errorf("telemetry store: unmarshal mix: %w", err)
			}
		}
		if len(paramsJSON) > 0 {
			if err := json.Unmarshal(paramsJSON, &rec.Data.NewParams); err != nil {
				return nil, fmt.Errorf("telemetry store: unmarshal params: %w", err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("telemetry store: rows: %w", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
