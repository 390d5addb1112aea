package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/numbers-window/internal/events"
)

const schema = `
	CREATE TABLE IF NOT EXISTS window_events (
		id          UUID PRIMARY KEY,
		request_id  TEXT NOT NULL DEFAULT '',
		category    TEXT NOT NULL,
		previous    DOUBLE PRECISION[] NOT NULL,
		current     DOUBLE PRECISION[] NOT NULL,
		fetched     DOUBLE PRECISION[] NOT NULL,
		average     DOUBLE PRECISION NOT NULL,
		admitted    INTEGER NOT NULL,
		evicted     INTEGER NOT NULL,
		degraded    BOOLEAN NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		occurred_at TIMESTAMPTZ NOT NULL
	)
`

// Postgres is an events.Store writing to the window_events table.
// It is an audit log: windows are never restored from it.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a PostgreSQL-backed event store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the window_events table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create window_events: %w", err)
	}

	return nil
}

// SaveWindowEvent inserts the event. Redelivered events are ignored.
func (p *Postgres) SaveWindowEvent(ctx context.Context, event *events.WindowEvent) error {
	query := `
		INSERT INTO window_events (
			id, request_id, category, previous, current, fetched,
			average, admitted, evicted, degraded, error, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := p.pool.Exec(ctx, query,
		event.ID,
		event.RequestID,
		event.Category,
		nonNil(event.Previous),
		nonNil(event.Current),
		nonNil(event.Fetched),
		event.Average,
		event.Admitted,
		event.Evicted,
		event.Degraded,
		event.Error,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert window event %s: %w", event.ID, err)
	}

	return nil
}

// CountByCategory returns how many events were stored for a category.
func (p *Postgres) CountByCategory(ctx context.Context, category string) (int64, error) {
	var n int64

	err := p.pool.QueryRow(ctx,
		`SELECT count(*) FROM window_events WHERE category = $1`, category,
	).Scan(&n)

	return n, err
}

// Shutdown is a no-op; the pool is closed by its owner.
func (p *Postgres) Shutdown() error {
	return nil
}

func nonNil(values []float64) []float64 {
	if values == nil {
		return []float64{}
	}

	return values
}

// Compile-time check.
var _ events.Store = (*Postgres)(nil)
