// Package postgres persists request events in PostgreSQL through
// database/sql. The driver is registered by the caller (lib/pq in the
// server binary).
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tollgate/internal/events"
	dErrors "tollgate/pkg/domain-errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS request_events (
    id            TEXT PRIMARY KEY,
    ts            TIMESTAMPTZ NOT NULL,
    identity      TEXT NOT NULL,
    path          TEXT NOT NULL,
    status        TEXT NOT NULL,
    proof_token   TEXT NOT NULL DEFAULT '',
    amount        TEXT NOT NULL DEFAULT '',
    token_address TEXT NOT NULL DEFAULT '',
    chain_id      BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS request_events_ts_idx ON request_events (ts DESC)`

// Store is the durable, unbounded event log.
type Store struct {
	db *sql.DB
}

// New constructs the store and ensures the events table exists.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create request_events table: %w", err)
	}
	return &Store{db: db}, nil
}

// Append inserts one event. Events are append-only; duplicate ids are
// rejected by the primary key rather than silently overwritten.
func (s *Store) Append(ctx context.Context, event events.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO request_events (id, ts, identity, path, status, proof_token, amount, token_address, chain_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.Timestamp.UTC(), event.IdentitySignal, event.Path,
		string(event.Status), event.ProofToken, event.Amount, event.TokenAddress, event.ChainID)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeCollaboratorUnavailable, "append request event", err)
	}
	return nil
}

// Query returns events descending by timestamp.
func (s *Store) Query(ctx context.Context, filter events.Filter) ([]events.Event, error) {
	query := `
		SELECT id, ts, identity, path, status, proof_token, amount, token_address, chain_id
		FROM request_events WHERE 1=1`
	args := []any{}

	if !filter.Since.IsZero() {
		args = append(args, filter.Since.UTC())
		query += fmt.Sprintf(" AND ts > $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY ts DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeCollaboratorUnavailable, "query request events", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var e events.Event
		var ts time.Time
		var status string
		if err := rows.Scan(&e.ID, &ts, &e.IdentitySignal, &e.Path, &status,
			&e.ProofToken, &e.Amount, &e.TokenAddress, &e.ChainID); err != nil {
			return nil, dErrors.Wrap(dErrors.CodeCollaboratorUnavailable, "scan request event", err)
		}
		e.Timestamp = ts
		e.Status = events.Status(status)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeCollaboratorUnavailable, "iterate request events", err)
	}
	return out, nil
}
