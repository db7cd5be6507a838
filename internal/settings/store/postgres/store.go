// Package postgres persists publisher settings in PostgreSQL through pgx.
// The table holds a single row; subscriptions are process-local and fire on
// successful writes through this store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tollgate/internal/settings"
	dErrors "tollgate/pkg/domain-errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS tollgate_settings (
    id                 INT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    chain_id           BIGINT NOT NULL,
    token_address      TEXT NOT NULL,
    price_atomic_units TEXT NOT NULL,
    gated_routes       TEXT[] NOT NULL,
    allowlist          TEXT[] NOT NULL,
    protection_enabled BOOLEAN NOT NULL,
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store is the pgx-backed settings store.
type Store struct {
	pool *pgxpool.Pool

	subMu   sync.Mutex
	nextSub int
	subs    map[int]func(settings.Settings)
}

// New constructs the store and ensures the settings table exists.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("create settings table: %w", err)
	}
	return &Store{
		pool: pool,
		subs: make(map[int]func(settings.Settings)),
	}, nil
}

func (s *Store) Read(ctx context.Context) (settings.Settings, error) {
	var out settings.Settings
	row := s.pool.QueryRow(ctx, `
		SELECT chain_id, token_address, price_atomic_units, gated_routes, allowlist, protection_enabled
		FROM tollgate_settings WHERE id = 1`)
	err := row.Scan(&out.ChainID, &out.TokenAddress, &out.PriceAtomicUnits,
		&out.GatedRoutes, &out.Allowlist, &out.ProtectionEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return settings.Default(), nil
	}
	if err != nil {
		return settings.Settings{}, dErrors.Wrap(dErrors.CodeCollaboratorUnavailable, "read settings", err)
	}
	return out, nil
}

func (s *Store) Write(ctx context.Context, next settings.Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	next = next.Normalized()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO tollgate_settings (id, chain_id, token_address, price_atomic_units, gated_routes, allowlist, protection_enabled, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			chain_id = EXCLUDED.chain_id,
			token_address = EXCLUDED.token_address,
			price_atomic_units = EXCLUDED.price_atomic_units,
			gated_routes = EXCLUDED.gated_routes,
			allowlist = EXCLUDED.allowlist,
			protection_enabled = EXCLUDED.protection_enabled,
			updated_at = now()`,
		next.ChainID, next.TokenAddress, next.PriceAtomicUnits,
		next.GatedRoutes, next.Allowlist, next.ProtectionEnabled)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeCollaboratorUnavailable, "write settings", err)
	}

	s.notify(next)
	return nil
}

func (s *Store) Subscribe(fn func(settings.Settings)) (cancel func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify(next settings.Settings) {
	s.subMu.Lock()
	fns := make([]func(settings.Settings), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
}
