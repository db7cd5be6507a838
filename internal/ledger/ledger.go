// Package ledger tracks which payment proofs have been verified. The
// verified set is monotonic: a token verified once stays verified for the
// ledger's lifetime.
package ledger

import (
	"context"
	"log/slog"

	dErrors "tollgate/pkg/domain-errors"
)

// Store persists the verified-token set.
type Store interface {
	// MarkVerified records the token as verified. Idempotent.
	MarkVerified(ctx context.Context, token string) error
	// IsVerified reports whether the token has been verified.
	IsVerified(ctx context.Context, token string) (bool, error)
}

// Expectation pins what a proof must settle: the challenge parameters the
// payer was given.
type Expectation struct {
	ChainID      int64
	Recipient    string
	Amount       string
	TokenAddress string
}

// Verifier confirms a proof against an expectation. Implementations may be
// slow and fallible; the ledger caches positive results.
type Verifier interface {
	VerifyOnChain(ctx context.Context, token string, want Expectation) (bool, error)
}

// Ledger is the off-chain cache in front of a Verifier.
type Ledger struct {
	store    Store
	verifier Verifier
	logger   *slog.Logger
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithLogger sets the ledger's logger.
func WithLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New constructs a ledger over the given store and verifier.
func New(store Store, verifier Verifier, opts ...LedgerOption) *Ledger {
	l := &Ledger{store: store, verifier: verifier, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Verify confirms the token through the verifier and records a positive
// result. Verifying an already-verified token is a no-op returning true.
// Empty tokens never verify.
func (l *Ledger) Verify(ctx context.Context, token string, want Expectation) (bool, error) {
	if token == "" {
		return false, nil
	}

	already, err := l.store.IsVerified(ctx, token)
	if err != nil {
		return false, dErrors.Wrap(dErrors.CodeCollaboratorUnavailable, "ledger lookup", err)
	}
	if already {
		return true, nil
	}

	ok, err := l.verifier.VerifyOnChain(ctx, token, want)
	if err != nil {
		return false, dErrors.Wrap(dErrors.CodeCollaboratorUnavailable, "payment verification", err)
	}
	if !ok {
		return false, nil
	}

	if err := l.store.MarkVerified(ctx, token); err != nil {
		return false, dErrors.Wrap(dErrors.CodeCollaboratorUnavailable, "ledger record", err)
	}

	l.logger.DebugContext(ctx, "payment proof verified", "token", token)
	return true, nil
}

// IsVerified is a pure lookup; false for unknown or empty tokens.
func (l *Ledger) IsVerified(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	ok, err := l.store.IsVerified(ctx, token)
	if err != nil {
		return false, dErrors.Wrap(dErrors.CodeCollaboratorUnavailable, "ledger lookup", err)
	}
	return ok, nil
}
