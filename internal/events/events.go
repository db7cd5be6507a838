// Package events defines the append-only request-event log produced by the
// request flow and consumed by the insights aggregator and external sinks.
// Events are never mutated after creation.
package events

import (
	"context"
	"time"
)

// Status classifies the terminal or challenge transition an event records.
type Status string

const (
	StatusAllowed Status = "allowed"
	StatusBlocked Status = "blocked"
	StatusPaid    Status = "paid"
	StatusPending Status = "pending"
)

// Event is one durable log entry.
type Event struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"-"`
	IdentitySignal string    `json:"identitySignal"`
	Path           string    `json:"path"`
	Status         Status    `json:"status"`

	// ProofToken and Amount are set on paid events. Amount is in the
	// asset's atomic units; TokenAddress pins which asset was charged so
	// revenue stays correct across configuration changes.
	ProofToken   string `json:"proofToken,omitempty"`
	Amount       string `json:"amount,omitempty"`
	TokenAddress string `json:"tokenAddress,omitempty"`
	ChainID      int64  `json:"chainId,omitempty"`
}

// UnixMilli returns the event timestamp as millisecond epoch, the wire
// representation used by the HTTP surface.
func (e Event) UnixMilli() int64 {
	return e.Timestamp.UnixMilli()
}

// Filter narrows a Query.
type Filter struct {
	// Since excludes events at or before the given instant when non-zero.
	Since time.Time
	// Status keeps only matching events when non-empty.
	Status Status
	// Limit caps the result when positive.
	Limit int
}

// Store is the durable event log.
type Store interface {
	Append(ctx context.Context, event Event) error
	// Query returns events descending by timestamp.
	Query(ctx context.Context, filter Filter) ([]Event, error)
}

// Sink receives a copy of every emitted event (kafka, websockets, ...).
// Sink failures must not fail the emit; the store is the source of truth.
type Sink interface {
	Write(ctx context.Context, event Event) error
}
