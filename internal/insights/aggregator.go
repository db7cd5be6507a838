// Package insights derives dashboard figures from the request-event history:
// revenue, paid-request counts, recent activity, and time-bucketed traffic
// series. All derivations are read-only over the event log.
package insights

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"tollgate/internal/events"
	"tollgate/internal/settings"
	"tollgate/internal/tokens"
)

// activityWindow bounds the "recent activity" figure.
const activityWindow = 24 * time.Hour

// Aggregator computes figures over the event store.
type Aggregator struct {
	store    events.Store
	settings settings.Store
	tokens   *tokens.Registry
	now      func() time.Time
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// New constructs an aggregator.
func New(store events.Store, settingsStore settings.Store, registry *tokens.Registry, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		store:    store,
		settings: settingsStore,
		tokens:   registry,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Summary is the KPI snapshot.
type Summary struct {
	// TotalRevenue is in the payment asset's display units: each paid
	// event's atomic amount divided by 10^decimals for that event's
	// asset. Never a hardcoded decimal factor.
	TotalRevenue      float64 `json:"totalRevenue"`
	RevenueSymbol     string  `json:"revenueSymbol"`
	TotalPaidRequests int     `json:"totalPaidRequests"`
	Last24hActivity   int     `json:"last24hActivity"`
}

// Summarize computes the KPI snapshot from the full event history.
func (a *Aggregator) Summarize(ctx context.Context) (*Summary, error) {
	history, err := a.store.Query(ctx, events.Filter{})
	if err != nil {
		return nil, err
	}

	summary := &Summary{RevenueSymbol: a.currentSymbol(ctx)}
	revenue := new(big.Rat)
	cutoff := a.now().Add(-activityWindow)

	for _, e := range history {
		if e.Timestamp.After(cutoff) {
			summary.Last24hActivity++
		}
		if e.Status != events.StatusPaid {
			continue
		}
		summary.TotalPaidRequests++
		if contribution, err := a.displayAmount(e); err == nil {
			revenue.Add(revenue, contribution)
		}
	}

	summary.TotalRevenue, _ = revenue.Float64()
	return summary, nil
}

// displayAmount converts one paid event's atomic amount into display units
// using the decimals of the asset the event was charged in.
func (a *Aggregator) displayAmount(e events.Event) (*big.Rat, error) {
	if e.Amount == "" {
		return nil, fmt.Errorf("event %s has no amount", e.ID)
	}
	atomic, ok := new(big.Int).SetString(e.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("event %s has malformed amount %q", e.ID, e.Amount)
	}

	md, _ := a.tokens.Resolve(e.TokenAddress)
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(md.Decimals)), nil)
	return new(big.Rat).SetFrac(atomic, factor), nil
}

func (a *Aggregator) currentSymbol(ctx context.Context) string {
	current, err := a.settings.Read(ctx)
	if err != nil {
		return ""
	}
	md, _ := a.tokens.Resolve(current.TokenAddress)
	return md.Symbol
}

// Bucket is one point of the traffic series. Start is the numeric bucket key
// (bucket index × bucket size, as millisecond epoch); it sorts consistently
// with wall-clock order. Label is display-only.
type Bucket struct {
	Start   int64  `json:"bucketStart"`
	Label   string `json:"label"`
	Total   int    `json:"total"`
	Paid    int    `json:"paid"`
	Allowed int    `json:"allowed"`
	Blocked int    `json:"blocked"`
}

// Traffic buckets the last `window` of events at `bucketSize` granularity,
// ascending by time. Empty buckets between occupied ones are filled so charts
// show gaps honestly.
func (a *Aggregator) Traffic(ctx context.Context, window, bucketSize time.Duration) ([]Bucket, error) {
	if bucketSize <= 0 {
		bucketSize = time.Minute
	}
	if window <= 0 {
		window = activityWindow
	}

	since := a.now().Add(-window)
	history, err := a.store.Query(ctx, events.Filter{Since: since})
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return []Bucket{}, nil
	}

	bucketMs := bucketSize.Milliseconds()
	counts := make(map[int64]*Bucket)
	minKey, maxKey := int64(0), int64(0)

	for i, e := range history {
		key := e.UnixMilli() / bucketMs
		if i == 0 {
			minKey, maxKey = key, key
		}
		if key < minKey {
			minKey = key
		}
		if key > maxKey {
			maxKey = key
		}

		b := counts[key]
		if b == nil {
			b = &Bucket{Start: key * bucketMs}
			counts[key] = b
		}
		b.Total++
		switch e.Status {
		case events.StatusPaid:
			b.Paid++
		case events.StatusAllowed:
			b.Allowed++
		case events.StatusBlocked:
			b.Blocked++
		}
	}

	series := make([]Bucket, 0, maxKey-minKey+1)
	for key := minKey; key <= maxKey; key++ {
		b := counts[key]
		if b == nil {
			b = &Bucket{Start: key * bucketMs}
		}
		b.Label = time.UnixMilli(b.Start).UTC().Format("15:04")
		series = append(series, *b)
	}
	return series, nil
}
