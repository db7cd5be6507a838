// Package settings owns the publisher-facing configuration: pricing, gated
// routes, the identity allowlist, and the protection master switch.
package settings

import (
	"context"
	"math/big"
	"strings"

	dErrors "tollgate/pkg/domain-errors"
)

// Settings is the single active configuration. The policy engine reads it
// once per evaluation and never caches it across calls.
type Settings struct {
	// ChainID identifies the settlement network. Opaque to policy logic
	// beyond equality and display.
	ChainID int64 `json:"chainId"`

	// TokenAddress identifies the payment asset.
	TokenAddress string `json:"tokenAddress"`

	// PriceAtomicUnits is the required payment in the asset's smallest
	// unit, kept as a string to avoid precision loss for large integers.
	PriceAtomicUnits string `json:"priceAtomicUnits"`

	// GatedRoutes are the paths subject to protection.
	GatedRoutes []string `json:"gatedRoutes"`

	// Allowlist entries are case-insensitive substrings; a matching
	// identity signal bypasses payment.
	Allowlist []string `json:"allowlist"`

	// ProtectionEnabled is the master switch; when false every request is
	// allowed.
	ProtectionEnabled bool `json:"protectionEnabled"`
}

// Default returns the demo configuration: USDC on Base, one dollar per
// request, the /protected route, and the major crawler allowlist.
func Default() Settings {
	return Settings{
		ChainID:           8453,
		TokenAddress:      "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		PriceAtomicUnits:  "1000000",
		GatedRoutes:       []string{"/protected"},
		Allowlist:         []string{"googlebot", "bingbot"},
		ProtectionEnabled: true,
	}
}

// Price parses PriceAtomicUnits. A price that does not parse to a
// non-negative integer is a configuration error; it is never coerced to
// zero.
func (s Settings) Price() (*big.Int, error) {
	price, ok := new(big.Int).SetString(strings.TrimSpace(s.PriceAtomicUnits), 10)
	if !ok {
		return nil, dErrors.New(dErrors.CodeConfiguration, "price is not a valid integer")
	}
	if price.Sign() < 0 {
		return nil, dErrors.New(dErrors.CodeConfiguration, "price must be non-negative")
	}
	return price, nil
}

// Validate reports the first invariant violation, if any.
func (s Settings) Validate() error {
	if _, err := s.Price(); err != nil {
		return err
	}
	if s.ChainID <= 0 {
		return dErrors.New(dErrors.CodeConfiguration, "chain id must be positive")
	}
	if s.TokenAddress == "" {
		return dErrors.New(dErrors.CodeConfiguration, "token address is required")
	}
	return nil
}

// Normalized returns a copy with trimmed, deduplicated route and allowlist
// entries. Allowlist entries are lower-cased; matching is case-insensitive
// anyway and normalizing keeps the stored set duplicate-free.
func (s Settings) Normalized() Settings {
	s.GatedRoutes = dedupe(s.GatedRoutes, func(v string) string { return strings.TrimSpace(v) })
	s.Allowlist = dedupe(s.Allowlist, func(v string) string { return strings.ToLower(strings.TrimSpace(v)) })
	return s
}

func dedupe(values []string, normalize func(string) string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		n := normalize(v)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Store is the source of truth for Settings. Implementations must deliver
// Subscribe callbacks for every successful Write.
type Store interface {
	Read(ctx context.Context) (Settings, error)
	Write(ctx context.Context, s Settings) error
	Subscribe(fn func(Settings)) (cancel func())
}
