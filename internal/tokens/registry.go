// Package tokens holds payment-asset metadata. Revenue math must divide by
// 10^decimals from this registry; hardcoding a decimal factor silently
// misprices any asset that does not share it.
package tokens

import (
	"strings"
	"sync"
)

// DefaultDecimals applies when an asset is not registered. Callers receive a
// flag alongside so they can surface the fallback instead of hiding it.
const DefaultDecimals = 6

// Metadata describes a payment asset.
type Metadata struct {
	Symbol   string
	Decimals int
}

// Registry maps token addresses (case-insensitive) to metadata.
type Registry struct {
	mu     sync.RWMutex
	assets map[string]Metadata
}

// NewRegistry returns a registry seeded with the demo assets.
func NewRegistry() *Registry {
	r := &Registry{assets: make(map[string]Metadata)}
	// USDC on Base and cUSD on Celo, the two assets the demo configures.
	r.Register("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Metadata{Symbol: "USDC", Decimals: 6})
	r.Register("0x765DE816845861e75A25fCA122bb6898B8B1282a", Metadata{Symbol: "cUSD", Decimals: 18})
	return r
}

// Register adds or replaces metadata for an address.
func (r *Registry) Register(address string, md Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[normalize(address)] = md
}

// Lookup returns the metadata for an address and whether it was registered.
func (r *Registry) Lookup(address string) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	md, ok := r.assets[normalize(address)]
	return md, ok
}

// Resolve returns registered metadata, or a default-decimals placeholder with
// ok=false for unknown assets.
func (r *Registry) Resolve(address string) (Metadata, bool) {
	if md, ok := r.Lookup(address); ok {
		return md, true
	}
	return Metadata{Symbol: "UNKNOWN", Decimals: DefaultDecimals}, false
}

func normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
