// Package proof generates mock payment-proof tokens for the simulated bot
// side. Consumers must treat tokens as opaque strings; only this package
// knows the stub format.
package proof

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewTxHash returns a token shaped like a transaction hash: 32 random bytes,
// hex encoded, 0x-prefixed.
func NewTxHash() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate proof token: %w", err)
	}
	return "0x" + hex.EncodeToString(buf), nil
}
