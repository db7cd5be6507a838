// Package explorer formats human-viewable block-explorer links for proof
// tokens.
package explorer

import "fmt"

// explorerDomains maps settlement networks to their canonical explorers.
var explorerDomains = map[int64]string{
	1:     "etherscan.io",
	137:   "polygonscan.com",
	8453:  "basescan.org",
	42220: "celoscan.io",
}

const fallbackDomain = "etherscan.io"

// TxURL returns the explorer URL for a proof token on the given chain.
// Unknown chains fall back to a generic explorer domain.
func TxURL(chainID int64, proofToken string) string {
	domain, ok := explorerDomains[chainID]
	if !ok {
		domain = fallbackDomain
	}
	return fmt.Sprintf("https://%s/tx/%s", domain, proofToken)
}
