package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// MockVerifier accepts any non-empty token. It stands in for on-chain
// settlement in the simulation; swapping in a real verifier is a pure
// dependency-injection change.
type MockVerifier struct{}

func (MockVerifier) VerifyOnChain(_ context.Context, token string, _ Expectation) (bool, error) {
	return token != "", nil
}

// OnChainVerifier asks an external facilitator service to confirm that the
// proof settles the expected amount of the expected token to the expected
// recipient on the expected chain.
type OnChainVerifier struct {
	facilitatorURL string
	httpClient     *http.Client
}

// NewOnChainVerifier constructs a verifier against the given facilitator.
func NewOnChainVerifier(facilitatorURL string, httpClient *http.Client) *OnChainVerifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &OnChainVerifier{facilitatorURL: facilitatorURL, httpClient: httpClient}
}

type verifyRequest struct {
	ProofToken   string `json:"proofToken"`
	ChainID      int64  `json:"chainId"`
	Recipient    string `json:"recipient"`
	Amount       string `json:"amount"`
	TokenAddress string `json:"tokenAddress"`
}

type verifyResponse struct {
	Verified bool `json:"verified"`
}

func (v *OnChainVerifier) VerifyOnChain(ctx context.Context, token string, want Expectation) (bool, error) {
	body, err := json.Marshal(verifyRequest{
		ProofToken:   token,
		ChainID:      want.ChainID,
		Recipient:    want.Recipient,
		Amount:       want.Amount,
		TokenAddress: want.TokenAddress,
	})
	if err != nil {
		return false, fmt.Errorf("marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.facilitatorURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("call facilitator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("facilitator returned status %d", resp.StatusCode)
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode facilitator response: %w", err)
	}
	return out.Verified, nil
}
