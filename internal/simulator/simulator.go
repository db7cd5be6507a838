// Package simulator drives whole request lifecycles the way the demo's bot
// clients would: issue the request, and when challenged, generate a proof,
// settle, and retry.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"tollgate/internal/flow"
	"tollgate/internal/policy"
	"tollgate/internal/proof"
	dErrors "tollgate/pkg/domain-errors"
)

// Presets are the identity signals the original demo ships with.
var Presets = map[string]string{
	"browser":   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0",
	"googlebot": "Mozilla/5.0 (compatible; Googlebot/2.1)",
	"botx":      "BotX/1.0 (+http://example.com/bot)",
	"databot":   "DataBot/2.0",
}

// PresetNames lists the presets in stable order.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultPath targets the demo's gated route.
const DefaultPath = "/protected"

// maxBurst bounds one Burst call.
const maxBurst = 100

// Result summarizes one completed lifecycle.
type Result struct {
	FlowID         string `json:"flowId"`
	Preset         string `json:"preset"`
	IdentitySignal string `json:"identitySignal"`
	Path           string `json:"path"`
	Reason         string `json:"reason"`
	Paid           bool   `json:"paid"`
	ProofToken     string `json:"proofToken,omitempty"`
}

// Simulator runs scripted lifecycles against the flow service.
type Simulator struct {
	flows  *flow.Service
	logger *slog.Logger
}

// New constructs a simulator.
func New(flows *flow.Service, logger *slog.Logger) *Simulator {
	return &Simulator{flows: flows, logger: logger}
}

// Run drives one full lifecycle for the preset. A challenged run generates a
// mock proof and settles it; an allowed run terminates immediately.
func (s *Simulator) Run(ctx context.Context, preset, path string) (*Result, error) {
	signal, ok := Presets[preset]
	if !ok {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unknown preset %q", preset))
	}
	if path == "" {
		path = DefaultPath
	}

	f := s.flows.Start(policy.Descriptor{IdentitySignal: signal, Path: path})
	outcome, err := f.Submit(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{
		FlowID:         outcome.FlowID,
		Preset:         preset,
		IdentitySignal: signal,
		Path:           path,
		Reason:         string(outcome.Reason),
	}
	if outcome.State == flow.StateAllowed {
		return result, nil
	}

	token, err := proof.NewTxHash()
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "generate payment proof", err)
	}

	outcome, err = f.SubmitProof(ctx, token)
	if err != nil {
		return nil, err
	}

	result.Reason = string(outcome.Reason)
	result.Paid = true
	result.ProofToken = token

	s.logger.InfoContext(ctx, "simulated lifecycle settled",
		"preset", preset,
		"flow_id", result.FlowID,
	)
	return result, nil
}

// Burst drives count independent lifecycles concurrently, each against its
// own flow instance sharing the same settings store and ledger.
func (s *Simulator) Burst(ctx context.Context, preset, path string, count int) ([]*Result, error) {
	if count <= 0 {
		count = 1
	}
	if count > maxBurst {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("count must be at most %d", maxBurst))
	}

	results := make([]*Result, count)
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for i := range count {
		g.Go(func() error {
			result, err := s.Run(ctx, preset, path)
			if err != nil {
				return err
			}
			mu.Lock()
			results[i] = result
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
