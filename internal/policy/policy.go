// Package policy implements the access-decision engine: given a request's
// identity signal and the current publisher settings, decide whether to
// allow the request or demand payment.
package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tollgate/internal/settings"
	"tollgate/pkg/requestcontext"
)

// Reason explains why a request was allowed, or that payment is required.
type Reason string

const (
	ReasonHuman              Reason = "human"
	ReasonAllowlisted        Reason = "allowlisted"
	ReasonProtectionDisabled Reason = "protection_disabled"
	ReasonPaymentVerified    Reason = "payment_verified"
	ReasonPaymentRequired    Reason = "payment_required"
)

// Descriptor describes one call against a protected route.
type Descriptor struct {
	// IdentitySignal classifies the requester (human / automated /
	// allowlisted); analogous to a client-declared identity header.
	IdentitySignal string
	// Path is the target route.
	Path string
	// Proof is an optional opaque payment-proof token.
	Proof string
}

// Challenge carries the payment parameters returned with a 402.
type Challenge struct {
	ChainID      int64     `json:"chainId"`
	TokenAddress string    `json:"tokenAddress"`
	Amount       string    `json:"amount"`
	Recipient    string    `json:"recipient"`
	Description  string    `json:"description"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Decision is the engine output. Exactly one of the two shapes holds: an
// allow with a reason, or a payment requirement with a challenge.
type Decision struct {
	Allowed   bool
	Reason    Reason
	Challenge *Challenge
}

// ProofChecker is the read-only view of the payment ledger the engine
// consults.
type ProofChecker interface {
	IsVerified(ctx context.Context, token string) (bool, error)
}

// ChallengeTTL is how long a payment challenge stays valid.
const ChallengeTTL = 5 * time.Minute

// DefaultRecipient is the demo publisher wallet.
const DefaultRecipient = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"

// Engine evaluates descriptors against settings. Evaluate is a pure function
// of its inputs plus the injected clock; rules stay centralized and testable.
type Engine struct {
	proofs     ProofChecker
	classifier Classifier
	recipient  string
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClassifier replaces the automated-traffic classifier.
func WithClassifier(c Classifier) Option {
	return func(e *Engine) {
		if c != nil {
			e.classifier = c
		}
	}
}

// WithRecipient sets the payment recipient advertised in challenges.
func WithRecipient(address string) Option {
	return func(e *Engine) {
		if address != "" {
			e.recipient = address
		}
	}
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine constructs an engine consulting the given proof checker.
func NewEngine(proofs ProofChecker, opts ...Option) (*Engine, error) {
	if proofs == nil {
		return nil, fmt.Errorf("proof checker is required")
	}
	e := &Engine{
		proofs:     proofs,
		classifier: HeuristicClassifier{},
		recipient:  DefaultRecipient,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate applies the rule chain in strict precedence order; the first
// matching rule wins:
//
//  1. protection disabled
//  2. allowlisted identity signal
//  3. non-automated (human) traffic
//  4. verified payment proof
//  5. payment required
func (e *Engine) Evaluate(ctx context.Context, d Descriptor, cfg settings.Settings) (Decision, error) {
	if !cfg.ProtectionEnabled {
		return Decision{Allowed: true, Reason: ReasonProtectionDisabled}, nil
	}

	if allowlisted(d.IdentitySignal, cfg.Allowlist) {
		return Decision{Allowed: true, Reason: ReasonAllowlisted}, nil
	}

	if !e.classifier.Automated(d.IdentitySignal) {
		return Decision{Allowed: true, Reason: ReasonHuman}, nil
	}

	if d.Proof != "" {
		verified, err := e.proofs.IsVerified(ctx, d.Proof)
		if err != nil {
			return Decision{}, err
		}
		if verified {
			return Decision{Allowed: true, Reason: ReasonPaymentVerified}, nil
		}
	}

	challenge, err := e.buildChallenge(ctx, d, cfg)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Reason: ReasonPaymentRequired, Challenge: challenge}, nil
}

func (e *Engine) buildChallenge(ctx context.Context, d Descriptor, cfg settings.Settings) (*Challenge, error) {
	price, err := cfg.Price()
	if err != nil {
		return nil, err
	}

	now := e.now()
	if _, pinned := ctx.Value(requestcontext.ContextKeyRequestTime).(time.Time); pinned {
		now = requestcontext.Now(ctx)
	}

	return &Challenge{
		ChainID:      cfg.ChainID,
		TokenAddress: cfg.TokenAddress,
		Amount:       price.String(),
		Recipient:    e.recipient,
		Description:  fmt.Sprintf("Access to %s endpoint", d.Path),
		ExpiresAt:    now.Add(ChallengeTTL),
	}, nil
}

func allowlisted(signal string, allowlist []string) bool {
	lower := strings.ToLower(signal)
	for _, entry := range allowlist {
		if entry == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(entry)) {
			return true
		}
	}
	return false
}
