// Package flow orchestrates the payment-gated request lifecycle: the
// two-phase request → 402 → pay → retry handshake. One Flow instance covers
// one logical request attempt; states advance strictly forward and every
// terminal or challenge transition emits exactly one request event.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tollgate/internal/events"
	"tollgate/internal/flow/metrics"
	"tollgate/internal/ledger"
	"tollgate/internal/policy"
	"tollgate/internal/settings"
	dErrors "tollgate/pkg/domain-errors"
)

// State names a position in the request lifecycle.
type State string

const (
	StateInitiated        State = "initiated"
	StatePaymentPending   State = "payment_pending"
	StatePaymentConfirmed State = "payment_confirmed"
	StateRetried          State = "retried"
	StateAllowed          State = "allowed"
	StateErrored          State = "errored"
)

// Outcome reports the result of driving a flow one step.
type Outcome struct {
	FlowID    string
	State     State
	Reason    policy.Reason
	Challenge *policy.Challenge
	Event     *events.Event
}

// Service owns the collaborators every flow needs. Settings are re-read on
// every evaluation so configuration changes mid-flow surface in subsequent
// challenges.
type Service struct {
	engine    *policy.Engine
	ledger    *ledger.Ledger
	settings  settings.Store
	publisher *events.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time

	// enforceExpiry rejects proofs submitted after the challenge's
	// ExpiresAt. The challenge payload advertises the deadline either way.
	enforceExpiry bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics attaches prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithoutExpiryEnforcement restores the reference behavior of accepting
// proofs for expired challenges.
func WithoutExpiryEnforcement() ServiceOption {
	return func(s *Service) {
		s.enforceExpiry = false
	}
}

// NewService constructs the flow service.
func NewService(
	engine *policy.Engine,
	paymentLedger *ledger.Ledger,
	settingsStore settings.Store,
	publisher *events.Publisher,
	opts ...ServiceOption,
) (*Service, error) {
	if engine == nil {
		return nil, fmt.Errorf("policy engine is required")
	}
	if paymentLedger == nil {
		return nil, fmt.Errorf("payment ledger is required")
	}
	if settingsStore == nil {
		return nil, fmt.Errorf("settings store is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("event publisher is required")
	}

	s := &Service{
		engine:        engine,
		ledger:        paymentLedger,
		settings:      settingsStore,
		publisher:     publisher,
		logger:        slog.Default(),
		tracer:        otel.Tracer("tollgate/flow"),
		now:           time.Now,
		enforceExpiry: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Flow is one request lifecycle. Drive it with Submit, then SubmitProof when
// challenged. A Flow is not reusable across logical request attempts.
type Flow struct {
	svc *Service

	mu         sync.Mutex
	id         string
	descriptor policy.Descriptor
	state      State
	challenge  *policy.Challenge
}

// Start begins a lifecycle for the descriptor.
func (s *Service) Start(d policy.Descriptor) *Flow {
	return &Flow{
		svc:        s,
		id:         uuid.NewString(),
		descriptor: d,
		state:      StateInitiated,
	}
}

// ID returns the flow's identifier.
func (f *Flow) ID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

// State returns the flow's current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Submit runs the first evaluation. An allow terminates the flow with one
// event; a payment requirement emits a blocked event, parks the flow in
// PaymentPending, and returns the challenge.
func (f *Flow) Submit(ctx context.Context) (*Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ctx, span := f.svc.tracer.Start(ctx, "flow.submit",
		trace.WithAttributes(attribute.String("flow.id", f.id)))
	defer span.End()

	if f.state != StateInitiated {
		return nil, dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("flow already driven (state %s); start a fresh flow per request attempt", f.state))
	}

	decision, err := f.svc.evaluate(ctx, f.descriptor)
	if err != nil {
		f.state = StateErrored
		return nil, err
	}

	if decision.Allowed {
		event, err := f.svc.emit(ctx, f.descriptor, decision, nil)
		if err != nil {
			f.state = StateErrored
			return nil, err
		}
		f.state = StateAllowed
		return f.outcome(decision.Reason, event), nil
	}

	event, err := f.svc.emit(ctx, f.descriptor, decision, nil)
	if err != nil {
		f.state = StateErrored
		return nil, err
	}
	f.challenge = decision.Challenge
	f.state = StatePaymentPending
	return f.outcome(decision.Reason, event), nil
}

// SubmitProof verifies the payment proof for a challenged flow and, on
// success, automatically retries the original descriptor with the proof
// attached. Verification failures are recoverable: the flow stays in
// PaymentPending and the caller may retry.
func (f *Flow) SubmitProof(ctx context.Context, token string) (*Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ctx, span := f.svc.tracer.Start(ctx, "flow.submit_proof",
		trace.WithAttributes(attribute.String("flow.id", f.id)))
	defer span.End()

	if f.state != StatePaymentPending {
		return nil, dErrors.New(dErrors.CodeBadRequest,
			fmt.Sprintf("no payment pending (state %s)", f.state))
	}

	if f.svc.enforceExpiry && f.svc.now().After(f.challenge.ExpiresAt) {
		if f.svc.metrics != nil {
			f.svc.metrics.ObserveVerification(false)
		}
		return nil, dErrors.New(dErrors.CodeVerificationFailed, "payment challenge expired")
	}

	verified, err := f.svc.ledger.Verify(ctx, token, ledger.Expectation{
		ChainID:      f.challenge.ChainID,
		Recipient:    f.challenge.Recipient,
		Amount:       f.challenge.Amount,
		TokenAddress: f.challenge.TokenAddress,
	})
	if err != nil {
		return nil, err
	}
	if f.svc.metrics != nil {
		f.svc.metrics.ObserveVerification(verified)
	}
	if !verified {
		return nil, dErrors.New(dErrors.CodeVerificationFailed, "payment proof could not be verified")
	}

	f.state = StatePaymentConfirmed

	// Retry the original descriptor with the proof attached against a
	// fresh settings read.
	f.descriptor.Proof = token
	f.state = StateRetried

	decision, err := f.svc.evaluate(ctx, f.descriptor)
	if err != nil {
		f.state = StateErrored
		return nil, err
	}

	if !decision.Allowed {
		// Confirmed payment that still evaluates to payment-required
		// means the ledger and configuration have desynchronized.
		f.state = StateErrored
		f.svc.logger.ErrorContext(ctx, "re-evaluation after confirmed payment still requires payment",
			"flow_id", f.id,
			"path", f.descriptor.Path,
		)
		return nil, dErrors.New(dErrors.CodeUnexpectedState, "payment confirmed but access still denied")
	}

	event, err := f.svc.emit(ctx, f.descriptor, decision, f.challenge)
	if err != nil {
		f.state = StateErrored
		return nil, err
	}
	f.state = StateAllowed
	return f.outcome(decision.Reason, event), nil
}

// Challenge returns the outstanding challenge, if any.
func (f *Flow) Challenge() *policy.Challenge {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.challenge
}

func (f *Flow) outcome(reason policy.Reason, event *events.Event) *Outcome {
	return &Outcome{
		FlowID:    f.id,
		State:     f.state,
		Reason:    reason,
		Challenge: f.challenge,
		Event:     event,
	}
}

func (s *Service) currentPriceChallenge(ctx context.Context) *policy.Challenge {
	current, err := s.settings.Read(ctx)
	if err != nil {
		return nil
	}
	price, err := current.Price()
	if err != nil {
		return nil
	}
	return &policy.Challenge{
		ChainID:      current.ChainID,
		TokenAddress: current.TokenAddress,
		Amount:       price.String(),
	}
}

func (s *Service) evaluate(ctx context.Context, d policy.Descriptor) (policy.Decision, error) {
	current, err := s.settings.Read(ctx)
	if err != nil {
		return policy.Decision{}, dErrors.Wrap(dErrors.CodeCollaboratorUnavailable, "read settings", err)
	}

	start := s.now()
	decision, err := s.engine.Evaluate(ctx, d, current)
	if err != nil {
		return policy.Decision{}, err
	}
	if s.metrics != nil {
		s.metrics.ObserveEvaluateDuration(time.Since(start))
		s.metrics.ObserveDecision(string(decision.Reason))
	}
	return decision, nil
}

// emit appends the request event for a transition. paidChallenge carries the
// challenge the payer satisfied; nil for first-pass transitions.
func (s *Service) emit(ctx context.Context, d policy.Descriptor, decision policy.Decision, paidChallenge *policy.Challenge) (*events.Event, error) {
	event := events.Event{
		ID:             uuid.NewString(),
		Timestamp:      s.now(),
		IdentitySignal: d.IdentitySignal,
		Path:           d.Path,
	}

	switch {
	case !decision.Allowed:
		event.Status = events.StatusBlocked
	case decision.Reason == policy.ReasonPaymentVerified:
		event.Status = events.StatusPaid
		event.ProofToken = d.Proof
		if paidChallenge == nil {
			// Proof arrived pre-attached (no challenge in this flow);
			// charge the currently configured price.
			paidChallenge = s.currentPriceChallenge(ctx)
		}
		if paidChallenge != nil {
			event.Amount = paidChallenge.Amount
			event.TokenAddress = paidChallenge.TokenAddress
			event.ChainID = paidChallenge.ChainID
		}
	default:
		event.Status = events.StatusAllowed
	}

	if err := s.publisher.Emit(ctx, event); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeCollaboratorUnavailable, "append request event", err)
	}
	if s.metrics != nil {
		s.metrics.ObserveEvent(string(event.Status))
	}

	s.logger.InfoContext(ctx, "request event",
		"event_id", event.ID,
		"status", event.Status,
		"path", event.Path,
	)
	return &event, nil
}
