package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tollgate/internal/events"
	eventsmemory "tollgate/internal/events/store/memory"
	"tollgate/internal/ledger"
	"tollgate/internal/policy"
	"tollgate/internal/settings"
	settingsmemory "tollgate/internal/settings/store/memory"
	dErrors "tollgate/pkg/domain-errors"
)

type FlowSuite struct {
	suite.Suite
	ctx        context.Context
	now        time.Time
	settings   *settingsmemory.Store
	eventStore *eventsmemory.Store
	publisher  *events.Publisher
	paymentLog *ledger.Ledger
	service    *Service
}

func TestFlowSuite(t *testing.T) {
	suite.Run(t, new(FlowSuite))
}

func (s *FlowSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	s.settings = settingsmemory.New(settings.Default())
	s.eventStore = eventsmemory.New(0)
	s.publisher = events.NewPublisher(s.eventStore)
	s.paymentLog = ledger.New(ledger.NewMemoryStore(), ledger.MockVerifier{})

	s.service = s.newService()
}

func (s *FlowSuite) newService(opts ...ServiceOption) *Service {
	clock := func() time.Time { return s.now }

	engine, err := policy.NewEngine(s.paymentLog, policy.WithClock(clock))
	s.Require().NoError(err)

	opts = append([]ServiceOption{WithClock(clock)}, opts...)
	svc, err := NewService(engine, s.paymentLog, s.settings, s.publisher, opts...)
	s.Require().NoError(err)
	return svc
}

func (s *FlowSuite) storedEvents() []events.Event {
	stored, err := s.eventStore.Query(s.ctx, events.Filter{})
	s.Require().NoError(err)
	return stored
}

func (s *FlowSuite) TestNewService() {
	engine, err := policy.NewEngine(s.paymentLog)
	s.Require().NoError(err)

	_, err = NewService(nil, s.paymentLog, s.settings, s.publisher)
	s.Error(err)
	_, err = NewService(engine, nil, s.settings, s.publisher)
	s.Error(err)
	_, err = NewService(engine, s.paymentLog, nil, s.publisher)
	s.Error(err)
	_, err = NewService(engine, s.paymentLog, s.settings, nil)
	s.Error(err)
}

func (s *FlowSuite) TestDirectAllow() {
	s.Run("human traffic", func() {
		f := s.service.Start(policy.Descriptor{
			IdentitySignal: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0",
			Path:           "/protected",
		})
		outcome, err := f.Submit(s.ctx)
		s.Require().NoError(err)

		s.Equal(StateAllowed, outcome.State)
		s.Equal(policy.ReasonHuman, outcome.Reason)
		s.Nil(outcome.Challenge)
		s.Require().NotNil(outcome.Event)
		s.Equal(events.StatusAllowed, outcome.Event.Status)
	})

	s.Run("allowlisted crawler", func() {
		f := s.service.Start(policy.Descriptor{
			IdentitySignal: "Mozilla/5.0 (compatible; Googlebot/2.1)",
			Path:           "/protected",
		})
		outcome, err := f.Submit(s.ctx)
		s.Require().NoError(err)

		s.Equal(StateAllowed, outcome.State)
		s.Equal(policy.ReasonAllowlisted, outcome.Reason)
	})

	s.Run("exactly one event per allowed lifecycle", func() {
		s.Len(s.storedEvents(), 2)
	})
}

func (s *FlowSuite) TestPaidRoundTrip() {
	f := s.service.Start(policy.Descriptor{IdentitySignal: "DataBot/2.0", Path: "/protected"})

	outcome, err := f.Submit(s.ctx)
	s.Require().NoError(err)
	s.Equal(StatePaymentPending, outcome.State)
	s.Equal(policy.ReasonPaymentRequired, outcome.Reason)
	s.Require().NotNil(outcome.Challenge)
	s.Equal("1000000", outcome.Challenge.Amount)
	s.Equal(s.now.Add(policy.ChallengeTTL), outcome.Challenge.ExpiresAt)

	outcome, err = f.SubmitProof(s.ctx, "0xproof1")
	s.Require().NoError(err)
	s.Equal(StateAllowed, outcome.State)
	s.Equal(policy.ReasonPaymentVerified, outcome.Reason)

	// Exactly two events: the block and the settled retry.
	stored := s.storedEvents()
	s.Require().Len(stored, 2)

	paid, blocked := stored[0], stored[1]
	s.Equal(events.StatusBlocked, blocked.Status)
	s.Equal("DataBot/2.0", blocked.IdentitySignal)

	s.Equal(events.StatusPaid, paid.Status)
	s.Equal("0xproof1", paid.ProofToken)
	s.Equal("1000000", paid.Amount)
	s.Equal(settings.Default().TokenAddress, paid.TokenAddress)
	s.Equal(settings.Default().ChainID, paid.ChainID)
}

func (s *FlowSuite) TestSubmitIsSingleShot() {
	f := s.service.Start(policy.Descriptor{IdentitySignal: "DataBot/2.0", Path: "/protected"})

	_, err := f.Submit(s.ctx)
	s.Require().NoError(err)

	_, err = f.Submit(s.ctx)
	s.Require().Error(err)
	s.Equal(dErrors.CodeBadRequest, dErrors.CodeOf(err))
}

func (s *FlowSuite) TestSubmitProofRequiresPendingPayment() {
	s.Run("before submit", func() {
		f := s.service.Start(policy.Descriptor{IdentitySignal: "DataBot/2.0"})
		_, err := f.SubmitProof(s.ctx, "0xproof")
		s.Require().Error(err)
		s.Equal(dErrors.CodeBadRequest, dErrors.CodeOf(err))
	})

	s.Run("after an allow", func() {
		f := s.service.Start(policy.Descriptor{IdentitySignal: "Mozilla/5.0 Chrome/120"})
		_, err := f.Submit(s.ctx)
		s.Require().NoError(err)

		_, err = f.SubmitProof(s.ctx, "0xproof")
		s.Require().Error(err)
		s.Equal(dErrors.CodeBadRequest, dErrors.CodeOf(err))
	})
}

func (s *FlowSuite) TestFailedVerificationIsRecoverable() {
	f := s.service.Start(policy.Descriptor{IdentitySignal: "DataBot/2.0", Path: "/protected"})
	_, err := f.Submit(s.ctx)
	s.Require().NoError(err)

	// The mock verifier rejects empty tokens.
	_, err = f.SubmitProof(s.ctx, "")
	s.Require().Error(err)
	s.Equal(dErrors.CodeVerificationFailed, dErrors.CodeOf(err))
	s.Equal(StatePaymentPending, f.State())

	outcome, err := f.SubmitProof(s.ctx, "0xproof2")
	s.Require().NoError(err)
	s.Equal(StateAllowed, outcome.State)
}

func (s *FlowSuite) TestChallengeExpiry() {
	s.Run("expired challenge rejects the proof", func() {
		f := s.service.Start(policy.Descriptor{IdentitySignal: "DataBot/2.0", Path: "/protected"})
		_, err := f.Submit(s.ctx)
		s.Require().NoError(err)

		s.now = s.now.Add(policy.ChallengeTTL + time.Second)
		_, err = f.SubmitProof(s.ctx, "0xproof3")
		s.Require().Error(err)
		s.Equal(dErrors.CodeVerificationFailed, dErrors.CodeOf(err))
		s.Equal(StatePaymentPending, f.State())
	})

	s.Run("enforcement can be switched off", func() {
		svc := s.newService(WithoutExpiryEnforcement())

		f := svc.Start(policy.Descriptor{IdentitySignal: "DataBot/2.0", Path: "/protected"})
		_, err := f.Submit(s.ctx)
		s.Require().NoError(err)

		s.now = s.now.Add(policy.ChallengeTTL + time.Hour)
		outcome, err := f.SubmitProof(s.ctx, "0xproof4")
		s.Require().NoError(err)
		s.Equal(StateAllowed, outcome.State)
	})
}

// forgetfulStore accepts marks but never retains them, forcing the
// post-payment re-evaluation to desynchronize from the ledger.
type forgetfulStore struct{}

func (forgetfulStore) MarkVerified(context.Context, string) error { return nil }

func (forgetfulStore) IsVerified(context.Context, string) (bool, error) { return false, nil }

func (s *FlowSuite) TestConfirmedPaymentStillDenied() {
	s.paymentLog = ledger.New(forgetfulStore{}, ledger.MockVerifier{})
	svc := s.newService()

	f := svc.Start(policy.Descriptor{IdentitySignal: "DataBot/2.0", Path: "/protected"})
	_, err := f.Submit(s.ctx)
	s.Require().NoError(err)

	_, err = f.SubmitProof(s.ctx, "0xproof5")
	s.Require().Error(err)
	s.Equal(dErrors.CodeUnexpectedState, dErrors.CodeOf(err))
	s.Equal(StateErrored, f.State())
}

func (s *FlowSuite) TestMidFlowPriceChange() {
	f := s.service.Start(policy.Descriptor{IdentitySignal: "DataBot/2.0", Path: "/protected"})
	outcome, err := f.Submit(s.ctx)
	s.Require().NoError(err)
	s.Equal("1000000", outcome.Challenge.Amount)

	raised := settings.Default()
	raised.PriceAtomicUnits = "2500000"
	s.Require().NoError(s.settings.Write(s.ctx, raised))

	// The payer settles the challenge they were actually given.
	outcome, err = f.SubmitProof(s.ctx, "0xproof6")
	s.Require().NoError(err)
	s.Equal("1000000", outcome.Event.Amount)

	// New flows are challenged at the new price.
	next := s.service.Start(policy.Descriptor{IdentitySignal: "DataBot/2.0", Path: "/protected"})
	outcome, err = next.Submit(s.ctx)
	s.Require().NoError(err)
	s.Equal("2500000", outcome.Challenge.Amount)
}

type failingSettingsStore struct{}

func (failingSettingsStore) Read(context.Context) (settings.Settings, error) {
	return settings.Settings{}, errors.New("store down")
}

func (failingSettingsStore) Write(context.Context, settings.Settings) error {
	return errors.New("store down")
}

func (failingSettingsStore) Subscribe(func(settings.Settings)) (cancel func()) {
	return func() {}
}

func (s *FlowSuite) TestSettingsStoreFailure() {
	engine, err := policy.NewEngine(s.paymentLog)
	s.Require().NoError(err)

	svc, err := NewService(engine, s.paymentLog, failingSettingsStore{}, s.publisher)
	s.Require().NoError(err)

	f := svc.Start(policy.Descriptor{IdentitySignal: "DataBot/2.0"})
	_, err = f.Submit(s.ctx)
	s.Require().Error(err)
	s.Equal(dErrors.CodeCollaboratorUnavailable, dErrors.CodeOf(err))
	s.Equal(StateErrored, f.State())
}
