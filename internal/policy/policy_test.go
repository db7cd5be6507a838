package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tollgate/internal/settings"
	dErrors "tollgate/pkg/domain-errors"
)

type fakeProofChecker struct {
	verified map[string]bool
}

func (f *fakeProofChecker) IsVerified(_ context.Context, token string) (bool, error) {
	return f.verified[token], nil
}

type EngineSuite struct {
	suite.Suite
	proofs *fakeProofChecker
	engine *Engine
	ctx    context.Context
	now    time.Time
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.proofs = &fakeProofChecker{verified: make(map[string]bool)}
	s.now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	var err error
	s.engine, err = NewEngine(s.proofs, WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)

	s.ctx = context.Background()
}

func (s *EngineSuite) defaultSettings() settings.Settings {
	return settings.Settings{
		ChainID:           8453,
		TokenAddress:      "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		PriceAtomicUnits:  "1000000",
		GatedRoutes:       []string{"/protected"},
		Allowlist:         []string{"googlebot", "bingbot"},
		ProtectionEnabled: true,
	}
}

func (s *EngineSuite) TestNew() {
	s.Run("nil proof checker returns error", func() {
		_, err := NewEngine(nil)
		s.Error(err)
	})
}

func (s *EngineSuite) TestProtectionDisabled() {
	cfg := s.defaultSettings()
	cfg.ProtectionEnabled = false

	for _, signal := range []string{"DataBot/2.0", "Mozilla/5.0 Chrome/120", "Mozilla/5.0 (compatible; Googlebot/2.1)", ""} {
		decision, err := s.engine.Evaluate(s.ctx, Descriptor{IdentitySignal: signal, Path: "/protected"}, cfg)
		s.Require().NoError(err)
		s.True(decision.Allowed)
		s.Equal(ReasonProtectionDisabled, decision.Reason)
	}
}

func (s *EngineSuite) TestAllowlist() {
	cfg := s.defaultSettings()

	s.Run("allowlisted bot bypasses payment regardless of case", func() {
		for _, signal := range []string{
			"Mozilla/5.0 (compatible; Googlebot/2.1)",
			"GOOGLEBOT/2.1",
			"prefix googlebot suffix",
		} {
			decision, err := s.engine.Evaluate(s.ctx, Descriptor{IdentitySignal: signal, Path: "/protected"}, cfg)
			s.Require().NoError(err)
			s.True(decision.Allowed)
			s.Equal(ReasonAllowlisted, decision.Reason)
		}
	})

	s.Run("allowlist takes precedence over bot classification", func() {
		decision, err := s.engine.Evaluate(s.ctx, Descriptor{IdentitySignal: "bingbot-crawler"}, cfg)
		s.Require().NoError(err)
		s.Equal(ReasonAllowlisted, decision.Reason)
	})

	s.Run("empty allowlist entries are ignored", func() {
		cfg := s.defaultSettings()
		cfg.Allowlist = []string{""}
		decision, err := s.engine.Evaluate(s.ctx, Descriptor{IdentitySignal: "Mozilla/5.0 Chrome/120"}, cfg)
		s.Require().NoError(err)
		s.Equal(ReasonHuman, decision.Reason)
	})
}

func (s *EngineSuite) TestHumanTraffic() {
	cfg := s.defaultSettings()

	decision, err := s.engine.Evaluate(s.ctx, Descriptor{
		IdentitySignal: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0",
		Path:           "/protected",
	}, cfg)
	s.Require().NoError(err)
	s.True(decision.Allowed)
	s.Equal(ReasonHuman, decision.Reason)
}

func (s *EngineSuite) TestPaymentRequired() {
	cfg := s.defaultSettings()

	decision, err := s.engine.Evaluate(s.ctx, Descriptor{IdentitySignal: "DataBot/2.0", Path: "/protected"}, cfg)
	s.Require().NoError(err)
	s.False(decision.Allowed)
	s.Equal(ReasonPaymentRequired, decision.Reason)

	s.Require().NotNil(decision.Challenge)
	s.Equal(cfg.PriceAtomicUnits, decision.Challenge.Amount)
	s.Equal(cfg.ChainID, decision.Challenge.ChainID)
	s.Equal(cfg.TokenAddress, decision.Challenge.TokenAddress)
	s.Equal(DefaultRecipient, decision.Challenge.Recipient)
	s.Contains(decision.Challenge.Description, "/protected")
	s.Equal(s.now.Add(ChallengeTTL), decision.Challenge.ExpiresAt)
}

func (s *EngineSuite) TestVerifiedProof() {
	cfg := s.defaultSettings()
	token := "0xabc123"

	s.Run("unverified proof still requires payment", func() {
		decision, err := s.engine.Evaluate(s.ctx, Descriptor{IdentitySignal: "DataBot/2.0", Proof: token}, cfg)
		s.Require().NoError(err)
		s.False(decision.Allowed)
	})

	s.Run("verified proof allows", func() {
		s.proofs.verified[token] = true
		decision, err := s.engine.Evaluate(s.ctx, Descriptor{IdentitySignal: "DataBot/2.0", Proof: token}, cfg)
		s.Require().NoError(err)
		s.True(decision.Allowed)
		s.Equal(ReasonPaymentVerified, decision.Reason)
	})
}

func (s *EngineSuite) TestMalformedPrice() {
	cfg := s.defaultSettings()
	cfg.PriceAtomicUnits = "not-a-number"

	s.Run("challenge construction fails fast", func() {
		_, err := s.engine.Evaluate(s.ctx, Descriptor{IdentitySignal: "DataBot/2.0"}, cfg)
		s.Require().Error(err)
		s.Equal(dErrors.CodeConfiguration, dErrors.CodeOf(err))
	})

	s.Run("allow paths do not consult the price", func() {
		decision, err := s.engine.Evaluate(s.ctx, Descriptor{IdentitySignal: "Mozilla/5.0 Chrome/120"}, cfg)
		s.Require().NoError(err)
		s.True(decision.Allowed)
	})
}

func (s *EngineSuite) TestCustomRecipient() {
	engine, err := NewEngine(s.proofs, WithRecipient("0xfeed"))
	s.Require().NoError(err)

	decision, err := engine.Evaluate(s.ctx, Descriptor{IdentitySignal: "DataBot/2.0"}, s.defaultSettings())
	s.Require().NoError(err)
	s.Equal("0xfeed", decision.Challenge.Recipient)
}
