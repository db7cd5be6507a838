package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"tollgate/internal/settings"
)

type StoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = New(settings.Default())
}

func (s *StoreSuite) TestRead() {
	got, err := s.store.Read(s.ctx)
	s.Require().NoError(err)
	s.Equal(settings.Default(), got)
}

func (s *StoreSuite) TestWrite() {
	s.Run("last write wins", func() {
		next := settings.Default()
		next.PriceAtomicUnits = "2500000"
		s.Require().NoError(s.store.Write(s.ctx, next))

		got, err := s.store.Read(s.ctx)
		s.Require().NoError(err)
		s.Equal("2500000", got.PriceAtomicUnits)
	})

	s.Run("invalid settings are rejected and not applied", func() {
		bad := settings.Default()
		bad.PriceAtomicUnits = "not-a-number"
		s.Require().Error(s.store.Write(s.ctx, bad))

		got, err := s.store.Read(s.ctx)
		s.Require().NoError(err)
		s.Equal("2500000", got.PriceAtomicUnits)
	})

	s.Run("writes are normalized", func() {
		next := settings.Default()
		next.Allowlist = []string{"GoogleBot", "googlebot"}
		s.Require().NoError(s.store.Write(s.ctx, next))

		got, err := s.store.Read(s.ctx)
		s.Require().NoError(err)
		s.Equal([]string{"googlebot"}, got.Allowlist)
	})
}

func (s *StoreSuite) TestSubscribe() {
	var seen []string
	cancel := s.store.Subscribe(func(next settings.Settings) {
		seen = append(seen, next.PriceAtomicUnits)
	})

	next := settings.Default()
	next.PriceAtomicUnits = "5000000"
	s.Require().NoError(s.store.Write(s.ctx, next))
	s.Equal([]string{"5000000"}, seen)

	// Failed writes never notify.
	bad := settings.Default()
	bad.TokenAddress = ""
	s.Require().Error(s.store.Write(s.ctx, bad))
	s.Len(seen, 1)

	cancel()
	next.PriceAtomicUnits = "7000000"
	s.Require().NoError(s.store.Write(s.ctx, next))
	s.Len(seen, 1)
}
