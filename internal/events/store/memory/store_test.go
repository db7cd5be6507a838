package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tollgate/internal/events"
)

type StoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *Store
	base  time.Time
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = New(0)
	s.base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *StoreSuite) event(i int, status events.Status) events.Event {
	return events.Event{
		ID:        fmt.Sprintf("event-%d", i),
		Timestamp: s.base.Add(time.Duration(i) * time.Second),
		Status:    status,
	}
}

func (s *StoreSuite) TestNewestFirst() {
	for i := range 3 {
		s.Require().NoError(s.store.Append(s.ctx, s.event(i, events.StatusAllowed)))
	}

	got, err := s.store.Query(s.ctx, events.Filter{})
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.Equal("event-2", got[0].ID)
	s.Equal("event-0", got[2].ID)
}

func (s *StoreSuite) TestRetentionWindow() {
	store := New(5)
	for i := range 12 {
		s.Require().NoError(store.Append(s.ctx, s.event(i, events.StatusAllowed)))
	}

	got, err := store.Query(s.ctx, events.Filter{})
	s.Require().NoError(err)
	s.Require().Len(got, 5)

	// Only the newest five survive.
	s.Equal("event-11", got[0].ID)
	s.Equal("event-7", got[4].ID)
}

func (s *StoreSuite) TestDefaultWindow() {
	for i := range DefaultWindow + 20 {
		s.Require().NoError(s.store.Append(s.ctx, s.event(i, events.StatusAllowed)))
	}

	got, err := s.store.Query(s.ctx, events.Filter{})
	s.Require().NoError(err)
	s.Len(got, DefaultWindow)
}

func (s *StoreSuite) TestFilters() {
	s.Require().NoError(s.store.Append(s.ctx, s.event(0, events.StatusBlocked)))
	s.Require().NoError(s.store.Append(s.ctx, s.event(1, events.StatusPaid)))
	s.Require().NoError(s.store.Append(s.ctx, s.event(2, events.StatusAllowed)))
	s.Require().NoError(s.store.Append(s.ctx, s.event(3, events.StatusPaid)))

	s.Run("by status", func() {
		got, err := s.store.Query(s.ctx, events.Filter{Status: events.StatusPaid})
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal("event-3", got[0].ID)
		s.Equal("event-1", got[1].ID)
	})

	s.Run("by since", func() {
		got, err := s.store.Query(s.ctx, events.Filter{Since: s.base.Add(time.Second)})
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal("event-3", got[0].ID)
		s.Equal("event-2", got[1].ID)
	})

	s.Run("by limit", func() {
		got, err := s.store.Query(s.ctx, events.Filter{Limit: 2})
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal("event-3", got[0].ID)
	})

	s.Run("combined", func() {
		got, err := s.store.Query(s.ctx, events.Filter{Status: events.StatusPaid, Limit: 1})
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal("event-3", got[0].ID)
	})
}
