package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"tollgate/internal/settings"
	settingsmemory "tollgate/internal/settings/store/memory"
)

type HandlerSuite struct {
	suite.Suite
	store  *settingsmemory.Store
	router chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.store = settingsmemory.New(settings.Default())
	s.router = chi.NewRouter()
	New(s.store, slog.Default()).Register(s.router)
}

func (s *HandlerSuite) TestRead() {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settings", nil))

	s.Require().Equal(http.StatusOK, rec.Code)

	var got settings.Settings
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Equal(settings.Default(), got)
}

func (s *HandlerSuite) put(body any) *httptest.ResponseRecorder {
	raw, err := json.Marshal(body)
	s.Require().NoError(err)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/settings", bytes.NewReader(raw)))
	return rec
}

func (s *HandlerSuite) TestWrite() {
	next := settings.Default()
	next.PriceAtomicUnits = "2500000"
	next.ProtectionEnabled = false

	rec := s.put(next)
	s.Require().Equal(http.StatusOK, rec.Code)

	stored, err := s.store.Read(context.Background())
	s.Require().NoError(err)
	s.Equal("2500000", stored.PriceAtomicUnits)
	s.False(stored.ProtectionEnabled)
}

func (s *HandlerSuite) TestWriteRejectsInvalidSettings() {
	s.Run("malformed price is a client error", func() {
		bad := settings.Default()
		bad.PriceAtomicUnits = "one dollar"

		rec := s.put(bad)
		s.Require().Equal(http.StatusBadRequest, rec.Code)

		var body map[string]string
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
		s.Equal("bad_request", body["error"])
	})

	s.Run("rejected write leaves the store untouched", func() {
		stored, err := s.store.Read(context.Background())
		s.Require().NoError(err)
		s.Equal(settings.Default().PriceAtomicUnits, stored.PriceAtomicUnits)
	})

	s.Run("malformed body", func() {
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/settings", bytes.NewReader([]byte("{"))))
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}
