package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"dplay/internal/eventlog"
	"dplay/internal/identity"
	"dplay/internal/payment"
	"dplay/internal/platform/middleware"
	"dplay/internal/registry/service"
	"dplay/internal/registry/store"
	id "dplay/pkg/domain"
)

const (
	testAdmin      = id.Identity("dplay:admin")
	testFee        = int64(100)
	testAdminToken = "super-secret"
)

// RegistryHandlerSuite exercises the full HTTP stack: middleware chain,
// token validation, and the real service on in-memory stores.
type RegistryHandlerSuite struct {
	suite.Suite
	ledger *payment.Ledger
	tokens *identity.Service
	server *httptest.Server
}

func TestRegistryHandlerSuite(t *testing.T) {
	suite.Run(t, new(RegistryHandlerSuite))
}

func (s *RegistryHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.ledger = payment.NewLedger()
	s.tokens = identity.NewService("test-signing-key", "dplay", "dplay-registry")

	svc := service.New(
		store.NewMemoryListingStore(),
		store.NewMemoryInstallStore(),
		store.NewMemoryAccountStore(testAdmin, testFee),
		eventlog.NewMemoryStore(),
		s.ledger,
		service.NewMemoryTx(),
		service.WithLogger(logger),
	)
	h := New(svc, logger)

	adminHash, err := bcrypt.GenerateFromPassword([]byte(testAdminToken), bcrypt.MinCost)
	s.Require().NoError(err)

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(middleware.RequestContext)
	router.Group(h.Register)
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireCaller(s.tokens, logger))
		h.RegisterAuthed(r)
	})
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireCaller(s.tokens, logger))
		r.Use(middleware.AdminGuard(string(adminHash), logger))
		h.RegisterAdmin(r)
	})

	s.server = httptest.NewServer(router)
	s.T().Cleanup(s.server.Close)
}

func (s *RegistryHandlerSuite) token(caller id.Identity) string {
	token, err := s.tokens.IssueToken(caller, time.Hour)
	s.Require().NoError(err)
	return token
}

// do sends a JSON request and decodes the JSON response body into out when
// out is non-nil.
func (s *RegistryHandlerSuite) do(method, path string, body any, caller id.Identity, admin bool, out any) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, s.server.URL+path, &buf)
	s.Require().NoError(err)
	if !caller.IsZero() {
		req.Header.Set("Authorization", "Bearer "+s.token(caller))
	}
	if admin {
		req.Header.Set("X-Admin-Token", testAdminToken)
	}

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = resp.Body.Close() })
	if out != nil {
		s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (s *RegistryHandlerSuite) registerListing(publisher id.Identity, name string, price int64) int64 {
	s.ledger.Deposit(publisher, testFee)
	var created struct {
		ListingID int64 `json:"listing_id"`
	}
	resp := s.do(http.MethodPost, "/listings", map[string]any{
		"name": name, "category": "games", "content_ref": "bafy-" + name,
		"price": price, "paid_amount": testFee,
	}, publisher, false, &created)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	return created.ListingID
}

func (s *RegistryHandlerSuite) TestRegisterListing() {
	s.Run("creates a listing", func() {
		listingID := s.registerListing("user:pub", "chess", 0)
		s.Equal(int64(1), listingID)
	})

	s.Run("rejects unauthenticated requests", func() {
		resp := s.do(http.MethodPost, "/listings", map[string]any{"name": "x"}, "", false, nil)
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	})

	s.Run("rejects underpayment with 402", func() {
		var body map[string]string
		resp := s.do(http.MethodPost, "/listings", map[string]any{
			"name": "cheap", "paid_amount": testFee - 1,
		}, "user:pub", false, &body)
		s.Equal(http.StatusPaymentRequired, resp.StatusCode)
		s.Equal("insufficient_payment", body["error"])
	})

	s.Run("rejects malformed bodies with 400", func() {
		req, err := http.NewRequest(http.MethodPost, s.server.URL+"/listings", bytes.NewBufferString("{not json"))
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer "+s.token("user:pub"))
		resp, err := s.server.Client().Do(req)
		s.Require().NoError(err)
		defer resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})
}

func (s *RegistryHandlerSuite) TestInstallAndRate() {
	listingID := s.registerListing("user:pub", "paid-app", 250)
	path := fmt.Sprintf("/listings/%d", listingID)
	s.ledger.Deposit("user:alice", 1_000)

	s.Run("install succeeds with 204", func() {
		resp := s.do(http.MethodPost, path+"/install", map[string]any{"paid_amount": 250}, "user:alice", false, nil)
		s.Equal(http.StatusNoContent, resp.StatusCode)
	})

	s.Run("duplicate install returns 409", func() {
		var body map[string]string
		resp := s.do(http.MethodPost, path+"/install", map[string]any{"paid_amount": 250}, "user:alice", false, &body)
		s.Equal(http.StatusConflict, resp.StatusCode)
		s.Equal("already_installed", body["error"])
	})

	s.Run("rating without install returns 403", func() {
		resp := s.do(http.MethodPost, path+"/rating", map[string]any{"score": 4}, "user:bob", false, nil)
		s.Equal(http.StatusForbidden, resp.StatusCode)
	})

	s.Run("installer rates the listing", func() {
		resp := s.do(http.MethodPost, path+"/rating", map[string]any{"score": 4}, "user:alice", false, nil)
		s.Equal(http.StatusNoContent, resp.StatusCode)

		var listing struct {
			Downloads     int64   `json:"downloads"`
			AverageRating float64 `json:"average_rating"`
		}
		resp = s.do(http.MethodGet, path, nil, "", false, &listing)
		s.Equal(http.StatusOK, resp.StatusCode)
		s.Equal(int64(1), listing.Downloads)
		s.InDelta(4.0, listing.AverageRating, 0.001)
	})

	s.Run("out-of-range score returns 400", func() {
		resp := s.do(http.MethodPost, path+"/rating", map[string]any{"score": 6}, "user:alice", false, nil)
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	s.Run("install status is readable without auth", func() {
		var status struct {
			Installed bool `json:"installed"`
		}
		resp := s.do(http.MethodGet, path+"/installed?identity=user:alice", nil, "", false, &status)
		s.Equal(http.StatusOK, resp.StatusCode)
		s.True(status.Installed)

		resp = s.do(http.MethodGet, path+"/installed?identity=user:bob", nil, "", false, &status)
		s.Equal(http.StatusOK, resp.StatusCode)
		s.False(status.Installed)
	})

	s.Run("unknown listing returns 404", func() {
		resp := s.do(http.MethodPost, "/listings/999/install", map[string]any{}, "user:alice", false, nil)
		s.Equal(http.StatusNotFound, resp.StatusCode)
	})

	s.Run("non-numeric listing id returns 400", func() {
		resp := s.do(http.MethodGet, "/listings/abc", nil, "", false, nil)
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})
}

func (s *RegistryHandlerSuite) TestCatalogQueries() {
	s.registerListing("user:pub", "game-one", 0)
	s.registerListing("user:pub", "tool-one", 0)

	s.Run("lists the catalog", func() {
		var listings []struct {
			Name string `json:"name"`
		}
		resp := s.do(http.MethodGet, "/listings", nil, "", false, &listings)
		s.Equal(http.StatusOK, resp.StatusCode)
		s.Len(listings, 2)
	})

	s.Run("stats reflect registrations", func() {
		var stats struct {
			ListingCount    int64 `json:"listing_count"`
			RetainedBalance int64 `json:"retained_balance"`
		}
		resp := s.do(http.MethodGet, "/stats", nil, "", false, &stats)
		s.Equal(http.StatusOK, resp.StatusCode)
		s.Equal(int64(2), stats.ListingCount)
		s.Equal(testFee*2, stats.RetainedBalance)
	})

	s.Run("event log is readable per listing", func() {
		var events []struct {
			Kind string `json:"kind"`
		}
		resp := s.do(http.MethodGet, "/listings/1/events", nil, "", false, &events)
		s.Equal(http.StatusOK, resp.StatusCode)
		s.Require().Len(events, 1)
		s.Equal("listing_registered", events[0].Kind)
	})

	s.Run("empty event log serializes as an array", func() {
		resp := s.do(http.MethodGet, "/listings/99/events", nil, "", false, nil)
		s.Equal(http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		s.Require().NoError(err)
		s.JSONEq("[]", string(body))
	})
}

func (s *RegistryHandlerSuite) TestAdminEndpoints() {
	listingID := s.registerListing("user:pub", "to-verify", 0)
	verifyPath := fmt.Sprintf("/admin/listings/%d/verify", listingID)

	s.Run("missing admin token returns 403", func() {
		resp := s.do(http.MethodPost, verifyPath, nil, testAdmin, false, nil)
		s.Equal(http.StatusForbidden, resp.StatusCode)
	})

	s.Run("non-administrator caller returns 403 despite token", func() {
		resp := s.do(http.MethodPost, verifyPath, nil, "user:pub", true, nil)
		s.Equal(http.StatusForbidden, resp.StatusCode)
	})

	s.Run("administrator verifies the listing", func() {
		resp := s.do(http.MethodPost, verifyPath, nil, testAdmin, true, nil)
		s.Equal(http.StatusNoContent, resp.StatusCode)

		var listing struct {
			Verified bool `json:"verified"`
		}
		resp = s.do(http.MethodGet, fmt.Sprintf("/listings/%d", listingID), nil, "", false, &listing)
		s.Equal(http.StatusOK, resp.StatusCode)
		s.True(listing.Verified)
	})

	s.Run("administrator withdraws retained fees", func() {
		var out struct {
			Amount int64 `json:"amount"`
		}
		resp := s.do(http.MethodPost, "/admin/withdrawals", nil, testAdmin, true, &out)
		s.Equal(http.StatusOK, resp.StatusCode)
		s.Equal(testFee, out.Amount)
		s.Equal(testFee, s.ledger.Balance(testAdmin))
	})
}
