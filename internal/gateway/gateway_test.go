package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hman38705/SwiftRemit/internal/auth"
	"github.com/hman38705/SwiftRemit/internal/escrow"
	"github.com/hman38705/SwiftRemit/internal/gateway"
	"github.com/hman38705/SwiftRemit/internal/token"
	"github.com/hman38705/SwiftRemit/pkg/clock"
	"github.com/hman38705/SwiftRemit/pkg/messaging"
	"github.com/hman38705/SwiftRemit/pkg/store"
)

type testServer struct {
	handler http.Handler
	auth    *auth.Service
	ledger  *token.MemLedger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ledger := token.NewMemLedger()
	authService := auth.NewService("test-secret", 0)
	escrowService := escrow.NewService("contract-custody", store.NewMemory(),
		clock.NewManual(1_700_000_000), ledger, messaging.NewRecorder())

	gw := gateway.NewGateway(escrowService, authService, nil)
	return &testServer{handler: gw.Handler(), auth: authService, ledger: ledger}
}

func (s *testServer) request(t *testing.T, method, path, as string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if as != "" {
		signed, err := s.auth.IssueToken(as)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+signed)
	}

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *testServer) bootstrap(t *testing.T) {
	t.Helper()

	w := s.request(t, http.MethodPost, "/api/v1/initialize", "admin", gin.H{
		"admin": "admin", "token": "USDC", "fee_bps": 250,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.request(t, http.MethodPost, "/api/v1/agents", "admin", gin.H{"agent": "agent"})
	require.Equal(t, http.StatusCreated, w.Code)

	require.NoError(t, s.ledger.Mint(context.Background(), "sender", 10000))
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("should reject requests without a token", func(t *testing.T) {
		s := newTestServer(t)

		w := s.request(t, http.MethodPost, "/api/v1/remittances", "", gin.H{
			"agent": "agent", "amount": 1000, "currency": "USD", "country": "US",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("should reject invalid tokens", func(t *testing.T) {
		s := newTestServer(t)

		req := httptest.NewRequest(http.MethodPut, "/api/v1/fee", bytes.NewBufferString(`{"fee_bps":100}`))
		req.Header.Set("Authorization", "Bearer garbage")
		w := httptest.NewRecorder()
		s.handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRemittanceFlow(t *testing.T) {
	t.Run("should create, confirm, and settle over HTTP", func(t *testing.T) {
		s := newTestServer(t)
		s.bootstrap(t)

		w := s.request(t, http.MethodPost, "/api/v1/remittances", "sender", gin.H{
			"agent": "agent", "amount": 1000, "currency": "USD", "country": "US",
		})
		require.Equal(t, http.StatusCreated, w.Code)

		var created struct {
			ID uint64 `json:"id"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
		assert.Equal(t, uint64(1), created.ID)

		w = s.request(t, http.MethodGet, fmt.Sprintf("/api/v1/remittances/%d", created.ID), "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var rec escrow.Remittance
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
		assert.Equal(t, int64(25), rec.Fee)
		assert.Equal(t, escrow.StatusPending, rec.Status)

		w = s.request(t, http.MethodPost, fmt.Sprintf("/api/v1/remittances/%d/confirm", created.ID), "agent", nil)
		require.Equal(t, http.StatusOK, w.Code)

		agentBal, err := s.ledger.Balance(context.Background(), "agent")
		require.NoError(t, err)
		assert.Equal(t, int64(975), agentBal)

		w = s.request(t, http.MethodGet, "/api/v1/fees/accumulated", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"accumulated_fees":25}`, w.Body.String())
	})

	t.Run("should map error kinds to statuses", func(t *testing.T) {
		s := newTestServer(t)
		s.bootstrap(t)

		// Unknown remittance.
		w := s.request(t, http.MethodPost, "/api/v1/remittances/99/confirm", "agent", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		// Unregistered agent.
		w = s.request(t, http.MethodPost, "/api/v1/remittances", "sender", gin.H{
			"agent": "stranger", "amount": 1000, "currency": "USD", "country": "US",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

		// Invalid amount.
		w = s.request(t, http.MethodPost, "/api/v1/remittances", "sender", gin.H{
			"agent": "agent", "amount": 0, "currency": "USD", "country": "US",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		// Wrong principal confirming.
		w = s.request(t, http.MethodPost, "/api/v1/remittances", "sender", gin.H{
			"agent": "agent", "amount": 1000, "currency": "USD", "country": "US",
		})
		require.Equal(t, http.StatusCreated, w.Code)
		w = s.request(t, http.MethodPost, "/api/v1/remittances/1/confirm", "sender", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("should enforce daily limits over HTTP", func(t *testing.T) {
		s := newTestServer(t)
		s.bootstrap(t)

		w := s.request(t, http.MethodPut, "/api/v1/limits", "admin", gin.H{
			"currency": "USD", "country": "US", "limit": 1500,
		})
		require.Equal(t, http.StatusOK, w.Code)

		w = s.request(t, http.MethodPost, "/api/v1/remittances", "sender", gin.H{
			"agent": "agent", "amount": 1000, "currency": "USD", "country": "US",
		})
		require.Equal(t, http.StatusCreated, w.Code)

		w = s.request(t, http.MethodPost, "/api/v1/remittances", "sender", gin.H{
			"agent": "agent", "amount": 1000, "currency": "USD", "country": "US",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

		w = s.request(t, http.MethodGet, "/api/v1/limits?currency=USD&country=US", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"currency":"USD","country":"US","configured":true,"limit":1500}`, w.Body.String())
	})
}
