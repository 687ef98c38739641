package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/finbook/internal/auth"
	"github.com/yourorg/finbook/internal/domain"
	"github.com/yourorg/finbook/internal/gateway"
	"github.com/yourorg/finbook/internal/repository/memory"
	"github.com/yourorg/finbook/internal/settlement"
)

type stubOracle struct {
	mu     sync.Mutex
	prices map[string]float64
	err    error
}

func (o *stubOracle) CurrentPrice(ctx context.Context, class domain.AssetClass, identifier string) (float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return 0, &domain.PriceLookupError{Class: class, Identifier: identifier, Err: o.err}
	}
	price, ok := o.prices[identifier]
	if !ok {
		return 0, &domain.PriceLookupError{Class: class, Identifier: identifier, Err: errors.New("no data")}
	}
	return price, nil
}

func (o *stubOracle) setErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

func (o *stubOracle) setPrice(identifier string, price float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[identifier] = price
}

type testAPI struct {
	srv    *httptest.Server
	oracle *stubOracle
	store  *memory.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store := memory.NewStore()
	oracle := &stubOracle{prices: map[string]float64{
		"AAPL":    150.0,
		"bitcoin": 20.5,
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jwtSvc := auth.NewJWTService("test-secret")
	svc := settlement.NewService(store, oracle, logger)
	handlers := gateway.NewHandlers(store, svc, jwtSvc, logger)
	router := gateway.NewRouter(handlers, nil, jwtSvc)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testAPI{srv: srv, oracle: oracle, store: store}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (a *testAPI) register(t *testing.T, email string, balance float64) string {
	t.Helper()

	resp := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"name":     "Test User",
		"password": "s3cret-pass",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode[map[string]json.RawMessage](t, resp)

	var token string
	require.NoError(t, json.Unmarshal(body["token"], &token))

	if balance > 0 {
		resp := a.do(t, http.MethodPost, "/api/user/deposit", token, map[string]float64{"amount": balance})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}
	return token
}

func (a *testAPI) cashBalance(t *testing.T, token string) float64 {
	t.Helper()

	resp := a.do(t, http.MethodGet, "/api/user/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user := decode[domain.User](t, resp)
	return user.CashBalance
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	api.register(t, "alice@example.com", 0)

	resp := api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "s3cret-pass",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]json.RawMessage](t, resp)
	assert.Contains(t, body, "token")

	resp = api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	api.register(t, "bob@example.com", 0)

	resp := api.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "bob@example.com",
		"password": "another-pass",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	for _, path := range []string{"/api/investments", "/api/transactions", "/api/user/me"} {
		resp := api.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		resp.Body.Close()
	}
}

func TestBuySellRoundTrip(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	token := api.register(t, "carol@example.com", 1000)

	// "cc" is the legacy wire spelling of crypto.
	resp := api.do(t, http.MethodPost, "/api/investments/buy", token, map[string]any{
		"title":      "satoshi stash",
		"asset_name": "bitcoin",
		"type":       "cc",
		"quantity":   1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	pos := decode[domain.Position](t, resp)
	assert.Equal(t, 20.5, pos.PurchasePrice)
	assert.Equal(t, 20.5, pos.CurrentPrice)
	assert.Equal(t, domain.AssetCrypto, pos.AssetClass)

	assert.Equal(t, 979.5, api.cashBalance(t, token))

	resp = api.do(t, http.MethodDelete, "/api/investments/"+pos.ID.String(), token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, 1000.0, api.cashBalance(t, token))

	resp = api.do(t, http.MethodGet, "/api/transactions", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decode[[]domain.LedgerEntry](t, resp)
	require.Len(t, entries, 1)
	assert.Equal(t, pos.TransactionID, entries[0].TransactionID)
	assert.Equal(t, 20.5, entries[0].SalePrice)
	assert.Equal(t, 20.5, entries[0].PurchasePrice)
	assert.Equal(t, domain.SideSell, entries[0].Side)
}

func TestBuyValidationAndFunds(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	token := api.register(t, "dave@example.com", 10)

	resp := api.do(t, http.MethodPost, "/api/investments/buy", token, map[string]any{
		"asset_name": "AAPL",
		"type":       "stock",
		"quantity":   0,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Contains(t, body, "quantity")

	resp = api.do(t, http.MethodPost, "/api/investments/buy", token, map[string]any{
		"asset_name": "AAPL",
		"type":       "stock",
		"quantity":   1,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errBody := decode[map[string]string](t, resp)
	assert.Equal(t, "insufficient funds", errBody["error"])

	resp = api.do(t, http.MethodPost, "/api/investments/buy", token, map[string]any{
		"asset_name": "AAPL",
		"type":       "painting",
		"quantity":   1,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	assert.Equal(t, 10.0, api.cashBalance(t, token))
}

func TestBuyPriceLookupFailure(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	token := api.register(t, "erin@example.com", 1000)
	api.oracle.setErr(errors.New("upstream down"))

	resp := api.do(t, http.MethodPost, "/api/investments/buy", token, map[string]any{
		"asset_name": "AAPL",
		"type":       "stock",
		"quantity":   1,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	api.oracle.setErr(nil)
	assert.Equal(t, 1000.0, api.cashBalance(t, token))
}

func TestUpdateIgnoresImmutableFields(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	token := api.register(t, "frank@example.com", 1000)

	resp := api.do(t, http.MethodPost, "/api/investments/buy", token, map[string]any{
		"title":      "original",
		"asset_name": "AAPL",
		"type":       "stock",
		"quantity":   2,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	pos := decode[domain.Position](t, resp)

	// PUT with a full payload: only title and quantity may change.
	resp = api.do(t, http.MethodPut, "/api/investments/"+pos.ID.String(), token, map[string]any{
		"title":          "renamed",
		"quantity":       3,
		"type":           "cc",
		"asset_name":     "bitcoin",
		"purchase_price": 1.0,
		"current_price":  2.0,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[domain.Position](t, resp)

	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, 3.0, updated.Quantity)
	assert.Equal(t, domain.AssetStock, updated.AssetClass)
	assert.Equal(t, "AAPL", updated.Identifier)
	assert.Equal(t, 150.0, updated.PurchasePrice)
	assert.Equal(t, 150.0, updated.CurrentPrice)
}

func TestCrossUserAccessReportsNotFound(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	ownerToken := api.register(t, "owner@example.com", 1000)
	otherToken := api.register(t, "other@example.com", 1000)

	resp := api.do(t, http.MethodPost, "/api/investments/buy", ownerToken, map[string]any{
		"asset_name": "AAPL",
		"type":       "stock",
		"quantity":   1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	pos := decode[domain.Position](t, resp)

	path := "/api/investments/" + pos.ID.String()
	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		resp := api.do(t, method, path, otherToken, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, method)
		resp.Body.Close()
	}

	resp = api.do(t, http.MethodPatch, path, otherToken, map[string]any{"title": "stolen"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// The owner still sees the untouched position.
	resp = api.do(t, http.MethodGet, path, ownerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[domain.Position](t, resp)
	assert.Equal(t, pos.ID, got.ID)
}

func TestDepositWithdrawEndpoints(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	token := api.register(t, "grace@example.com", 0)

	resp := api.do(t, http.MethodPost, "/api/user/deposit", token, map[string]float64{"amount": 100})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]float64](t, resp)
	assert.Equal(t, 100.0, body["cash_balance"])

	resp = api.do(t, http.MethodPost, "/api/user/withdraw", token, map[string]float64{"amount": 40})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decode[map[string]float64](t, resp)
	assert.Equal(t, 60.0, body["cash_balance"])

	for _, tc := range []struct {
		path   string
		amount float64
	}{
		{"/api/user/deposit", -5},
		{"/api/user/withdraw", 0},
		{"/api/user/withdraw", 1000},
	} {
		resp := api.do(t, http.MethodPost, tc.path, token, map[string]float64{"amount": tc.amount})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, fmt.Sprintf("%s %v", tc.path, tc.amount))
		resp.Body.Close()
	}

	assert.Equal(t, 60.0, api.cashBalance(t, token))
}

func TestListInvestmentsRefreshesMarks(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	token := api.register(t, "heidi@example.com", 1000)

	resp := api.do(t, http.MethodPost, "/api/investments/buy", token, map[string]any{
		"asset_name": "AAPL",
		"type":       "stock",
		"quantity":   1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	api.oracle.setPrice("AAPL", 175.0)

	resp = api.do(t, http.MethodGet, "/api/investments", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	positions := decode[[]domain.Position](t, resp)
	require.Len(t, positions, 1)
	assert.Equal(t, 175.0, positions[0].CurrentPrice)
	assert.Equal(t, 150.0, positions[0].PurchasePrice)
}

func TestUpdateProfileEndpoint(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	token := api.register(t, "ivan@example.com", 0)

	resp := api.do(t, http.MethodPatch, "/api/user/me", token, map[string]string{"name": "Ivan Renamed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user := decode[domain.User](t, resp)
	assert.Equal(t, "Ivan Renamed", user.Name)

	resp = api.do(t, http.MethodGet, "/api/user/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user = decode[domain.User](t, resp)
	assert.Equal(t, "Ivan Renamed", user.Name)
}
