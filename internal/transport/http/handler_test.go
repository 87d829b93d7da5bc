package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenomy/internal/gate"
	"tokenomy/internal/repository/memory"
	"tokenomy/internal/service"
)

func newTestRouter(t *testing.T) (chi.Router, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	catalog := service.DefaultCatalog()
	effectors := make(map[string]service.Effector, len(catalog.All()))
	for _, a := range catalog.All() {
		effectors[a.ID] = service.EffectorFunc(func(context.Context, string, string, map[string]string) error {
			return nil
		})
	}
	ledger := service.NewLedger(store, nil, nil)
	market := service.NewShareMarket(store, nil, nil)
	pricing := service.NewPricingEngine(store, gate.NewMemory(), catalog, nil, nil, 50)
	engine, err := service.NewActionEngine(service.ActionEngineConfig{
		Store:      store,
		Catalog:    catalog,
		Effectors:  effectors,
		Authorizer: service.NewStaticAuthorizer([]string{"manage_nicknames", "moderate_members", "move_members", "manage_roles"}),
		Dividends:  market,
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	NewHandler(ledger, engine, market, pricing, nil).Register(r)
	return r, store
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreditAndBalanceRoutes(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/accounts/alice/credit", map[string]any{
		"community_id": "c1", "amount": 500, "description": "reward",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/accounts/alice/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var account struct {
		Balance int64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &account))
	assert.Equal(t, int64(500), account.Balance)
}

func TestDebitRouteMapsBusinessErrors(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/accounts/alice/debit", map[string]any{
		"community_id": "c1", "amount": 100,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doJSON(t, r, http.MethodPost, "/accounts/alice/debit", map[string]any{
		"community_id": "c1", "amount": -5,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/accounts/alice/debit", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPerformRoute(t *testing.T) {
	r, store := newTestRouter(t)
	ctx := context.Background()
	_, err := store.Accounts().Credit(ctx, "actor", 1000)
	require.NoError(t, err)

	w := doJSON(t, r, http.MethodPost, "/communities/c1/actions/nickname_change/perform", map[string]any{
		"actor_id": "actor", "target_id": "victim",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var result service.ActionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, int64(50), result.CostCharged)

	// Cooldown rejection is a structured 422, not an internal error.
	w = doJSON(t, r, http.MethodPost, "/communities/c1/actions/nickname_change/perform", map[string]any{
		"actor_id": "actor", "target_id": "victim",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, service.CodeOnCooldown, result.Code)
}

func TestMarketRoutes(t *testing.T) {
	r, store := newTestRouter(t)
	ctx := context.Background()

	cfg, err := store.Communities().Get(ctx, "c1")
	require.NoError(t, err)
	cfg.Market.Enabled = true
	cfg.Market.SharePrice = 100
	cfg.Market.MaxHoldingPerAccount = 50
	require.NoError(t, store.Communities().Put(ctx, cfg))
	_, err = store.Accounts().Credit(ctx, "trader", 5000)
	require.NoError(t, err)

	w := doJSON(t, r, http.MethodPost, "/communities/c1/market/buy", map[string]any{
		"account_id": "trader", "quantity": 10,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/communities/c1/market", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info service.MarketInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, int64(10), info.SharesSold)

	// Oversell is a business rejection.
	w = doJSON(t, r, http.MethodPost, "/communities/c1/market/sell", map[string]any{
		"account_id": "trader", "quantity": 99,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHealthRoute(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
