package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tokenomy/internal/metrics"
	"tokenomy/internal/repository"
	"tokenomy/internal/service"
)

// Handler exposes the economy engines over HTTP. Business rejections map to
// 4xx with a structured error body; everything else is a 500.
type Handler struct {
	ledger  *service.Ledger
	actions *service.ActionEngine
	market  *service.ShareMarket
	pricing *service.PricingEngine
	metrics *metrics.Collector
}

func NewHandler(ledger *service.Ledger, actions *service.ActionEngine, market *service.ShareMarket, pricing *service.PricingEngine, collector *metrics.Collector) *Handler {
	return &Handler{
		ledger:  ledger,
		actions: actions,
		market:  market,
		pricing: pricing,
		metrics: collector,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.Health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/accounts/{id}", func(r chi.Router) {
		r.Get("/balance", h.GetBalance)
		r.Get("/history", h.GetHistory)
		r.Post("/credit", h.Credit)
		r.Post("/debit", h.Debit)
		r.Post("/transfer", h.Transfer)
		r.Post("/admin-adjust", h.AdminAdjust)
	})

	r.Route("/communities/{id}", func(r chi.Router) {
		r.Get("/top-earners", h.TopEarners)

		r.Get("/actions", h.ListActions)
		r.Get("/actions/{action}/price", h.GetActionPrice)
		r.Post("/actions/{action}/perform", h.PerformAction)

		r.Route("/market", func(r chi.Router) {
			r.Get("/", h.MarketInfo)
			r.Get("/holdings/{account}", h.GetHolding)
			r.Post("/buy", h.BuyShares)
			r.Post("/sell", h.SellShares)
			r.Get("/top", h.TopHolders)
			r.Get("/roi", h.EstimateROI)
			r.Get("/payouts", h.PayoutHistory)
		})

		r.Route("/pricing", func(r chi.Router) {
			r.Post("/run", h.RunPricing)
			r.Post("/reset", h.ResetPricing)
			r.Get("/trend", h.PricingTrend)
		})
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, err := h.ledger.GetBalance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, account)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.ledger.GetHistory(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"transactions": history})
}

type amountRequest struct {
	CommunityID string `json:"community_id"`
	Amount      int64  `json:"amount"`
	Action      string `json:"action,omitempty"`
	Description string `json:"description"`
}

func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	account, err := h.ledger.Credit(r.Context(), chi.URLParam(r, "id"), req.CommunityID, req.Amount, req.Action, req.Description)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, account)
}

func (h *Handler) Debit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	account, err := h.ledger.Debit(r.Context(), chi.URLParam(r, "id"), req.CommunityID, req.Amount, req.Action, req.Description)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, account)
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CommunityID string `json:"community_id"`
		ToID        string `json:"to_id"`
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	err := h.ledger.Transfer(r.Context(), chi.URLParam(r, "id"), req.ToID, req.CommunityID, req.Amount, req.Description)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

func (h *Handler) AdminAdjust(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CommunityID string `json:"community_id"`
		Delta       int64  `json:"delta"`
		AdminID     string `json:"admin_id"`
		Reason      string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	account, err := h.ledger.AdminAdjust(r.Context(), chi.URLParam(r, "id"), req.CommunityID, req.Delta, req.AdminID, req.Reason)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, account)
}

func (h *Handler) TopEarners(w http.ResponseWriter, r *http.Request) {
	top, err := h.ledger.TopEarners(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"top_earners": top})
}

func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	actions, err := h.actions.ListEnabledActions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

func (h *Handler) GetActionPrice(w http.ResponseWriter, r *http.Request) {
	price, err := h.actions.GetActionPrice(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "action"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int64{"price": price})
}

func (h *Handler) PerformAction(w http.ResponseWriter, r *http.Request) {
	var req service.PerformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	req.CommunityID = chi.URLParam(r, "id")
	req.ActionID = chi.URLParam(r, "action")
	result, err := h.actions.Perform(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	h.respondJSON(w, status, result)
}

func (h *Handler) MarketInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.market.MarketInfo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, info)
}

func (h *Handler) GetHolding(w http.ResponseWriter, r *http.Request) {
	holding, err := h.market.GetHolding(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "account"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, holding)
}

type tradeRequest struct {
	AccountID string `json:"account_id"`
	Quantity  int64  `json:"quantity"`
}

func (h *Handler) BuyShares(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	holding, err := h.market.Buy(r.Context(), chi.URLParam(r, "id"), req.AccountID, req.Quantity)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, holding)
}

func (h *Handler) SellShares(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	payout, err := h.market.Sell(r.Context(), chi.URLParam(r, "id"), req.AccountID, req.Quantity)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int64{"payout": payout})
}

func (h *Handler) TopHolders(w http.ResponseWriter, r *http.Request) {
	holders, err := h.market.TopHolders(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"holders": holders})
}

func (h *Handler) EstimateROI(w http.ResponseWriter, r *http.Request) {
	qty, err := strconv.ParseInt(r.URL.Query().Get("qty"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_qty")
		return
	}
	estimate, err := h.market.EstimateROI(r.Context(), chi.URLParam(r, "id"), qty)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, estimate)
}

func (h *Handler) PayoutHistory(w http.ResponseWriter, r *http.Request) {
	payouts, err := h.market.PayoutHistory(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"payouts": payouts})
}

func (h *Handler) RunPricing(w http.ResponseWriter, r *http.Request) {
	changed, err := h.pricing.RunCycle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int{"changed": changed})
}

func (h *Handler) ResetPricing(w http.ResponseWriter, r *http.Request) {
	reset, err := h.pricing.ResetPrices(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int{"reset": reset})
}

func (h *Handler) PricingTrend(w http.ResponseWriter, r *http.Request) {
	trend, err := h.pricing.GetTrend(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("action"), queryInt(r, "limit"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"trend": trend})
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrInvalidAmount), errors.Is(err, service.ErrSelfTransfer):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case service.IsMarketError(err):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
