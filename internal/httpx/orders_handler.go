package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-ledger/internal/coupons"
	"github.com/ariefcatur/go-order-ledger/internal/fulfillment"
	"github.com/ariefcatur/go-order-ledger/internal/ledger"
	"github.com/ariefcatur/go-order-ledger/internal/notify"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
	"github.com/ariefcatur/go-order-ledger/internal/redisx"
)

// Engine is implemented by *fulfillment.Coordinator.
type Engine interface {
	TransitionOrder(ctx context.Context, orderID string, to orders.Status) (fulfillment.TransitionResult, error)
	PlaceOrder(ctx context.Context, req fulfillment.PlaceOrderRequest) (orders.Order, error)
	RedeemToCoupon(ctx context.Context, accountID string, coins int64) (coupons.Coupon, error)
	GetOrder(ctx context.Context, orderID string) (orders.Order, error)
	GetWallet(ctx context.Context, accountID string) (ledger.Wallet, error)
	ListEntries(ctx context.Context, accountID string, limit int) ([]ledger.Entry, error)
}

type OrdersHandler struct {
	Engine Engine
	// optional; nil disables caching and idempotency replay
	Redis  *redis.Client
	Logger *zap.Logger
}

type TransitionReq struct {
	Status string `json:"status"`
}

type TransitionResp struct {
	Status  orders.Status `json:"status"`
	Changed bool          `json:"changed"`
	Order   OrderResp     `json:"order"`
}

type PlaceOrderReq struct {
	AccountID   string          `json:"account_id"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	RedeemCoins bool            `json:"redeem_coins"`
	CouponCode  string          `json:"coupon_code"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	// operator console
	r.Patch("/admin/orders/{id}/status", h.transitionOrder)
	// generic order API
	r.Post("/orders/{id}/transitions", h.transitionOrder)

	r.Post("/orders", h.placeOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
}

func (h *OrdersHandler) log() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func requestContext(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := notify.WithTraceID(r.Context(), middleware.GetReqID(r.Context()))
	return context.WithTimeout(ctx, timeout)
}

// Both console and API paths land here so the business rules cannot diverge.
func (h *OrdersHandler) transitionOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req TransitionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	to, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}

	ctx, cancel := requestContext(r, 10*time.Second)
	defer cancel()

	res, err := h.Engine.TransitionOrder(ctx, orderID, to)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.cacheStatus(ctx, res.Order)
	writeJSON(w, http.StatusOK, TransitionResp{Status: res.Order.Status, Changed: res.Change.Changed, Order: toOrderResp(res.Order)})
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.AccountID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := requestContext(r, 10*time.Second)
	defer cancel()

	// Replay via Redis kalau client kirim Idempotency-Key yang sama
	var idemKey string
	if k := strings.TrimSpace(r.Header.Get("Idempotency-Key")); k != "" && h.Redis != nil {
		idemKey = fmt.Sprintf(redisx.KeyIdemCheckout, req.AccountID, k)
		stored, replay, err := redisx.BeginIdempotent(ctx, h.Redis, idemKey)
		switch {
		case errors.Is(err, redisx.ErrInFlight):
			writeError(w, h.log(), err)
			return
		case err != nil:
			h.log().Warn("idempotency store unavailable", zap.Error(err))
			idemKey = ""
		case replay:
			o, err := h.Engine.GetOrder(ctx, stored)
			if err != nil {
				writeError(w, h.log(), err)
				return
			}
			writeJSON(w, http.StatusOK, toOrderResp(o))
			return
		}
	}

	o, err := h.Engine.PlaceOrder(ctx, fulfillment.PlaceOrderRequest{
		AccountID:   req.AccountID,
		Subtotal:    req.Subtotal,
		RedeemCoins: req.RedeemCoins,
		CouponCode:  req.CouponCode,
	})
	if err != nil {
		if idemKey != "" {
			_ = redisx.AbortIdempotent(ctx, h.Redis, idemKey)
		}
		writeError(w, h.log(), err)
		return
	}
	if idemKey != "" {
		_ = redisx.FinishIdempotent(ctx, h.Redis, idemKey, o.ID)
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusCreated, toOrderResp(o))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Engine.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

type statusBody struct {
	Status    orders.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache
	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	// 2) fallback DB
	o, err := h.Engine.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, statusBody{Status: o.Status, UpdatedAt: o.UpdatedAt})
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o orders.Order) {
	if h.Redis == nil {
		return
	}
	b, err := json.Marshal(statusBody{Status: o.Status, UpdatedAt: o.UpdatedAt})
	if err != nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}
