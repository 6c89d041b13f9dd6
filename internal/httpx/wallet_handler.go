package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-ledger/internal/redisx"
)

type WalletHandler struct {
	Engine Engine
	Redis  *redis.Client
	Logger *zap.Logger
}

type RedeemReq struct {
	Coins int64 `json:"coins"`
}

type RedeemResp struct {
	CouponCode    string          `json:"coupon_code"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

func (h *WalletHandler) Register(r chi.Router) {
	r.Get("/wallets/{accountID}", h.getWallet)
	r.Get("/wallets/{accountID}/ledger", h.listLedger)
	r.Post("/wallets/{accountID}/redeem", h.redeem)
}

func (h *WalletHandler) log() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *WalletHandler) getWallet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	wl, err := h.Engine.GetWallet(ctx, chi.URLParam(r, "accountID"))
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	writeJSON(w, http.StatusOK, WalletResp{
		AccountID:      wl.AccountID,
		CurrentBalance: wl.CurrentBalance,
		Tier:           wl.Tier,
		TotalSpent:     wl.TotalSpent,
	})
}

func (h *WalletHandler) listLedger(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	entries, err := h.Engine.ListEntries(ctx, chi.URLParam(r, "accountID"), limit)
	if err != nil {
		writeError(w, h.log(), err)
		return
	}
	out := make([]EntryResp, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryResp{
			ID:          e.ID,
			Type:        e.Type,
			Amount:      e.Amount,
			OrderID:     e.OrderID,
			CouponCode:  e.CouponCode,
			Description: e.Description,
			CreatedAt:   e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *WalletHandler) redeem(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	var req RedeemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := requestContext(r, 10*time.Second)
	defer cancel()

	// redeem tidak idempotent secara alami, jadi retry client di-replay dari Redis
	var idemKey string
	if k := strings.TrimSpace(r.Header.Get("Idempotency-Key")); k != "" && h.Redis != nil {
		idemKey = fmt.Sprintf(redisx.KeyIdemRedeem, accountID, k)
		stored, replay, err := redisx.BeginIdempotent(ctx, h.Redis, idemKey)
		switch {
		case errors.Is(err, redisx.ErrInFlight):
			writeError(w, h.log(), err)
			return
		case err != nil:
			h.log().Warn("idempotency store unavailable", zap.Error(err))
			idemKey = ""
		case replay:
			writeJSON(w, http.StatusOK, json.RawMessage(stored))
			return
		}
	}

	c, err := h.Engine.RedeemToCoupon(ctx, accountID, req.Coins)
	if err != nil {
		if idemKey != "" {
			_ = redisx.AbortIdempotent(ctx, h.Redis, idemKey)
		}
		writeError(w, h.log(), err)
		return
	}
	resp := RedeemResp{CouponCode: c.Code, DiscountValue: c.Value, ExpiresAt: c.ExpiresAt}
	if idemKey != "" {
		if b, err := json.Marshal(resp); err == nil {
			_ = redisx.FinishIdempotent(ctx, h.Redis, idemKey, string(b))
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}
