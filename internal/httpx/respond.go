package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-ledger/internal/coupons"
	"github.com/ariefcatur/go-order-ledger/internal/fulfillment"
	"github.com/ariefcatur/go-order-ledger/internal/ledger"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
	"github.com/ariefcatur/go-order-ledger/internal/redisx"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, orders.ErrOrderNotFound), errors.Is(err, coupons.ErrCouponNotFound):
		code = http.StatusNotFound
	case errors.Is(err, orders.ErrUnknownStatus):
		code = http.StatusBadRequest
	case errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, fulfillment.ErrStorageConflict),
		errors.Is(err, redisx.ErrInFlight):
		code = http.StatusConflict
	case errors.Is(err, fulfillment.ErrInvalidInput), errors.Is(err, ledger.ErrInvalidAmount):
		code = http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientBalance), errors.Is(err, coupons.ErrCouponNotApplicable):
		code = http.StatusUnprocessableEntity
	}
	msg := err.Error()
	if code == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

type OrderResp struct {
	ID                       string          `json:"id"`
	AccountID                string          `json:"account_id"`
	Status                   orders.Status   `json:"status"`
	Subtotal                 decimal.Decimal `json:"subtotal"`
	DiscountTotal            decimal.Decimal `json:"discount_total"`
	FinalTotal               decimal.Decimal `json:"final_total"`
	CoinsRedeemed            int64           `json:"coins_redeemed"`
	CouponCode               string          `json:"coupon_code,omitempty"`
	DeliveryVerificationCode string          `json:"delivery_verification_code,omitempty"`
	CoinsAwarded             bool            `json:"coins_awarded"`
	CoinsRefunded            bool            `json:"coins_refunded"`
	CouponUsageTracked       bool            `json:"coupon_usage_tracked"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

func toOrderResp(o orders.Order) OrderResp {
	return OrderResp{
		ID:                       o.ID,
		AccountID:                o.AccountID,
		Status:                   o.Status,
		Subtotal:                 o.Subtotal,
		DiscountTotal:            o.DiscountTotal,
		FinalTotal:               o.FinalTotal,
		CoinsRedeemed:            o.CoinsRedeemed,
		CouponCode:               o.CouponCode,
		DeliveryVerificationCode: o.DeliveryVerificationCode,
		CoinsAwarded:             o.CoinsAwarded,
		CoinsRefunded:            o.CoinsRefunded,
		CouponUsageTracked:       o.CouponUsageTracked,
		CreatedAt:                o.CreatedAt,
		UpdatedAt:                o.UpdatedAt,
	}
}

type WalletResp struct {
	AccountID      string          `json:"account_id"`
	CurrentBalance int64           `json:"current_balance"`
	Tier           ledger.Tier     `json:"tier"`
	TotalSpent     decimal.Decimal `json:"total_spent"`
}

type EntryResp struct {
	ID          string           `json:"id"`
	Type        ledger.EntryType `json:"type"`
	Amount      int64            `json:"amount"`
	OrderID     string           `json:"order_id,omitempty"`
	CouponCode  string           `json:"coupon_code,omitempty"`
	Description string           `json:"description"`
	CreatedAt   time.Time        `json:"created_at"`
}
