package coupons

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-ledger/internal/orders"
)

// Tracker keeps coupon usage counters in step with the orders that consume
// them. The order's CouponUsageTracked flag records whether this order is
// currently counted, so marking is safe to repeat.
type Tracker struct {
	Logger *zap.Logger
}

func (t *Tracker) log() *zap.Logger {
	if t == nil || t.Logger == nil {
		return zap.NewNop()
	}
	return t.Logger
}

// MarkUsed increments the coupon's usage once per order.
func (t *Tracker) MarkUsed(ctx context.Context, tx Tx, o *orders.Order) (bool, error) {
	if !o.HasCoupon() || o.CouponUsageTracked {
		return false, nil
	}
	if err := tx.AdjustCouponUsage(ctx, o.CouponCode, 1); err != nil {
		return false, fmt.Errorf("mark coupon %s used: %w", o.CouponCode, err)
	}
	o.CouponUsageTracked = true
	t.log().Debug("coupon usage tracked", zap.String("order_id", o.ID), zap.String("coupon", o.CouponCode))
	return true, nil
}

// MarkUnused reverses MarkUsed and clears the flag.
func (t *Tracker) MarkUnused(ctx context.Context, tx Tx, o *orders.Order) (bool, error) {
	if !o.CouponUsageTracked {
		return false, nil
	}
	if err := tx.AdjustCouponUsage(ctx, o.CouponCode, -1); err != nil {
		return false, fmt.Errorf("mark coupon %s unused: %w", o.CouponCode, err)
	}
	o.CouponUsageTracked = false
	t.log().Debug("coupon usage released", zap.String("order_id", o.ID), zap.String("coupon", o.CouponCode))
	return true, nil
}
