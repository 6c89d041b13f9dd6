package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountFlat       DiscountType = "flat"
	DiscountPercentage DiscountType = "percentage"
)

const mintedCodePrefix = "LOYAL-"

var (
	ErrCouponNotFound      = errors.New("coupon not found")
	ErrCouponNotApplicable = errors.New("coupon not applicable")
	// ErrUsageUnderflow means a release found the counter already at zero,
	// so usage and the orders holding the coupon have drifted apart.
	ErrUsageUnderflow = errors.New("coupon usage underflow")
)

type Coupon struct {
	Code         string
	DiscountType DiscountType
	Value        decimal.Decimal
	MinOrder     decimal.Decimal
	ExpiresAt    time.Time
	IsOneTime    bool
	// empty for public coupons
	OwnerAccountID string
	UsageCount     int64
	CreatedAt      time.Time
}

// Tx is the slice of the unit of work the registry needs.
type Tx interface {
	GetCoupon(ctx context.Context, code string) (Coupon, error)
	InsertCoupon(ctx context.Context, c Coupon) error
	// AdjustCouponUsage adds delta to usage_count. A delta that would take it
	// below zero fails with ErrUsageUnderflow and changes nothing.
	AdjustCouponUsage(ctx context.Context, code string, delta int64) error
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NewPersonal mints a one-time flat coupon owned by accountID.
func NewPersonal(accountID string, value decimal.Decimal, validity time.Duration, now time.Time) Coupon {
	return Coupon{
		Code:           mintedCodePrefix + ulid.Make().String(),
		DiscountType:   DiscountFlat,
		Value:          value,
		MinOrder:       decimal.Zero,
		ExpiresAt:      now.Add(validity),
		IsOneTime:      true,
		OwnerAccountID: accountID,
		CreatedAt:      now,
	}
}

// Validate checks whether accountID may apply the coupon to an order of subtotal.
func (c Coupon) Validate(accountID string, subtotal decimal.Decimal, now time.Time) error {
	switch {
	case !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt):
		return fmt.Errorf("%w: %s expired", ErrCouponNotApplicable, c.Code)
	case c.OwnerAccountID != "" && c.OwnerAccountID != accountID:
		return fmt.Errorf("%w: %s belongs to another account", ErrCouponNotApplicable, c.Code)
	case subtotal.LessThan(c.MinOrder):
		return fmt.Errorf("%w: %s requires a minimum order of %s", ErrCouponNotApplicable, c.Code, c.MinOrder.StringFixed(2))
	case c.IsOneTime && c.UsageCount > 0:
		return fmt.Errorf("%w: %s already used", ErrCouponNotApplicable, c.Code)
	}
	return nil
}

// Discount is the amount taken off subtotal, never more than subtotal.
func (c Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		d = subtotal.Mul(c.Value).Div(decimal.NewFromInt(100)).RoundDown(2)
	default:
		d = c.Value
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(d, subtotal)
}
