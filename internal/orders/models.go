package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID        string
	AccountID string
	Status    Status // lihat status.go

	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	FinalTotal    decimal.Decimal

	// coins spent as an instant discount at checkout (1 coin = 1 currency unit)
	CoinsRedeemed int64
	CouponCode    string

	// set on entering RECEIVED, gates the RECEIVED -> DELIVERED confirmation
	DeliveryVerificationCode string

	CoinsAwarded       bool
	CoinsRefunded      bool
	CouponUsageTracked bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (o Order) HasCoupon() bool { return o.CouponCode != "" }
