package fulfillment

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-order-ledger/internal/ledger"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
)

var (
	// ErrStorageConflict reports a concurrent write detected by the store.
	// The unit of work left no trace and may be retried.
	ErrStorageConflict = errors.New("storage conflict")
	ErrInvalidInput    = errors.New("invalid input")
)

// Tx is one atomic unit of work spanning orders, wallets, ledger entries and
// coupons. Reads made through Tx must be protected against concurrent writers
// until the scope ends.
type Tx interface {
	ledger.Tx

	// GetOrderForUpdate returns orders.ErrOrderNotFound when absent.
	GetOrderForUpdate(ctx context.Context, id string) (orders.Order, error)
	InsertOrder(ctx context.Context, o orders.Order) error
	UpdateOrder(ctx context.Context, o orders.Order) error
	// CouponHeld reports whether an order that is not cancelled references
	// code. Callers hold the coupon row lock from GetCoupon.
	CouponHeld(ctx context.Context, code string) (bool, error)
}

type Store interface {
	// InTx commits when fn returns nil and discards every write otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetOrder(ctx context.Context, id string) (orders.Order, error)
	GetWallet(ctx context.Context, accountID string) (ledger.Wallet, error)
	ListEntries(ctx context.Context, accountID string, limit int) ([]ledger.Entry, error)
}
