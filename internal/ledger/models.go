package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-order-ledger/internal/coupons"
)

type EntryType string

const (
	EntryEarn   EntryType = "earn"
	EntryRedeem EntryType = "redeem"
	EntryRefund EntryType = "refund"
)

type Tier string

const (
	TierBronze Tier = "BRONZE"
	TierSilver Tier = "SILVER"
	TierGold   Tier = "GOLD"
)

var (
	ErrInsufficientBalance = errors.New("insufficient coin balance")
	ErrInvalidAmount       = errors.New("coin amount must be positive")
)

// Entry is an immutable ledger row. OrderID is set for earn/refund entries and
// for checkout redemptions; CouponCode for coupon redemptions.
type Entry struct {
	ID          string
	AccountID   string
	Type        EntryType
	Amount      int64
	OrderID     string
	CouponCode  string
	Description string
	CreatedAt   time.Time
}

type Wallet struct {
	AccountID      string
	CurrentBalance int64
	Tier           Tier
	TotalSpent     decimal.Decimal
	UpdatedAt      time.Time
}

// EmptyWallet is what an account without any ledger activity holds.
func EmptyWallet(accountID string) Wallet {
	return Wallet{AccountID: accountID, Tier: TierBronze, TotalSpent: decimal.Zero}
}

// Tx is the slice of the unit of work the ledger needs. Implementations must
// run every call inside the caller's atomic scope.
type Tx interface {
	coupons.Tx

	// GetWallet returns the wallet, locking it for the rest of the scope.
	// Accounts without a wallet row get EmptyWallet.
	GetWallet(ctx context.Context, accountID string) (Wallet, error)
	CreditWallet(ctx context.Context, accountID string, amount int64) (Wallet, error)
	// DebitWallet decrements only if the balance still covers amount at the
	// time of the write, returning ErrInsufficientBalance otherwise.
	DebitWallet(ctx context.Context, accountID string, amount int64) (Wallet, error)
	SetTier(ctx context.Context, accountID string, totalSpent decimal.Decimal, tier Tier) error

	AppendEntry(ctx context.Context, e Entry) error
	HasOrderEntry(ctx context.Context, orderID string, t EntryType) (bool, error)
}
