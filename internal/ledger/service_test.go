package ledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-order-ledger/internal/fulfillment"
	"github.com/ariefcatur/go-order-ledger/internal/ledger"
	"github.com/ariefcatur/go-order-ledger/internal/memstore"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
)

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newService() *ledger.Service {
	svc := ledger.NewService(ledger.DefaultRules(), nil)
	svc.Clock = func() time.Time { return fixedNow }
	return svc
}

func TestFinalizeDeliveryUsesSpendIncludingOrder(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	store.PutWallet(ledger.Wallet{AccountID: "acct-1", TotalSpent: decimal.NewFromInt(4500)})
	svc := newService()

	o := orders.Order{ID: "o-1", AccountID: "acct-1", FinalTotal: decimal.NewFromInt(700)}
	var award ledger.Award
	err := store.InTx(ctx, func(ctx context.Context, tx fulfillment.Tx) error {
		var err error
		award, err = svc.FinalizeDelivery(ctx, tx, &o)
		return err
	})
	require.NoError(t, err)
	require.EqualValues(t, 28, award.Coins)
	require.Equal(t, ledger.TierSilver, award.Tier)
	require.True(t, o.CoinsAwarded)

	w, err := store.GetWallet(ctx, "acct-1")
	require.NoError(t, err)
	require.EqualValues(t, 28, w.CurrentBalance)
	require.Equal(t, ledger.TierSilver, w.Tier)
	require.Equal(t, "5200.00", w.TotalSpent.StringFixed(2))
}

func TestFinalizeDeliveryTrustsLedgerOverFlag(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newService()

	o := orders.Order{ID: "o-1", AccountID: "acct-1", FinalTotal: decimal.NewFromInt(1000)}
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx fulfillment.Tx) error {
		_, err := svc.FinalizeDelivery(ctx, tx, &o)
		return err
	}))

	// a stale copy of the order that never saw the flag
	stale := orders.Order{ID: "o-1", AccountID: "acct-1", FinalTotal: decimal.NewFromInt(1000)}
	var award ledger.Award
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx fulfillment.Tx) error {
		var err error
		award, err = svc.FinalizeDelivery(ctx, tx, &stale)
		return err
	}))
	require.Zero(t, award.Coins)
	require.True(t, stale.CoinsAwarded)
	require.Len(t, store.OrderEntries("o-1"), 1)

	w, _ := store.GetWallet(ctx, "acct-1")
	require.EqualValues(t, 20, w.CurrentBalance)
}

func TestFinalizeDeliveryZeroCoinsWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newService()

	o := orders.Order{ID: "o-small", AccountID: "acct-1", FinalTotal: decimal.NewFromInt(10)}
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx fulfillment.Tx) error {
		_, err := svc.FinalizeDelivery(ctx, tx, &o)
		return err
	}))
	require.False(t, o.CoinsAwarded)
	require.Empty(t, store.OrderEntries("o-small"))
	w, _ := store.GetWallet(ctx, "acct-1")
	require.True(t, w.TotalSpent.IsZero())
}

func TestRefundOnce(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newService()

	o := orders.Order{ID: "o-1", AccountID: "acct-1", CoinsRedeemed: 40}
	for i := 0; i < 2; i++ {
		require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx fulfillment.Tx) error {
			_, err := svc.Refund(ctx, tx, o.AccountID, o.CoinsRedeemed, &o)
			return err
		}))
	}
	w, _ := store.GetWallet(ctx, "acct-1")
	require.EqualValues(t, 40, w.CurrentBalance)
	require.True(t, w.TotalSpent.IsZero(), "refunds do not count as spend")
	require.Len(t, store.OrderEntries("o-1"), 1)
}

func TestRedeemToCoupon(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	store.PutWallet(ledger.Wallet{AccountID: "acct-1", CurrentBalance: 80})
	svc := newService()

	var minted string
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx fulfillment.Tx) error {
		c, err := svc.RedeemToCoupon(ctx, tx, "acct-1", 50)
		minted = c.Code
		return err
	}))

	w, _ := store.GetWallet(ctx, "acct-1")
	require.EqualValues(t, 30, w.CurrentBalance)

	c, ok := store.Coupon(minted)
	require.True(t, ok)
	require.Equal(t, "50.00", c.Value.StringFixed(2))
	require.True(t, c.IsOneTime)
	require.Equal(t, "acct-1", c.OwnerAccountID)
	require.Equal(t, fixedNow.Add(30*24*time.Hour), c.ExpiresAt)

	entries, err := store.ListEntries(ctx, "acct-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ledger.EntryRedeem, entries[0].Type)
	require.EqualValues(t, 50, entries[0].Amount)
	require.Equal(t, minted, entries[0].CouponCode)
}

func TestRedeemToCouponRejects(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	store.PutWallet(ledger.Wallet{AccountID: "acct-1", CurrentBalance: 30})
	svc := newService()

	for _, amount := range []int64{9, 31} {
		err := store.InTx(ctx, func(ctx context.Context, tx fulfillment.Tx) error {
			_, err := svc.RedeemToCoupon(ctx, tx, "acct-1", amount)
			return err
		})
		require.ErrorIs(t, err, ledger.ErrInsufficientBalance, "amount %d", amount)
	}
	w, _ := store.GetWallet(ctx, "acct-1")
	require.EqualValues(t, 30, w.CurrentBalance)
	entries, _ := store.ListEntries(ctx, "acct-1", 10)
	require.Empty(t, entries)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	store.PutWallet(ledger.Wallet{AccountID: "acct-1", CurrentBalance: 100})
	svc := newService()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.InTx(ctx, func(ctx context.Context, tx fulfillment.Tx) error {
				_, err := svc.Debit(ctx, tx, ledger.DebitRequest{
					AccountID:   "acct-1",
					Amount:      30,
					Description: fmt.Sprintf("debit %d", i),
				})
				return err
			})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 3, ok)
	w, _ := store.GetWallet(ctx, "acct-1")
	require.EqualValues(t, 10, w.CurrentBalance)
}

func TestDebitRejectsNonPositive(t *testing.T) {
	store := memstore.New()
	svc := newService()
	err := store.InTx(context.Background(), func(ctx context.Context, tx fulfillment.Tx) error {
		_, err := svc.Debit(ctx, tx, ledger.DebitRequest{AccountID: "acct-1", Amount: 0})
		return err
	})
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestRedeemAtCheckoutBound(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	store.PutWallet(ledger.Wallet{AccountID: "rich", CurrentBalance: 900})
	svc := newService()

	var applied int64
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx fulfillment.Tx) error {
		var err error
		applied, err = svc.RedeemAtCheckout(ctx, tx, "rich", "o-1", decimal.NewFromInt(1000))
		return err
	}))
	require.EqualValues(t, 500, applied)

	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx fulfillment.Tx) error {
		var err error
		applied, err = svc.RedeemAtCheckout(ctx, tx, "empty", "o-2", decimal.NewFromInt(1000))
		return err
	}))
	require.Zero(t, applied)
	require.Empty(t, store.OrderEntries("o-2"))
}
