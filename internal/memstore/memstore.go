// Package memstore keeps the engine state in memory. Units of work are
// serialized and see a private copy of the state that replaces the shared one
// only on commit, so a failed unit of work leaves nothing behind.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-order-ledger/internal/coupons"
	"github.com/ariefcatur/go-order-ledger/internal/fulfillment"
	"github.com/ariefcatur/go-order-ledger/internal/ledger"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
)

type state struct {
	orders  map[string]orders.Order
	wallets map[string]ledger.Wallet
	entries []ledger.Entry
	coupons map[string]coupons.Coupon
}

func (s *state) clone() *state {
	return &state{
		orders:  maps.Clone(s.orders),
		wallets: maps.Clone(s.wallets),
		entries: slices.Clone(s.entries),
		coupons: maps.Clone(s.coupons),
	}
}

type Store struct {
	mu    sync.Mutex
	state *state
	clock func() time.Time
}

func New() *Store {
	return &Store{
		state: &state{
			orders:  map[string]orders.Order{},
			wallets: map[string]ledger.Wallet{},
			coupons: map[string]coupons.Coupon{},
		},
		clock: time.Now,
	}
}

var _ fulfillment.Store = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx fulfillment.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, &tx{st: work, now: s.clock}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) GetOrder(_ context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[id]
	if !ok {
		return orders.Order{}, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, id)
	}
	return o, nil
}

func (s *Store) GetWallet(_ context.Context, accountID string) (ledger.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return walletOf(s.state, accountID), nil
}

func (s *Store) ListEntries(_ context.Context, accountID string, limit int) ([]ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Entry
	for i := len(s.state.entries) - 1; i >= 0; i-- {
		e := s.state.entries[i]
		if e.AccountID != accountID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// PutWallet, PutCoupon and PutOrder seed state outside any unit of work.

func (s *Store) PutWallet(w ledger.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.Tier == "" {
		w.Tier = ledger.TierBronze
	}
	s.state.wallets[w.AccountID] = w
}

func (s *Store) PutCoupon(c coupons.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Code = coupons.NormalizeCode(c.Code)
	s.state.coupons[c.Code] = c
}

func (s *Store) PutOrder(o orders.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.orders[o.ID] = o
}

func (s *Store) Coupon(code string) (coupons.Coupon, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.state.coupons[coupons.NormalizeCode(code)]
	return c, ok
}

// OrderEntries returns every ledger entry referencing orderID, oldest first.
func (s *Store) OrderEntries(orderID string) []ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Entry
	for _, e := range s.state.entries {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out
}

func walletOf(st *state, accountID string) ledger.Wallet {
	if w, ok := st.wallets[accountID]; ok {
		return w
	}
	return ledger.EmptyWallet(accountID)
}

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) GetOrderForUpdate(_ context.Context, id string) (orders.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return orders.Order{}, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, id)
	}
	return o, nil
}

func (t *tx) InsertOrder(_ context.Context, o orders.Order) error {
	if _, ok := t.st.orders[o.ID]; ok {
		return fmt.Errorf("%w: order %s exists", fulfillment.ErrStorageConflict, o.ID)
	}
	t.st.orders[o.ID] = o
	return nil
}

func (t *tx) UpdateOrder(_ context.Context, o orders.Order) error {
	if _, ok := t.st.orders[o.ID]; !ok {
		return fmt.Errorf("%w: %s", orders.ErrOrderNotFound, o.ID)
	}
	t.st.orders[o.ID] = o
	return nil
}

func (t *tx) CouponHeld(_ context.Context, code string) (bool, error) {
	code = coupons.NormalizeCode(code)
	for _, o := range t.st.orders {
		if o.CouponCode == code && o.Status != orders.StatusCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) GetWallet(_ context.Context, accountID string) (ledger.Wallet, error) {
	return walletOf(t.st, accountID), nil
}

func (t *tx) CreditWallet(_ context.Context, accountID string, amount int64) (ledger.Wallet, error) {
	w := walletOf(t.st, accountID)
	w.CurrentBalance += amount
	w.UpdatedAt = t.now().UTC()
	t.st.wallets[accountID] = w
	return w, nil
}

func (t *tx) DebitWallet(_ context.Context, accountID string, amount int64) (ledger.Wallet, error) {
	w := walletOf(t.st, accountID)
	if w.CurrentBalance < amount {
		return ledger.Wallet{}, fmt.Errorf("%w: have %d, need %d", ledger.ErrInsufficientBalance, w.CurrentBalance, amount)
	}
	w.CurrentBalance -= amount
	w.UpdatedAt = t.now().UTC()
	t.st.wallets[accountID] = w
	return w, nil
}

func (t *tx) SetTier(_ context.Context, accountID string, totalSpent decimal.Decimal, tier ledger.Tier) error {
	w := walletOf(t.st, accountID)
	if totalSpent.LessThan(w.TotalSpent) {
		totalSpent = w.TotalSpent
	}
	w.TotalSpent = totalSpent
	w.Tier = tier
	w.UpdatedAt = t.now().UTC()
	t.st.wallets[accountID] = w
	return nil
}

func (t *tx) AppendEntry(_ context.Context, e ledger.Entry) error {
	if e.Amount <= 0 {
		return ledger.ErrInvalidAmount
	}
	if e.OrderID != "" && (e.Type == ledger.EntryEarn || e.Type == ledger.EntryRefund) {
		for _, x := range t.st.entries {
			if x.OrderID == e.OrderID && x.Type == e.Type {
				return fmt.Errorf("%w: %s entry for order %s exists", fulfillment.ErrStorageConflict, e.Type, e.OrderID)
			}
		}
	}
	t.st.entries = append(t.st.entries, e)
	return nil
}

func (t *tx) HasOrderEntry(_ context.Context, orderID string, typ ledger.EntryType) (bool, error) {
	for _, e := range t.st.entries {
		if e.OrderID == orderID && e.Type == typ {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) GetCoupon(_ context.Context, code string) (coupons.Coupon, error) {
	c, ok := t.st.coupons[coupons.NormalizeCode(code)]
	if !ok {
		return coupons.Coupon{}, fmt.Errorf("%w: %s", coupons.ErrCouponNotFound, code)
	}
	return c, nil
}

func (t *tx) InsertCoupon(_ context.Context, c coupons.Coupon) error {
	c.Code = coupons.NormalizeCode(c.Code)
	if _, ok := t.st.coupons[c.Code]; ok {
		return fmt.Errorf("%w: coupon %s exists", fulfillment.ErrStorageConflict, c.Code)
	}
	t.st.coupons[c.Code] = c
	return nil
}

func (t *tx) AdjustCouponUsage(_ context.Context, code string, delta int64) error {
	key := coupons.NormalizeCode(code)
	c, ok := t.st.coupons[key]
	if !ok {
		return fmt.Errorf("%w: %s", coupons.ErrCouponNotFound, code)
	}
	if c.UsageCount+delta < 0 {
		return fmt.Errorf("%w: %s has usage %d", coupons.ErrUsageUnderflow, key, c.UsageCount)
	}
	c.UsageCount += delta
	t.st.coupons[key] = c
	return nil
}
