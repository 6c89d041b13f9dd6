package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-order-ledger/internal/coupons"
	"github.com/ariefcatur/go-order-ledger/internal/fulfillment"
	"github.com/ariefcatur/go-order-ledger/internal/ledger"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct{ DB *pgxpool.Pool }

var _ fulfillment.Store = (*Store)(nil)

// InTx: semua tulis (order, wallet, ledger, coupon) commit bareng atau rollback bareng.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx fulfillment.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &Tx{q: tx}); err != nil {
		return mapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	return getOrder(ctx, s.DB, id, false)
}

func (s *Store) GetWallet(ctx context.Context, accountID string) (ledger.Wallet, error) {
	w, err := scanWallet(s.DB.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE account_id=$1`, accountID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.EmptyWallet(accountID), nil
	}
	return w, err
}

func (s *Store) ListEntries(ctx context.Context, accountID string, limit int) ([]ledger.Entry, error) {
	rows, err := s.DB.Query(ctx, `SELECT id, account_id, type, amount, COALESCE(order_id, ''), COALESCE(coupon_code, ''), description, created_at
	                              FROM ledger_entries WHERE account_id=$1
	                              ORDER BY created_at DESC, id DESC LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var typ string
		if err := rows.Scan(&e.ID, &e.AccountID, &typ, &e.Amount, &e.OrderID, &e.CouponCode, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = ledger.EntryType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Tx implements fulfillment.Tx over one pgx transaction.
type Tx struct{ q querier }

const orderColumns = `id, account_id, status, subtotal, discount_total, final_total, coins_redeemed,
	COALESCE(coupon_code, ''), COALESCE(delivery_verification_code, ''),
	coins_awarded, coins_refunded, coupon_usage_tracked, created_at, updated_at`

func getOrder(ctx context.Context, q querier, id string, forUpdate bool) (orders.Order, error) {
	sql := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var o orders.Order
	var status string
	err := q.QueryRow(ctx, sql, id).Scan(
		&o.ID, &o.AccountID, &status, &o.Subtotal, &o.DiscountTotal, &o.FinalTotal, &o.CoinsRedeemed,
		&o.CouponCode, &o.DeliveryVerificationCode,
		&o.CoinsAwarded, &o.CoinsRefunded, &o.CouponUsageTracked, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, fmt.Errorf("%w: %s", orders.ErrOrderNotFound, id)
	}
	if err != nil {
		return orders.Order{}, err
	}
	o.Status = orders.Status(status)
	return o, nil
}

func (t *Tx) GetOrderForUpdate(ctx context.Context, id string) (orders.Order, error) {
	return getOrder(ctx, t.q, id, true)
}

func (t *Tx) InsertOrder(ctx context.Context, o orders.Order) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO orders(id, account_id, status, subtotal, discount_total, final_total, coins_redeemed,
		                   coupon_code, delivery_verification_code, coins_awarded, coins_refunded,
		                   coupon_usage_tracked, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),NULLIF($9,''),$10,$11,$12,$13,$14)`,
		o.ID, o.AccountID, string(o.Status), o.Subtotal, o.DiscountTotal, o.FinalTotal, o.CoinsRedeemed,
		o.CouponCode, o.DeliveryVerificationCode, o.CoinsAwarded, o.CoinsRefunded,
		o.CouponUsageTracked, o.CreatedAt, o.UpdatedAt,
	)
	return err
}

func (t *Tx) UpdateOrder(ctx context.Context, o orders.Order) error {
	ct, err := t.q.Exec(ctx, `
		UPDATE orders SET status=$2, delivery_verification_code=NULLIF($3,''),
		       coins_awarded=$4, coins_refunded=$5, coupon_usage_tracked=$6, updated_at=$7
		WHERE id=$1`,
		o.ID, string(o.Status), o.DeliveryVerificationCode,
		o.CoinsAwarded, o.CoinsRefunded, o.CouponUsageTracked, o.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s", orders.ErrOrderNotFound, o.ID)
	}
	return nil
}

const walletColumns = `account_id, current_balance, tier, total_spent, updated_at`

func scanWallet(row pgx.Row) (ledger.Wallet, error) {
	var w ledger.Wallet
	var tier string
	if err := row.Scan(&w.AccountID, &w.CurrentBalance, &tier, &w.TotalSpent, &w.UpdatedAt); err != nil {
		return ledger.Wallet{}, err
	}
	w.Tier = ledger.Tier(tier)
	return w, nil
}

// GetWallet materializes the row first so FOR UPDATE always has something to lock.
func (t *Tx) GetWallet(ctx context.Context, accountID string) (ledger.Wallet, error) {
	if _, err := t.q.Exec(ctx, `INSERT INTO wallets(account_id) VALUES ($1) ON CONFLICT (account_id) DO NOTHING`, accountID); err != nil {
		return ledger.Wallet{}, err
	}
	return scanWallet(t.q.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE account_id=$1 FOR UPDATE`, accountID))
}

func (t *Tx) CreditWallet(ctx context.Context, accountID string, amount int64) (ledger.Wallet, error) {
	return scanWallet(t.q.QueryRow(ctx, `
		INSERT INTO wallets(account_id, current_balance) VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE
		SET current_balance = wallets.current_balance + EXCLUDED.current_balance, updated_at = now()
		RETURNING `+walletColumns, accountID, amount))
}

// DebitWallet: cek saldo dan kurangi dalam satu statement, tidak ada check-then-write.
func (t *Tx) DebitWallet(ctx context.Context, accountID string, amount int64) (ledger.Wallet, error) {
	w, err := scanWallet(t.q.QueryRow(ctx, `
		UPDATE wallets SET current_balance = current_balance - $2, updated_at = now()
		WHERE account_id=$1 AND current_balance >= $2
		RETURNING `+walletColumns, accountID, amount))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Wallet{}, fmt.Errorf("%w: need %d", ledger.ErrInsufficientBalance, amount)
	}
	return w, err
}

func (t *Tx) SetTier(ctx context.Context, accountID string, totalSpent decimal.Decimal, tier ledger.Tier) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO wallets(account_id, total_spent, tier) VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO UPDATE
		SET total_spent = GREATEST(wallets.total_spent, EXCLUDED.total_spent),
		    tier = EXCLUDED.tier, updated_at = now()`,
		accountID, totalSpent, string(tier))
	return err
}

func (t *Tx) AppendEntry(ctx context.Context, e ledger.Entry) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO ledger_entries(id, account_id, type, amount, order_id, coupon_code, description, created_at)
		VALUES ($1,$2,$3,$4,NULLIF($5,''),NULLIF($6,''),$7,$8)`,
		e.ID, e.AccountID, string(e.Type), e.Amount, e.OrderID, e.CouponCode, e.Description, createdAt)
	return err
}

func (t *Tx) HasOrderEntry(ctx context.Context, orderID string, typ ledger.EntryType) (bool, error) {
	var ok bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM ledger_entries WHERE order_id=$1 AND type=$2)`, orderID, string(typ)).Scan(&ok)
	return ok, err
}

func (t *Tx) GetCoupon(ctx context.Context, code string) (coupons.Coupon, error) {
	var c coupons.Coupon
	var typ string
	var expires *time.Time
	err := t.q.QueryRow(ctx, `
		SELECT code, discount_type, value, min_order, expires_at, is_one_time,
		       COALESCE(owner_account_id, ''), usage_count, created_at
		FROM coupons WHERE code=$1 FOR UPDATE`, coupons.NormalizeCode(code)).Scan(
		&c.Code, &typ, &c.Value, &c.MinOrder, &expires, &c.IsOneTime, &c.OwnerAccountID, &c.UsageCount, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return coupons.Coupon{}, fmt.Errorf("%w: %s", coupons.ErrCouponNotFound, code)
	}
	if err != nil {
		return coupons.Coupon{}, err
	}
	c.DiscountType = coupons.DiscountType(typ)
	if expires != nil {
		c.ExpiresAt = *expires
	}
	return c, nil
}

func (t *Tx) InsertCoupon(ctx context.Context, c coupons.Coupon) error {
	var expires *time.Time
	if !c.ExpiresAt.IsZero() {
		expires = &c.ExpiresAt
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO coupons(code, discount_type, value, min_order, expires_at, is_one_time, owner_account_id, usage_count, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,$9)`,
		coupons.NormalizeCode(c.Code), string(c.DiscountType), c.Value, c.MinOrder, expires, c.IsOneTime,
		c.OwnerAccountID, c.UsageCount, c.CreatedAt)
	return err
}

func (t *Tx) AdjustCouponUsage(ctx context.Context, code string, delta int64) error {
	code = coupons.NormalizeCode(code)
	var usage int64
	err := t.q.QueryRow(ctx, `
		UPDATE coupons SET usage_count = usage_count + $2
		WHERE code=$1 AND usage_count + $2 >= 0
		RETURNING usage_count`, code, delta).Scan(&usage)
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	var exists bool
	if err := t.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM coupons WHERE code=$1)`, code).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", coupons.ErrCouponNotFound, code)
	}
	return fmt.Errorf("%w: %s", coupons.ErrUsageUnderflow, code)
}

func (t *Tx) CouponHeld(ctx context.Context, code string) (bool, error) {
	var held bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE coupon_code=$1 AND status <> $2)`,
		coupons.NormalizeCode(code), string(orders.StatusCancelled)).Scan(&held)
	return held, err
}
