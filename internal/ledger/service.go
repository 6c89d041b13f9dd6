package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-ledger/internal/coupons"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
)

const instrumentationName = "github.com/ariefcatur/go-order-ledger/internal/ledger"

// Service applies coin movements. Every method runs inside the caller's unit
// of work and writes the wallet and the ledger entry through the same Tx.
type Service struct {
	Rules  Rules
	Clock  func() time.Time
	NewID  func() string
	Logger *zap.Logger

	coins metric.Int64Counter
}

func NewService(rules Rules, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	counter, err := otel.Meter(instrumentationName).Int64Counter("ledger.coins",
		metric.WithDescription("Coins moved through the ledger"),
		metric.WithUnit("{coin}"),
	)
	if err != nil {
		logger.Warn("ledger counter unavailable", zap.Error(err))
	}
	return &Service{
		Rules:  rules,
		Clock:  time.Now,
		NewID:  uuid.NewString,
		Logger: logger,
		coins:  counter,
	}
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock().UTC()
}

func (s *Service) newID() string {
	if s.NewID == nil {
		return uuid.NewString()
	}
	return s.NewID()
}

func (s *Service) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Service) record(ctx context.Context, t EntryType, amount int64) {
	if s.coins == nil {
		return
	}
	s.coins.Add(ctx, amount, metric.WithAttributes(attribute.String("type", string(t))))
}

type Award struct {
	Coins      int64
	Tier       Tier
	TotalSpent decimal.Decimal
}

// FinalizeDelivery awards coins for a delivered order at most once. The tier
// is derived from the spend including this order.
func (s *Service) FinalizeDelivery(ctx context.Context, tx Tx, o *orders.Order) (Award, error) {
	if o.CoinsAwarded {
		return Award{}, nil
	}
	// ledger is the authority, the flag only a shortcut
	done, err := tx.HasOrderEntry(ctx, o.ID, EntryEarn)
	if err != nil {
		return Award{}, fmt.Errorf("check earn entry: %w", err)
	}
	if done {
		o.CoinsAwarded = true
		return Award{}, nil
	}

	w, err := tx.GetWallet(ctx, o.AccountID)
	if err != nil {
		return Award{}, fmt.Errorf("load wallet: %w", err)
	}
	totalSpent := w.TotalSpent.Add(o.FinalTotal)
	rule := s.Rules.TierFor(totalSpent)
	coins := CoinsEarned(o.FinalTotal, rule.EarnRate)
	if coins <= 0 {
		return Award{}, nil
	}

	if _, err := tx.CreditWallet(ctx, o.AccountID, coins); err != nil {
		return Award{}, fmt.Errorf("credit wallet: %w", err)
	}
	if err := tx.SetTier(ctx, o.AccountID, totalSpent, rule.Tier); err != nil {
		return Award{}, fmt.Errorf("update tier: %w", err)
	}
	if err := tx.AppendEntry(ctx, Entry{
		ID:          s.newID(),
		AccountID:   o.AccountID,
		Type:        EntryEarn,
		Amount:      coins,
		OrderID:     o.ID,
		Description: fmt.Sprintf("Earned %d coins for order %s (%s, %d%%)", coins, o.ID, rule.Tier, rule.EarnRate),
		CreatedAt:   s.now(),
	}); err != nil {
		return Award{}, fmt.Errorf("append earn entry: %w", err)
	}
	o.CoinsAwarded = true
	s.record(ctx, EntryEarn, coins)
	s.log().Info("coins awarded",
		zap.String("order_id", o.ID),
		zap.String("account_id", o.AccountID),
		zap.Int64("coins", coins),
		zap.String("tier", string(rule.Tier)),
		zap.String("total_spent", totalSpent.String()),
	)
	return Award{Coins: coins, Tier: rule.Tier, TotalSpent: totalSpent}, nil
}

// Refund returns amount coins redeemed on order o, at most once per order.
// Refunds never count toward tier spend.
func (s *Service) Refund(ctx context.Context, tx Tx, accountID string, amount int64, o *orders.Order) (int64, error) {
	if o.CoinsRefunded || amount <= 0 {
		return 0, nil
	}
	done, err := tx.HasOrderEntry(ctx, o.ID, EntryRefund)
	if err != nil {
		return 0, fmt.Errorf("check refund entry: %w", err)
	}
	if done {
		o.CoinsRefunded = true
		return 0, nil
	}
	if _, err := tx.CreditWallet(ctx, accountID, amount); err != nil {
		return 0, fmt.Errorf("credit wallet: %w", err)
	}
	if err := tx.AppendEntry(ctx, Entry{
		ID:          s.newID(),
		AccountID:   accountID,
		Type:        EntryRefund,
		Amount:      amount,
		OrderID:     o.ID,
		Description: fmt.Sprintf("Refunded %d coins for cancelled order %s", amount, o.ID),
		CreatedAt:   s.now(),
	}); err != nil {
		return 0, fmt.Errorf("append refund entry: %w", err)
	}
	o.CoinsRefunded = true
	s.record(ctx, EntryRefund, amount)
	s.log().Info("coins refunded",
		zap.String("order_id", o.ID),
		zap.String("account_id", accountID),
		zap.Int64("coins", amount),
	)
	return amount, nil
}

// DebitRequest names what a redemption pays for. Exactly one of OrderID and
// CouponCode is normally set.
type DebitRequest struct {
	AccountID   string
	Amount      int64
	OrderID     string
	CouponCode  string
	Description string
}

// Debit is the single spending primitive: a conditional wallet decrement and
// its redeem entry, both inside tx.
func (s *Service) Debit(ctx context.Context, tx Tx, req DebitRequest) (Wallet, error) {
	if req.Amount <= 0 {
		return Wallet{}, ErrInvalidAmount
	}
	w, err := tx.DebitWallet(ctx, req.AccountID, req.Amount)
	if err != nil {
		return Wallet{}, fmt.Errorf("debit %d coins: %w", req.Amount, err)
	}
	if err := tx.AppendEntry(ctx, Entry{
		ID:          s.newID(),
		AccountID:   req.AccountID,
		Type:        EntryRedeem,
		Amount:      req.Amount,
		OrderID:     req.OrderID,
		CouponCode:  req.CouponCode,
		Description: req.Description,
		CreatedAt:   s.now(),
	}); err != nil {
		return Wallet{}, fmt.Errorf("append redeem entry: %w", err)
	}
	s.record(ctx, EntryRedeem, req.Amount)
	return w, nil
}

// RedeemToCoupon converts amount coins into a personal one-time flat coupon.
func (s *Service) RedeemToCoupon(ctx context.Context, tx Tx, accountID string, amount int64) (coupons.Coupon, error) {
	if amount < s.Rules.MinRedeem {
		return coupons.Coupon{}, fmt.Errorf("%w: minimum redemption is %d coins", ErrInsufficientBalance, s.Rules.MinRedeem)
	}
	c := coupons.NewPersonal(accountID, s.Rules.CoinsToCurrency(amount), s.Rules.CouponValidity, s.now())
	if _, err := s.Debit(ctx, tx, DebitRequest{
		AccountID:   accountID,
		Amount:      amount,
		CouponCode:  c.Code,
		Description: fmt.Sprintf("Redeemed %d coins for coupon %s", amount, c.Code),
	}); err != nil {
		return coupons.Coupon{}, err
	}
	if err := tx.InsertCoupon(ctx, c); err != nil {
		return coupons.Coupon{}, fmt.Errorf("mint coupon: %w", err)
	}
	s.log().Info("coupon minted",
		zap.String("account_id", accountID),
		zap.String("coupon", c.Code),
		zap.Int64("coins", amount),
	)
	return c, nil
}

// RedeemAtCheckout spends as many coins as allowed on a new order and returns
// the number applied, 0 if the wallet is empty.
func (s *Service) RedeemAtCheckout(ctx context.Context, tx Tx, accountID, orderID string, subtotal decimal.Decimal) (int64, error) {
	w, err := tx.GetWallet(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("load wallet: %w", err)
	}
	apply := min(w.CurrentBalance, s.Rules.MaxRedeemable(subtotal))
	if apply <= 0 {
		return 0, nil
	}
	if _, err := s.Debit(ctx, tx, DebitRequest{
		AccountID:   accountID,
		Amount:      apply,
		OrderID:     orderID,
		Description: fmt.Sprintf("Redeemed %d coins at checkout for order %s", apply, orderID),
	}); err != nil {
		return 0, err
	}
	return apply, nil
}
