package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-ledger/internal/coupons"
	"github.com/ariefcatur/go-order-ledger/internal/ledger"
	"github.com/ariefcatur/go-order-ledger/internal/notify"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
)

const instrumentationName = "github.com/ariefcatur/go-order-ledger/internal/fulfillment"

// Notifier receives committed outcomes. Errors are logged, never returned to
// the caller of a transition.
type Notifier interface {
	Notify(ctx context.Context, eventType string, n notify.Notification) error
}

type Deps struct {
	Store   Store
	Ledger  *ledger.Service
	Coupons *coupons.Tracker
	// optional
	Notifier Notifier
	Logger   *zap.Logger
	Clock    func() time.Time
	NewID    func() string
	NewCode  func() (string, error)
	// extra attempts after ErrStorageConflict
	Retries int
}

// Coordinator is the only writer of orders after checkout. The operator
// console and the order API both call it.
type Coordinator struct {
	store    Store
	ledger   *ledger.Service
	coupons  *coupons.Tracker
	notifier Notifier
	log      *zap.Logger
	clock    func() time.Time
	newID    func() string
	newCode  func() (string, error)
	retries  int
	tracer   trace.Tracer
}

func New(deps Deps) (*Coordinator, error) {
	if deps.Store == nil {
		return nil, errors.New("fulfillment: store is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("fulfillment: ledger service is required")
	}
	c := &Coordinator{
		store:    deps.Store,
		ledger:   deps.Ledger,
		coupons:  deps.Coupons,
		notifier: deps.Notifier,
		log:      deps.Logger,
		clock:    deps.Clock,
		newID:    deps.NewID,
		newCode:  deps.NewCode,
		retries:  deps.Retries,
		tracer:   otel.Tracer(instrumentationName),
	}
	if c.coupons == nil {
		c.coupons = &coupons.Tracker{Logger: deps.Logger}
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	if c.newCode == nil {
		c.newCode = orders.NewVerificationCode
	}
	if c.retries < 0 {
		c.retries = 0
	}
	return c, nil
}

func (c *Coordinator) now() time.Time { return c.clock().UTC() }

type TransitionResult struct {
	Order  orders.Order
	Change orders.StatusChange
}

// TransitionOrder moves an order to status `to` and applies its financial side
// effects in one unit of work. Requesting the current status again replays the
// guarded effects without duplicating them.
func (c *Coordinator) TransitionOrder(ctx context.Context, orderID string, to orders.Status) (TransitionResult, error) {
	ctx, span := c.tracer.Start(ctx, "fulfillment.TransitionOrder", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.status.to", string(to)),
	))
	defer span.End()

	if strings.TrimSpace(orderID) == "" {
		return TransitionResult{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	if !to.Valid() {
		return TransitionResult{}, fmt.Errorf("%w %q", orders.ErrUnknownStatus, to)
	}

	var res TransitionResult
	err := c.withRetry(ctx, func() error {
		return c.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			r, err := c.transition(ctx, tx, orderID, to)
			if err != nil {
				return err
			}
			res = r
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return TransitionResult{}, err
	}

	span.SetAttributes(
		attribute.Bool("order.status.changed", res.Change.Changed),
		attribute.Int64("ledger.coins_awarded", res.Change.CoinsAwarded),
		attribute.Int64("ledger.coins_refunded", res.Change.CoinsRefunded),
	)
	c.log.Info("order transitioned",
		zap.String("order_id", orderID),
		zap.String("from", string(res.Change.From)),
		zap.String("to", string(res.Change.To)),
		zap.Bool("changed", res.Change.Changed),
		zap.Int64("coins_awarded", res.Change.CoinsAwarded),
		zap.Int64("coins_refunded", res.Change.CoinsRefunded),
	)
	if res.Change.Changed {
		c.notify(ctx, orders.EventOrderStatusChanged, statusNotification(res))
	}
	return res, nil
}

func (c *Coordinator) transition(ctx context.Context, tx Tx, orderID string, to orders.Status) (TransitionResult, error) {
	o, err := tx.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		return TransitionResult{}, err
	}
	if err := orders.CheckTransition(o.Status, to); err != nil {
		return TransitionResult{}, err
	}

	change := orders.StatusChange{
		OrderID:   o.ID,
		AccountID: o.AccountID,
		From:      o.Status,
		To:        to,
		Changed:   o.Status != to,
	}
	o.Status = to
	o.UpdatedAt = c.now()

	switch to {
	case orders.StatusReceived:
		if o.DeliveryVerificationCode == "" {
			code, err := c.newCode()
			if err != nil {
				return TransitionResult{}, err
			}
			o.DeliveryVerificationCode = code
		}

	case orders.StatusDelivered:
		award, err := c.ledger.FinalizeDelivery(ctx, tx, &o)
		if err != nil {
			return TransitionResult{}, fmt.Errorf("finalize delivery: %w", err)
		}
		change.CoinsAwarded = award.Coins
		if _, err := c.coupons.MarkUsed(ctx, tx, &o); err != nil {
			return TransitionResult{}, err
		}

	case orders.StatusCancelled:
		if o.CoinsRedeemed > 0 && !o.CoinsRefunded {
			refunded, err := c.ledger.Refund(ctx, tx, o.AccountID, o.CoinsRedeemed, &o)
			if err != nil {
				return TransitionResult{}, fmt.Errorf("refund: %w", err)
			}
			change.CoinsRefunded = refunded
			o.CoinsRefunded = true
		}
		if o.CouponUsageTracked {
			if _, err := c.coupons.MarkUnused(ctx, tx, &o); err != nil {
				return TransitionResult{}, err
			}
		}
	}

	if err := tx.UpdateOrder(ctx, o); err != nil {
		return TransitionResult{}, fmt.Errorf("update order: %w", err)
	}
	return TransitionResult{Order: o, Change: change}, nil
}

// PlaceOrderRequest is the checkout input. Coin redemption and a coupon are
// mutually exclusive on one order.
type PlaceOrderRequest struct {
	AccountID   string
	Subtotal    decimal.Decimal
	RedeemCoins bool
	CouponCode  string
}

// PlaceOrder creates an order in PENDING_VERIFICATION, spending coins or
// applying a coupon in the same unit of work.
func (c *Coordinator) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (orders.Order, error) {
	ctx, span := c.tracer.Start(ctx, "fulfillment.PlaceOrder", trace.WithAttributes(
		attribute.String("account.id", req.AccountID),
	))
	defer span.End()

	req.AccountID = strings.TrimSpace(req.AccountID)
	req.CouponCode = coupons.NormalizeCode(req.CouponCode)
	switch {
	case req.AccountID == "":
		return orders.Order{}, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	case !req.Subtotal.IsPositive():
		return orders.Order{}, fmt.Errorf("%w: subtotal must be positive", ErrInvalidInput)
	case req.RedeemCoins && req.CouponCode != "":
		return orders.Order{}, fmt.Errorf("%w: coins and coupon cannot be combined", ErrInvalidInput)
	}

	var placed orders.Order
	err := c.withRetry(ctx, func() error {
		now := c.now()
		o := orders.Order{
			ID:            c.newID(),
			AccountID:     req.AccountID,
			Status:        orders.StatusPendingVerification,
			Subtotal:      req.Subtotal,
			DiscountTotal: decimal.Zero,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return c.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			discount := decimal.Zero
			if req.CouponCode != "" {
				cp, err := tx.GetCoupon(ctx, req.CouponCode)
				if err != nil {
					return err
				}
				if err := cp.Validate(req.AccountID, req.Subtotal, now); err != nil {
					return err
				}
				if cp.IsOneTime {
					held, err := tx.CouponHeld(ctx, cp.Code)
					if err != nil {
						return fmt.Errorf("check coupon %s: %w", cp.Code, err)
					}
					if held {
						return fmt.Errorf("%w: %s is already applied to another order", coupons.ErrCouponNotApplicable, cp.Code)
					}
				}
				o.CouponCode = cp.Code
				discount = cp.Discount(req.Subtotal)
			}
			if req.RedeemCoins {
				coins, err := c.ledger.RedeemAtCheckout(ctx, tx, req.AccountID, o.ID, req.Subtotal)
				if err != nil {
					return err
				}
				o.CoinsRedeemed = coins
				discount = c.ledger.Rules.CoinsToCurrency(coins)
			}
			o.DiscountTotal = decimal.Min(discount, req.Subtotal)
			o.FinalTotal = req.Subtotal.Sub(o.DiscountTotal)
			if err := tx.InsertOrder(ctx, o); err != nil {
				return fmt.Errorf("insert order: %w", err)
			}
			placed = o
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return orders.Order{}, err
	}

	c.log.Info("order placed",
		zap.String("order_id", placed.ID),
		zap.String("account_id", placed.AccountID),
		zap.String("final_total", placed.FinalTotal.StringFixed(2)),
		zap.Int64("coins_redeemed", placed.CoinsRedeemed),
		zap.String("coupon", placed.CouponCode),
	)
	c.notify(ctx, orders.EventOrderPlaced, notify.Notification{
		AccountID: placed.AccountID,
		Title:     "Order placed",
		Body:      fmt.Sprintf("We got your order %s for %s. We'll let you know once it's verified.", shortID(placed.ID), placed.FinalTotal.StringFixed(2)),
		LinkHint:  orderLink(placed.ID),
	})
	return placed, nil
}

// RedeemToCoupon converts coins into a personal coupon.
func (c *Coordinator) RedeemToCoupon(ctx context.Context, accountID string, coins int64) (coupons.Coupon, error) {
	ctx, span := c.tracer.Start(ctx, "fulfillment.RedeemToCoupon", trace.WithAttributes(
		attribute.String("account.id", accountID),
		attribute.Int64("ledger.coins", coins),
	))
	defer span.End()

	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return coupons.Coupon{}, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}

	var minted coupons.Coupon
	err := c.withRetry(ctx, func() error {
		return c.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			cp, err := c.ledger.RedeemToCoupon(ctx, tx, accountID, coins)
			if err != nil {
				return err
			}
			minted = cp
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return coupons.Coupon{}, err
	}

	c.notify(ctx, orders.EventCouponMinted, notify.Notification{
		AccountID: accountID,
		Title:     "Your coupon is ready",
		Body:      fmt.Sprintf("%d coins became coupon %s worth %s, valid until %s.", coins, minted.Code, minted.Value.StringFixed(2), minted.ExpiresAt.Format("2 Jan 2006")),
		LinkHint:  "/wallet/coupons",
	})
	return minted, nil
}

func (c *Coordinator) GetOrder(ctx context.Context, orderID string) (orders.Order, error) {
	return c.store.GetOrder(ctx, orderID)
}

func (c *Coordinator) GetWallet(ctx context.Context, accountID string) (ledger.Wallet, error) {
	return c.store.GetWallet(ctx, accountID)
}

func (c *Coordinator) ListEntries(ctx context.Context, accountID string, limit int) ([]ledger.Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return c.store.ListEntries(ctx, accountID, limit)
}

func (c *Coordinator) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		err = fn()
		if !errors.Is(err, ErrStorageConflict) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		c.log.Debug("unit of work conflicted, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return err
}

func (c *Coordinator) notify(ctx context.Context, eventType string, n notify.Notification) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, eventType, n); err != nil {
		c.log.Warn("notification not delivered",
			zap.String("event_type", eventType),
			zap.String("account_id", n.AccountID),
			zap.Error(err),
		)
	}
}
