package features

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-order-ledger/internal/fulfillment"
	"github.com/ariefcatur/go-order-ledger/internal/ledger"
	"github.com/ariefcatur/go-order-ledger/internal/memstore"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
)

type lifecycleContext struct {
	store  *memstore.Store
	coord  *fulfillment.Coordinator
	nextID string
	err    error
}

func (c *lifecycleContext) reset() error {
	c.store = memstore.New()
	c.nextID = ""
	c.err = nil
	coord, err := fulfillment.New(fulfillment.Deps{
		Store:  c.store,
		Ledger: ledger.NewService(ledger.DefaultRules(), nil),
		NewID:  func() string { return c.nextID },
	})
	if err != nil {
		return err
	}
	c.coord = coord
	return nil
}

func (c *lifecycleContext) accountHasCoinsAndSpend(accountID string, coins, spend int) error {
	c.store.PutWallet(ledger.Wallet{
		AccountID:      accountID,
		CurrentBalance: int64(coins),
		TotalSpent:     decimal.NewFromInt(int64(spend)),
	})
	return nil
}

func (c *lifecycleContext) orderInStatus(orderID, accountID string, total int, status string) error {
	st, err := orders.ParseStatus(status)
	if err != nil {
		return err
	}
	c.store.PutOrder(orders.Order{
		ID:         orderID,
		AccountID:  accountID,
		Status:     st,
		Subtotal:   decimal.NewFromInt(int64(total)),
		FinalTotal: decimal.NewFromInt(int64(total)),
	})
	return nil
}

func (c *lifecycleContext) orderIsMovedTo(orderID, status string) error {
	st, err := orders.ParseStatus(status)
	if err != nil {
		return err
	}
	_, c.err = c.coord.TransitionOrder(context.Background(), orderID, st)
	return nil
}

func (c *lifecycleContext) accountPlacesOrderRedeemingCoins(accountID, orderID string, subtotal int) error {
	c.nextID = orderID
	_, c.err = c.coord.PlaceOrder(context.Background(), fulfillment.PlaceOrderRequest{
		AccountID:   accountID,
		Subtotal:    decimal.NewFromInt(int64(subtotal)),
		RedeemCoins: true,
	})
	return c.err
}

func (c *lifecycleContext) accountRedeemsCoins(accountID string, coins int) error {
	_, c.err = c.coord.RedeemToCoupon(context.Background(), accountID, int64(coins))
	return nil
}

func (c *lifecycleContext) succeeds() error {
	if c.err != nil {
		return fmt.Errorf("expected success but got error: %v", c.err)
	}
	return nil
}

func (c *lifecycleContext) failsWith(substring string) error {
	if c.err == nil {
		return errors.New("expected failure but it succeeded")
	}
	if !strings.Contains(c.err.Error(), substring) {
		return fmt.Errorf("expected error to contain %q, got %q", substring, c.err.Error())
	}
	return nil
}

func (c *lifecycleContext) accountHasCoins(accountID string, coins int) error {
	w, err := c.store.GetWallet(context.Background(), accountID)
	if err != nil {
		return err
	}
	if w.CurrentBalance != int64(coins) {
		return fmt.Errorf("expected %d coins, got %d", coins, w.CurrentBalance)
	}
	return nil
}

func (c *lifecycleContext) accountIsInTier(accountID, tier string) error {
	w, err := c.store.GetWallet(context.Background(), accountID)
	if err != nil {
		return err
	}
	if string(w.Tier) != tier {
		return fmt.Errorf("expected tier %s, got %s", tier, w.Tier)
	}
	return nil
}

func (c *lifecycleContext) orderHasLedgerEntries(orderID string, n int) error {
	if got := len(c.store.OrderEntries(orderID)); got != n {
		return fmt.Errorf("expected %d ledger entries for %s, got %d", n, orderID, got)
	}
	return nil
}

func (c *lifecycleContext) orderHasFinalTotal(orderID string, total, coins int) error {
	o, err := c.coord.GetOrder(context.Background(), orderID)
	if err != nil {
		return err
	}
	if !o.FinalTotal.Equal(decimal.NewFromInt(int64(total))) {
		return fmt.Errorf("expected final total %d, got %s", total, o.FinalTotal)
	}
	if o.CoinsRedeemed != int64(coins) {
		return fmt.Errorf("expected %d coins redeemed, got %d", coins, o.CoinsRedeemed)
	}
	return nil
}

func (c *lifecycleContext) orderIsStill(orderID, status string) error {
	st, err := orders.ParseStatus(status)
	if err != nil {
		return err
	}
	o, err := c.coord.GetOrder(context.Background(), orderID)
	if err != nil {
		return err
	}
	if o.Status != st {
		return fmt.Errorf("expected status %s, got %s", st, o.Status)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &lifecycleContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		return ctx, tc.reset()
	})

	// Given steps
	ctx.Step(`^account "([^"]*)" has (\d+) coins and a total spend of (\d+)$`, tc.accountHasCoinsAndSpend)
	ctx.Step(`^order "([^"]*)" for account "([^"]*)" totalling (\d+) is "([^"]*)"$`, tc.orderInStatus)

	// When steps
	ctx.Step(`^order "([^"]*)" is moved to "([^"]*)"$`, tc.orderIsMovedTo)
	ctx.Step(`^account "([^"]*)" places order "([^"]*)" of (\d+) redeeming coins$`, tc.accountPlacesOrderRedeemingCoins)
	ctx.Step(`^account "([^"]*)" redeems (\d+) coins for a coupon$`, tc.accountRedeemsCoins)

	// Then steps
	ctx.Step(`^the (?:transition|redemption) succeeds$`, tc.succeeds)
	ctx.Step(`^the (?:transition|redemption) fails with "([^"]*)"$`, tc.failsWith)
	ctx.Step(`^account "([^"]*)" has (\d+) coins$`, tc.accountHasCoins)
	ctx.Step(`^account "([^"]*)" is in tier "([^"]*)"$`, tc.accountIsInTier)
	ctx.Step(`^order "([^"]*)" has (\d+) ledger entries$`, tc.orderHasLedgerEntries)
	ctx.Step(`^order "([^"]*)" has a final total of (\d+) with (\d+) coins redeemed$`, tc.orderHasFinalTotal)
	ctx.Step(`^order "([^"]*)" is still "([^"]*)"$`, tc.orderIsStill)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"order_lifecycle.feature"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
