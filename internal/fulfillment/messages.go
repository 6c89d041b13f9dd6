package fulfillment

import (
	"fmt"

	"github.com/ariefcatur/go-order-ledger/internal/notify"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
)

func shortID(id string) string {
	if len(id) > 8 {
		return "#" + id[:8]
	}
	return "#" + id
}

func orderLink(id string) string { return "/orders/" + id }

func statusNotification(res TransitionResult) notify.Notification {
	o := res.Order
	n := notify.Notification{AccountID: o.AccountID, LinkHint: orderLink(o.ID)}
	switch res.Change.To {
	case orders.StatusReceived:
		n.Title = "Order confirmed"
		n.Body = fmt.Sprintf("Order %s is being prepared. Share code %s with the rider on delivery.", shortID(o.ID), o.DeliveryVerificationCode)
	case orders.StatusDelivered:
		n.Title = "Order delivered"
		n.Body = fmt.Sprintf("Order %s has been delivered. Enjoy your meal!", shortID(o.ID))
		if res.Change.CoinsAwarded > 0 {
			n.Body += fmt.Sprintf(" You earned %d coins.", res.Change.CoinsAwarded)
			n.LinkHint = "/wallet"
		}
	case orders.StatusCancelled:
		n.Title = "Order cancelled"
		n.Body = fmt.Sprintf("Order %s was cancelled.", shortID(o.ID))
		if res.Change.CoinsRefunded > 0 {
			n.Body += fmt.Sprintf(" %d coins are back in your wallet.", res.Change.CoinsRefunded)
		}
	default:
		n.Title = "Order updated"
		n.Body = fmt.Sprintf("Order %s is now %s.", shortID(o.ID), res.Change.To)
	}
	return n
}
