package enums

import "fmt"

// OrderStatus tracks an order through the payment lifecycle.
type OrderStatus string

const (
	OrderStatusDraft           OrderStatus = "draft"
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	OrderStatusPaid            OrderStatus = "paid"
	OrderStatusPaymentFailed   OrderStatus = "payment_failed"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusFrozen          OrderStatus = "frozen"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusDraft,
	OrderStatusAwaitingPayment,
	OrderStatusPaid,
	OrderStatusPaymentFailed,
	OrderStatusCanceled,
	OrderStatusFrozen,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is permitted.
// Frozen orders are terminal to the engine; only manual review moves them.
func (o OrderStatus) IsTerminal() bool {
	switch o {
	case OrderStatusPaid, OrderStatusCanceled, OrderStatusFrozen:
		return true
	default:
		return false
	}
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
