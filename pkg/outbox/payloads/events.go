package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderCheckedOutEvent signals a cart was converted into a draft order.
type OrderCheckedOutEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	UserID      uuid.UUID       `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ItemCount   int             `json:"item_count"`
}

// OrderPaidEvent is emitted exactly once when a charge is confirmed.
type OrderPaidEvent struct {
	OrderID          uuid.UUID       `json:"order_id"`
	UserID           uuid.UUID       `json:"user_id"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	AttemptSeq       int             `json:"attempt_seq"`
	GatewayReference string          `json:"gateway_reference"`
	PaidAt           time.Time       `json:"paid_at"`
}

// OrderPaymentFailedEvent reports a declined attempt and the remaining budget.
type OrderPaymentFailedEvent struct {
	OrderID           uuid.UUID `json:"order_id"`
	UserID            uuid.UUID `json:"user_id"`
	AttemptSeq        int       `json:"attempt_seq"`
	Reason            string    `json:"reason,omitempty"`
	AttemptsRemaining int       `json:"attempts_remaining"`
}

// OrderCanceledEvent is emitted when an order reaches the canceled state,
// whether by the user or by retry budget exhaustion.
type OrderCanceledEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	UserID     uuid.UUID `json:"user_id"`
	CanceledAt time.Time `json:"canceled_at"`
	Reason     string    `json:"reason,omitempty"`
}

// OrderFrozenEvent flags an order held for manual review.
type OrderFrozenEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	UserID  uuid.UUID `json:"user_id"`
	Reason  string    `json:"reason"`
}

// UserRegisteredEvent carries the activation token for the welcome email.
type UserRegisteredEvent struct {
	UserID          uuid.UUID `json:"user_id"`
	Email           string    `json:"email"`
	ActivationToken string    `json:"activation_token"`
}

// UserActivatedEvent confirms the account is usable.
type UserActivatedEvent struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}
