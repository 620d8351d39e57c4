package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vadimchubok/online-cinema-backend/pkg/db/models"
	"github.com/vadimchubok/online-cinema-backend/pkg/enums"
)

// CheckoutInput identifies whose cart to convert.
type CheckoutInput struct {
	UserID uuid.UUID
}

// CheckoutResult returns the draft order produced from the cart.
type CheckoutResult struct {
	Order models.Order
}

// ChargeInput starts a payment attempt for a draft or retryable order.
type ChargeInput struct {
	OrderID uuid.UUID
	UserID  uuid.UUID
}

// ChargeOutput carries what the client needs to complete payment.
type ChargeOutput struct {
	OrderID     uuid.UUID
	AttemptSeq  int
	RedirectURL string
	Status      enums.PaymentAttemptStatus
}

// CallbackInput is the normalized gateway notification.
type CallbackInput struct {
	GatewayReference string
	OrderID          uuid.UUID
	Status           enums.PaymentAttemptStatus
	Reason           string
}

// CancelInput identifies the order a user wants to abandon.
type CancelInput struct {
	OrderID uuid.UUID
	UserID  uuid.UUID
	Reason  string
}

// OrderView is the API-facing order shape.
type OrderView struct {
	ID           uuid.UUID         `json:"id"`
	UserID       uuid.UUID         `json:"user_id"`
	Status       enums.OrderStatus `json:"status"`
	TotalAmount  decimal.Decimal   `json:"total_amount"`
	AttemptCount int               `json:"attempt_count"`
	Items        []OrderItemView   `json:"items"`
	CreatedAt    time.Time         `json:"created_at"`
	PaidAt       *time.Time        `json:"paid_at,omitempty"`
	CanceledAt   *time.Time        `json:"canceled_at,omitempty"`
}

// OrderItemView is the API-facing order line shape.
type OrderItemView struct {
	MovieID      uuid.UUID       `json:"movie_id"`
	MovieName    string          `json:"movie_name"`
	Quantity     int             `json:"quantity"`
	PriceAtOrder decimal.Decimal `json:"price_at_order"`
}

// OrderList is a cursor page of orders.
type OrderList struct {
	Orders     []OrderView `json:"orders"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// NewOrderView flattens a model into the API shape.
func NewOrderView(order models.Order) OrderView {
	view := OrderView{
		ID:           order.ID,
		UserID:       order.UserID,
		Status:       order.Status,
		TotalAmount:  order.TotalAmount,
		AttemptCount: order.AttemptCount,
		CreatedAt:    order.CreatedAt,
		PaidAt:       order.PaidAt,
		CanceledAt:   order.CanceledAt,
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, OrderItemView{
			MovieID:      item.MovieID,
			MovieName:    item.MovieName,
			Quantity:     item.Quantity,
			PriceAtOrder: item.PriceAtOrder,
		})
	}
	return view
}
