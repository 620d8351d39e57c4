package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vadimchubok/online-cinema-backend/pkg/enums"
)

// ErrGatewayTimeout signals the charge request may or may not have reached the
// gateway. Callers must record the attempt as unknown, never as failed.
var ErrGatewayTimeout = errors.New("payment gateway timed out")

// ChargeRequest carries everything needed to open a charge for an order attempt.
type ChargeRequest struct {
	OrderID        uuid.UUID
	UserID         uuid.UUID
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
	Description    string
}

// ChargeResult is the gateway's answer to a charge creation.
type ChargeResult struct {
	GatewayReference string
	RedirectURL      string
	Status           enums.PaymentAttemptStatus
}

// ChargeState is the gateway-side view of a previously created charge,
// used when reconciling attempts whose outcome was never observed.
type ChargeState struct {
	GatewayReference string
	Status           enums.PaymentAttemptStatus
	Reason           string
}

// Gateway abstracts the payment provider. Creating a charge with the same
// idempotency key twice must never produce a second charge.
type Gateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	LookupCharge(ctx context.Context, gatewayReference string) (*ChargeState, error)
	// CancelCharge closes an open charge so the customer can no longer
	// complete it. Charges that already settled cannot be canceled.
	CancelCharge(ctx context.Context, gatewayReference string) error
}
