package payments

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	"github.com/vadimchubok/online-cinema-backend/pkg/config"
	"github.com/vadimchubok/online-cinema-backend/pkg/enums"
	pkgstripe "github.com/vadimchubok/online-cinema-backend/pkg/stripe"
)

const defaultCurrency = "usd"

// StripeGateway implements Gateway on top of Stripe Checkout Sessions.
type StripeGateway struct {
	client     *pkgstripe.Client
	successURL string
	cancelURL  string
	timeout    func(error) bool
}

// NewStripeGateway wires the shared Stripe client into the gateway contract.
func NewStripeGateway(client *pkgstripe.Client, cfg config.StripeConfig) (*StripeGateway, error) {
	if client == nil {
		return nil, fmt.Errorf("stripe client is required")
	}
	if strings.TrimSpace(cfg.SuccessURL) == "" || strings.TrimSpace(cfg.CancelURL) == "" {
		return nil, fmt.Errorf("stripe success and cancel urls are required")
	}
	return &StripeGateway{
		client:     client,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		timeout:    isTimeout,
	}, nil
}

// CreateCharge opens a checkout session for the order. The idempotency key is
// forwarded to Stripe, so a retried call returns the original session instead
// of opening a second charge.
func (g *StripeGateway) CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	if req.IdempotencyKey == "" {
		return nil, fmt.Errorf("idempotency key is required")
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("charge amount must be positive")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(g.successURL),
		CancelURL:  stripe.String(g.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(amountToMinorUnits(req)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
			},
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata("order_id", req.OrderID.String())
	params.AddMetadata("user_id", req.UserID.String())

	sess, err := session.New(params)
	if err != nil {
		if g.timeout(err) {
			return nil, ErrGatewayTimeout
		}
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	return &ChargeResult{
		GatewayReference: sess.ID,
		RedirectURL:      sess.URL,
		Status:           enums.PaymentAttemptStatusPending,
	}, nil
}

// LookupCharge fetches the session state for reconciliation.
func (g *StripeGateway) LookupCharge(ctx context.Context, gatewayReference string) (*ChargeState, error) {
	if strings.TrimSpace(gatewayReference) == "" {
		return nil, fmt.Errorf("gateway reference is required")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := session.Get(gatewayReference, params)
	if err != nil {
		if g.timeout(err) {
			return nil, ErrGatewayTimeout
		}
		return nil, fmt.Errorf("fetch checkout session: %w", err)
	}

	state := &ChargeState{GatewayReference: sess.ID}
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		state.Status = enums.PaymentAttemptStatusSucceeded
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		state.Status = enums.PaymentAttemptStatusFailed
		state.Reason = "checkout session expired"
	default:
		state.Status = enums.PaymentAttemptStatusPending
	}
	return state, nil
}

// CancelCharge expires an open checkout session so its redirect URL stops
// accepting payment. Sessions that already completed make Stripe reject the
// expire call, which callers must treat as "do not cancel locally".
func (g *StripeGateway) CancelCharge(ctx context.Context, gatewayReference string) error {
	if strings.TrimSpace(gatewayReference) == "" {
		return fmt.Errorf("gateway reference is required")
	}
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx

	if _, err := session.Expire(gatewayReference, params); err != nil {
		if g.timeout(err) {
			return ErrGatewayTimeout
		}
		return fmt.Errorf("expire checkout session: %w", err)
	}
	return nil
}

func amountToMinorUnits(req ChargeRequest) int64 {
	return req.Amount.Shift(2).Round(0).IntPart()
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
