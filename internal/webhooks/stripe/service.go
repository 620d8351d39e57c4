package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/vadimchubok/online-cinema-backend/internal/orders"
	"github.com/vadimchubok/online-cinema-backend/pkg/enums"
	pkgerrors "github.com/vadimchubok/online-cinema-backend/pkg/errors"
	"github.com/vadimchubok/online-cinema-backend/pkg/logger"
)

type callbackHandler interface {
	HandlePaymentCallback(ctx context.Context, input orders.CallbackInput) error
}

// ServiceParams wires the webhook service dependencies.
type ServiceParams struct {
	Orders callbackHandler
	Logger *logger.Logger
}

// Service translates Stripe Checkout Session events into payment callbacks.
type Service struct {
	orders callbackHandler
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		orders: params.Orders,
		logg:   params.Logger,
	}, nil
}

// HandleEvent dispatches a verified Stripe event. Unhandled event types are
// acked without side effects so Stripe stops retrying them.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
		}
		return s.handleCheckoutSession(ctx, event.Type, &session)
	default:
		return nil
	}
}

func (s *Service) handleCheckoutSession(ctx context.Context, eventType stripe.EventType, session *stripe.CheckoutSession) error {
	input, ok := s.callbackFor(ctx, eventType, session)
	if !ok {
		return nil
	}
	return s.orders.HandlePaymentCallback(ctx, input)
}

// callbackFor maps the Stripe event to a normalized callback. The second
// return value is false when the event carries no settleable outcome yet.
func (s *Service) callbackFor(ctx context.Context, eventType stripe.EventType, session *stripe.CheckoutSession) (orders.CallbackInput, bool) {
	orderID, err := orderIDFromSession(session)
	if err != nil {
		logCtx := s.logg.WithField(ctx, "session_id", session.ID)
		s.logg.Error(logCtx, "checkout session missing order metadata", err)
		return orders.CallbackInput{}, false
	}

	input := orders.CallbackInput{
		GatewayReference: session.ID,
		OrderID:          orderID,
	}

	switch eventType {
	case stripe.EventTypeCheckoutSessionCompleted:
		// Async methods complete the session before the money moves; wait
		// for the async_payment events in that case.
		if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return orders.CallbackInput{}, false
		}
		input.Status = enums.PaymentAttemptStatusSucceeded
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		input.Status = enums.PaymentAttemptStatusSucceeded
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		input.Status = enums.PaymentAttemptStatusFailed
		input.Reason = "async payment failed"
	case stripe.EventTypeCheckoutSessionExpired:
		input.Status = enums.PaymentAttemptStatusFailed
		input.Reason = "checkout session expired"
	default:
		return orders.CallbackInput{}, false
	}

	return input, true
}

func orderIDFromSession(session *stripe.CheckoutSession) (uuid.UUID, error) {
	raw, ok := session.Metadata["order_id"]
	if !ok || raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id metadata missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order_id metadata")
	}
	return id, nil
}
