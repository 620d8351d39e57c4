package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/vadimchubok/online-cinema-backend/internal/orders"
	"github.com/vadimchubok/online-cinema-backend/pkg/enums"
	"github.com/vadimchubok/online-cinema-backend/pkg/logger"
)

type stubOrders struct {
	callbacks []orders.CallbackInput
}

func (s *stubOrders) HandlePaymentCallback(_ context.Context, input orders.CallbackInput) error {
	s.callbacks = append(s.callbacks, input)
	return nil
}

func testService(t *testing.T, handler callbackHandler) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Orders: handler,
		Logger: logger.New(logger.Options{ServiceName: "webhook-test"}),
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return service
}

func sessionEvent(t *testing.T, eventType stripe.EventType, session *stripe.CheckoutSession) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(session)
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	return &stripe.Event{
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestHandleEventCompletedPaidSessionSettlesOrder(t *testing.T) {
	orderID := uuid.New()
	handler := &stubOrders{}
	service := testService(t, handler)

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, &stripe.CheckoutSession{
		ID:            "cs_test_123",
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		Metadata:      map[string]string{"order_id": orderID.String()},
	})

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(handler.callbacks) != 1 {
		t.Fatalf("expected one callback, got %d", len(handler.callbacks))
	}
	got := handler.callbacks[0]
	if got.OrderID != orderID || got.GatewayReference != "cs_test_123" {
		t.Fatalf("unexpected callback identity: %+v", got)
	}
	if got.Status != enums.PaymentAttemptStatusSucceeded {
		t.Fatalf("expected succeeded, got %s", got.Status)
	}
}

func TestHandleEventCompletedUnpaidSessionWaitsForAsyncOutcome(t *testing.T) {
	handler := &stubOrders{}
	service := testService(t, handler)

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, &stripe.CheckoutSession{
		ID:            "cs_test_async",
		PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
		Metadata:      map[string]string{"order_id": uuid.NewString()},
	})

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(handler.callbacks) != 0 {
		t.Fatalf("expected no callback for unpaid completion")
	}
}

func TestHandleEventExpiredSessionFailsAttempt(t *testing.T) {
	handler := &stubOrders{}
	service := testService(t, handler)

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionExpired, &stripe.CheckoutSession{
		ID:       "cs_test_exp",
		Metadata: map[string]string{"order_id": uuid.NewString()},
	})

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(handler.callbacks) != 1 {
		t.Fatalf("expected one callback")
	}
	got := handler.callbacks[0]
	if got.Status != enums.PaymentAttemptStatusFailed || got.Reason != "checkout session expired" {
		t.Fatalf("unexpected callback: %+v", got)
	}
}

func TestHandleEventIgnoresUnrelatedTypes(t *testing.T) {
	handler := &stubOrders{}
	service := testService(t, handler)

	event := &stripe.Event{
		Type: stripe.EventTypeCustomerCreated,
		Data: &stripe.EventData{Raw: json.RawMessage(`{}`)},
	}

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(handler.callbacks) != 0 {
		t.Fatalf("expected no callbacks")
	}
}

func TestHandleEventMissingOrderMetadataIsAcked(t *testing.T) {
	handler := &stubOrders{}
	service := testService(t, handler)

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, &stripe.CheckoutSession{
		ID:            "cs_test_nometa",
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
	})

	if err := service.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(handler.callbacks) != 0 {
		t.Fatalf("expected no callbacks without order metadata")
	}
}
