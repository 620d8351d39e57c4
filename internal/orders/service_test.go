package orders

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vadimchubok/online-cinema-backend/internal/payments"
	"github.com/vadimchubok/online-cinema-backend/pkg/config"
	"github.com/vadimchubok/online-cinema-backend/pkg/db/models"
	"github.com/vadimchubok/online-cinema-backend/pkg/enums"
	pkgerrors "github.com/vadimchubok/online-cinema-backend/pkg/errors"
	"github.com/vadimchubok/online-cinema-backend/pkg/logger"
	"github.com/vadimchubok/online-cinema-backend/pkg/metrics"
	"github.com/vadimchubok/online-cinema-backend/pkg/outbox"
	"github.com/vadimchubok/online-cinema-backend/pkg/pagination"
)

type memoryRepo struct {
	orders        map[uuid.UUID]*models.Order
	attempts      map[uuid.UUID]*models.PaymentAttempt
	orderItems    []models.OrderItem
	owned         map[uuid.UUID]bool
	pendingElse   map[uuid.UUID]bool
	staleAttempts []models.PaymentAttempt
	onLockOrder   func(uuid.UUID)
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		orders:      make(map[uuid.UUID]*models.Order),
		attempts:    make(map[uuid.UUID]*models.PaymentAttempt),
		owned:       make(map[uuid.UUID]bool),
		pendingElse: make(map[uuid.UUID]bool),
	}
}

func (m *memoryRepo) WithTx(*gorm.DB) Repository { return m }

func (m *memoryRepo) CreateOrder(_ context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.CreatedAt = time.Now()
	stored := *order
	m.orders[order.ID] = &stored
	return order, nil
}

func (m *memoryRepo) CreateOrderItems(_ context.Context, items []models.OrderItem) error {
	m.orderItems = append(m.orderItems, items...)
	return nil
}

func (m *memoryRepo) CreateAttempt(_ context.Context, attempt *models.PaymentAttempt) (*models.PaymentAttempt, error) {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	attempt.CreatedAt = time.Now()
	stored := *attempt
	m.attempts[attempt.ID] = &stored
	return attempt, nil
}

func (m *memoryRepo) FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if m.onLockOrder != nil {
		m.onLockOrder(id)
	}
	return m.FindOrderByID(ctx, id)
}

func (m *memoryRepo) FindOrderByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := m.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *order
	return &clone, nil
}

func (m *memoryRepo) ListUserOrders(_ context.Context, userID uuid.UUID, _ pagination.Params) (*OrderList, error) {
	list := &OrderList{}
	for _, order := range m.orders {
		if order.UserID == userID {
			list.Orders = append(list.Orders, NewOrderView(*order))
		}
	}
	return list, nil
}

func (m *memoryRepo) ListAllOrders(_ context.Context, _ pagination.Params) (*OrderList, error) {
	list := &OrderList{}
	for _, order := range m.orders {
		list.Orders = append(list.Orders, NewOrderView(*order))
	}
	return list, nil
}

func (m *memoryRepo) FindAttemptByGatewayRef(_ context.Context, ref string) (*models.PaymentAttempt, error) {
	for _, attempt := range m.attempts {
		if attempt.GatewayReference != nil && *attempt.GatewayReference == ref {
			clone := *attempt
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryRepo) FindLatestAttempt(_ context.Context, orderID uuid.UUID) (*models.PaymentAttempt, error) {
	var rows []*models.PaymentAttempt
	for _, attempt := range m.attempts {
		if attempt.OrderID == orderID {
			rows = append(rows, attempt)
		}
	}
	if len(rows) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Seq > rows[j].Seq })
	clone := *rows[0]
	return &clone, nil
}

func (m *memoryRepo) FindUnresolvedAttemptsBefore(context.Context, time.Time, int) ([]models.PaymentAttempt, error) {
	return m.staleAttempts, nil
}

func (m *memoryRepo) UpdateOrder(_ context.Context, id uuid.UUID, updates map[string]any) error {
	order, ok := m.orders[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for column, value := range updates {
		switch column {
		case "status":
			order.Status = value.(enums.OrderStatus)
		case "attempt_count":
			order.AttemptCount = value.(int)
		case "frozen_reason":
			reason := value.(string)
			order.FrozenReason = &reason
		case "paid_at":
			at := value.(time.Time)
			order.PaidAt = &at
		case "canceled_at":
			at := value.(time.Time)
			order.CanceledAt = &at
		}
	}
	return nil
}

func (m *memoryRepo) UpdateAttempt(_ context.Context, id uuid.UUID, updates map[string]any) error {
	attempt, ok := m.attempts[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for column, value := range updates {
		switch column {
		case "status":
			attempt.Status = value.(enums.PaymentAttemptStatus)
		case "failure_reason":
			reason := value.(string)
			attempt.FailureReason = &reason
		case "gateway_reference":
			ref := value.(string)
			attempt.GatewayReference = &ref
		case "resolved_at":
			at := value.(time.Time)
			attempt.ResolvedAt = &at
		}
	}
	return nil
}

func (m *memoryRepo) UserOwnsMovie(_ context.Context, _, movieID uuid.UUID) (bool, error) {
	return m.owned[movieID], nil
}

func (m *memoryRepo) MoviePendingInOrder(_ context.Context, _, movieID uuid.UUID) (bool, error) {
	return m.pendingElse[movieID], nil
}

type memoryCart struct {
	items   []models.CartItem
	cleared bool
}

func (m *memoryCart) ListForUpdate(context.Context, *gorm.DB, uuid.UUID) ([]models.CartItem, error) {
	return m.items, nil
}

func (m *memoryCart) DeleteForUser(context.Context, *gorm.DB, uuid.UUID) error {
	m.cleared = true
	m.items = nil
	return nil
}

type catalogStub struct {
	movies []models.Movie
}

func (c *catalogStub) FindByIDsForUpdate(context.Context, *gorm.DB, []uuid.UUID) ([]models.Movie, error) {
	return c.movies, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type outboxRecorder struct {
	events []outbox.DomainEvent
}

func (r *outboxRecorder) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *outboxRecorder) EmitIfNotExists(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *outboxRecorder) eventTypes() []enums.OutboxEventType {
	types := make([]enums.OutboxEventType, 0, len(r.events))
	for _, event := range r.events {
		types = append(types, event.EventType)
	}
	return types
}

type gatewayStub struct {
	createFn    func(payments.ChargeRequest) (*payments.ChargeResult, error)
	lookupFn    func(string) (*payments.ChargeState, error)
	cancelFn    func(string) error
	createCalls []payments.ChargeRequest
	cancelCalls []string
}

func (g *gatewayStub) CreateCharge(_ context.Context, req payments.ChargeRequest) (*payments.ChargeResult, error) {
	g.createCalls = append(g.createCalls, req)
	if g.createFn == nil {
		return &payments.ChargeResult{GatewayReference: "ch_" + uuid.NewString()}, nil
	}
	return g.createFn(req)
}

func (g *gatewayStub) LookupCharge(_ context.Context, ref string) (*payments.ChargeState, error) {
	if g.lookupFn == nil {
		return nil, errors.New("unexpected lookup")
	}
	return g.lookupFn(ref)
}

func (g *gatewayStub) CancelCharge(_ context.Context, ref string) error {
	g.cancelCalls = append(g.cancelCalls, ref)
	if g.cancelFn == nil {
		return nil
	}
	return g.cancelFn(ref)
}

const testMaxAttempts = 3

func newOrderService(t *testing.T, repo *memoryRepo, cart *memoryCart, catalog *catalogStub, gateway *gatewayStub) (Service, *outboxRecorder) {
	t.Helper()
	recorder := &outboxRecorder{}
	svc, err := NewService(ServiceParams{
		Repo:    repo,
		Cart:    cart,
		Movies:  catalog,
		Tx:      passthroughTx{},
		Outbox:  recorder,
		Gateway: gateway,
		Payments: config.PaymentsConfig{
			MaxAttempts:   testMaxAttempts,
			ChargeTimeout: time.Second,
			StaleAfter:    30 * time.Minute,
		},
		Logger:  logger.New(logger.Options{ServiceName: "orders-test"}),
		Metrics: metrics.NewPaymentMetrics(nil),
	})
	require.NoError(t, err)
	return svc, recorder
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded, "expected a coded error, got %v", err)
	assert.Equal(t, code, coded.Code())
}

func seedMovie(price string) models.Movie {
	return models.Movie{
		ID:          uuid.New(),
		Name:        "Stalker",
		Year:        1979,
		Price:       decimal.RequireFromString(price),
		IsAvailable: true,
	}
}

func seedOrder(repo *memoryRepo, userID uuid.UUID, status enums.OrderStatus, attemptCount int) *models.Order {
	order := &models.Order{
		ID:           uuid.New(),
		UserID:       userID,
		Status:       status,
		TotalAmount:  decimal.RequireFromString("9.99"),
		AttemptCount: attemptCount,
	}
	repo.orders[order.ID] = order
	return order
}

func seedAttempt(repo *memoryRepo, orderID uuid.UUID, seq int, status enums.PaymentAttemptStatus, ref string) *models.PaymentAttempt {
	attempt := &models.PaymentAttempt{
		ID:             uuid.New(),
		OrderID:        orderID,
		Seq:            seq,
		Status:         status,
		Amount:         decimal.RequireFromString("9.99"),
		IdempotencyKey: AttemptIdempotencyKey(orderID, seq),
	}
	if ref != "" {
		attempt.GatewayReference = &ref
	}
	repo.attempts[attempt.ID] = attempt
	return attempt
}

func countSucceededAttempts(repo *memoryRepo, orderID uuid.UUID) int {
	count := 0
	for _, attempt := range repo.attempts {
		if attempt.OrderID == orderID && attempt.Status == enums.PaymentAttemptStatusSucceeded {
			count++
		}
	}
	return count
}

func TestCheckoutCreatesDraftOrderAndClearsCart(t *testing.T) {
	userID := uuid.New()
	first := seedMovie("4.50")
	second := seedMovie("5.25")
	second.Name = "Solaris"
	second.Year = 1972

	repo := newMemoryRepo()
	cart := &memoryCart{items: []models.CartItem{
		{UserID: userID, MovieID: first.ID, Quantity: 1},
		{UserID: userID, MovieID: second.ID, Quantity: 2},
	}}
	catalog := &catalogStub{movies: []models.Movie{first, second}}
	svc, recorder := newOrderService(t, repo, cart, catalog, &gatewayStub{})

	result, err := svc.Checkout(context.Background(), CheckoutInput{UserID: userID})
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusDraft, result.Order.Status)
	assert.True(t, result.Order.TotalAmount.Equal(decimal.RequireFromString("15.00")),
		"total %s", result.Order.TotalAmount)
	assert.Len(t, result.Order.Items, 2)
	assert.True(t, cart.cleared)
	require.Len(t, recorder.events, 1)
	assert.Equal(t, enums.OutboxEventOrderCheckedOut, recorder.events[0].EventType)
	assert.Equal(t, result.Order.ID, recorder.events[0].AggregateID)
}

func TestCheckoutSnapshotsPriceAtOrderTime(t *testing.T) {
	userID := uuid.New()
	movie := seedMovie("7.00")

	repo := newMemoryRepo()
	cart := &memoryCart{items: []models.CartItem{{UserID: userID, MovieID: movie.ID, Quantity: 1}}}
	svc, _ := newOrderService(t, repo, cart, &catalogStub{movies: []models.Movie{movie}}, &gatewayStub{})

	result, err := svc.Checkout(context.Background(), CheckoutInput{UserID: userID})
	require.NoError(t, err)
	require.Len(t, result.Order.Items, 1)
	assert.True(t, result.Order.Items[0].PriceAtOrder.Equal(movie.Price))
	assert.Equal(t, movie.Name, result.Order.Items[0].MovieName)
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	svc, recorder := newOrderService(t, newMemoryRepo(), &memoryCart{}, &catalogStub{}, &gatewayStub{})

	_, err := svc.Checkout(context.Background(), CheckoutInput{UserID: uuid.New()})
	requireCode(t, err, pkgerrors.CodeValidation)
	assert.Empty(t, recorder.events)
}

func TestCheckoutRejectsUnavailableMovie(t *testing.T) {
	userID := uuid.New()
	movie := seedMovie("3.00")
	movie.IsAvailable = false

	cart := &memoryCart{items: []models.CartItem{{UserID: userID, MovieID: movie.ID, Quantity: 1}}}
	svc, _ := newOrderService(t, newMemoryRepo(), cart, &catalogStub{movies: []models.Movie{movie}}, &gatewayStub{})

	_, err := svc.Checkout(context.Background(), CheckoutInput{UserID: userID})
	requireCode(t, err, pkgerrors.CodeAvailability)
	assert.False(t, cart.cleared)
}

func TestCheckoutRejectsAlreadyPurchasedMovie(t *testing.T) {
	userID := uuid.New()
	movie := seedMovie("3.00")

	repo := newMemoryRepo()
	repo.owned[movie.ID] = true
	cart := &memoryCart{items: []models.CartItem{{UserID: userID, MovieID: movie.ID, Quantity: 1}}}
	svc, _ := newOrderService(t, repo, cart, &catalogStub{movies: []models.Movie{movie}}, &gatewayStub{})

	_, err := svc.Checkout(context.Background(), CheckoutInput{UserID: userID})
	requireCode(t, err, pkgerrors.CodeConflict)
}

func TestCheckoutRejectsMovieAlreadyInOpenOrder(t *testing.T) {
	userID := uuid.New()
	movie := seedMovie("3.00")

	repo := newMemoryRepo()
	repo.pendingElse[movie.ID] = true
	cart := &memoryCart{items: []models.CartItem{{UserID: userID, MovieID: movie.ID, Quantity: 1}}}
	svc, _ := newOrderService(t, repo, cart, &catalogStub{movies: []models.Movie{movie}}, &gatewayStub{})

	_, err := svc.Checkout(context.Background(), CheckoutInput{UserID: userID})
	requireCode(t, err, pkgerrors.CodeConflict)
}

func TestInitiateChargeRecordsAttemptBeforeGatewayCall(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusDraft, 0)

	gateway := &gatewayStub{createFn: func(req payments.ChargeRequest) (*payments.ChargeResult, error) {
		return &payments.ChargeResult{GatewayReference: "ch_1", RedirectURL: "https://pay.example/ch_1"}, nil
	}}
	svc, _ := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, gateway)

	output, err := svc.InitiateCharge(context.Background(), ChargeInput{OrderID: order.ID, UserID: userID})
	require.NoError(t, err)

	assert.Equal(t, 1, output.AttemptSeq)
	assert.Equal(t, "https://pay.example/ch_1", output.RedirectURL)
	assert.Equal(t, enums.PaymentAttemptStatusPending, output.Status)

	stored, err := repo.FindLatestAttempt(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, AttemptIdempotencyKey(order.ID, 1), stored.IdempotencyKey)
	require.NotNil(t, stored.GatewayReference)
	assert.Equal(t, "ch_1", *stored.GatewayReference)

	updated, err := repo.FindOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusAwaitingPayment, updated.Status)
	assert.Equal(t, 1, updated.AttemptCount)

	require.Len(t, gateway.createCalls, 1)
	assert.Equal(t, AttemptIdempotencyKey(order.ID, 1), gateway.createCalls[0].IdempotencyKey)
}

func TestInitiateChargeRejectsForeignOrder(t *testing.T) {
	repo := newMemoryRepo()
	order := seedOrder(repo, uuid.New(), enums.OrderStatusDraft, 0)
	svc, _ := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, &gatewayStub{})

	_, err := svc.InitiateCharge(context.Background(), ChargeInput{OrderID: order.ID, UserID: uuid.New()})
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestInitiateChargeRejectsInFlightAttempt(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusAwaitingPayment, 1)
	svc, _ := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, &gatewayStub{})

	_, err := svc.InitiateCharge(context.Background(), ChargeInput{OrderID: order.ID, UserID: userID})
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestInitiateChargeRejectsExhaustedBudget(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusPaymentFailed, testMaxAttempts)
	gateway := &gatewayStub{}
	svc, _ := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, gateway)

	_, err := svc.InitiateCharge(context.Background(), ChargeInput{OrderID: order.ID, UserID: userID})
	requireCode(t, err, pkgerrors.CodeStateConflict)
	assert.Empty(t, gateway.createCalls)
}

func TestInitiateChargeTimeoutLeavesAttemptUnknown(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusDraft, 0)

	gateway := &gatewayStub{createFn: func(payments.ChargeRequest) (*payments.ChargeResult, error) {
		return nil, payments.ErrGatewayTimeout
	}}
	svc, _ := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, gateway)

	_, err := svc.InitiateCharge(context.Background(), ChargeInput{OrderID: order.ID, UserID: userID})
	requireCode(t, err, pkgerrors.CodeGatewayTimeout)

	attempt, findErr := repo.FindLatestAttempt(context.Background(), order.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.PaymentAttemptStatusUnknown, attempt.Status)
	assert.Nil(t, attempt.GatewayReference)

	// The order stays awaiting; only reconciliation may settle the attempt.
	updated, findErr := repo.FindOrderByID(context.Background(), order.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.OrderStatusAwaitingPayment, updated.Status)
}

func TestInitiateChargeDeclineMarksPaymentFailed(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusDraft, 0)

	gateway := &gatewayStub{createFn: func(payments.ChargeRequest) (*payments.ChargeResult, error) {
		return nil, errors.New("card declined")
	}}
	svc, recorder := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, gateway)

	_, err := svc.InitiateCharge(context.Background(), ChargeInput{OrderID: order.ID, UserID: userID})
	requireCode(t, err, pkgerrors.CodeDependency)

	attempt, findErr := repo.FindLatestAttempt(context.Background(), order.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.PaymentAttemptStatusFailed, attempt.Status)
	require.NotNil(t, attempt.FailureReason)
	assert.Equal(t, "card declined", *attempt.FailureReason)

	updated, findErr := repo.FindOrderByID(context.Background(), order.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.OrderStatusPaymentFailed, updated.Status)
	assert.Contains(t, recorder.eventTypes(), enums.OutboxEventOrderPaymentFailed)
}

func TestCallbackSuccessMarksOrderPaid(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusAwaitingPayment, 1)
	seedAttempt(repo, order.ID, 1, enums.PaymentAttemptStatusPending, "ch_ok")

	svc, recorder := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, &gatewayStub{})

	err := svc.HandlePaymentCallback(context.Background(), CallbackInput{
		GatewayReference: "ch_ok",
		Status:           enums.PaymentAttemptStatusSucceeded,
	})
	require.NoError(t, err)

	updated, findErr := repo.FindOrderByID(context.Background(), order.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.OrderStatusPaid, updated.Status)
	require.NotNil(t, updated.PaidAt)

	attempt, findErr := repo.FindAttemptByGatewayRef(context.Background(), "ch_ok")
	require.NoError(t, findErr)
	assert.Equal(t, enums.PaymentAttemptStatusSucceeded, attempt.Status)
	require.NotNil(t, attempt.ResolvedAt)

	assert.Equal(t, []enums.OutboxEventType{enums.OutboxEventOrderPaid}, recorder.eventTypes())
}

func TestCallbackReplayIsAcknowledgedWithoutEffect(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusPaid, 1)
	seedAttempt(repo, order.ID, 1, enums.PaymentAttemptStatusSucceeded, "ch_ok")

	svc, recorder := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, &gatewayStub{})

	err := svc.HandlePaymentCallback(context.Background(), CallbackInput{
		GatewayReference: "ch_ok",
		Status:           enums.PaymentAttemptStatusSucceeded,
	})
	require.NoError(t, err)

	updated, findErr := repo.FindOrderByID(context.Background(), order.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.OrderStatusPaid, updated.Status)
	assert.Empty(t, recorder.events)
}

func TestCallbackSecondSuccessFreezesOrder(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusPaid, 2)
	seedAttempt(repo, order.ID, 1, enums.PaymentAttemptStatusSucceeded, "ch_first")
	seedAttempt(repo, order.ID, 2, enums.PaymentAttemptStatusUnknown, "ch_second")

	svc, recorder := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, &gatewayStub{})

	err := svc.HandlePaymentCallback(context.Background(), CallbackInput{
		GatewayReference: "ch_second",
		Status:           enums.PaymentAttemptStatusSucceeded,
	})
	require.NoError(t, err)

	updated, findErr := repo.FindOrderByID(context.Background(), order.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.OrderStatusFrozen, updated.Status)
	require.NotNil(t, updated.FrozenReason)
	assert.Equal(t, "DOUBLE_PAYMENT_DETECTED", *updated.FrozenReason)
	assert.Equal(t, []enums.OutboxEventType{enums.OutboxEventOrderFrozen}, recorder.eventTypes())

	// Only the charge that won keeps the succeeded status; the late one is
	// recorded under the double-payment marker.
	second, findErr := repo.FindAttemptByGatewayRef(context.Background(), "ch_second")
	require.NoError(t, findErr)
	assert.Equal(t, enums.PaymentAttemptStatusFailed, second.Status)
	require.NotNil(t, second.FailureReason)
	assert.Equal(t, "DOUBLE_PAYMENT_DETECTED", *second.FailureReason)
	assert.Equal(t, 1, countSucceededAttempts(repo, order.ID))
}

func TestCallbackDuplicateRaceStaysPaid(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusAwaitingPayment, 1)
	attempt := seedAttempt(repo, order.ID, 1, enums.PaymentAttemptStatusPending, "ch_dup")

	// A concurrent delivery of the same notification commits between the
	// unlocked read and the order lock. The second delivery must see the
	// settled attempt and ack without touching the order.
	repo.onLockOrder = func(uuid.UUID) {
		if attempt.Status.IsTerminal() {
			return
		}
		now := time.Now()
		attempt.Status = enums.PaymentAttemptStatusSucceeded
		attempt.ResolvedAt = &now
		repo.orders[order.ID].Status = enums.OrderStatusPaid
		repo.orders[order.ID].PaidAt = &now
	}

	svc, recorder := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, &gatewayStub{})

	err := svc.HandlePaymentCallback(context.Background(), CallbackInput{
		GatewayReference: "ch_dup",
		Status:           enums.PaymentAttemptStatusSucceeded,
	})
	require.NoError(t, err)

	updated, findErr := repo.FindOrderByID(context.Background(), order.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.OrderStatusPaid, updated.Status)
	assert.NotContains(t, recorder.eventTypes(), enums.OutboxEventOrderFrozen)
	assert.Equal(t, 1, countSucceededAttempts(repo, order.ID))
}

func TestCallbackSuccessOnFailedAttemptIsAcknowledged(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusPaymentFailed, 1)
	seedAttempt(repo, order.ID, 1, enums.PaymentAttemptStatusFailed, "ch_late")

	svc, recorder := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, &gatewayStub{})

	err := svc.HandlePaymentCallback(context.Background(), CallbackInput{
		GatewayReference: "ch_late",
		Status:           enums.PaymentAttemptStatusSucceeded,
	})
	require.NoError(t, err)

	updated, findErr := repo.FindOrderByID(context.Background(), order.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.OrderStatusPaymentFailed, updated.Status)
	assert.Empty(t, recorder.events)
}

func TestCallbackRejectsMismatchedOrder(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusAwaitingPayment, 1)
	seedAttempt(repo, order.ID, 1, enums.PaymentAttemptStatusPending, "ch_mix")

	svc, recorder := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, &gatewayStub{})

	err := svc.HandlePaymentCallback(context.Background(), CallbackInput{
		GatewayReference: "ch_mix",
		OrderID:          uuid.New(),
		Status:           enums.PaymentAttemptStatusSucceeded,
	})
	requireCode(t, err, pkgerrors.CodeValidation)
	assert.Empty(t, recorder.events)

	updated, findErr := repo.FindOrderByID(context.Background(), order.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.OrderStatusAwaitingPayment, updated.Status)
}

func TestCallbackFailureKeepsOrderRetryable(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusAwaitingPayment, 1)
	seedAttempt(repo, order.ID, 1, enums.PaymentAttemptStatusPending, "ch_bad")

	svc, recorder := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, &gatewayStub{})

	err := svc.HandlePaymentCallback(context.Background(), CallbackInput{
		GatewayReference: "ch_bad",
		Status:           enums.PaymentAttemptStatusFailed,
		Reason:           "insufficient funds",
	})
	require.NoError(t, err)

	updated, findErr := repo.FindOrderByID(context.Background(), order.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.OrderStatusPaymentFailed, updated.Status)
	assert.Equal(t, []enums.OutboxEventType{enums.OutboxEventOrderPaymentFailed}, recorder.eventTypes())
}

func TestCallbackFailureOnLastAttemptCancelsOrder(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusAwaitingPayment, testMaxAttempts)
	seedAttempt(repo, order.ID, testMaxAttempts, enums.PaymentAttemptStatusPending, "ch_last")

	svc, recorder := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, &gatewayStub{})

	err := svc.HandlePaymentCallback(context.Background(), CallbackInput{
		GatewayReference: "ch_last",
		Status:           enums.PaymentAttemptStatusFailed,
		Reason:           "card declined",
	})
	require.NoError(t, err)

	updated, findErr := repo.FindOrderByID(context.Background(), order.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.OrderStatusCanceled, updated.Status)
	require.NotNil(t, updated.CanceledAt)

	types := recorder.eventTypes()
	assert.Contains(t, types, enums.OutboxEventOrderCanceled)
	assert.Contains(t, types, enums.OutboxEventOrderPaymentFailed)
}

func TestCallbackUnknownReferenceIsAcknowledged(t *testing.T) {
	svc, recorder := newOrderService(t, newMemoryRepo(), &memoryCart{}, &catalogStub{}, &gatewayStub{})

	err := svc.HandlePaymentCallback(context.Background(), CallbackInput{
		GatewayReference: "ch_ghost",
		Status:           enums.PaymentAttemptStatusSucceeded,
	})
	require.NoError(t, err)
	assert.Empty(t, recorder.events)
}

func TestCallbackRejectsNonTerminalStatus(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusAwaitingPayment, 1)
	seedAttempt(repo, order.ID, 1, enums.PaymentAttemptStatusPending, "ch_open")

	svc, _ := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, &gatewayStub{})

	err := svc.HandlePaymentCallback(context.Background(), CallbackInput{
		GatewayReference: "ch_open",
		Status:           enums.PaymentAttemptStatusPending,
	})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestCancelDraftOrder(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusDraft, 0)

	svc, recorder := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, &gatewayStub{})

	err := svc.Cancel(context.Background(), CancelInput{OrderID: order.ID, UserID: userID, Reason: "changed my mind"})
	require.NoError(t, err)

	updated, findErr := repo.FindOrderByID(context.Background(), order.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.OrderStatusCanceled, updated.Status)
	assert.Equal(t, []enums.OutboxEventType{enums.OutboxEventOrderCanceled}, recorder.eventTypes())
}

func TestCancelIsIdempotent(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusCanceled, 0)

	svc, recorder := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, &gatewayStub{})

	err := svc.Cancel(context.Background(), CancelInput{OrderID: order.ID, UserID: userID})
	require.NoError(t, err)
	assert.Empty(t, recorder.events)
}

func TestCancelPaidOrderIsRejected(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusPaid, 1)

	svc, _ := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, &gatewayStub{})

	err := svc.Cancel(context.Background(), CancelInput{OrderID: order.ID, UserID: userID})
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestCancelAwaitingOrderClosesOpenAttempt(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusAwaitingPayment, 1)
	seedAttempt(repo, order.ID, 1, enums.PaymentAttemptStatusPending, "ch_open")

	gateway := &gatewayStub{lookupFn: func(ref string) (*payments.ChargeState, error) {
		return &payments.ChargeState{GatewayReference: ref, Status: enums.PaymentAttemptStatusPending}, nil
	}}
	svc, recorder := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, gateway)

	err := svc.Cancel(context.Background(), CancelInput{OrderID: order.ID, UserID: userID})
	require.NoError(t, err)

	updated, findErr := repo.FindOrderByID(context.Background(), order.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.OrderStatusCanceled, updated.Status)

	attempt, findErr := repo.FindAttemptByGatewayRef(context.Background(), "ch_open")
	require.NoError(t, findErr)
	assert.Equal(t, enums.PaymentAttemptStatusFailed, attempt.Status)
	assert.Equal(t, []enums.OutboxEventType{enums.OutboxEventOrderCanceled}, recorder.eventTypes())
	assert.Equal(t, []string{"ch_open"}, gateway.cancelCalls)
}

func TestCancelFailsClosedWhenSessionCannotBeExpired(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusAwaitingPayment, 1)
	seedAttempt(repo, order.ID, 1, enums.PaymentAttemptStatusPending, "ch_stuck")

	gateway := &gatewayStub{
		lookupFn: func(ref string) (*payments.ChargeState, error) {
			return &payments.ChargeState{GatewayReference: ref, Status: enums.PaymentAttemptStatusPending}, nil
		},
		cancelFn: func(string) error {
			return payments.ErrGatewayTimeout
		},
	}
	svc, recorder := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, gateway)

	err := svc.Cancel(context.Background(), CancelInput{OrderID: order.ID, UserID: userID})
	requireCode(t, err, pkgerrors.CodeGatewayTimeout)

	// The session is still payable, so the order must not cancel locally.
	updated, findErr := repo.FindOrderByID(context.Background(), order.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.OrderStatusAwaitingPayment, updated.Status)
	assert.Empty(t, recorder.events)
}

func TestCancelSettlesInsteadWhenChargeAlreadyLanded(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusAwaitingPayment, 1)
	seedAttempt(repo, order.ID, 1, enums.PaymentAttemptStatusPending, "ch_won")

	gateway := &gatewayStub{lookupFn: func(ref string) (*payments.ChargeState, error) {
		return &payments.ChargeState{GatewayReference: ref, Status: enums.PaymentAttemptStatusSucceeded}, nil
	}}
	svc, recorder := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, gateway)

	err := svc.Cancel(context.Background(), CancelInput{OrderID: order.ID, UserID: userID})
	requireCode(t, err, pkgerrors.CodeStateConflict)

	updated, findErr := repo.FindOrderByID(context.Background(), order.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.OrderStatusPaid, updated.Status)
	assert.Equal(t, []enums.OutboxEventType{enums.OutboxEventOrderPaid}, recorder.eventTypes())
}

func TestCancelFailsClosedWhenGatewayUnreachable(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusAwaitingPayment, 1)
	seedAttempt(repo, order.ID, 1, enums.PaymentAttemptStatusPending, "ch_open")

	gateway := &gatewayStub{lookupFn: func(string) (*payments.ChargeState, error) {
		return nil, payments.ErrGatewayTimeout
	}}
	svc, _ := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, gateway)

	err := svc.Cancel(context.Background(), CancelInput{OrderID: order.ID, UserID: userID})
	requireCode(t, err, pkgerrors.CodeGatewayTimeout)

	updated, findErr := repo.FindOrderByID(context.Background(), order.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.OrderStatusAwaitingPayment, updated.Status)
}

func TestReconcileStaleSettlesAttemptWithReference(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusAwaitingPayment, 1)
	attempt := seedAttempt(repo, order.ID, 1, enums.PaymentAttemptStatusUnknown, "ch_stale")
	repo.staleAttempts = []models.PaymentAttempt{*attempt}

	gateway := &gatewayStub{lookupFn: func(ref string) (*payments.ChargeState, error) {
		return &payments.ChargeState{GatewayReference: ref, Status: enums.PaymentAttemptStatusSucceeded}, nil
	}}
	svc, recorder := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, gateway)

	resolved, err := svc.ReconcileStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	updated, findErr := repo.FindOrderByID(context.Background(), order.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.OrderStatusPaid, updated.Status)
	assert.Equal(t, []enums.OutboxEventType{enums.OutboxEventOrderPaid}, recorder.eventTypes())
}

func TestReconcileStaleReplaysCreateForUntrackedAttempt(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusAwaitingPayment, 1)
	attempt := seedAttempt(repo, order.ID, 1, enums.PaymentAttemptStatusUnknown, "")
	repo.staleAttempts = []models.PaymentAttempt{*attempt}

	gateway := &gatewayStub{createFn: func(req payments.ChargeRequest) (*payments.ChargeResult, error) {
		return &payments.ChargeResult{GatewayReference: "ch_recovered"}, nil
	}}
	svc, _ := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, gateway)

	resolved, err := svc.ReconcileStale(context.Background())
	require.NoError(t, err)
	// The attempt is now tracked but not yet settled.
	assert.Equal(t, 0, resolved)

	require.Len(t, gateway.createCalls, 1)
	assert.Equal(t, attempt.IdempotencyKey, gateway.createCalls[0].IdempotencyKey)

	stored, findErr := repo.FindAttemptByGatewayRef(context.Background(), "ch_recovered")
	require.NoError(t, findErr)
	assert.Equal(t, enums.PaymentAttemptStatusPending, stored.Status)
}

func TestReconcileStaleSkipsAttemptsStillOpenOnGateway(t *testing.T) {
	userID := uuid.New()
	repo := newMemoryRepo()
	order := seedOrder(repo, userID, enums.OrderStatusAwaitingPayment, 1)
	attempt := seedAttempt(repo, order.ID, 1, enums.PaymentAttemptStatusUnknown, "ch_open")
	repo.staleAttempts = []models.PaymentAttempt{*attempt}

	gateway := &gatewayStub{lookupFn: func(ref string) (*payments.ChargeState, error) {
		return &payments.ChargeState{GatewayReference: ref, Status: enums.PaymentAttemptStatusPending}, nil
	}}
	svc, _ := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, gateway)

	resolved, err := svc.ReconcileStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, resolved)

	updated, findErr := repo.FindOrderByID(context.Background(), order.ID)
	require.NoError(t, findErr)
	assert.Equal(t, enums.OrderStatusAwaitingPayment, updated.Status)
}

func TestGetOrderEnforcesOwnership(t *testing.T) {
	repo := newMemoryRepo()
	order := seedOrder(repo, uuid.New(), enums.OrderStatusDraft, 0)

	svc, _ := newOrderService(t, repo, &memoryCart{}, &catalogStub{}, &gatewayStub{})

	_, err := svc.GetOrder(context.Background(), order.ID, uuid.New())
	requireCode(t, err, pkgerrors.CodeForbidden)

	view, err := svc.GetOrder(context.Background(), order.ID, order.UserID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, view.ID)
}

func TestGetOrderNotFound(t *testing.T) {
	svc, _ := newOrderService(t, newMemoryRepo(), &memoryCart{}, &catalogStub{}, &gatewayStub{})

	_, err := svc.GetOrder(context.Background(), uuid.New(), uuid.New())
	requireCode(t, err, pkgerrors.CodeNotFound)
}
