package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/vadimchubok/online-cinema-backend/internal/payments"
	"github.com/vadimchubok/online-cinema-backend/pkg/config"
	"github.com/vadimchubok/online-cinema-backend/pkg/db/models"
	"github.com/vadimchubok/online-cinema-backend/pkg/enums"
	pkgerrors "github.com/vadimchubok/online-cinema-backend/pkg/errors"
	"github.com/vadimchubok/online-cinema-backend/pkg/logger"
	"github.com/vadimchubok/online-cinema-backend/pkg/metrics"
	"github.com/vadimchubok/online-cinema-backend/pkg/outbox"
	"github.com/vadimchubok/online-cinema-backend/pkg/outbox/payloads"
	"github.com/vadimchubok/online-cinema-backend/pkg/pagination"
)

const (
	frozenDoublePayment = "DOUBLE_PAYMENT_DETECTED"
	reasonBudgetSpent   = "retry budget exhausted"
	reasonUserCanceled  = "canceled by user"
)

// Service drives the order lifecycle from cart to settlement.
type Service interface {
	Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error)
	InitiateCharge(ctx context.Context, input ChargeInput) (*ChargeOutput, error)
	HandlePaymentCallback(ctx context.Context, input CallbackInput) error
	Cancel(ctx context.Context, input CancelInput) error
	ReconcileStale(ctx context.Context) (int, error)
	GetOrder(ctx context.Context, orderID, userID uuid.UUID) (*OrderView, error)
	ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListAllOrders(ctx context.Context, params pagination.Params) (*OrderList, error)
}

// ServiceParams collects the dependencies of the order service.
type ServiceParams struct {
	Repo     Repository
	Cart     cartStore
	Movies   movieStore
	Tx       txRunner
	Outbox   outboxPublisher
	Gateway  payments.Gateway
	Payments config.PaymentsConfig
	Logger   *logger.Logger
	Metrics  *metrics.PaymentMetrics
}

type service struct {
	repo    Repository
	cart    cartStore
	movies  movieStore
	tx      txRunner
	outbox  outboxPublisher
	gateway payments.Gateway
	cfg     config.PaymentsConfig
	logg    *logger.Logger
	metrics *metrics.PaymentMetrics
}

// NewService builds the order lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository is required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart store is required")
	}
	if params.Movies == nil {
		return nil, fmt.Errorf("movie store is required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher is required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway is required")
	}
	if params.Payments.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be positive")
	}
	return &service{
		repo:    params.Repo,
		cart:    params.Cart,
		movies:  params.Movies,
		tx:      params.Tx,
		outbox:  params.Outbox,
		gateway: params.Gateway,
		cfg:     params.Payments,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// Checkout converts the user's cart into a draft order in one transaction:
// cart rows are locked, prices re-read from the catalog, line items
// snapshotted, and the cart emptied. Nothing survives a partial failure.
func (s *service) Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	var created *models.Order

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		items, err := s.cart.ListForUpdate(ctx, tx, input.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if len(items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
		}

		movieIDs := make([]uuid.UUID, 0, len(items))
		for _, item := range items {
			movieIDs = append(movieIDs, item.MovieID)
		}
		movies, err := s.movies.FindByIDsForUpdate(ctx, tx, movieIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load movies")
		}
		byID := make(map[uuid.UUID]models.Movie, len(movies))
		for _, movie := range movies {
			byID[movie.ID] = movie
		}

		total := decimal.Zero
		orderItems := make([]models.OrderItem, 0, len(items))
		for _, item := range items {
			movie, ok := byID[item.MovieID]
			if !ok || !movie.IsAvailable {
				return pkgerrors.New(pkgerrors.CodeAvailability, "movie is no longer available").
					WithDetails(map[string]any{"movie_id": item.MovieID})
			}
			owned, err := repo.UserOwnsMovie(ctx, input.UserID, item.MovieID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check ownership")
			}
			if owned {
				return pkgerrors.New(pkgerrors.CodeConflict, "movie already purchased").
					WithDetails(map[string]any{"movie_id": item.MovieID})
			}
			pending, err := repo.MoviePendingInOrder(ctx, input.UserID, item.MovieID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending orders")
			}
			if pending {
				return pkgerrors.New(pkgerrors.CodeConflict, "movie already sits in an open order").
					WithDetails(map[string]any{"movie_id": item.MovieID})
			}

			line := movie.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
			total = total.Add(line)
			orderItems = append(orderItems, models.OrderItem{
				MovieID:      movie.ID,
				MovieName:    movie.Name,
				Quantity:     item.Quantity,
				PriceAtOrder: movie.Price,
			})
		}

		order := &models.Order{
			UserID:      input.UserID,
			Status:      enums.OrderStatusDraft,
			TotalAmount: total,
		}
		if _, err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		for i := range orderItems {
			orderItems[i].OrderID = order.ID
		}
		if err := repo.CreateOrderItems(ctx, orderItems); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}
		if err := s.cart.DeleteForUser(ctx, tx, input.UserID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventOrderCheckedOut,
			AggregateType: enums.AggregateTypeOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID},
			Data: payloads.OrderCheckedOutEvent{
				OrderID:     order.ID,
				UserID:      input.UserID,
				TotalAmount: total,
				ItemCount:   len(orderItems),
			},
			Version: 1,
		}); err != nil {
			return err
		}

		order.Items = orderItems
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, created.ID.String())
		s.logg.Info(logCtx, "checkout completed")
	}
	return &CheckoutResult{Order: *created}, nil
}

// InitiateCharge opens one payment attempt. The attempt row is committed
// before the gateway is called, so a crash mid-call leaves an auditable
// pending attempt instead of an untracked charge.
func (s *service) InitiateCharge(ctx context.Context, input ChargeInput) (*ChargeOutput, error) {
	var attempt *models.PaymentAttempt
	var order *models.Order

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		locked, err := repo.FindOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		if locked.UserID != input.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		}

		switch locked.Status {
		case enums.OrderStatusDraft, enums.OrderStatusPaymentFailed:
			// chargeable
		case enums.OrderStatusAwaitingPayment:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "a payment attempt is already in flight")
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order is %s and cannot be charged", locked.Status))
		}

		if locked.AttemptCount >= s.cfg.MaxAttempts {
			return pkgerrors.New(pkgerrors.CodeStateConflict, reasonBudgetSpent)
		}

		seq := locked.AttemptCount + 1
		row := &models.PaymentAttempt{
			OrderID:        locked.ID,
			Seq:            seq,
			Status:         enums.PaymentAttemptStatusPending,
			Amount:         locked.TotalAmount,
			IdempotencyKey: AttemptIdempotencyKey(locked.ID, seq),
		}
		if _, err := repo.CreateAttempt(ctx, row); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment attempt")
		}
		if err := repo.UpdateOrder(ctx, locked.ID, map[string]any{
			"status":        enums.OrderStatusAwaitingPayment,
			"attempt_count": seq,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
		}

		locked.Status = enums.OrderStatusAwaitingPayment
		locked.AttemptCount = seq
		attempt = row
		order = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	chargeCtx, cancel := context.WithTimeout(ctx, s.cfg.ChargeTimeout)
	defer cancel()

	result, gatewayErr := s.gateway.CreateCharge(chargeCtx, payments.ChargeRequest{
		OrderID:        order.ID,
		UserID:         order.UserID,
		Amount:         order.TotalAmount,
		IdempotencyKey: attempt.IdempotencyKey,
		Description:    fmt.Sprintf("Order %s", order.ID),
	})

	switch {
	case gatewayErr == nil:
		if err := s.repo.UpdateAttempt(ctx, attempt.ID, map[string]any{
			"gateway_reference": result.GatewayReference,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store gateway reference")
		}
		return &ChargeOutput{
			OrderID:     order.ID,
			AttemptSeq:  attempt.Seq,
			RedirectURL: result.RedirectURL,
			Status:      enums.PaymentAttemptStatusPending,
		}, nil

	case errors.Is(gatewayErr, payments.ErrGatewayTimeout):
		// The charge may exist on the gateway side. Mark the attempt unknown;
		// only reconciliation is allowed to settle it.
		if err := s.repo.UpdateAttempt(ctx, attempt.ID, map[string]any{
			"status":         enums.PaymentAttemptStatusUnknown,
			"failure_reason": "gateway timed out",
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark attempt unknown")
		}
		s.metrics.ObserveAttempt(enums.PaymentAttemptStatusUnknown.String())
		return nil, pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, gatewayErr, "payment gateway timed out")

	default:
		if err := s.failAttempt(ctx, order.ID, attempt.ID, gatewayErr.Error()); err != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, gatewayErr, "payment gateway rejected the charge")
	}
}

// HandlePaymentCallback applies a gateway notification under the order lock.
// Replays of already-settled attempts are acknowledged without effect; a
// success for an order that is already paid freezes it for manual review.
func (s *service) HandlePaymentCallback(ctx context.Context, input CallbackInput) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		attempt, err := repo.FindAttemptByGatewayRef(ctx, input.GatewayReference)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Unknown reference: acknowledge so the gateway stops retrying,
				// but leave a trace for operators.
				if s.logg != nil {
					logCtx := s.logg.WithField(ctx, "gateway_reference", input.GatewayReference)
					s.logg.Warn(logCtx, "callback for unknown gateway reference")
				}
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find attempt")
		}
		if input.OrderID != uuid.Nil && input.OrderID != attempt.OrderID {
			return pkgerrors.New(pkgerrors.CodeValidation,
				"callback order does not match the charge reference")
		}

		order, err := repo.FindOrderForUpdate(ctx, attempt.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}

		// The first read ran without the lock; a concurrent callback may have
		// settled the attempt in the gap. Re-read so replays are detected.
		attempt, err = repo.FindAttemptByGatewayRef(ctx, input.GatewayReference)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload attempt")
		}

		switch input.Status {
		case enums.PaymentAttemptStatusSucceeded:
			return s.applySuccess(ctx, tx, repo, order, attempt)
		case enums.PaymentAttemptStatusFailed:
			return s.applyFailure(ctx, tx, repo, order, attempt, input.Reason)
		default:
			return pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("callback status %q is not terminal", input.Status))
		}
	})
}

func (s *service) applySuccess(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, attempt *models.PaymentAttempt) error {
	if attempt.Status.IsTerminal() {
		return nil // replay
	}

	now := time.Now()

	if order.Status == enums.OrderStatusPaid || order.Status == enums.OrderStatusFrozen {
		// A different attempt already settled this order, so two real charges
		// exist. The table allows one succeeded row per order; record this one
		// under the double-payment marker and freeze for manual review.
		if err := repo.UpdateAttempt(ctx, attempt.ID, map[string]any{
			"status":         enums.PaymentAttemptStatusFailed,
			"failure_reason": frozenDoublePayment,
			"resolved_at":    now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve attempt")
		}
		s.metrics.ObserveAttempt(enums.PaymentAttemptStatusFailed.String())
		if order.Status == enums.OrderStatusFrozen {
			return nil
		}
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status":        enums.OrderStatusFrozen,
			"frozen_reason": frozenDoublePayment,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "freeze order")
		}
		s.metrics.IncFrozen()
		if s.logg != nil {
			logCtx := s.logg.WithOrderID(ctx, order.ID.String())
			s.logg.Error(logCtx, "order frozen after second successful charge", errors.New(frozenDoublePayment))
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventOrderFrozen,
			AggregateType: enums.AggregateTypeOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderFrozenEvent{
				OrderID: order.ID,
				UserID:  order.UserID,
				Reason:  frozenDoublePayment,
			},
			Version: 1,
		})
	}

	if order.Status != enums.OrderStatusAwaitingPayment {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("success callback for order in state %s", order.Status))
	}

	if err := repo.UpdateAttempt(ctx, attempt.ID, map[string]any{
		"status":      enums.PaymentAttemptStatusSucceeded,
		"resolved_at": now,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve attempt")
	}
	s.metrics.ObserveAttempt(enums.PaymentAttemptStatusSucceeded.String())

	if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
		"status":  enums.OrderStatusPaid,
		"paid_at": now,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
	}

	ref := ""
	if attempt.GatewayReference != nil {
		ref = *attempt.GatewayReference
	}
	return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.OutboxEventOrderPaid,
		AggregateType: enums.AggregateTypeOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderPaidEvent{
			OrderID:          order.ID,
			UserID:           order.UserID,
			TotalAmount:      order.TotalAmount,
			AttemptSeq:       attempt.Seq,
			GatewayReference: ref,
			PaidAt:           now,
		},
		Version: 1,
	})
}

func (s *service) applyFailure(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, attempt *models.PaymentAttempt, reason string) error {
	if attempt.Status.IsTerminal() {
		return nil // replay
	}

	if err := repo.UpdateAttempt(ctx, attempt.ID, map[string]any{
		"status":         enums.PaymentAttemptStatusFailed,
		"failure_reason": reason,
		"resolved_at":    time.Now(),
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve attempt")
	}
	s.metrics.ObserveAttempt(enums.PaymentAttemptStatusFailed.String())

	if order.Status != enums.OrderStatusAwaitingPayment {
		// Terminal orders ignore late declines; the attempt record is enough.
		return nil
	}

	remaining := s.cfg.MaxAttempts - order.AttemptCount
	if remaining <= 0 {
		now := time.Now()
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status":      enums.OrderStatusCanceled,
			"canceled_at": now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventOrderCanceled,
			AggregateType: enums.AggregateTypeOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderCanceledEvent{
				OrderID:    order.ID,
				UserID:     order.UserID,
				CanceledAt: now,
				Reason:     reasonBudgetSpent,
			},
			Version: 1,
		}); err != nil {
			return err
		}
	} else {
		if err := repo.UpdateOrder(ctx, order.ID, map[string]any{
			"status": enums.OrderStatusPaymentFailed,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
		}
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.OutboxEventOrderPaymentFailed,
		AggregateType: enums.AggregateTypeOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderPaymentFailedEvent{
			OrderID:           order.ID,
			UserID:            order.UserID,
			AttemptSeq:        attempt.Seq,
			Reason:            reason,
			AttemptsRemaining: max(remaining, 0),
		},
		Version: 1,
	})
}

// failAttempt settles an attempt the gateway rejected synchronously.
func (s *service) failAttempt(ctx context.Context, orderID, attemptID uuid.UUID, reason string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		attempt, err := repo.FindLatestAttempt(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load attempt")
		}
		if attempt.ID != attemptID {
			return nil // a newer attempt took over
		}
		return s.applyFailure(ctx, tx, repo, order, attempt, reason)
	})
}

// Cancel abandons an order. Draft orders cancel freely; awaiting_payment
// requires the gateway to confirm no charge landed first.
func (s *service) Cancel(ctx context.Context, input CancelInput) error {
	order, err := s.repo.FindOrderByID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.UserID != input.UserID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}

	// Gateway confirmation happens before the lock; the transition below
	// re-checks state so a racing callback wins.
	if order.Status == enums.OrderStatusAwaitingPayment {
		latest, err := s.repo.FindLatestAttempt(ctx, input.OrderID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load attempt")
		}
		if latest != nil && latest.GatewayReference != nil && !latest.Status.IsTerminal() {
			state, err := s.gateway.LookupCharge(ctx, *latest.GatewayReference)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, err, "gateway could not confirm charge state")
			}
			if state.Status == enums.PaymentAttemptStatusSucceeded {
				// The charge landed; settle instead of canceling.
				if cbErr := s.HandlePaymentCallback(ctx, CallbackInput{
					GatewayReference: state.GatewayReference,
					Status:           enums.PaymentAttemptStatusSucceeded,
				}); cbErr != nil {
					return cbErr
				}
				return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already completed")
			}
			if state.Status == enums.PaymentAttemptStatusPending {
				// The session is still open. Expire it on the gateway first;
				// canceling locally while the customer can still pay would
				// strand the charge.
				if err := s.gateway.CancelCharge(ctx, *latest.GatewayReference); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, err, "gateway could not release the charge session")
				}
			}
		}
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.FindOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}

		switch locked.Status {
		case enums.OrderStatusCanceled:
			return nil // idempotent
		case enums.OrderStatusDraft, enums.OrderStatusAwaitingPayment, enums.OrderStatusPaymentFailed:
			// cancelable
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order is %s and cannot be canceled", locked.Status))
		}

		latest, err := repo.FindLatestAttempt(ctx, input.OrderID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load attempt")
		}
		if latest != nil && !latest.Status.IsTerminal() {
			if err := repo.UpdateAttempt(ctx, latest.ID, map[string]any{
				"status":         enums.PaymentAttemptStatusFailed,
				"failure_reason": reasonUserCanceled,
				"resolved_at":    time.Now(),
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close attempt")
			}
		}

		now := time.Now()
		if err := repo.UpdateOrder(ctx, locked.ID, map[string]any{
			"status":      enums.OrderStatusCanceled,
			"canceled_at": now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}

		reason := input.Reason
		if reason == "" {
			reason = reasonUserCanceled
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventOrderCanceled,
			AggregateType: enums.AggregateTypeOrder,
			AggregateID:   locked.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID},
			Data: payloads.OrderCanceledEvent{
				OrderID:    locked.ID,
				UserID:     locked.UserID,
				CanceledAt: now,
				Reason:     reason,
			},
			Version: 1,
		})
	})
}

// ReconcileStale settles attempts whose outcome was never observed. Returns
// how many attempts were resolved.
func (s *service) ReconcileStale(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.cfg.StaleAfter)
	attempts, err := s.repo.FindUnresolvedAttemptsBefore(ctx, cutoff, 100)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stale attempts")
	}

	resolved := 0
	for _, attempt := range attempts {
		settled, err := s.reconcileAttempt(ctx, attempt)
		if err != nil {
			if s.logg != nil {
				logCtx := s.logg.WithOrderID(ctx, attempt.OrderID.String())
				s.logg.Warn(logCtx, fmt.Sprintf("reconcile attempt %d: %v", attempt.Seq, err))
			}
			continue
		}
		if settled {
			resolved++
		}
	}
	return resolved, nil
}

func (s *service) reconcileAttempt(ctx context.Context, attempt models.PaymentAttempt) (bool, error) {
	var state *payments.ChargeState

	if attempt.GatewayReference != nil {
		found, err := s.gateway.LookupCharge(ctx, *attempt.GatewayReference)
		if err != nil {
			return false, err
		}
		state = found
	} else {
		// Replaying the create with the original idempotency key either
		// returns the charge that did land or proves none exists.
		order, err := s.repo.FindOrderByID(ctx, attempt.OrderID)
		if err != nil {
			return false, err
		}
		result, err := s.gateway.CreateCharge(ctx, payments.ChargeRequest{
			OrderID:        order.ID,
			UserID:         order.UserID,
			Amount:         attempt.Amount,
			IdempotencyKey: attempt.IdempotencyKey,
			Description:    fmt.Sprintf("Order %s", order.ID),
		})
		if err != nil {
			return false, err
		}
		if err := s.repo.UpdateAttempt(ctx, attempt.ID, map[string]any{
			"status":            enums.PaymentAttemptStatusPending,
			"gateway_reference": result.GatewayReference,
		}); err != nil {
			return false, err
		}
		return false, nil // now tracked; next cycle settles it
	}

	switch state.Status {
	case enums.PaymentAttemptStatusSucceeded, enums.PaymentAttemptStatusFailed:
		if err := s.HandlePaymentCallback(ctx, CallbackInput{
			GatewayReference: state.GatewayReference,
			Status:           state.Status,
			Reason:           state.Reason,
		}); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, nil // still open on the gateway side
	}
}

func (s *service) GetOrder(ctx context.Context, orderID, userID uuid.UUID) (*OrderView, error) {
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	view := NewOrderView(*order)
	return &view, nil
}

func (s *service) ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	list, err := s.repo.ListUserOrders(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

// ListAllOrders is the moderation view: every user's orders, newest first.
func (s *service) ListAllOrders(ctx context.Context, params pagination.Params) (*OrderList, error) {
	list, err := s.repo.ListAllOrders(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list all orders")
	}
	return list, nil
}

// AttemptIdempotencyKey derives the stable key sent to the gateway for one attempt.
func AttemptIdempotencyKey(orderID uuid.UUID, seq int) string {
	return fmt.Sprintf("order:%s:attempt:%d", orderID, seq)
}
