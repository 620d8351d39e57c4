package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/vadimchubok/online-cinema-backend/pkg/db/models"
	"github.com/vadimchubok/online-cinema-backend/pkg/enums"
	"github.com/vadimchubok/online-cinema-backend/pkg/logger"
	"github.com/vadimchubok/online-cinema-backend/pkg/outbox"
	"github.com/vadimchubok/online-cinema-backend/pkg/outbox/idempotency"
	"github.com/vadimchubok/online-cinema-backend/pkg/outbox/payloads"
)

const mailerConsumer = "mailer"

type userReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Consumer watches domain events and turns them into transactional email.
type Consumer struct {
	mailer       Mailer
	users        userReader
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds the mailer consumer.
func NewConsumer(mailer Mailer, users userReader, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	if users == nil {
		return nil, fmt.Errorf("user reader required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		mailer:       mailer,
		users:        users,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	handler := c.handlerFor(enums.OutboxEventType(eventType))
	if handler == nil {
		c.logg.Info(logCtx, "skipping event without mail handler")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, mailerConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := handler(ctx, envelope.Data, logCtx); err != nil {
		c.logg.Error(logCtx, "mail handling failed", err)
		_ = c.idempotency.Delete(ctx, mailerConsumer, eventID)
		return processResult{nack: true}
	}

	return processResult{ack: true}
}

type eventHandler func(ctx context.Context, data json.RawMessage, logCtx context.Context) error

func (c *Consumer) handlerFor(eventType enums.OutboxEventType) eventHandler {
	switch eventType {
	case enums.OutboxEventUserRegistered:
		return c.handleUserRegistered
	case enums.OutboxEventOrderPaid:
		return c.handleOrderPaid
	default:
		return nil
	}
}

func (c *Consumer) handleUserRegistered(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.UserRegisteredEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse user.registered payload: %w", err)
	}

	if err := c.mailer.SendActivationEmail(ctx, payload.Email, payload.ActivationToken); err != nil {
		return err
	}

	c.logg.Info(c.logg.WithUserID(logCtx, payload.UserID.String()), "activation email sent")
	return nil
}

func (c *Consumer) handleOrderPaid(ctx context.Context, data json.RawMessage, logCtx context.Context) error {
	var payload payloads.OrderPaidEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse order.paid payload: %w", err)
	}

	user, err := c.users.FindByID(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("load user for receipt: %w", err)
	}

	if err := c.mailer.SendPaymentReceipt(ctx, user.Email, payload.OrderID.String(), payload.TotalAmount); err != nil {
		return err
	}

	c.logg.Info(c.logg.WithOrderID(logCtx, payload.OrderID.String()), "payment receipt sent")
	return nil
}
