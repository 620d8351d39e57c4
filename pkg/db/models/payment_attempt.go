package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vadimchubok/online-cinema-backend/pkg/enums"
)

// PaymentAttempt is one charge attempt against the gateway. Seq is
// monotonic per order and backs the idempotency key sent upstream, so
// a retried request can never produce a second charge for the same
// attempt.
type PaymentAttempt struct {
	ID               uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID                  `gorm:"column:order_id;type:uuid;not null;index:idx_attempts_order_seq,unique"`
	Seq              int                        `gorm:"column:seq;not null;index:idx_attempts_order_seq,unique"`
	Status           enums.PaymentAttemptStatus `gorm:"column:status;type:payment_attempt_status;not null;default:'pending'"`
	Amount           decimal.Decimal            `gorm:"column:amount;type:numeric(10,2);not null"`
	IdempotencyKey   string                     `gorm:"column:idempotency_key;type:text;not null;uniqueIndex"`
	GatewayReference *string                    `gorm:"column:gateway_reference;uniqueIndex"`
	FailureReason    *string                    `gorm:"column:failure_reason"`
	ResolvedAt       *time.Time                 `gorm:"column:resolved_at"`
	CreatedAt        time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}
