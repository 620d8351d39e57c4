package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vadimchubok/online-cinema-backend/pkg/enums"
)

// Order is the aggregate root of the payment lifecycle. All status
// transitions happen under a row lock on this table.
type Order struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Status       enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'draft'"`
	TotalAmount  decimal.Decimal   `gorm:"column:total_amount;type:numeric(10,2);not null"`
	AttemptCount int               `gorm:"column:attempt_count;not null;default:0"`
	FrozenReason *string           `gorm:"column:frozen_reason"`
	Items        []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Attempts     []PaymentAttempt  `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CanceledAt   *time.Time        `gorm:"column:canceled_at"`
	PaidAt       *time.Time        `gorm:"column:paid_at"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem snapshots a movie's price at checkout time. Later catalog
// price changes never touch existing orders.
type OrderItem struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID      uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	MovieID      uuid.UUID       `gorm:"column:movie_id;type:uuid;not null"`
	MovieName    string          `gorm:"column:movie_name;type:text;not null"`
	Quantity     int             `gorm:"column:quantity;not null;default:1"`
	PriceAtOrder decimal.Decimal `gorm:"column:price_at_order;type:numeric(10,2);not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}
