package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vadimchubok/online-cinema-backend/pkg/db/models"
	"github.com/vadimchubok/online-cinema-backend/pkg/outbox"
	"github.com/vadimchubok/online-cinema-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and payment attempts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) (*models.PaymentAttempt, error)

	FindOrderForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListUserOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListAllOrders(ctx context.Context, params pagination.Params) (*OrderList, error)

	FindAttemptByGatewayRef(ctx context.Context, ref string) (*models.PaymentAttempt, error)
	FindLatestAttempt(ctx context.Context, orderID uuid.UUID) (*models.PaymentAttempt, error)
	FindUnresolvedAttemptsBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentAttempt, error)

	UpdateOrder(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UpdateAttempt(ctx context.Context, id uuid.UUID, updates map[string]any) error

	UserOwnsMovie(ctx context.Context, userID, movieID uuid.UUID) (bool, error)
	MoviePendingInOrder(ctx context.Context, userID, movieID uuid.UUID) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// cartStore is the slice of the cart repository the checkout flow needs.
type cartStore interface {
	ListForUpdate(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]models.CartItem, error)
	DeleteForUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

// movieStore re-reads catalog rows under lock so checkout snapshots a
// consistent price.
type movieStore interface {
	FindByIDsForUpdate(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]models.Movie, error)
}
