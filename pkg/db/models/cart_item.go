package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is one movie in a user's cart. A user holds at most one row
// per movie; quantity exists for parity with the order line shape.
type CartItem struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index:idx_cart_user_movie,unique"`
	MovieID   uuid.UUID `gorm:"column:movie_id;type:uuid;not null;index:idx_cart_user_movie,unique"`
	Quantity  int       `gorm:"column:quantity;not null;default:1"`
	Movie     *Movie    `gorm:"foreignKey:MovieID"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
