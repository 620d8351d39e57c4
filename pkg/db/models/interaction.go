package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/vadimchubok/online-cinema-backend/pkg/enums"
)

// Favorite marks a movie a user wants to keep at hand.
type Favorite struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index:idx_favorites_user_movie,unique"`
	MovieID   uuid.UUID `gorm:"column:movie_id;type:uuid;not null;index:idx_favorites_user_movie,unique"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// MovieReaction is a user's like or dislike; one row per user per movie.
type MovieReaction struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID          `gorm:"column:user_id;type:uuid;not null;index:idx_reactions_user_movie,unique"`
	MovieID   uuid.UUID          `gorm:"column:movie_id;type:uuid;not null;index:idx_reactions_user_movie,unique"`
	Reaction  enums.ReactionType `gorm:"column:reaction;type:reaction_type;not null"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// Comment is a threaded remark on a movie. ParentID nil means top level.
type Comment struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null"`
	MovieID   uuid.UUID  `gorm:"column:movie_id;type:uuid;not null;index"`
	ParentID  *uuid.UUID `gorm:"column:parent_id;type:uuid;index"`
	Body      string     `gorm:"column:body;type:text;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// Rating is a 1-10 score; one row per user per movie.
type Rating struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index:idx_ratings_user_movie,unique"`
	MovieID   uuid.UUID `gorm:"column:movie_id;type:uuid;not null;index:idx_ratings_user_movie,unique"`
	Score     int       `gorm:"column:score;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
