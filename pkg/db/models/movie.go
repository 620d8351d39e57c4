package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Movie is a catalog entry available for purchase.
type Movie struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name        string          `gorm:"column:name;type:text;not null;index:idx_movies_name_year,unique"`
	Year        int             `gorm:"column:year;not null;index:idx_movies_name_year,unique"`
	Description string          `gorm:"column:description;type:text;not null"`
	IMDBRating  float64         `gorm:"column:imdb_rating;not null;default:0"`
	Votes       int             `gorm:"column:votes;not null;default:0"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	IsAvailable bool            `gorm:"column:is_available;not null;default:true"`
	Genres      []Genre         `gorm:"many2many:movie_genres"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// Genre is a catalog facet attached to movies.
type Genre struct {
	ID   uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name string    `gorm:"column:name;type:text;not null;uniqueIndex"`
}
