package movies

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vadimchubok/online-cinema-backend/pkg/db/models"
	"github.com/vadimchubok/online-cinema-backend/pkg/pagination"
)

// Filters narrows catalog listings.
type Filters struct {
	Search string
	Genre  string
	Year   int
	Sort   string
}

// Repository defines persistence operations for the movie catalog.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, movie *models.Movie) (*models.Movie, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Movie, error)
	FindByIDsForUpdate(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]models.Movie, error)
	List(ctx context.Context, params pagination.Params, filters Filters) ([]models.Movie, string, error)
	UpsertGenres(ctx context.Context, names []string) ([]models.Genre, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a movie repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, movie *models.Movie) (*models.Movie, error) {
	if err := r.db.WithContext(ctx).Create(movie).Error; err != nil {
		return nil, err
	}
	return movie, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Movie{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Movie{})
	return res.RowsAffected, res.Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Movie, error) {
	var movie models.Movie
	err := r.db.WithContext(ctx).
		Preload("Genres").
		Where("id = ?", id).
		First(&movie).Error
	if err != nil {
		return nil, err
	}
	return &movie, nil
}

// FindByIDsForUpdate locks the catalog rows so checkout snapshots a stable price.
func (r *repository) FindByIDsForUpdate(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]models.Movie, error) {
	var rows []models.Movie
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Find(&rows).Error
	return rows, err
}

func (r *repository) List(ctx context.Context, params pagination.Params, filters Filters) ([]models.Movie, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.db.WithContext(ctx).Preload("Genres").Limit(limit + 1)

	if search := strings.TrimSpace(filters.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}
	if genre := strings.TrimSpace(filters.Genre); genre != "" {
		query = query.
			Joins("JOIN movie_genres mg ON mg.movie_id = movies.id").
			Joins("JOIN genres g ON g.id = mg.genre_id").
			Where("LOWER(g.name) = ?", strings.ToLower(genre))
	}
	if filters.Year > 0 {
		query = query.Where("year = ?", filters.Year)
	}

	switch filters.Sort {
	case "price", "-price", "year", "-year", "votes", "-votes", "imdb_rating", "-imdb_rating":
		column := strings.TrimPrefix(filters.Sort, "-")
		direction := "ASC"
		if strings.HasPrefix(filters.Sort, "-") {
			direction = "DESC"
		}
		query = query.Order(column + " " + direction).Order("id DESC")
	default:
		query = query.Order("created_at DESC").Order("id DESC")
		if cursor != nil {
			query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
		}
	}

	var rows []models.Movie
	if err := query.Find(&rows).Error; err != nil {
		return nil, "", err
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

func (r *repository) UpsertGenres(ctx context.Context, names []string) ([]models.Genre, error) {
	genres := make([]models.Genre, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		var genre models.Genre
		err := r.db.WithContext(ctx).
			Where("name = ?", name).
			FirstOrCreate(&genre, models.Genre{Name: name}).Error
		if err != nil {
			return nil, err
		}
		genres = append(genres, genre)
	}
	return genres, nil
}
