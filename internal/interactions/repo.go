package interactions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vadimchubok/online-cinema-backend/pkg/db/models"
	"github.com/vadimchubok/online-cinema-backend/pkg/enums"
	"github.com/vadimchubok/online-cinema-backend/pkg/pagination"
)

// ReactionCounts aggregates likes and dislikes for a movie.
type ReactionCounts struct {
	Likes    int64 `json:"likes"`
	Dislikes int64 `json:"dislikes"`
}

// Repository defines persistence operations for user-movie interactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	AddFavorite(ctx context.Context, fav *models.Favorite) error
	RemoveFavorite(ctx context.Context, userID, movieID uuid.UUID) (int64, error)
	ListFavorites(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Favorite, string, error)

	UpsertReaction(ctx context.Context, reaction *models.MovieReaction) error
	RemoveReaction(ctx context.Context, userID, movieID uuid.UUID) (int64, error)
	CountReactions(ctx context.Context, movieID uuid.UUID) (*ReactionCounts, error)

	CreateComment(ctx context.Context, comment *models.Comment) error
	FindComment(ctx context.Context, id uuid.UUID) (*models.Comment, error)
	DeleteComment(ctx context.Context, id uuid.UUID) error
	ListComments(ctx context.Context, movieID uuid.UUID, params pagination.Params) ([]models.Comment, string, error)

	UpsertRating(ctx context.Context, rating *models.Rating) error
	AverageRating(ctx context.Context, movieID uuid.UUID) (float64, int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an interactions repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) AddFavorite(ctx context.Context, fav *models.Favorite) error {
	return r.db.WithContext(ctx).Create(fav).Error
}

func (r *repository) RemoveFavorite(ctx context.Context, userID, movieID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND movie_id = ?", userID, movieID).
		Delete(&models.Favorite{})
	return res.RowsAffected, res.Error
}

func (r *repository) ListFavorites(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Favorite, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit + 1)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Favorite
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

// UpsertReaction flips an existing like/dislike instead of erroring.
func (r *repository) UpsertReaction(ctx context.Context, reaction *models.MovieReaction) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "movie_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"reaction", "updated_at"}),
		}).
		Create(reaction).Error
}

func (r *repository) RemoveReaction(ctx context.Context, userID, movieID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND movie_id = ?", userID, movieID).
		Delete(&models.MovieReaction{})
	return res.RowsAffected, res.Error
}

func (r *repository) CountReactions(ctx context.Context, movieID uuid.UUID) (*ReactionCounts, error) {
	counts := &ReactionCounts{}
	err := r.db.WithContext(ctx).
		Model(&models.MovieReaction{}).
		Where("movie_id = ? AND reaction = ?", movieID, enums.ReactionTypeLike).
		Count(&counts.Likes).Error
	if err != nil {
		return nil, err
	}
	err = r.db.WithContext(ctx).
		Model(&models.MovieReaction{}).
		Where("movie_id = ? AND reaction = ?", movieID, enums.ReactionTypeDislike).
		Count(&counts.Dislikes).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *repository) CreateComment(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

func (r *repository) FindComment(ctx context.Context, id uuid.UUID) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&comment).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *repository) DeleteComment(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Comment{}).Error
}

func (r *repository) ListComments(ctx context.Context, movieID uuid.UUID, params pagination.Params) ([]models.Comment, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	query := r.db.WithContext(ctx).
		Where("movie_id = ?", movieID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit + 1)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Comment
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

func (r *repository) UpsertRating(ctx context.Context, rating *models.Rating) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "movie_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "updated_at"}),
		}).
		Create(rating).Error
}

func (r *repository) AverageRating(ctx context.Context, movieID uuid.UUID) (float64, int64, error) {
	type aggregate struct {
		Avg   float64
		Count int64
	}
	var agg aggregate
	err := r.db.WithContext(ctx).
		Model(&models.Rating{}).
		Select("COALESCE(AVG(score), 0) AS avg, COUNT(*) AS count").
		Where("movie_id = ?", movieID).
		Scan(&agg).Error
	if err != nil {
		return 0, 0, err
	}
	return agg.Avg, agg.Count, nil
}
