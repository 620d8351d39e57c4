package interactions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vadimchubok/online-cinema-backend/pkg/db"
	"github.com/vadimchubok/online-cinema-backend/pkg/db/models"
	"github.com/vadimchubok/online-cinema-backend/pkg/enums"
	pkgerrors "github.com/vadimchubok/online-cinema-backend/pkg/errors"
	"github.com/vadimchubok/online-cinema-backend/pkg/logger"
	"github.com/vadimchubok/online-cinema-backend/pkg/pagination"
)

const maxCommentLength = 2000

type movieReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Movie, error)
}

// FavoriteView is a favorite entry joined with the movie snapshot.
type FavoriteView struct {
	MovieID   uuid.UUID `json:"movie_id"`
	AddedAt   time.Time `json:"added_at"`
	MovieName string    `json:"movie_name,omitempty"`
}

// CommentView is the API-facing projection of a comment.
type CommentView struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	MovieID   uuid.UUID  `json:"movie_id"`
	ParentID  *uuid.UUID `json:"parent_id,omitempty"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
}

// CommentList is a cursor page of comments.
type CommentList struct {
	Comments   []CommentView `json:"comments"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// FavoriteList is a cursor page of favorites.
type FavoriteList struct {
	Favorites  []FavoriteView `json:"favorites"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// RatingSummary aggregates user scores for a movie.
type RatingSummary struct {
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}

// Service exposes favorites, reactions, comments and ratings.
type Service interface {
	AddFavorite(ctx context.Context, userID, movieID uuid.UUID) error
	RemoveFavorite(ctx context.Context, userID, movieID uuid.UUID) error
	ListFavorites(ctx context.Context, userID uuid.UUID, params pagination.Params) (*FavoriteList, error)

	React(ctx context.Context, userID, movieID uuid.UUID, reaction enums.ReactionType) (*ReactionCounts, error)
	Unreact(ctx context.Context, userID, movieID uuid.UUID) (*ReactionCounts, error)

	AddComment(ctx context.Context, userID, movieID uuid.UUID, parentID *uuid.UUID, body string) (*CommentView, error)
	DeleteComment(ctx context.Context, userID uuid.UUID, group enums.UserGroup, commentID uuid.UUID) error
	ListComments(ctx context.Context, movieID uuid.UUID, params pagination.Params) (*CommentList, error)

	Rate(ctx context.Context, userID, movieID uuid.UUID, score int) (*RatingSummary, error)
	RatingFor(ctx context.Context, movieID uuid.UUID) (*RatingSummary, error)
}

// ServiceParams wires the interactions service dependencies.
type ServiceParams struct {
	Repo   Repository
	Movies movieReader
	Logger *logger.Logger
}

type service struct {
	repo   Repository
	movies movieReader
	logg   *logger.Logger
}

// NewService builds an interactions service from its params.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, errors.New("interactions: repository is required")
	}
	if params.Movies == nil {
		return nil, errors.New("interactions: movie reader is required")
	}
	if params.Logger == nil {
		return nil, errors.New("interactions: logger is required")
	}
	return &service{
		repo:   params.Repo,
		movies: params.Movies,
		logg:   params.Logger,
	}, nil
}

func (s *service) ensureMovie(ctx context.Context, movieID uuid.UUID) error {
	if _, err := s.movies.FindByID(ctx, movieID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "movie not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load movie")
	}
	return nil
}

func (s *service) AddFavorite(ctx context.Context, userID, movieID uuid.UUID) error {
	if err := s.ensureMovie(ctx, movieID); err != nil {
		return err
	}

	fav := &models.Favorite{UserID: userID, MovieID: movieID}
	if err := s.repo.AddFavorite(ctx, fav); err != nil {
		if db.IsUniqueViolation(err, "idx_favorites_user_movie") {
			// Adding twice is a no-op.
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add favorite")
	}
	return nil
}

func (s *service) RemoveFavorite(ctx context.Context, userID, movieID uuid.UUID) error {
	affected, err := s.repo.RemoveFavorite(ctx, userID, movieID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove favorite")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "movie is not in favorites")
	}
	return nil
}

func (s *service) ListFavorites(ctx context.Context, userID uuid.UUID, params pagination.Params) (*FavoriteList, error) {
	rows, next, err := s.repo.ListFavorites(ctx, userID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list favorites")
	}

	list := &FavoriteList{
		Favorites:  make([]FavoriteView, 0, len(rows)),
		NextCursor: next,
	}
	for _, row := range rows {
		list.Favorites = append(list.Favorites, FavoriteView{
			MovieID: row.MovieID,
			AddedAt: row.CreatedAt,
		})
	}
	return list, nil
}

func (s *service) React(ctx context.Context, userID, movieID uuid.UUID, reaction enums.ReactionType) (*ReactionCounts, error) {
	if !reaction.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reaction must be like or dislike")
	}
	if err := s.ensureMovie(ctx, movieID); err != nil {
		return nil, err
	}

	row := &models.MovieReaction{
		UserID:   userID,
		MovieID:  movieID,
		Reaction: reaction,
	}
	if err := s.repo.UpsertReaction(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "upsert reaction")
	}

	counts, err := s.repo.CountReactions(ctx, movieID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count reactions")
	}
	return counts, nil
}

func (s *service) Unreact(ctx context.Context, userID, movieID uuid.UUID) (*ReactionCounts, error) {
	if _, err := s.repo.RemoveReaction(ctx, userID, movieID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove reaction")
	}
	counts, err := s.repo.CountReactions(ctx, movieID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "count reactions")
	}
	return counts, nil
}

func (s *service) AddComment(ctx context.Context, userID, movieID uuid.UUID, parentID *uuid.UUID, body string) (*CommentView, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "comment body is required")
	}
	if len(body) > maxCommentLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "comment body is too long")
	}
	if err := s.ensureMovie(ctx, movieID); err != nil {
		return nil, err
	}

	if parentID != nil {
		parent, err := s.repo.FindComment(ctx, *parentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "parent comment not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load parent comment")
		}
		if parent.MovieID != movieID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "parent comment belongs to a different movie")
		}
	}

	comment := &models.Comment{
		UserID:   userID,
		MovieID:  movieID,
		ParentID: parentID,
		Body:     body,
	}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create comment")
	}

	return &CommentView{
		ID:        comment.ID,
		UserID:    comment.UserID,
		MovieID:   comment.MovieID,
		ParentID:  comment.ParentID,
		Body:      comment.Body,
		CreatedAt: comment.CreatedAt,
	}, nil
}

// DeleteComment allows the author, or any moderator, to remove a comment.
func (s *service) DeleteComment(ctx context.Context, userID uuid.UUID, group enums.UserGroup, commentID uuid.UUID) error {
	comment, err := s.repo.FindComment(ctx, commentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "comment not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load comment")
	}

	if comment.UserID != userID && !group.AtLeast(enums.UserGroupModerator) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the author or a moderator can delete a comment")
	}

	if err := s.repo.DeleteComment(ctx, commentID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete comment")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"comment_id": commentID.String(),
		"deleted_by": userID.String(),
	})
	s.logg.Info(logCtx, "comment deleted")
	return nil
}

func (s *service) ListComments(ctx context.Context, movieID uuid.UUID, params pagination.Params) (*CommentList, error) {
	rows, next, err := s.repo.ListComments(ctx, movieID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list comments")
	}

	list := &CommentList{
		Comments:   make([]CommentView, 0, len(rows)),
		NextCursor: next,
	}
	for _, row := range rows {
		list.Comments = append(list.Comments, CommentView{
			ID:        row.ID,
			UserID:    row.UserID,
			MovieID:   row.MovieID,
			ParentID:  row.ParentID,
			Body:      row.Body,
			CreatedAt: row.CreatedAt,
		})
	}
	return list, nil
}

func (s *service) Rate(ctx context.Context, userID, movieID uuid.UUID, score int) (*RatingSummary, error) {
	if score < 1 || score > 10 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "score must be between 1 and 10")
	}
	if err := s.ensureMovie(ctx, movieID); err != nil {
		return nil, err
	}

	rating := &models.Rating{
		UserID:  userID,
		MovieID: movieID,
		Score:   score,
	}
	if err := s.repo.UpsertRating(ctx, rating); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "upsert rating")
	}
	return s.RatingFor(ctx, movieID)
}

func (s *service) RatingFor(ctx context.Context, movieID uuid.UUID) (*RatingSummary, error) {
	avg, count, err := s.repo.AverageRating(ctx, movieID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "average rating")
	}
	return &RatingSummary{Average: avg, Count: count}, nil
}
