package movies

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/vadimchubok/online-cinema-backend/pkg/db"
	"github.com/vadimchubok/online-cinema-backend/pkg/db/models"
	pkgerrors "github.com/vadimchubok/online-cinema-backend/pkg/errors"
	"github.com/vadimchubok/online-cinema-backend/pkg/logger"
	"github.com/vadimchubok/online-cinema-backend/pkg/pagination"
)

// CreateInput carries a new catalog entry.
type CreateInput struct {
	Name        string
	Year        int
	Description string
	IMDBRating  float64
	Votes       int
	Price       decimal.Decimal
	Genres      []string
}

// UpdateInput carries a partial catalog update; nil fields are untouched.
type UpdateInput struct {
	Description *string
	Price       *decimal.Decimal
	IsAvailable *bool
}

// MovieList is a cursor page of catalog entries.
type MovieList struct {
	Movies     []models.Movie `json:"movies"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// Service exposes catalog operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Movie, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) error
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*models.Movie, error)
	List(ctx context.Context, params pagination.Params, filters Filters) (*MovieList, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService builds the catalog service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("movie repository is required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Movie, error) {
	if !input.Price.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
	}

	genres, err := s.repo.UpsertGenres(ctx, input.Genres)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert genres")
	}

	movie := &models.Movie{
		Name:        input.Name,
		Year:        input.Year,
		Description: input.Description,
		IMDBRating:  input.IMDBRating,
		Votes:       input.Votes,
		Price:       input.Price,
		IsAvailable: true,
		Genres:      genres,
	}
	if _, err := s.repo.Create(ctx, movie); err != nil {
		if dbpkg.IsUniqueViolation(err, "idx_movies_name_year") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "movie with this name and year already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create movie")
	}
	return movie, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) error {
	updates := map[string]any{}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Price != nil {
		if !input.Price.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "price must be positive")
		}
		updates["price"] = *input.Price
	}
	if input.IsAvailable != nil {
		updates["is_available"] = *input.IsAvailable
	}
	if len(updates) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}

	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "movie not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load movie")
	}
	if err := s.repo.Update(ctx, id, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update movie")
	}
	return nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete movie")
	}
	if removed == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "movie not found")
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Movie, error) {
	movie, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "movie not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load movie")
	}
	return movie, nil
}

func (s *service) List(ctx context.Context, params pagination.Params, filters Filters) (*MovieList, error) {
	rows, next, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list movies")
	}
	return &MovieList{Movies: rows, NextCursor: next}, nil
}
