package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/vadimchubok/online-cinema-backend/pkg/db"
	"github.com/vadimchubok/online-cinema-backend/pkg/db/models"
	pkgerrors "github.com/vadimchubok/online-cinema-backend/pkg/errors"
	"github.com/vadimchubok/online-cinema-backend/pkg/logger"
)

// movieReader is the slice of the catalog the cart needs.
type movieReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Movie, error)
}

// purchaseGuard answers whether a movie is already owned or mid-purchase.
type purchaseGuard interface {
	UserOwnsMovie(ctx context.Context, userID, movieID uuid.UUID) (bool, error)
	MoviePendingInOrder(ctx context.Context, userID, movieID uuid.UUID) (bool, error)
}

// ItemView is the API-facing cart row.
type ItemView struct {
	MovieID   uuid.UUID       `json:"movie_id"`
	MovieName string          `json:"movie_name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"added_at"`
}

// View is the API-facing cart.
type View struct {
	Items []ItemView      `json:"items"`
	Total decimal.Decimal `json:"total"`
}

// Service exposes cart operations.
type Service interface {
	AddItem(ctx context.Context, userID, movieID uuid.UUID) error
	RemoveItem(ctx context.Context, userID, movieID uuid.UUID) error
	SetQuantity(ctx context.Context, userID, movieID uuid.UUID, quantity int) error
	Get(ctx context.Context, userID uuid.UUID) (*View, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

type service struct {
	repo   Repository
	movies movieReader
	guard  purchaseGuard
	tx     txRunner
	logg   *logger.Logger
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// NewService builds the cart service.
func NewService(repo Repository, movies movieReader, guard purchaseGuard, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository is required")
	}
	if movies == nil {
		return nil, fmt.Errorf("movie reader is required")
	}
	if guard == nil {
		return nil, fmt.Errorf("purchase guard is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	return &service{repo: repo, movies: movies, guard: guard, tx: tx, logg: logg}, nil
}

// AddItem places a movie in the cart. Owned, mid-purchase, and unavailable
// movies are rejected; a duplicate add is a conflict.
func (s *service) AddItem(ctx context.Context, userID, movieID uuid.UUID) error {
	movie, err := s.movies.FindByID(ctx, movieID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "movie not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load movie")
	}
	if !movie.IsAvailable {
		return pkgerrors.New(pkgerrors.CodeAvailability, "movie is not available for purchase")
	}

	owned, err := s.guard.UserOwnsMovie(ctx, userID, movieID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check ownership")
	}
	if owned {
		return pkgerrors.New(pkgerrors.CodeConflict, "movie already purchased")
	}
	pending, err := s.guard.MoviePendingInOrder(ctx, userID, movieID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check pending orders")
	}
	if pending {
		return pkgerrors.New(pkgerrors.CodeConflict, "movie already sits in an open order")
	}

	item := &models.CartItem{UserID: userID, MovieID: movieID, Quantity: 1}
	if err := s.repo.Insert(ctx, item); err != nil {
		if dbpkg.IsUniqueViolation(err, "idx_cart_user_movie") {
			return pkgerrors.New(pkgerrors.CodeConflict, "movie already in cart")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart item")
	}
	return nil
}

func (s *service) RemoveItem(ctx context.Context, userID, movieID uuid.UUID) error {
	removed, err := s.repo.Delete(ctx, userID, movieID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	if removed == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "movie is not in the cart")
	}
	return nil
}

func (s *service) SetQuantity(ctx context.Context, userID, movieID uuid.UUID, quantity int) error {
	if quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	updated, err := s.repo.UpdateQuantity(ctx, userID, movieID, quantity)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart quantity")
	}
	if updated == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "movie is not in the cart")
	}
	return nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*View, error) {
	items, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	view := &View{Total: decimal.Zero}
	for _, item := range items {
		row := ItemView{
			MovieID:  item.MovieID,
			Quantity: item.Quantity,
			AddedAt:  item.CreatedAt,
		}
		if item.Movie != nil {
			row.MovieName = item.Movie.Name
			row.Price = item.Movie.Price
			view.Total = view.Total.Add(item.Movie.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
		view.Items = append(view.Items, row)
	}
	return view, nil
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.DeleteForUser(ctx, tx, userID)
	})
}
