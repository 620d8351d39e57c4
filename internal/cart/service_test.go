package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vadimchubok/online-cinema-backend/pkg/db/models"
	pkgerrors "github.com/vadimchubok/online-cinema-backend/pkg/errors"
	"github.com/vadimchubok/online-cinema-backend/pkg/logger"
)

type fakeCartRepo struct {
	items     []models.CartItem
	insertErr error
}

func (f *fakeCartRepo) WithTx(*gorm.DB) Repository { return f }

func (f *fakeCartRepo) Insert(_ context.Context, item *models.CartItem) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.items = append(f.items, *item)
	return nil
}

func (f *fakeCartRepo) Delete(_ context.Context, userID, movieID uuid.UUID) (int64, error) {
	kept := f.items[:0]
	var removed int64
	for _, item := range f.items {
		if item.UserID == userID && item.MovieID == movieID {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	f.items = kept
	return removed, nil
}

func (f *fakeCartRepo) UpdateQuantity(_ context.Context, userID, movieID uuid.UUID, quantity int) (int64, error) {
	var updated int64
	for i := range f.items {
		if f.items[i].UserID == userID && f.items[i].MovieID == movieID {
			f.items[i].Quantity = quantity
			updated++
		}
	}
	return updated, nil
}

func (f *fakeCartRepo) ListForUser(_ context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	var out []models.CartItem
	for _, item := range f.items {
		if item.UserID == userID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeCartRepo) ListForUpdate(ctx context.Context, _ *gorm.DB, userID uuid.UUID) ([]models.CartItem, error) {
	return f.ListForUser(ctx, userID)
}

func (f *fakeCartRepo) DeleteForUser(_ context.Context, _ *gorm.DB, userID uuid.UUID) error {
	kept := f.items[:0]
	for _, item := range f.items {
		if item.UserID != userID {
			kept = append(kept, item)
		}
	}
	f.items = kept
	return nil
}

type fakeCatalog struct {
	movies map[uuid.UUID]*models.Movie
}

func (f *fakeCatalog) FindByID(_ context.Context, id uuid.UUID) (*models.Movie, error) {
	movie, ok := f.movies[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return movie, nil
}

type fakeGuard struct {
	owned   bool
	pending bool
}

func (f *fakeGuard) UserOwnsMovie(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return f.owned, nil
}

func (f *fakeGuard) MoviePendingInOrder(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return f.pending, nil
}

type noopTx struct{}

func (noopTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func availableMovie(price string) *models.Movie {
	return &models.Movie{
		ID:          uuid.New(),
		Name:        "Mirror",
		Year:        1975,
		Price:       decimal.RequireFromString(price),
		IsAvailable: true,
	}
}

func newCartService(t *testing.T, repo *fakeCartRepo, catalog *fakeCatalog, guard *fakeGuard) Service {
	t.Helper()
	svc, err := NewService(repo, catalog, guard, noopTx{}, logger.New(logger.Options{ServiceName: "cart-test"}))
	require.NoError(t, err)
	return svc
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded, "expected a coded error, got %v", err)
	assert.Equal(t, code, coded.Code())
}

func TestAddItemStoresRow(t *testing.T) {
	userID := uuid.New()
	movie := availableMovie("6.99")
	repo := &fakeCartRepo{}
	catalog := &fakeCatalog{movies: map[uuid.UUID]*models.Movie{movie.ID: movie}}

	svc := newCartService(t, repo, catalog, &fakeGuard{})
	require.NoError(t, svc.AddItem(context.Background(), userID, movie.ID))

	require.Len(t, repo.items, 1)
	assert.Equal(t, movie.ID, repo.items[0].MovieID)
	assert.Equal(t, 1, repo.items[0].Quantity)
}

func TestAddItemRejectsUnknownMovie(t *testing.T) {
	svc := newCartService(t, &fakeCartRepo{}, &fakeCatalog{movies: map[uuid.UUID]*models.Movie{}}, &fakeGuard{})

	err := svc.AddItem(context.Background(), uuid.New(), uuid.New())
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestAddItemRejectsUnavailableMovie(t *testing.T) {
	movie := availableMovie("6.99")
	movie.IsAvailable = false
	catalog := &fakeCatalog{movies: map[uuid.UUID]*models.Movie{movie.ID: movie}}

	svc := newCartService(t, &fakeCartRepo{}, catalog, &fakeGuard{})
	err := svc.AddItem(context.Background(), uuid.New(), movie.ID)
	assertCode(t, err, pkgerrors.CodeAvailability)
}

func TestAddItemRejectsOwnedMovie(t *testing.T) {
	movie := availableMovie("6.99")
	catalog := &fakeCatalog{movies: map[uuid.UUID]*models.Movie{movie.ID: movie}}

	svc := newCartService(t, &fakeCartRepo{}, catalog, &fakeGuard{owned: true})
	err := svc.AddItem(context.Background(), uuid.New(), movie.ID)
	assertCode(t, err, pkgerrors.CodeConflict)
}

func TestAddItemRejectsMovieInOpenOrder(t *testing.T) {
	movie := availableMovie("6.99")
	catalog := &fakeCatalog{movies: map[uuid.UUID]*models.Movie{movie.ID: movie}}

	svc := newCartService(t, &fakeCartRepo{}, catalog, &fakeGuard{pending: true})
	err := svc.AddItem(context.Background(), uuid.New(), movie.ID)
	assertCode(t, err, pkgerrors.CodeConflict)
}

func TestAddItemMapsDuplicateRowToConflict(t *testing.T) {
	movie := availableMovie("6.99")
	catalog := &fakeCatalog{movies: map[uuid.UUID]*models.Movie{movie.ID: movie}}
	repo := &fakeCartRepo{insertErr: errors.New(`duplicate key value violates unique constraint "idx_cart_user_movie"`)}

	svc := newCartService(t, repo, catalog, &fakeGuard{})
	err := svc.AddItem(context.Background(), uuid.New(), movie.ID)
	assertCode(t, err, pkgerrors.CodeConflict)
}

func TestSetQuantityUpdatesRow(t *testing.T) {
	userID := uuid.New()
	movieID := uuid.New()
	repo := &fakeCartRepo{items: []models.CartItem{{UserID: userID, MovieID: movieID, Quantity: 1}}}

	svc := newCartService(t, repo, &fakeCatalog{}, &fakeGuard{})
	require.NoError(t, svc.SetQuantity(context.Background(), userID, movieID, 3))
	assert.Equal(t, 3, repo.items[0].Quantity)
}

func TestSetQuantityRejectsBelowOne(t *testing.T) {
	svc := newCartService(t, &fakeCartRepo{}, &fakeCatalog{}, &fakeGuard{})

	err := svc.SetQuantity(context.Background(), uuid.New(), uuid.New(), 0)
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestSetQuantityMissingRowIsNotFound(t *testing.T) {
	svc := newCartService(t, &fakeCartRepo{}, &fakeCatalog{}, &fakeGuard{})

	err := svc.SetQuantity(context.Background(), uuid.New(), uuid.New(), 2)
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestRemoveItemMissingRowIsNotFound(t *testing.T) {
	svc := newCartService(t, &fakeCartRepo{}, &fakeCatalog{}, &fakeGuard{})

	err := svc.RemoveItem(context.Background(), uuid.New(), uuid.New())
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestRemoveItemDeletesRow(t *testing.T) {
	userID := uuid.New()
	movieID := uuid.New()
	repo := &fakeCartRepo{items: []models.CartItem{{UserID: userID, MovieID: movieID, Quantity: 1}}}

	svc := newCartService(t, repo, &fakeCatalog{}, &fakeGuard{})
	require.NoError(t, svc.RemoveItem(context.Background(), userID, movieID))
	assert.Empty(t, repo.items)
}

func TestGetComputesTotalFromCurrentPrices(t *testing.T) {
	userID := uuid.New()
	first := availableMovie("4.00")
	second := availableMovie("5.50")
	repo := &fakeCartRepo{items: []models.CartItem{
		{UserID: userID, MovieID: first.ID, Quantity: 1, Movie: first, CreatedAt: time.Now()},
		{UserID: userID, MovieID: second.ID, Quantity: 2, Movie: second, CreatedAt: time.Now()},
	}}

	svc := newCartService(t, repo, &fakeCatalog{}, &fakeGuard{})
	view, err := svc.Get(context.Background(), userID)
	require.NoError(t, err)

	require.Len(t, view.Items, 2)
	assert.True(t, view.Total.Equal(decimal.RequireFromString("15.00")), "total %s", view.Total)
}

func TestGetEmptyCart(t *testing.T) {
	svc := newCartService(t, &fakeCartRepo{}, &fakeCatalog{}, &fakeGuard{})

	view, err := svc.Get(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.True(t, view.Total.IsZero())
}

func TestClearRemovesOnlyOwnRows(t *testing.T) {
	userID := uuid.New()
	otherID := uuid.New()
	repo := &fakeCartRepo{items: []models.CartItem{
		{UserID: userID, MovieID: uuid.New()},
		{UserID: otherID, MovieID: uuid.New()},
	}}

	svc := newCartService(t, repo, &fakeCatalog{}, &fakeGuard{})
	require.NoError(t, svc.Clear(context.Background(), userID))

	require.Len(t, repo.items, 1)
	assert.Equal(t, otherID, repo.items[0].UserID)
}
