package interactions

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vadimchubok/online-cinema-backend/pkg/db/models"
	"github.com/vadimchubok/online-cinema-backend/pkg/enums"
	pkgerrors "github.com/vadimchubok/online-cinema-backend/pkg/errors"
	"github.com/vadimchubok/online-cinema-backend/pkg/logger"
	"github.com/vadimchubok/online-cinema-backend/pkg/pagination"
)

type fakeInteractionsRepo struct {
	favorites      []models.Favorite
	reactions      map[uuid.UUID]models.MovieReaction
	comments       map[uuid.UUID]*models.Comment
	ratings        map[uuid.UUID]int
	addFavoriteErr error
}

func newFakeInteractionsRepo() *fakeInteractionsRepo {
	return &fakeInteractionsRepo{
		reactions: make(map[uuid.UUID]models.MovieReaction),
		comments:  make(map[uuid.UUID]*models.Comment),
		ratings:   make(map[uuid.UUID]int),
	}
}

func (f *fakeInteractionsRepo) WithTx(*gorm.DB) Repository { return f }

func (f *fakeInteractionsRepo) AddFavorite(_ context.Context, fav *models.Favorite) error {
	if f.addFavoriteErr != nil {
		return f.addFavoriteErr
	}
	f.favorites = append(f.favorites, *fav)
	return nil
}

func (f *fakeInteractionsRepo) RemoveFavorite(_ context.Context, userID, movieID uuid.UUID) (int64, error) {
	kept := f.favorites[:0]
	var removed int64
	for _, fav := range f.favorites {
		if fav.UserID == userID && fav.MovieID == movieID {
			removed++
			continue
		}
		kept = append(kept, fav)
	}
	f.favorites = kept
	return removed, nil
}

func (f *fakeInteractionsRepo) ListFavorites(_ context.Context, userID uuid.UUID, _ pagination.Params) ([]models.Favorite, string, error) {
	var out []models.Favorite
	for _, fav := range f.favorites {
		if fav.UserID == userID {
			out = append(out, fav)
		}
	}
	return out, "", nil
}

func (f *fakeInteractionsRepo) UpsertReaction(_ context.Context, reaction *models.MovieReaction) error {
	f.reactions[reaction.UserID] = *reaction
	return nil
}

func (f *fakeInteractionsRepo) RemoveReaction(_ context.Context, userID, _ uuid.UUID) (int64, error) {
	if _, ok := f.reactions[userID]; !ok {
		return 0, nil
	}
	delete(f.reactions, userID)
	return 1, nil
}

func (f *fakeInteractionsRepo) CountReactions(_ context.Context, movieID uuid.UUID) (*ReactionCounts, error) {
	counts := &ReactionCounts{}
	for _, reaction := range f.reactions {
		if reaction.MovieID != movieID {
			continue
		}
		if reaction.Reaction == enums.ReactionTypeLike {
			counts.Likes++
		} else {
			counts.Dislikes++
		}
	}
	return counts, nil
}

func (f *fakeInteractionsRepo) CreateComment(_ context.Context, comment *models.Comment) error {
	if comment.ID == uuid.Nil {
		comment.ID = uuid.New()
	}
	f.comments[comment.ID] = comment
	return nil
}

func (f *fakeInteractionsRepo) FindComment(_ context.Context, id uuid.UUID) (*models.Comment, error) {
	comment, ok := f.comments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return comment, nil
}

func (f *fakeInteractionsRepo) DeleteComment(_ context.Context, id uuid.UUID) error {
	delete(f.comments, id)
	return nil
}

func (f *fakeInteractionsRepo) ListComments(_ context.Context, movieID uuid.UUID, _ pagination.Params) ([]models.Comment, string, error) {
	var out []models.Comment
	for _, comment := range f.comments {
		if comment.MovieID == movieID {
			out = append(out, *comment)
		}
	}
	return out, "", nil
}

func (f *fakeInteractionsRepo) UpsertRating(_ context.Context, rating *models.Rating) error {
	f.ratings[rating.UserID] = rating.Score
	return nil
}

func (f *fakeInteractionsRepo) AverageRating(context.Context, uuid.UUID) (float64, int64, error) {
	if len(f.ratings) == 0 {
		return 0, 0, nil
	}
	var sum int
	for _, score := range f.ratings {
		sum += score
	}
	return float64(sum) / float64(len(f.ratings)), int64(len(f.ratings)), nil
}

type knownMovies struct {
	ids map[uuid.UUID]bool
}

func (k *knownMovies) FindByID(_ context.Context, id uuid.UUID) (*models.Movie, error) {
	if !k.ids[id] {
		return nil, gorm.ErrRecordNotFound
	}
	return &models.Movie{ID: id, Name: "Nostalghia", Year: 1983}, nil
}

type interactionsFixture struct {
	svc     Service
	repo    *fakeInteractionsRepo
	movieID uuid.UUID
}

func newInteractionsFixture(t *testing.T) *interactionsFixture {
	t.Helper()
	movieID := uuid.New()
	repo := newFakeInteractionsRepo()
	svc, err := NewService(ServiceParams{
		Repo:   repo,
		Movies: &knownMovies{ids: map[uuid.UUID]bool{movieID: true}},
		Logger: logger.New(logger.Options{ServiceName: "interactions-test"}),
	})
	require.NoError(t, err)
	return &interactionsFixture{svc: svc, repo: repo, movieID: movieID}
}

func checkCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded, "expected a coded error, got %v", err)
	assert.Equal(t, code, coded.Code())
}

func TestAddFavoriteIsIdempotent(t *testing.T) {
	f := newInteractionsFixture(t)
	userID := uuid.New()

	require.NoError(t, f.svc.AddFavorite(context.Background(), userID, f.movieID))
	require.Len(t, f.repo.favorites, 1)

	f.repo.addFavoriteErr = errors.New(`duplicate key value violates unique constraint "idx_favorites_user_movie"`)
	require.NoError(t, f.svc.AddFavorite(context.Background(), userID, f.movieID))
}

func TestAddFavoriteUnknownMovie(t *testing.T) {
	f := newInteractionsFixture(t)

	err := f.svc.AddFavorite(context.Background(), uuid.New(), uuid.New())
	checkCode(t, err, pkgerrors.CodeNotFound)
}

func TestRemoveFavoriteMissingRow(t *testing.T) {
	f := newInteractionsFixture(t)

	err := f.svc.RemoveFavorite(context.Background(), uuid.New(), f.movieID)
	checkCode(t, err, pkgerrors.CodeNotFound)
}

func TestReactReplacesPreviousReaction(t *testing.T) {
	f := newInteractionsFixture(t)
	userID := uuid.New()

	counts, err := f.svc.React(context.Background(), userID, f.movieID, enums.ReactionTypeLike)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Likes)

	counts, err = f.svc.React(context.Background(), userID, f.movieID, enums.ReactionTypeDislike)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Likes)
	assert.Equal(t, int64(1), counts.Dislikes)
}

func TestReactRejectsInvalidReaction(t *testing.T) {
	f := newInteractionsFixture(t)

	_, err := f.svc.React(context.Background(), uuid.New(), f.movieID, enums.ReactionType("meh"))
	checkCode(t, err, pkgerrors.CodeValidation)
}

func TestUnreactReturnsUpdatedCounts(t *testing.T) {
	f := newInteractionsFixture(t)
	userID := uuid.New()

	_, err := f.svc.React(context.Background(), userID, f.movieID, enums.ReactionTypeLike)
	require.NoError(t, err)

	counts, err := f.svc.Unreact(context.Background(), userID, f.movieID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Likes)
}

func TestAddCommentTopLevel(t *testing.T) {
	f := newInteractionsFixture(t)
	userID := uuid.New()

	view, err := f.svc.AddComment(context.Background(), userID, f.movieID, nil, "  great film  ")
	require.NoError(t, err)

	assert.Equal(t, "great film", view.Body)
	assert.Nil(t, view.ParentID)
	assert.Contains(t, f.repo.comments, view.ID)
}

func TestAddCommentReply(t *testing.T) {
	f := newInteractionsFixture(t)

	parent, err := f.svc.AddComment(context.Background(), uuid.New(), f.movieID, nil, "first")
	require.NoError(t, err)

	reply, err := f.svc.AddComment(context.Background(), uuid.New(), f.movieID, &parent.ID, "second")
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, parent.ID, *reply.ParentID)
}

func TestAddCommentRejectsEmptyBody(t *testing.T) {
	f := newInteractionsFixture(t)

	_, err := f.svc.AddComment(context.Background(), uuid.New(), f.movieID, nil, "   ")
	checkCode(t, err, pkgerrors.CodeValidation)
}

func TestAddCommentRejectsOversizedBody(t *testing.T) {
	f := newInteractionsFixture(t)

	_, err := f.svc.AddComment(context.Background(), uuid.New(), f.movieID, nil, strings.Repeat("a", maxCommentLength+1))
	checkCode(t, err, pkgerrors.CodeValidation)
}

func TestAddCommentRejectsCrossMovieParent(t *testing.T) {
	f := newInteractionsFixture(t)

	parent := &models.Comment{ID: uuid.New(), UserID: uuid.New(), MovieID: uuid.New(), Body: "elsewhere"}
	f.repo.comments[parent.ID] = parent

	_, err := f.svc.AddComment(context.Background(), uuid.New(), f.movieID, &parent.ID, "reply")
	checkCode(t, err, pkgerrors.CodeValidation)
}

func TestAddCommentRejectsMissingParent(t *testing.T) {
	f := newInteractionsFixture(t)

	missing := uuid.New()
	_, err := f.svc.AddComment(context.Background(), uuid.New(), f.movieID, &missing, "reply")
	checkCode(t, err, pkgerrors.CodeNotFound)
}

func TestDeleteCommentByAuthor(t *testing.T) {
	f := newInteractionsFixture(t)
	userID := uuid.New()

	view, err := f.svc.AddComment(context.Background(), userID, f.movieID, nil, "mine")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteComment(context.Background(), userID, enums.UserGroupUser, view.ID))
	assert.NotContains(t, f.repo.comments, view.ID)
}

func TestDeleteCommentByModerator(t *testing.T) {
	f := newInteractionsFixture(t)

	view, err := f.svc.AddComment(context.Background(), uuid.New(), f.movieID, nil, "theirs")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteComment(context.Background(), uuid.New(), enums.UserGroupModerator, view.ID))
}

func TestDeleteCommentByStrangerIsForbidden(t *testing.T) {
	f := newInteractionsFixture(t)

	view, err := f.svc.AddComment(context.Background(), uuid.New(), f.movieID, nil, "theirs")
	require.NoError(t, err)

	err = f.svc.DeleteComment(context.Background(), uuid.New(), enums.UserGroupUser, view.ID)
	checkCode(t, err, pkgerrors.CodeForbidden)
	assert.Contains(t, f.repo.comments, view.ID)
}

func TestRateValidatesScoreRange(t *testing.T) {
	f := newInteractionsFixture(t)

	_, err := f.svc.Rate(context.Background(), uuid.New(), f.movieID, 0)
	checkCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.Rate(context.Background(), uuid.New(), f.movieID, 11)
	checkCode(t, err, pkgerrors.CodeValidation)
}

func TestRateAggregatesScores(t *testing.T) {
	f := newInteractionsFixture(t)

	_, err := f.svc.Rate(context.Background(), uuid.New(), f.movieID, 8)
	require.NoError(t, err)

	summary, err := f.svc.Rate(context.Background(), uuid.New(), f.movieID, 6)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Count)
	assert.InDelta(t, 7.0, summary.Average, 0.001)
}

func TestRatingForEmptyMovie(t *testing.T) {
	f := newInteractionsFixture(t)

	summary, err := f.svc.RatingFor(context.Background(), f.movieID)
	require.NoError(t, err)
	assert.Zero(t, summary.Count)
	assert.Zero(t, summary.Average)
}
