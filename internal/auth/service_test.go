package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	pkgauth "github.com/vadimchubok/online-cinema-backend/pkg/auth"
	"github.com/vadimchubok/online-cinema-backend/pkg/auth/session"
	"github.com/vadimchubok/online-cinema-backend/pkg/config"
	"github.com/vadimchubok/online-cinema-backend/pkg/db/models"
	"github.com/vadimchubok/online-cinema-backend/pkg/enums"
	pkgerrors "github.com/vadimchubok/online-cinema-backend/pkg/errors"
	"github.com/vadimchubok/online-cinema-backend/pkg/logger"
	"github.com/vadimchubok/online-cinema-backend/pkg/outbox"
	"github.com/vadimchubok/online-cinema-backend/pkg/outbox/payloads"
	"github.com/vadimchubok/online-cinema-backend/pkg/security"
)

type fakeUserRepo struct {
	users     map[uuid.UUID]*models.User
	updates   map[string]any
	createErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*models.User)}
}

func (f *fakeUserRepo) WithTx(*gorm.DB) Repository { return f }

func (f *fakeUserRepo) Create(_ context.Context, user *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserRepo) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) Update(_ context.Context, id uuid.UUID, updates map[string]any) error {
	f.updates = updates
	if user, ok := f.users[id]; ok {
		if active, ok := updates["is_active"].(bool); ok {
			user.IsActive = active
		}
	}
	return nil
}

func (f *fakeUserRepo) DeleteNeverActivatedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type passTx struct{}

func (passTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

type recordingOutbox struct {
	events []outbox.DomainEvent
}

func (r *recordingOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

type fakeSessions struct {
	rotateErr error
	revoked   []string
	generated []string
}

func (f *fakeSessions) Generate(_ context.Context, accessID string) (string, error) {
	f.generated = append(f.generated, accessID)
	return "refresh-" + accessID, nil
}

func (f *fakeSessions) Rotate(_ context.Context, oldAccessID, provided string) (string, string, error) {
	if f.rotateErr != nil {
		return "", "", f.rotateErr
	}
	newID := session.NewAccessID()
	return newID, "refresh-" + newID, nil
}

func (f *fakeSessions) Revoke(_ context.Context, accessID string) error {
	f.revoked = append(f.revoked, accessID)
	return nil
}

type fakeTokenStore struct {
	values map[string]string
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{values: make(map[string]string)}
}

func (f *fakeTokenStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.values[key] = value.(string)
	return nil
}

func (f *fakeTokenStore) Get(_ context.Context, key string) (string, error) {
	value, ok := f.values[key]
	if !ok {
		return "", redislib.Nil
	}
	return value, nil
}

func (f *fakeTokenStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func (f *fakeTokenStore) ActivationTokenKey(token string) string {
	return "oc:activation:" + token
}

type authFixture struct {
	svc      Service
	repo     *fakeUserRepo
	outbox   *recordingOutbox
	sessions *fakeSessions
	tokens   *fakeTokenStore
}

var testJWT = config.JWTConfig{
	Secret:            "test-secret",
	Issuer:            "cinema-test",
	ExpirationMinutes: 15,
}

// Small argon parameters keep the hashing in tests fast.
var testPassword = config.PasswordConfig{
	ArgonMemoryKB:    1024,
	ArgonTime:        1,
	ArgonParallelism: 1,
	ArgonSaltLen:     16,
	ArgonKeyLen:      32,
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	f := &authFixture{
		repo:     newFakeUserRepo(),
		outbox:   &recordingOutbox{},
		sessions: &fakeSessions{},
		tokens:   newFakeTokenStore(),
	}
	svc, err := NewService(ServiceParams{
		Repo:     f.repo,
		Tx:       passTx{},
		Outbox:   f.outbox,
		Sessions: f.sessions,
		Redis:    f.tokens,
		JWT:      testJWT,
		Password: testPassword,
		Logger:   logger.New(logger.Options{ServiceName: "auth-test"}),
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *authFixture) seedUser(t *testing.T, email, password string, active bool) *models.User {
	t.Helper()
	hash, err := security.HashPassword(password, testPassword)
	require.NoError(t, err)
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Group:        enums.UserGroupUser,
		IsActive:     active,
	}
	f.repo.users[user.ID] = user
	return user
}

func expectCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	coded := pkgerrors.As(err)
	require.NotNil(t, coded, "expected a coded error, got %v", err)
	assert.Equal(t, code, coded.Code())
}

func TestRegisterCreatesInactiveAccount(t *testing.T) {
	f := newAuthFixture(t)

	user, err := f.svc.Register(context.Background(), RegisterInput{
		Email:    "  Viewer@Example.COM ",
		Password: "correct horse",
	})
	require.NoError(t, err)

	assert.Equal(t, "viewer@example.com", user.Email)
	assert.False(t, user.IsActive)
	assert.Equal(t, enums.UserGroupUser, user.Group)
	assert.NotEqual(t, "correct horse", user.PasswordHash)

	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, enums.OutboxEventUserRegistered, f.outbox.events[0].EventType)
	payload, ok := f.outbox.events[0].Data.(payloads.UserRegisteredEvent)
	require.True(t, ok)
	assert.NotEmpty(t, payload.ActivationToken)

	stored, err := f.tokens.Get(context.Background(), f.tokens.ActivationTokenKey(payload.ActivationToken))
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), stored)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Register(context.Background(), RegisterInput{Email: "a@b.c", Password: "short"})
	expectCode(t, err, pkgerrors.CodeValidation)
	assert.Empty(t, f.outbox.events)
}

func TestRegisterRejectsEmptyEmail(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Register(context.Background(), RegisterInput{Email: "   ", Password: "long enough"})
	expectCode(t, err, pkgerrors.CodeValidation)
}

func TestRegisterDuplicateEmailIsConflict(t *testing.T) {
	f := newAuthFixture(t)
	f.repo.createErr = errors.New(`duplicate key value violates unique constraint "ux_users_email"`)

	_, err := f.svc.Register(context.Background(), RegisterInput{Email: "a@b.c", Password: "long enough"})
	expectCode(t, err, pkgerrors.CodeConflict)
}

func TestActivateFlipsAccountAndConsumesToken(t *testing.T) {
	f := newAuthFixture(t)
	user := f.seedUser(t, "a@b.c", "long enough", false)
	key := f.tokens.ActivationTokenKey("tok123")
	f.tokens.values[key] = user.ID.String()

	require.NoError(t, f.svc.Activate(context.Background(), "tok123"))

	assert.True(t, f.repo.users[user.ID].IsActive)
	assert.NotContains(t, f.tokens.values, key)
	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, enums.OutboxEventUserActivated, f.outbox.events[0].EventType)
}

func TestActivateUnknownTokenIsUnauthorized(t *testing.T) {
	f := newAuthFixture(t)

	err := f.svc.Activate(context.Background(), "missing")
	expectCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestActivateAlreadyActiveAccountIsIdempotent(t *testing.T) {
	f := newAuthFixture(t)
	user := f.seedUser(t, "a@b.c", "long enough", true)
	key := f.tokens.ActivationTokenKey("tok123")
	f.tokens.values[key] = user.ID.String()

	require.NoError(t, f.svc.Activate(context.Background(), "tok123"))
	assert.Empty(t, f.outbox.events)
	assert.NotContains(t, f.tokens.values, key)
}

func TestLoginIssuesTokenPair(t *testing.T) {
	f := newAuthFixture(t)
	user := f.seedUser(t, "a@b.c", "long enough", true)

	pair, err := f.svc.Login(context.Background(), LoginInput{Email: "a@b.c", Password: "long enough"})
	require.NoError(t, err)

	claims, err := pkgauth.ParseAccessToken(testJWT, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, enums.UserGroupUser, claims.Group)

	require.Len(t, f.sessions.generated, 1)
	assert.Equal(t, "refresh-"+claims.ID, pair.RefreshToken)
	assert.Contains(t, f.repo.updates, "last_login_at")
}

func TestLoginWrongPasswordIsUnauthorized(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "a@b.c", "long enough", true)

	_, err := f.svc.Login(context.Background(), LoginInput{Email: "a@b.c", Password: "wrong password"})
	expectCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestLoginUnknownEmailIsUnauthorized(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Login(context.Background(), LoginInput{Email: "nobody@b.c", Password: "whatever123"})
	expectCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestLoginInactiveAccountIsForbidden(t *testing.T) {
	f := newAuthFixture(t)
	f.seedUser(t, "a@b.c", "long enough", false)

	_, err := f.svc.Login(context.Background(), LoginInput{Email: "a@b.c", Password: "long enough"})
	expectCode(t, err, pkgerrors.CodeForbidden)
}

func TestRefreshRotatesSession(t *testing.T) {
	f := newAuthFixture(t)
	user := f.seedUser(t, "a@b.c", "long enough", true)

	oldID := session.NewAccessID()
	access, err := pkgauth.MintAccessToken(testJWT, time.Now(), pkgauth.AccessTokenPayload{
		UserID: user.ID,
		Group:  user.Group,
		JTI:    oldID,
	})
	require.NoError(t, err)

	pair, err := f.svc.Refresh(context.Background(), RefreshInput{
		AccessToken:  access,
		RefreshToken: "refresh-" + oldID,
	})
	require.NoError(t, err)

	claims, err := pkgauth.ParseAccessToken(testJWT, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.NotEqual(t, oldID, claims.ID)
	assert.Equal(t, "refresh-"+claims.ID, pair.RefreshToken)
}

func TestRefreshInvalidRefreshTokenIsUnauthorized(t *testing.T) {
	f := newAuthFixture(t)
	user := f.seedUser(t, "a@b.c", "long enough", true)
	f.sessions.rotateErr = session.ErrInvalidRefreshToken

	access, err := pkgauth.MintAccessToken(testJWT, time.Now(), pkgauth.AccessTokenPayload{
		UserID: user.ID,
		Group:  user.Group,
		JTI:    session.NewAccessID(),
	})
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), RefreshInput{AccessToken: access, RefreshToken: "bogus"})
	expectCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestRefreshGarbageAccessTokenIsUnauthorized(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Refresh(context.Background(), RefreshInput{AccessToken: "not-a-jwt", RefreshToken: "x"})
	expectCode(t, err, pkgerrors.CodeUnauthorized)
}

func TestLogoutRevokesSession(t *testing.T) {
	f := newAuthFixture(t)

	require.NoError(t, f.svc.Logout(context.Background(), "access-1"))
	assert.Equal(t, []string{"access-1"}, f.sessions.revoked)
}
