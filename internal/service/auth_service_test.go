package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/ppl-internship-api/internal/models"
	appErrors "github.com/noah-isme/ppl-internship-api/pkg/errors"
)

type mockAuthRepo struct {
	users         map[string]*models.User
	usersByEmail  map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
	revokedUsers  []string
	revokedIDs    []string
	newPassword   string
	auditActions  []string
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := m.usersByEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.newPassword = passwordHash
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedUsers = append(m.revokedUsers, userID)
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.refreshTokens[token]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	m.revokedIDs = append(m.revokedIDs, id)
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditActions = append(m.auditActions, log.Action)
	return nil
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "ppl-internship-api",
	}
}

func TestAuthLogin(t *testing.T) {
	user := &models.User{
		ID: "user-1", Email: "student@example.com", FullName: "Student One",
		Role: models.RoleStudent, Active: true,
		PasswordHash: hashPassword(t, "secret123"),
	}
	repo := &mockAuthRepo{usersByEmail: map[string]*models.User{user.Email: user}}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: user.Email, Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "user-1", resp.User.ID)
	assert.Contains(t, repo.auditActions, models.AuditActionLogin)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthLoginWrongPassword(t *testing.T) {
	user := &models.User{
		ID: "user-1", Email: "student@example.com", Active: true,
		PasswordHash: hashPassword(t, "secret123"),
	}
	repo := &mockAuthRepo{usersByEmail: map[string]*models.User{user.Email: user}}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: user.Email, Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthLoginInactiveAccount(t *testing.T) {
	user := &models.User{
		ID: "user-1", Email: "student@example.com", Active: false,
		PasswordHash: hashPassword(t, "secret123"),
	}
	repo := &mockAuthRepo{usersByEmail: map[string]*models.User{user.Email: user}}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: user.Email, Password: "secret123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthLoginUnknownEmail(t *testing.T) {
	repo := &mockAuthRepo{}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "missing@example.com", Password: "secret123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthSingleSessionRevokesPrevious(t *testing.T) {
	user := &models.User{
		ID: "user-1", Email: "student@example.com", Active: true,
		PasswordHash: hashPassword(t, "secret123"),
	}
	repo := &mockAuthRepo{usersByEmail: map[string]*models.User{user.Email: user}}
	cfg := testAuthConfig()
	cfg.SingleSession = true
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), cfg)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: user.Email, Password: "secret123"})
	require.NoError(t, err)
	assert.Contains(t, repo.revokedUsers, "user-1")
}

func TestAuthRefreshTokenRotation(t *testing.T) {
	user := &models.User{ID: "user-1", Email: "student@example.com", Role: models.RoleStudent, Active: true}
	stored := &models.RefreshToken{
		ID: "rt-1", UserID: "user-1", Token: "old-token",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	repo := &mockAuthRepo{
		users:         map[string]*models.User{user.ID: user},
		refreshTokens: map[string]*models.RefreshToken{stored.Token: stored},
	}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	resp, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEqual(t, "old-token", resp.RefreshToken)
	assert.Contains(t, repo.revokedIDs, "rt-1")
}

func TestAuthRefreshTokenExpired(t *testing.T) {
	stored := &models.RefreshToken{
		ID: "rt-1", UserID: "user-1", Token: "old-token",
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	repo := &mockAuthRepo{refreshTokens: map[string]*models.RefreshToken{stored.Token: stored}}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-token"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthLogoutForeignTokenForbidden(t *testing.T) {
	stored := &models.RefreshToken{ID: "rt-1", UserID: "user-1", Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	repo := &mockAuthRepo{refreshTokens: map[string]*models.RefreshToken{stored.Token: stored}}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	err := svc.Logout(context.Background(), "tok", "user-2", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAuthChangePassword(t *testing.T) {
	user := &models.User{ID: "user-1", Active: true, PasswordHash: hashPassword(t, "oldpass1")}
	repo := &mockAuthRepo{users: map[string]*models.User{user.ID: user}}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{OldPassword: "oldpass1", NewPassword: "newpass1"})
	require.NoError(t, err)
	assert.NotEmpty(t, repo.newPassword)
	assert.Contains(t, repo.revokedUsers, "user-1")
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.newPassword), []byte("newpass1")))
}

func TestAuthChangePasswordWrongOld(t *testing.T) {
	user := &models.User{ID: "user-1", Active: true, PasswordHash: hashPassword(t, "oldpass1")}
	repo := &mockAuthRepo{users: map[string]*models.User{user.ID: user}}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{OldPassword: "nope", NewPassword: "newpass1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAuthValidateTokenBadSecret(t *testing.T) {
	user := &models.User{
		ID: "user-1", Email: "student@example.com", Active: true,
		PasswordHash: hashPassword(t, "secret123"),
	}
	repo := &mockAuthRepo{usersByEmail: map[string]*models.User{user.Email: user}}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: user.Email, Password: "secret123"})
	require.NoError(t, err)

	other := testAuthConfig()
	other.AccessTokenSecret = "different"
	otherSvc := NewAuthService(repo, validator.New(), zap.NewNop(), other)

	_, err = otherSvc.ValidateToken(resp.AccessToken)
	assert.Error(t, err)
}
