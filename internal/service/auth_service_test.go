package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/shopping-request-api/internal/models"
	appErrors "github.com/noah-isme/shopping-request-api/pkg/errors"
)

type mockAuthRepo struct {
	profile          *models.Profile
	findErr          error
	lastLoginUpdated bool
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.Profile, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.profile, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.profile, nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

type auditStub struct {
	logs []*models.AuditLog
	err  error
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return a.err
}

func newProfileWithPassword(t *testing.T, password string, role models.Role) *models.Profile {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.Profile{ID: "u-1", Email: "user@example.com", PasswordHash: string(hash), DisplayName: "User", Role: role, Active: true}
}

func newAuthService(repo *mockAuthRepo, audit *auditStub) *AuthService {
	return NewAuthService(repo, audit, nil, nil, AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, Issuer: "shopping-request-api"})
}

func TestLoginIssuesTokenCarryingRole(t *testing.T) {
	repo := &mockAuthRepo{profile: newProfileWithPassword(t, "password", models.RoleManager)}
	audit := &auditStub{}
	svc := newAuthService(repo, audit)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.True(t, repo.lastLoginUpdated)
	require.Len(t, audit.logs, 1)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.RoleManager, claims.Role)
	assert.Equal(t, "u-1", claims.UserID)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	repo := &mockAuthRepo{profile: newProfileWithPassword(t, "password", models.RoleUser)}
	svc := newAuthService(repo, &auditStub{})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "wrong"})
	require.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	repo.findErr = sql.ErrNoRows
	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "password"})
	require.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: "x"})
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestLoginInactiveProfile(t *testing.T) {
	profile := newProfileWithPassword(t, "password", models.RoleUser)
	profile.Active = false
	svc := newAuthService(&mockAuthRepo{profile: profile}, &auditStub{})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.ErrorIs(t, err, appErrors.ErrInactiveAccount)
}

func TestLoginAuditFailureIsNotFatal(t *testing.T) {
	repo := &mockAuthRepo{profile: newProfileWithPassword(t, "password", models.RoleUser)}
	svc := newAuthService(repo, &auditStub{err: errors.New("audit down")})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.NoError(t, err)
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	repo := &mockAuthRepo{profile: newProfileWithPassword(t, "password", models.RoleUser)}
	issuer := NewAuthService(repo, nil, nil, nil, AuthConfig{AccessTokenSecret: "other", AccessTokenExpiry: time.Hour, Issuer: "shopping-request-api"})
	resp, err := issuer.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.NoError(t, err)

	_, err = newAuthService(repo, nil).ValidateToken(resp.AccessToken)
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestMe(t *testing.T) {
	repo := &mockAuthRepo{profile: newProfileWithPassword(t, "password", models.RoleProcurement)}
	svc := newAuthService(repo, nil)

	info, err := svc.Me(context.Background(), &models.JWTClaims{UserID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleProcurement, info.Role)

	_, err = svc.Me(context.Background(), nil)
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
