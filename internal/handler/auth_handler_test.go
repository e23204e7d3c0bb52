package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shopping-request-api/internal/models"
	appErrors "github.com/noah-isme/shopping-request-api/pkg/errors"
)

type fakeAuthService struct {
	lastLogin models.LoginRequest
	err       error
}

func (f *fakeAuthService) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	f.lastLogin = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.LoginResponse{AccessToken: "token", ExpiresIn: 3600}, nil
}

func (f *fakeAuthService) Me(_ context.Context, claims *models.JWTClaims) (*models.ProfileInfo, error) {
	return &models.ProfileInfo{ID: claims.UserID, Role: claims.Role}, nil
}

func TestAuthHandlerLogin(t *testing.T) {
	svc := &fakeAuthService{}
	handler := NewAuthHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/auth/login", []byte(`{"email":"rita@example.com","password":"secret"}`), nil)
	c.Request.Header.Set("User-Agent", "tests")
	handler.Login(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rita@example.com", svc.lastLogin.Email)
	assert.Equal(t, "tests", svc.lastLogin.UserAgent)
	assert.Contains(t, rec.Body.String(), `"access_token":"token"`)
}

func TestAuthHandlerLoginInvalidCredentials(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthService{err: appErrors.ErrInvalidCredentials})

	c, rec := newTestContext(http.MethodPost, "/auth/login", []byte(`{"email":"rita@example.com","password":"nope"}`), nil)
	handler.Login(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerMe(t *testing.T) {
	handler := NewAuthHandler(&fakeAuthService{})

	c, rec := newTestContext(http.MethodGet, "/auth/me", nil, nil)
	handler.Me(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newTestContext(http.MethodGet, "/auth/me", nil, managerClaims())
	handler.Me(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"manager-1"`)
}
