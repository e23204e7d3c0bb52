package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/shopping-request-api/internal/models"
	appErrors "github.com/noah-isme/shopping-request-api/pkg/errors"
	"github.com/noah-isme/shopping-request-api/pkg/middleware/requestid"
)

func perform(t *testing.T, handler gin.HandlerFunc) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", requestid.Middleware(), func(c *gin.Context) {
		Track(c)
		c.Next()
	}, handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func TestJSONMergesStoredMeta(t *testing.T) {
	rec, env := perform(t, func(c *gin.Context) {
		SetMeta(c, "cache_hit", false)
		JSON(c, http.StatusOK, gin.H{"number": "SC20250001"}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, map[string]interface{}{"scope": "own"})
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "req-42", env.Meta["request_id"])
	assert.Equal(t, false, env.Meta["cache_hit"])
	assert.Equal(t, "own", env.Meta["scope"])
	assert.Contains(t, env.Meta, "processing_time_ms")
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.TotalCount)
}

func TestErrorUsesStatusFromError(t *testing.T) {
	rec, env := perform(t, func(c *gin.Context) {
		Error(c, appErrors.Clone(appErrors.ErrInvalidTransition, "request is already approved"))
	})

	require.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, env.Error.Code)
	assert.Equal(t, "req-42", env.Meta["request_id"])
	assert.Nil(t, env.Data)
}

func TestErrorHidesUnknownErrors(t *testing.T) {
	rec, env := perform(t, func(c *gin.Context) {
		Error(c, errors.New("pq: connection reset"))
	})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, appErrors.ErrInternal.Code, env.Error.Code)
}
