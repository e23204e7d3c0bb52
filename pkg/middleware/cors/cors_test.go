package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newRouter(origins []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(origins))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestAllowedOriginEchoed(t *testing.T) {
	r := newRouter([]string{"https://procure.example.com/"})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://procure.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "https://procure.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownOriginForbidden(t *testing.T) {
	r := newRouter([]string{"https://procure.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestEmptyListAllowsAll(t *testing.T) {
	r := newRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://anything.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCheckOriginFollowsAllowList(t *testing.T) {
	check := CheckOrigin([]string{"https://procure.example.com/"})
	upgrade := func(origin string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "http://api.example.com/api/v1/ws", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		return req
	}

	require.True(t, check(upgrade("https://procure.example.com")))
	require.True(t, check(upgrade("https://PROCURE.example.com")))
	require.True(t, check(upgrade("")))
	require.True(t, check(upgrade("http://api.example.com")))
	require.False(t, check(upgrade("https://evil.example.com")))

	require.True(t, CheckOrigin(nil)(upgrade("https://anything.example.com")))
}
