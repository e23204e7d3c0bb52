package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shopping-request-api/pkg/response"
)

// WithResponseMeta starts the processing-time clock reported in response meta.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Track(c)
		c.Next()
	}
}

// SetCacheHit flags whether the payload was served from the summary cache.
func SetCacheHit(c *gin.Context, hit bool) {
	response.SetMeta(c, "cache_hit", hit)
	if hit {
		c.Header("X-Cache", "HIT")
		return
	}
	c.Header("X-Cache", "MISS")
}
