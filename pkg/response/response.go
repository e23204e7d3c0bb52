package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shopping-request-api/internal/models"
	appErrors "github.com/noah-isme/shopping-request-api/pkg/errors"
	"github.com/noah-isme/shopping-request-api/pkg/middleware/requestid"
)

const (
	metaKey    = "response_meta"
	startedKey = "response_started_at"
)

// Envelope is the body shape of every JSON response.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// Track marks the start of request handling so the envelope can report processing time.
func Track(c *gin.Context) {
	c.Set(startedKey, time.Now())
}

// SetMeta stores a value that is merged into the envelope meta of the response.
func SetMeta(c *gin.Context, key string, value interface{}) {
	if c == nil {
		return
	}
	stored(c, true)[key] = value
}

// JSON writes data with optional pagination. Extra meta maps are merged over the stored meta.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	noStore(c)
	c.JSON(status, Envelope{Data: data, Pagination: pagination, Meta: collect(c, meta...)})
}

// Created responds with HTTP 201.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Error converts err to the public error shape and writes it with its status.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	c.JSON(appErr.Status, Envelope{Error: appErr, Meta: collect(c)})
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

func collect(c *gin.Context, extra ...map[string]interface{}) map[string]interface{} {
	meta := map[string]interface{}{}
	for k, v := range stored(c, false) {
		meta[k] = v
	}
	for _, m := range extra {
		for k, v := range m {
			meta[k] = v
		}
	}
	if id := requestid.Value(c); id != "" {
		meta["request_id"] = id
	}
	if v, ok := c.Get(startedKey); ok {
		if started, ok := v.(time.Time); ok {
			meta["processing_time_ms"] = time.Since(started).Milliseconds()
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

func stored(c *gin.Context, create bool) map[string]interface{} {
	if v, ok := c.Get(metaKey); ok {
		if m, ok := v.(map[string]interface{}); ok {
			return m
		}
	}
	if !create {
		return nil
	}
	m := map[string]interface{}{}
	c.Set(metaKey, m)
	return m
}
