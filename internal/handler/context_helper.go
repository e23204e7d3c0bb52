package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/shopping-request-api/internal/middleware"
	"github.com/noah-isme/shopping-request-api/internal/models"
	"github.com/noah-isme/shopping-request-api/internal/workflow"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.ClaimsFromContext(c)
}

func actorFromContext(c *gin.Context) (workflow.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		return workflow.Actor{}, false
	}
	return workflow.Actor{ID: claims.UserID, Role: claims.Role}, true
}
