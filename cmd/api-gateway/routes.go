package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/shopping-request-api/internal/handler"
	"github.com/noah-isme/shopping-request-api/internal/middleware"
	"github.com/noah-isme/shopping-request-api/internal/models"
	"github.com/noah-isme/shopping-request-api/internal/realtime"
	"github.com/noah-isme/shopping-request-api/internal/service"
	"github.com/noah-isme/shopping-request-api/pkg/config"
	"github.com/noah-isme/shopping-request-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/shopping-request-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/shopping-request-api/pkg/middleware/requestid"
)

type routerDeps struct {
	auth    middleware.TokenValidator
	metrics *service.MetricsService
	audit   middleware.AuditWriter
	hub     *realtime.Hub

	health    *handler.MetricsHandler
	auths     *handler.AuthHandler
	profiles  *handler.ProfileHandler
	requests  *handler.RequestHandler
	exports   *handler.ExportHandler
	dashboard *handler.DashboardHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics, "/health", "/ready", "/metrics"))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", deps.health.Health)
	r.GET("/ready", deps.health.Ready)
	r.GET("/metrics", deps.health.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", deps.auths.Login)
	auth.GET("/me", middleware.JWT(deps.auth), deps.auths.Me)

	// Signed links carry their own authorisation.
	api.GET("/exports/:token",
		middleware.OptionalJWT(deps.auth),
		middleware.Audit(deps.audit, logr, models.AuditActionRequestDownload, "export", ""),
		deps.exports.Download,
	)

	if deps.hub != nil {
		api.GET("/ws", handler.NewRealtimeHandler(deps.hub, deps.auth, logr).Connect)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.auth))

	profiles := secured.Group("/profiles")
	profiles.GET("", middleware.RequireRoles(models.RoleAdmin, models.RoleProcurement), deps.profiles.List)
	profiles.POST("", middleware.RequireRoles(models.RoleAdmin), deps.profiles.Create)
	profiles.GET("/:id", middleware.RBAC(string(models.RoleAdmin), string(models.RoleProcurement), middleware.Self), deps.profiles.Get)
	profiles.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), deps.profiles.Update)
	profiles.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), deps.profiles.Delete)

	requests := secured.Group("/requests")
	requests.GET("", deps.requests.List)
	requests.POST("", deps.requests.Create)
	requests.GET("/export.csv", deps.exports.RequestsCSV)
	requests.GET("/number/:number", deps.requests.GetByNumber)
	requests.GET("/:id", deps.requests.Get)
	requests.PUT("/:id", deps.requests.Update)
	requests.DELETE("/:id", deps.requests.Delete)
	requests.GET("/:id/history", deps.requests.History)
	requests.POST("/:id/submit", deps.requests.Submit)
	requests.POST("/:id/approve", deps.requests.Approve)
	requests.POST("/:id/reject", deps.requests.Reject)
	requests.POST("/:id/cancel", deps.requests.Cancel)
	requests.POST("/:id/complete", deps.requests.Complete)
	requests.POST("/:id/export", deps.exports.RequestPDF)

	secured.GET("/dashboard/summary", deps.dashboard.Summary)
	secured.GET("/metrics/snapshot", middleware.RequireRoles(models.RoleAdmin), deps.health.Snapshot)

	return r
}
