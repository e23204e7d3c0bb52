package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/shopping-request-api/api/swagger"
	"github.com/noah-isme/shopping-request-api/internal/handler"
	"github.com/noah-isme/shopping-request-api/internal/realtime"
	"github.com/noah-isme/shopping-request-api/internal/repository"
	"github.com/noah-isme/shopping-request-api/internal/sequence"
	"github.com/noah-isme/shopping-request-api/internal/service"
	"github.com/noah-isme/shopping-request-api/internal/workflow"
	"github.com/noah-isme/shopping-request-api/pkg/cache"
	"github.com/noah-isme/shopping-request-api/pkg/config"
	"github.com/noah-isme/shopping-request-api/pkg/database"
	"github.com/noah-isme/shopping-request-api/pkg/jobs"
	"github.com/noah-isme/shopping-request-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/shopping-request-api/pkg/middleware/cors"
	"github.com/noah-isme/shopping-request-api/pkg/notify"
	"github.com/noah-isme/shopping-request-api/pkg/storage"
)

// @title Shopping Request API
// @version 1.0.0
// @description Shopping request approval workflow: numbering, lifecycle transitions, exports and notifications.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	profileRepo := repository.NewProfileRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	requestRepo := repository.NewRequestRepository(db, cfg.Requests.AssignedApproverOnly)
	sequenceRepo := repository.NewSequenceRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, "shopping", logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.CacheEnabled)

	store, err := sequenceStore(ctx, cfg, sequenceRepo, requestRepo, redisClient)
	if err != nil {
		logr.Fatal("failed to prepare sequence store", zap.Error(err))
	}
	numbers, err := sequence.NewGenerator(cfg.Requests.NumberPrefix, store)
	if err != nil {
		logr.Fatal("invalid request number prefix", zap.Error(err))
	}

	authSvc := service.NewAuthService(profileRepo, auditRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	profileSvc := service.NewProfileService(profileRepo, auditRepo, validate, logr)

	var mailer notify.Mailer = notify.NewLogMailer(logr)
	if cfg.Notifications.Enabled {
		smtp, err := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.Notifications.Host,
			Port:     cfg.Notifications.Port,
			Username: cfg.Notifications.Username,
			Password: cfg.Notifications.Password,
			From:     cfg.Notifications.From,
		})
		if err != nil {
			logr.Fatal("invalid smtp configuration", zap.Error(err))
		}
		mailer = smtp
	}
	notifications := service.NewNotificationService(profileRepo, mailer, metrics, logr, service.NotificationConfig{AppURL: cfg.Notifications.AppURL})
	notifyQueue := jobs.NewQueue("notifications", notifications.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		MaxRetries: cfg.Notifications.Retries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
		DeadLetter: notifications.DeadLetter,
	})
	notifications.SetQueue(notifyQueue)
	notifyQueue.Start(ctx)
	defer notifyQueue.Stop()

	requestOpts := []service.RequestOption{
		service.WithRequestNotifier(notifications),
		service.WithRequestCache(cacheSvc),
		service.WithRequestMetrics(metrics),
	}
	var hub *realtime.Hub
	if cfg.Realtime.Enabled {
		hub = realtime.NewHub(logr,
			realtime.WithClientGauge(metrics.SetRealtimeClients),
			realtime.WithOriginCheck(corsmiddleware.CheckOrigin(cfg.CORS.AllowedOrigins)),
		)
		go hub.Run(ctx)
		requestOpts = append(requestOpts, service.WithRequestPublisher(hub))
	}

	requestSvc := service.NewRequestService(requestRepo, numbers, profileRepo, auditRepo, validate, logr, service.RequestConfig{
		Policy:                  workflow.Policy{AssignedApproverOnly: cfg.Requests.AssignedApproverOnly},
		RejectionPlaceholder:    cfg.Requests.RejectionPlaceholder,
		CancellationPlaceholder: cfg.Requests.CancellationPlaceholder,
	}, requestOpts...)

	dashboardSvc := service.NewDashboardService(requestRepo, cacheSvc, logr, service.DashboardServiceConfig{
		CacheTTL:     cfg.Dashboard.CacheTTL,
		NumberPrefix: cfg.Requests.NumberPrefix,
	})

	exportStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	exportSvc := service.NewExportService(service.ExportServiceParams{
		Requests: requestSvc,
		Profiles: profileRepo,
		Storage:  exportStorage,
		Signer:   storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
		Audit:    auditRepo,
		Metrics:  metrics,
		Logger:   logr,
		Config:   service.ExportConfig{APIPrefix: cfg.APIPrefix},
	})
	go exportSvc.RunCleanup(ctx, cfg.Exports.CleanupInterval)

	checks := map[string]handler.Pinger{"database": db}
	if redisClient != nil {
		checks["redis"] = cache.Probe{Client: redisClient}
	}

	r := newRouter(cfg, logr, routerDeps{
		auth:      authSvc,
		metrics:   metrics,
		audit:     auditRepo,
		hub:       hub,
		health:    handler.NewMetricsHandler(metrics, checks),
		auths:     handler.NewAuthHandler(authSvc),
		profiles:  handler.NewProfileHandler(profileSvc),
		requests:  handler.NewRequestHandler(requestSvc),
		exports:   handler.NewExportHandler(exportSvc),
		dashboard: handler.NewDashboardHandler(dashboardSvc),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func sequenceStore(ctx context.Context, cfg *config.Config, repo *repository.SequenceRepository, requests *repository.RequestRepository, client *redis.Client) (sequence.Store, error) {
	switch cfg.Requests.SequenceBackend {
	case config.SequenceBackendRedis:
		return sequence.NewRedisStore(client, ""), nil
	case config.SequenceBackendMemory:
		store := sequence.NewMemoryStore(repo.Save)
		year := time.Now().UTC().Year()
		last, err := requests.MaxIssued(ctx, cfg.Requests.NumberPrefix, year)
		if err != nil {
			return nil, err
		}
		store.Seed(year, last)
		return store, nil
	default:
		return repo, nil
	}
}
