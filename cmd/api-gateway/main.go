package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/ppl-internship-api/api/swagger"
	"github.com/noah-isme/ppl-internship-api/internal/handler"
	"github.com/noah-isme/ppl-internship-api/internal/middleware"
	"github.com/noah-isme/ppl-internship-api/internal/models"
	"github.com/noah-isme/ppl-internship-api/internal/repository"
	"github.com/noah-isme/ppl-internship-api/internal/service"
	"github.com/noah-isme/ppl-internship-api/pkg/cache"
	"github.com/noah-isme/ppl-internship-api/pkg/config"
	"github.com/noah-isme/ppl-internship-api/pkg/database"
	"github.com/noah-isme/ppl-internship-api/pkg/jobs"
	"github.com/noah-isme/ppl-internship-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/ppl-internship-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/ppl-internship-api/pkg/middleware/requestid"
	"github.com/noah-isme/ppl-internship-api/pkg/storage"
)

// @title PPL Internship API
// @version 1.0.0
// @description Teacher-training internship program backend
// @BasePath /api/v1
// @schemes http

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, cache disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	attachmentStore, err := storage.NewLocalStorage(cfg.Attachments.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init attachment storage", "error", err)
	}
	attachmentSigner := storage.NewSignedURLSigner(cfg.Attachments.SignedURLSecret, cfg.Attachments.SignedURLTTL)

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	termRepo := repository.NewTermRepository(db)
	schoolRepo := repository.NewSchoolRepository(db)
	rosterRepo := repository.NewRosterRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	completionRepo := repository.NewCompletionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Services.
	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Terms.ActiveCacheTTL, logr, true)
	}

	notificationSvc := service.NewNotificationService(notificationRepo, jobs.QueueConfig{
		Workers:    cfg.Notifications.WorkerConcurrency,
		MaxRetries: cfg.Notifications.WorkerRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	}, logr, cfg.Notifications.Enabled)

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "ppl-internship-api",
		SingleSession:      true,
	})

	termSvc := service.NewTermService(termRepo, cacheSvc, userRepo, cfg.Terms.ActiveCacheTTL, nil, logr)
	schoolSvc := service.NewSchoolService(schoolRepo, termRepo, assignmentRepo, userRepo, nil, logr)
	rosterSvc := service.NewRosterService(rosterRepo, userRepo, schoolRepo, termRepo, nil, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, termSvc, schoolRepo, rosterRepo, userRepo, userRepo, notificationSvc, nil, logr)
	activitySvc := service.NewActivityService(activityRepo, assignmentRepo, attachmentStore, attachmentSigner, service.ActivityConfig{
		MaxFileSizeBytes: cfg.Attachments.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Attachments.AllowedMIMEs,
		CountDrafts:      cfg.Ledger.CountDraftSessions,
	}, nil, logr)
	completionSvc := service.NewCompletionService(completionRepo, assignmentRepo, activityRepo, cfg.Ledger.CountDraftSessions, userRepo, notificationSvc, nil, logr)

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		exportStore, storeErr := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if storeErr != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", storeErr)
		}
		exportSigner := storage.NewSignedURLSigner(cfg.Attachments.SignedURLSecret, cfg.Attachments.SignedURLTTL)
		exportSvc = service.NewExportService(completionRepo, activityRepo, exportStore, exportSigner, service.ExportConfig{
			Enabled:   true,
			APIPrefix: cfg.APIPrefix,
		}, logr, nil, nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	termHandler := handler.NewTermHandler(termSvc)
	schoolHandler := handler.NewSchoolHandler(schoolSvc)
	rosterHandler := handler.NewRosterHandler(rosterSvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	activityHandler := handler.NewActivityHandler(activitySvc)
	completionHandler := handler.NewCompletionHandler(completionSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Signed-token downloads carry their own authorization.
	api.GET("/attachments/download", activityHandler.DownloadAttachment)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	{
		protected.POST("/auth/logout", authHandler.Logout)
		protected.POST("/auth/change-password", authHandler.ChangePassword)
		protected.GET("/auth/me", authHandler.Me)

		protected.GET("/terms", termHandler.List)
		protected.GET("/terms/active", termHandler.GetActive)
		protected.GET("/terms/:id", termHandler.Get)

		protected.GET("/schools", schoolHandler.List)
		protected.GET("/schools/:id", schoolHandler.Get)
		protected.GET("/schools/:id/capacity", schoolHandler.Capacity)
		protected.GET("/schools/:id/roster", rosterHandler.ListBySchool)

		protected.GET("/assignments", assignmentHandler.List)
		protected.GET("/assignments/me", middleware.RequireRoles(models.RoleStudent), assignmentHandler.GetMine)
		protected.GET("/assignments/:id", assignmentHandler.Get)
		protected.POST("/assignments/apply", middleware.RequireRoles(models.RoleStudent), assignmentHandler.Apply)
		protected.POST("/assignments/:id/assign-teacher", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), assignmentHandler.AssignTeacher)
		protected.POST("/assignments/:id/cancel", middleware.RequireRoles(models.RoleStudent, models.RoleAdmin), assignmentHandler.Cancel)

		protected.GET("/lesson-plans", activityHandler.ListLessonPlans)
		protected.POST("/lesson-plans", middleware.RequireRoles(models.RoleStudent), activityHandler.CreateLessonPlan)
		protected.PUT("/lesson-plans/:id", middleware.RequireRoles(models.RoleStudent), activityHandler.UpdateLessonPlan)
		protected.DELETE("/lesson-plans/:id", middleware.RequireRoles(models.RoleStudent), activityHandler.DeleteLessonPlan)

		protected.GET("/sessions", activityHandler.ListSessions)
		protected.POST("/sessions", middleware.RequireRoles(models.RoleStudent), activityHandler.CreateSession)
		protected.PUT("/sessions/:id", middleware.RequireRoles(models.RoleStudent), activityHandler.UpdateSession)
		protected.DELETE("/sessions/:id", middleware.RequireRoles(models.RoleStudent), activityHandler.DeleteSession)

		protected.GET("/activities/stats", activityHandler.Stats)
		protected.GET("/students/:id/activity/stats", middleware.RequireRoles(models.RoleAdmin, models.RoleSupervisor, models.RoleTeacher), activityHandler.StudentStats)

		protected.POST("/attachments", middleware.RequireRoles(models.RoleStudent), activityHandler.UploadAttachment)
		protected.GET("/attachments/:id/url", activityHandler.AttachmentURL)

		protected.GET("/completion-requests", completionHandler.List)
		protected.GET("/completion-requests/:id", completionHandler.Get)
		protected.POST("/completion-requests", middleware.RequireRoles(models.RoleStudent), completionHandler.Submit)
		protected.POST("/completion-requests/:id/teacher-review", middleware.RequireRoles(models.RoleTeacher), completionHandler.TeacherReview)
		protected.POST("/completion-requests/:id/supervisor-review", middleware.RequireRoles(models.RoleSupervisor), completionHandler.SupervisorReview)
		protected.POST("/completion-requests/:id/resubmit", middleware.RequireRoles(models.RoleStudent), completionHandler.Resubmit)
		protected.DELETE("/completion-requests/:id", middleware.RequireRoles(models.RoleStudent), completionHandler.Delete)

		protected.GET("/notifications", notificationHandler.List)
		protected.POST("/notifications/:id/read", notificationHandler.MarkRead)

		protected.GET("/metrics/snapshot", middleware.RequireRoles(models.RoleAdmin), metricsHandler.Snapshot)

		// Admin-only management routes.
		admin := protected.Group("")
		admin.Use(middleware.RequireRoles(models.RoleAdmin))
		{
			admin.POST("/terms", termHandler.Create)
			admin.PUT("/terms/:id", termHandler.Update)
			admin.POST("/terms/:id/activate", termHandler.Activate)
			admin.DELETE("/terms/:id", termHandler.Delete)

			admin.POST("/schools", schoolHandler.Create)
			admin.PUT("/schools/:id", schoolHandler.Update)
			admin.PUT("/schools/:id/quotas", schoolHandler.ConfigureQuota)

			admin.POST("/schools/:id/roster", rosterHandler.Add)
			admin.DELETE("/roster/:id", rosterHandler.Remove)
		}
	}

	if exportSvc != nil {
		exportHandler := handler.NewExportHandler(exportSvc)
		api.GET("/exports/download", exportHandler.Download)

		exports := api.Group("/exports")
		exports.Use(middleware.JWT(authSvc))
		exports.Use(middleware.Audit(userRepo, models.AuditActionExport, "exports"))
		{
			exports.GET("/completion-report/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleSupervisor), exportHandler.CompletionReport)
			exports.GET("/activity", exportHandler.ActivityCSV)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
