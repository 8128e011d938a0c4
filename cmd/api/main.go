package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/counselign/counselign-api/api/swagger"
	"github.com/counselign/counselign-api/internal/handler"
	"github.com/counselign/counselign-api/internal/middleware"
	"github.com/counselign/counselign-api/internal/models"
	"github.com/counselign/counselign-api/internal/repository"
	"github.com/counselign/counselign-api/internal/service"
	"github.com/counselign/counselign-api/pkg/cache"
	"github.com/counselign/counselign-api/pkg/config"
	"github.com/counselign/counselign-api/pkg/database"
	"github.com/counselign/counselign-api/pkg/logger"
	corsmiddleware "github.com/counselign/counselign-api/pkg/middleware/cors"
	reqidmiddleware "github.com/counselign/counselign-api/pkg/middleware/requestid"
)

// @title Counselign API
// @version 1.0.0
// @description Guidance counseling portal: appointments, announcements, events, messaging activity and notifications
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
	cacheEnabled := err == nil
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
	} else {
		defer redisClient.Close() //nolint:errcheck
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	eventRepo := repository.NewEventRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	quoteRepo := repository.NewQuoteRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, 10*time.Minute, logr, cacheEnabled)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "counselign-api",
	})
	notificationSvc := service.NewNotificationService(service.NotificationServiceParams{
		Events:        eventRepo,
		Announcements: announcementRepo,
		Appointments:  appointmentRepo,
		Messages:      messageRepo,
		Users:         userRepo,
		Store:         notificationRepo,
		Cache:         cacheSvc,
		Metrics:       metricsSvc,
		Validator:     validate,
		Logger:        logr,
		Config: service.NotificationServiceConfig{
			LookbackDays:      cfg.Notifications.LookbackDays,
			FeedLimit:         cfg.Notifications.FeedLimit,
			CounselorCacheTTL: cfg.Notifications.CounselorCacheTTL,
		},
	})
	appointmentSvc := service.NewAppointmentService(appointmentRepo, userRepo, validate, logr)
	announcementSvc := service.NewAnnouncementService(announcementRepo, validate, logr)
	eventSvc := service.NewEventService(eventRepo, validate, logr)
	quoteSvc := service.NewQuoteService(quoteRepo, userRepo, cacheSvc, validate, logr, service.QuoteServiceConfig{
		RotationCacheTTL: cfg.Quotes.RotationCacheTTL,
	})
	userSvc := service.NewUserService(userRepo, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	appointmentHandler := handler.NewAppointmentHandler(appointmentSvc)
	announcementHandler := handler.NewAnnouncementHandler(announcementSvc)
	eventHandler := handler.NewEventHandler(eventSvc)
	quoteHandler := handler.NewQuoteHandler(quoteSvc)
	userHandler := handler.NewUserHandler(userSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Reminders.Enabled {
		reminderSvc := service.NewReminderService(service.ReminderServiceParams{
			Appointments:  appointmentRepo,
			Notifications: notificationRepo,
			Notifier:      notificationSvc,
			Logger:        logr,
			Config: service.ReminderConfig{
				LeadTime:     cfg.Reminders.LeadTime,
				PollInterval: cfg.Reminders.PollInterval,
				Workers:      cfg.Reminders.WorkerConcurrency,
				MaxRetries:   cfg.Reminders.WorkerRetries,
			},
		})
		reminderSvc.Start(ctx)
	}

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

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	authed.Use(middleware.TouchActivity(userRepo, logr))

	authed.POST("/auth/logout", authHandler.Logout)
	authed.GET("/auth/me", authHandler.Me)

	authed.GET("/notifications", notificationHandler.List)
	authed.GET("/notifications/unread-count", notificationHandler.UnreadCount)
	authed.GET("/notifications/recent", notificationHandler.Recent)
	authed.PATCH("/notifications/:id/read", notificationHandler.MarkRead)
	authed.POST("/notifications", middleware.RequireRoles(models.RoleCounselor, models.RoleAdmin), notificationHandler.Create)

	authed.POST("/appointments", appointmentHandler.Book)
	authed.GET("/appointments", appointmentHandler.List)
	authed.GET("/appointments/:id", appointmentHandler.Get)
	authed.PATCH("/appointments/:id/status", middleware.RequireRoles(models.RoleCounselor, models.RoleAdmin), appointmentHandler.UpdateStatus)

	authed.GET("/announcements", announcementHandler.List)
	authed.GET("/announcements/:id", announcementHandler.Get)
	staffAnnouncements := authed.Group("/announcements", middleware.RequireRoles(models.RoleCounselor, models.RoleAdmin))
	staffAnnouncements.POST("", announcementHandler.Create)
	staffAnnouncements.PUT("/:id", announcementHandler.Update)
	staffAnnouncements.DELETE("/:id", announcementHandler.Delete)

	authed.GET("/events", eventHandler.List)
	authed.GET("/events/upcoming", eventHandler.Upcoming)
	authed.GET("/events/:id", eventHandler.Get)
	staffEvents := authed.Group("/events", middleware.RequireRoles(models.RoleCounselor, models.RoleAdmin))
	staffEvents.POST("", eventHandler.Create)
	staffEvents.PUT("/:id", eventHandler.Update)
	staffEvents.DELETE("/:id", eventHandler.Delete)

	adminUsers := authed.Group("/users", middleware.RequireRoles(models.RoleAdmin))
	adminUsers.GET("", userHandler.List)
	adminUsers.PATCH("/:id/active", userHandler.SetActive)

	authed.GET("/quotes/daily", quoteHandler.QuoteOfTheDay)
	authed.POST("/quotes", quoteHandler.Submit)
	authed.GET("/quotes/pending", middleware.RequireRoles(models.RoleAdmin), quoteHandler.Pending)
	authed.PATCH("/quotes/:id/moderate", middleware.RequireRoles(models.RoleAdmin), quoteHandler.Moderate)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
