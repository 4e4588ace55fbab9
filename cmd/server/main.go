// Package main runs the meeting scheduler HTTP server with the notification WebSocket, the embedded
// job scheduler and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/aura-erp/meeting-scheduler/api"
	"github.com/aura-erp/meeting-scheduler/config"
	"github.com/aura-erp/meeting-scheduler/internal/auth"
	"github.com/aura-erp/meeting-scheduler/internal/emaillogs"
	"github.com/aura-erp/meeting-scheduler/internal/mail"
	"github.com/aura-erp/meeting-scheduler/internal/meetings"
	"github.com/aura-erp/meeting-scheduler/internal/middleware"
	"github.com/aura-erp/meeting-scheduler/internal/notifications"
	"github.com/aura-erp/meeting-scheduler/internal/scheduler"
	"github.com/aura-erp/meeting-scheduler/internal/store"
	"github.com/aura-erp/meeting-scheduler/internal/todos"
	"github.com/aura-erp/meeting-scheduler/internal/worker"
	"github.com/aura-erp/meeting-scheduler/pkg/database"
	"github.com/aura-erp/meeting-scheduler/pkg/queue"
	"github.com/aura-erp/meeting-scheduler/pkg/redis"
	"github.com/aura-erp/meeting-scheduler/pkg/response"
	"github.com/aura-erp/meeting-scheduler/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	st, err := database.OpenStore(ctx, database.StoreOptions{
		Driver:   cfg.Store.Driver,
		DSN:      cfg.Database.DSN(),
		MaxConns: cfg.Database.MaxConns,
		BoltPath: cfg.Store.BoltPath,
	}, logger)
	if err != nil {
		logger.Fatal("store", zap.Error(err))
	}
	defer st.Close()

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var calendar meetings.CalendarPublisher
	if cfg.AWS.CalendarBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			CalendarBucket:       cfg.AWS.CalendarBucket,
			Endpoint:             cfg.AWS.Endpoint,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			calendar = s3Client
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	directory := auth.NewDirectory(st)
	authHandler := auth.NewHandler(directory, logger)

	// Collaborators
	jobQueue := queue.NewQueue(rdb.Client, logger)
	mailer := mail.NewQueueDispatcher(st, jobQueue, logger)
	todoSvc := todos.NewService(st, logger)
	pubsub := notifications.NewRedisPubSub(rdb.Client, logger)
	notificationSvc := notifications.NewService(st, pubsub, logger)

	// Scheduler and coordinator
	sched := newScheduler(st, rdb, cfg.Scheduler, logger)
	meetingSvc := meetings.NewService(meetings.Deps{
		Store:     st,
		Jobs:      sched,
		Tasks:     todoSvc,
		Notifier:  notificationSvc,
		Mailer:    mailer,
		Calendar:  calendar,
		Directory: directory,
		Options: meetings.Options{
			ReminderOffset:  cfg.Meeting.ReminderOffset,
			AllowReschedule: cfg.Meeting.AllowReschedule,
			AppBaseURL:      cfg.Server.AppBaseURL,
		},
		Logger: logger,
	})
	for kind, h := range meetingSvc.JobHandlers() {
		sched.Register(kind, h)
	}

	meetingHandler := meetings.NewHandler(meetingSvc, logger)
	emailLogsHandler := emaillogs.NewHandler(emaillogs.NewService(st))
	todoHandler := todos.NewHandler(todoSvc)
	notificationHandler := notifications.NewHandler(notificationSvc)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	spec, err := api.GetSpec()
	if err != nil {
		logger.Fatal("openapi spec", zap.Error(err))
	}
	validator, err := middleware.NewOpenAPIValidator(spec, logger)
	if err != nil {
		logger.Fatal("openapi validator", zap.Error(err))
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		if err := rdb.Healthy(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		if err := st.View(c.Request.Context(), func(store.Queries) error { return nil }); err != nil {
			response.ServiceUnavailable(c, "store unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws/notifications", notifications.ServeWs(pubsub, jwtService.ValidateUserID, logger))

	// Protected API (JWT required)
	apiGroup := router.Group("")
	apiGroup.Use(
		middleware.JWT(jwtService),
		middleware.SyncDirectory(directory, logger),
		middleware.NewRateLimiter(bgCtx, rate.Limit(cfg.Server.RateLimitRPS), cfg.Server.RateLimitBurst),
		validator,
	)
	{
		apiGroup.GET("/me", authHandler.Me)

		// Meetings
		meetingHandler.Register(apiGroup, middleware.RequireRole(cfg.Meeting.OrganizerRoles...))
		apiGroup.GET("/meetings/:id/emails", emailLogsHandler.ListByMeeting)

		// Todos and notifications
		apiGroup.GET("/todos", todoHandler.List)
		apiGroup.GET("/notifications", notificationHandler.List)
		apiGroup.PATCH("/notifications/:id/read", notificationHandler.MarkRead)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background loops
	if cfg.Scheduler.Embedded {
		n, err := sched.Recover(ctx)
		if err != nil {
			logger.Fatal("scheduler recover", zap.Error(err))
		}
		logger.Info("scheduler embedded", zap.Int("rearmed", n), zap.String("backend", cfg.Scheduler.Backend))
		go sched.Run(bgCtx)
	}
	if cfg.Email.WorkerEmbedded {
		sender, err := mail.NewSender(smtpConfig(cfg.Email), logger)
		if err != nil {
			logger.Fatal("mail sender", zap.Error(err))
		}
		processor := worker.NewEmailProcessor(st, sender, jobQueue, logger)
		go processor.Run(bgCtx)
		logger.Info("email worker embedded")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	bgCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newScheduler(st store.Store, rdb *redis.Client, cfg config.SchedulerConfig, logger *zap.Logger) *scheduler.Scheduler {
	var timer scheduler.Timer
	if cfg.Backend == "memory" {
		timer = scheduler.NewMemoryTimer()
	} else {
		timer = queue.NewDelayedSet(rdb.Client, logger)
	}
	return scheduler.New(st, timer, scheduler.Options{
		PollInterval:  cfg.PollInterval,
		BatchSize:     cfg.BatchSize,
		MaxAttempts:   cfg.MaxAttempts,
		RetryBackoff:  cfg.RetryBackoff,
		SweepInterval: cfg.SweepInterval,
	}, logger)
}

func smtpConfig(cfg config.EmailConfig) mail.SMTPConfig {
	return mail.SMTPConfig{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		User:        cfg.SMTPUser,
		Pass:        cfg.SMTPPass,
		FromAddress: cfg.FromAddress,
		FromName:    cfg.FromName,
		Timeout:     cfg.SMTPTimeout,
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
