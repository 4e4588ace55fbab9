// Package main runs the background worker: email delivery, plus the job scheduler when the server
// does not embed it.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-erp/meeting-scheduler/config"
	"github.com/aura-erp/meeting-scheduler/internal/auth"
	"github.com/aura-erp/meeting-scheduler/internal/mail"
	"github.com/aura-erp/meeting-scheduler/internal/meetings"
	"github.com/aura-erp/meeting-scheduler/internal/notifications"
	"github.com/aura-erp/meeting-scheduler/internal/scheduler"
	"github.com/aura-erp/meeting-scheduler/internal/todos"
	"github.com/aura-erp/meeting-scheduler/internal/worker"
	"github.com/aura-erp/meeting-scheduler/pkg/database"
	"github.com/aura-erp/meeting-scheduler/pkg/queue"
	"github.com/aura-erp/meeting-scheduler/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Store.Driver == "bolt" {
		logger.Fatal("STORE_DRIVER=bolt runs everything in cmd/server; the worker needs postgres")
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

	jobQueue := queue.NewQueue(rdb.Client, logger)
	sender, err := mail.NewSender(mail.SMTPConfig{
		Host:        cfg.Email.SMTPHost,
		Port:        cfg.Email.SMTPPort,
		User:        cfg.Email.SMTPUser,
		Pass:        cfg.Email.SMTPPass,
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
		Timeout:     cfg.Email.SMTPTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("mail sender", zap.Error(err))
	}
	processor := worker.NewEmailProcessor(st, sender, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	if !cfg.Email.WorkerEmbedded {
		wg.Add(1)
		go func() {
			defer wg.Done()
			processor.Run(workerCtx)
		}()
		logger.Info("email worker started")
	}

	if !cfg.Scheduler.Embedded {
		sched := scheduler.New(st, queue.NewDelayedSet(rdb.Client, logger), scheduler.Options{
			PollInterval:  cfg.Scheduler.PollInterval,
			BatchSize:     cfg.Scheduler.BatchSize,
			MaxAttempts:   cfg.Scheduler.MaxAttempts,
			RetryBackoff:  cfg.Scheduler.RetryBackoff,
			SweepInterval: cfg.Scheduler.SweepInterval,
		}, logger)
		meetingSvc := meetings.NewService(meetings.Deps{
			Store:     st,
			Jobs:      sched,
			Tasks:     todos.NewService(st, logger),
			Notifier:  notifications.NewService(st, notifications.NewRedisPubSub(rdb.Client, logger), logger),
			Mailer:    mail.NewQueueDispatcher(st, jobQueue, logger),
			Directory: auth.NewDirectory(st),
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
		n, err := sched.Recover(ctx)
		if err != nil {
			logger.Fatal("scheduler recover", zap.Error(err))
		}
		logger.Info("scheduler started", zap.Int("rearmed", n))
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Run(workerCtx)
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	wg.Wait()
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
