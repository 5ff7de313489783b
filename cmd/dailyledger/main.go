// Package main запускает HTTP-сервер сервиса учёта ежедневных показателей.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/dailyledger/internal/auth"
	"github.com/mmeshcher/dailyledger/internal/blob"
	"github.com/mmeshcher/dailyledger/internal/config"
	"github.com/mmeshcher/dailyledger/internal/handler"
	"github.com/mmeshcher/dailyledger/internal/identity"
	"github.com/mmeshcher/dailyledger/internal/mailer"
	"github.com/mmeshcher/dailyledger/internal/middleware"
	"github.com/mmeshcher/dailyledger/internal/repository"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		sugar.Fatalw("redis connection error", "error", err.Error())
	}
	cancelPing()

	var confirmations auth.Mailer = mailer.NewLogMailer(logger)
	if cfg.MailerAddress != "" {
		confirmations = mailer.NewClient(cfg.MailerAddress)
	}

	sessions := auth.NewStore(repo, auth.NewRedisRegistry(redisClient), confirmations, auth.Options{
		Secret:      []byte(cfg.SecretKey),
		SessionTTL:  cfg.SessionTTL,
		RememberTTL: cfg.RememberTTL,
		AutoConfirm: cfg.AutoConfirm,
	}, logger)

	tracker := identity.NewTracker(sessions, identity.NewProfileResolver(repo, logger), logger)
	defer tracker.Close()

	verifyURL := strings.TrimRight(cfg.SiteURL, "/") + "/api/auth/verify"
	svc := identity.NewService(sessions, repo, verifyURL, logger)

	var photos handler.Uploader
	if cfg.S3.Bucket != "" {
		store, err := blob.NewStore(context.Background(), blob.Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			PublicURL: cfg.S3.PublicURL,
		})
		if err != nil {
			sugar.Fatalw("photo storage initialization error", "error", err.Error())
		}
		photos = store
	} else {
		sugar.Warn("S3 bucket is not configured, photo upload disabled")
	}

	authMiddleware := middleware.NewAuthMiddleware(sessions, tracker, cfg.CookieSecure, logger)
	h := handler.NewHandler(svc, photos, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Разбор уведомлений хранилища сессий
	g.Go(func() error {
		tracker.Run(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting dailyledger server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
