// Package main запускает HTTP-сервер сервиса ZapTasks.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zaptasks/zaptasks-api/internal/config"
	"github.com/zaptasks/zaptasks-api/internal/handler"
	"github.com/zaptasks/zaptasks-api/internal/identity"
	"github.com/zaptasks/zaptasks-api/internal/middleware"
	"github.com/zaptasks/zaptasks-api/internal/payments"
	"github.com/zaptasks/zaptasks-api/internal/repository"
	"github.com/zaptasks/zaptasks-api/internal/service"
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

	gateway := payments.NewClient(payments.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		APIURL:        cfg.StripeAPIURL,
	}, logger)

	var profiles service.IdentityProvider
	if cfg.IdentityAPIURL != "" {
		profiles = identity.NewClient(cfg.IdentityAPIURL, cfg.IdentitySecretKey)
	}

	svc := service.NewService(repo, gateway, profiles, logger, cfg.Currency)
	defer svc.Close()

	authMiddleware, err := middleware.NewAuthMiddleware(cfg.SessionVerifyKey)
	if err != nil {
		sugar.Fatalw("session key error", "error", err.Error())
	}
	if cfg.SessionVerifyKey == "" {
		sugar.Warn("SESSION_VERIFY_KEY is not set, every session token will be rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst)
	h := handler.NewHandler(svc, logger, authMiddleware, limiter)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Фоновая сверка статусов счетов с платёжной платформой
	g.Go(func() error {
		svc.StartInvoiceReconciliation(ctx, cfg.ReconcileInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting zaptasks server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
