package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	api "mailcake-backend/cmd/api"
	authRepo "mailcake-backend/internal/auth/repository"
	authUsecase "mailcake-backend/internal/auth/usecase"
	emailDelivery "mailcake-backend/internal/email/delivery"
	emaildomain "mailcake-backend/internal/email/domain"
	emailRepo "mailcake-backend/internal/email/repository"
	emailUsecase "mailcake-backend/internal/email/usecase"
	"mailcake-backend/internal/notification"
	"mailcake-backend/internal/scheduler"
	"mailcake-backend/pkg/ai"
	"mailcake-backend/pkg/config"
	"mailcake-backend/pkg/credential"
	"mailcake-backend/pkg/database"
	"mailcake-backend/pkg/gmail"
	"mailcake-backend/pkg/imap"
	"mailcake-backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	dispatchWorkers   = 2
	dispatchQueueSize = 100
	shutdownTimeout   = 15 * time.Second
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	zlog, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to create logger: ", err)
	}
	defer func() { _ = zlog.Sync() }()

	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewConnection(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	// Initialize repositories (dependency injection)
	userRepo := authRepo.NewUserRepository(db)
	accountRepo := emailRepo.NewAccountRepository(db)
	cursorRepo := emailRepo.NewSyncCursorRepository(db)
	messageRepo := emailRepo.NewMessageRepository(db)
	enrichmentRepo := emailRepo.NewEnrichmentRepository(db)

	gate, err := credential.NewGate(cfg.SecretKey)
	if err != nil {
		return fmt.Errorf("credential gate: %w", err)
	}

	connectors := map[emaildomain.ProviderKind]emaildomain.ProviderConnector{
		emaildomain.ProviderGmail: gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GmailQuotaPerSecond, zlog),
		emaildomain.ProviderIMAP:  imap.NewService(zlog),
	}

	gateway, err := ai.NewGateway(ctx, ai.Config{
		Provider:         ai.ProviderType(cfg.LLMProvider),
		LiteLLMProxyURL:  cfg.LiteLLMProxyURL,
		LiteLLMMasterKey: cfg.LiteLLMMasterKey,
		GeminiAPIKey:     cfg.GeminiAPIKey,
	}, zlog)
	if err != nil {
		return fmt.Errorf("model gateway: %w", err)
	}

	// Initialize use cases
	ingester := emailUsecase.NewIngester(messageRepo, zlog)
	enricher := emailUsecase.NewEnricher(messageRepo, accountRepo, userRepo, enrichmentRepo, gateway, emailUsecase.EnricherConfig{
		Concurrency:        cfg.EnrichConcurrency,
		DefaultModel:       cfg.DefaultModel,
		CloudFallbackModel: cfg.CloudFallbackModel,
		DefaultStyle:       cfg.DefaultSummaryStyle,
		DefaultLanguage:    cfg.DefaultSummaryLanguage,
		MaxTokensPerEmail:  cfg.MaxTokensPerEmail,
		CallTimeout:        cfg.ModelCallTimeout,
	}, zlog)
	syncService := emailUsecase.NewSyncService(accountRepo, cursorRepo, userRepo, gate, connectors, ingester, enricher,
		emailUsecase.SyncConfig{
			BootstrapLimit: cfg.SyncBootstrapLimit,
			BackfillLimit:  cfg.SyncBackfillLimit,
		}, zlog)

	dispatcher := emailUsecase.NewDispatcher(syncService, dispatchWorkers, dispatchQueueSize, zlog)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	syncScheduler := scheduler.NewSyncScheduler(syncService, cfg.SyncInterval, zlog)
	syncScheduler.Start(ctx)
	defer syncScheduler.Stop()

	// Initialize Notification Service (Pub/Sub)
	// Only start if project ID is configured
	if cfg.GoogleProjectID != "" {
		// Extract short topic name from full resource name if necessary
		topicName := cfg.GooglePubSubTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}
		if topicName == "" {
			topicName = "gmail-updates"
		}

		notifService, err := notification.NewService(ctx, cfg.GoogleProjectID, topicName, cfg.GoogleCredentials, accountRepo, dispatcher, zlog)
		if err != nil {
			zlog.Error("failed to initialize notification service", zap.Error(err))
		} else {
			defer func() { _ = notifService.Close() }()
			go func() {
				if err := notifService.Start(ctx); err != nil {
					zlog.Error("notification service stopped", zap.Error(err))
				}
			}()
		}
	} else {
		zlog.Warn("GOOGLE_PROJECT_ID not configured, push notifications disabled")
	}

	// Initialize HTTP handler
	authUc := authUsecase.NewAuthUsecase(userRepo, cfg.JWTSecret, cfg.JWTAccessExpiry)
	accountHandler := emailDelivery.NewAccountHandler(accountRepo, cursorRepo, messageRepo, dispatcher, zlog)
	handler := api.NewHandler(authUc, accountHandler, zlog)

	server := handler.NewServer(":" + cfg.Port)

	serverErr := make(chan error, 1)
	go func() {
		zlog.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		zlog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
