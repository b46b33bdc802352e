package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/ignatzorin/rental-escrow/internal/config"
	"github.com/ignatzorin/rental-escrow/internal/db"
	"github.com/ignatzorin/rental-escrow/internal/goroutine"
	httpHandlers "github.com/ignatzorin/rental-escrow/internal/http/handlers"
	httpRouter "github.com/ignatzorin/rental-escrow/internal/http/router"
	"github.com/ignatzorin/rental-escrow/internal/infrastructure/persistence"
	"github.com/ignatzorin/rental-escrow/internal/infrastructure/queue"
	"github.com/ignatzorin/rental-escrow/internal/infrastructure/stripe"
	"github.com/ignatzorin/rental-escrow/internal/logger"
	"github.com/ignatzorin/rental-escrow/internal/service"
	convUC "github.com/ignatzorin/rental-escrow/internal/usecase/conversation"
	ticketUC "github.com/ignatzorin/rental-escrow/internal/usecase/ticket"
	"github.com/ignatzorin/rental-escrow/internal/usecase/webhook"
	"github.com/ignatzorin/rental-escrow/internal/ws"
)

// pingableQueue очередь повторов, которую проверяет /health.
type pingableQueue interface {
	convUC.RetryQueue
	Ping(ctx context.Context) error
}

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	logger.Init(cfg.LogLevel)
	if !cfg.IsProduction() {
		logger.SetTextFormatter()
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		logger.Log.Fatalf("main: ошибка миграций: %v", err)
	}

	// Redis необязателен: без него очередь повторов и лимиты живут в памяти процесса.
	var (
		redisClient *redis.Client
		retryQueue  pingableQueue
	)
	if cfg.RedisAddr != "" {
		redisClient, err = queue.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Log.WithError(err).Warn("main: redis недоступен, очередь повторов в памяти")
		}
	}
	if redisClient != nil {
		defer redisClient.Close()
		retryQueue = queue.NewRedisRetryQueue(redisClient, queue.DefaultRetryKey)
	} else {
		retryQueue = queue.NewMemoryRetryQueue()
	}

	fees, err := cfg.FeeCalculator()
	if err != nil {
		logger.Log.Fatalf("main: некорректная политика комиссии: %v", err)
	}
	tokens := service.NewTokenVerifier(cfg.JWTSecret)

	// Репозитории.
	ticketRepo := persistence.NewTicketRepositoryAdapter(dbConn)
	historyRepo := persistence.NewTicketHistoryRepositoryAdapter(dbConn)
	contractRepo := persistence.NewContractRepositoryAdapter(dbConn)
	offerRepo := persistence.NewOfferRepositoryAdapter(dbConn)
	apptRepo := persistence.NewAppointmentRepositoryAdapter(dbConn)
	earningRepo := persistence.NewEarningRepositoryAdapter(dbConn)
	eventRepo := persistence.NewProcessedEventRepositoryAdapter(dbConn, cfg.EventClaimLease)
	convRepo := persistence.NewConversationRepositoryAdapter(dbConn)
	msgRepo := persistence.NewMessageRepositoryAdapter(dbConn)

	// Вебсокеты.
	hub := ws.NewHub(ctx)
	workers := goroutine.NewGroup(nil)
	workers.Go(ctx, "ws-hub", func(context.Context) { hub.Run() })

	// Системные сообщения: публикация, best-effort обёртка и воркер повторов.
	publishUC := convUC.NewPublishSystemMessageUseCase(convRepo, msgRepo, hub)
	notifier := convUC.NewNotifier(publishUC, retryQueue, cfg.MessagePublishTimeout, cfg.MessageRetryInterval)
	retryWorker := convUC.NewRetryWorker(retryQueue, publishUC, cfg.MessageRetryMax, cfg.MessageRetryInterval, cfg.MessagePublishTimeout)
	workers.Go(ctx, "message-retry", retryWorker.Run)

	// Заявки.
	transitionUC := ticketUC.NewTransitionTicketUseCase(ticketRepo, historyRepo, offerRepo, apptRepo, notifier, cfg.Currency)

	// Платёжные события.
	dispatcher := webhook.NewDispatcher(webhook.Deps{
		Verifier:     stripe.NewVerifier(cfg.StripeWebhookSecret),
		Events:       eventRepo,
		Offers:       offerRepo,
		Appointments: apptRepo,
		Earnings:     earningRepo,
		Tickets:      ticketRepo,
		Contracts:    contractRepo,
		Advancer:     transitionUC,
		Notifier:     notifier,
		Fees:         fees,
	})

	healthChecks := map[string]httpHandlers.HealthCheck{
		"database":    func(ctx context.Context) error { return db.Ping(ctx, dbConn) },
		"retry_queue": retryQueue.Ping,
	}

	// HTTP хэндлеры.
	handlers := httpRouter.Handlers{
		Webhook: httpHandlers.NewWebhookHandler(dispatcher),
		Ticket: httpHandlers.NewTicketHandler(
			ticketUC.NewCreateTicketUseCase(ticketRepo),
			ticketUC.NewGetTicketUseCase(ticketRepo),
			ticketUC.NewGetTicketHistoryUseCase(ticketRepo, historyRepo),
			transitionUC,
		),
		Earning:      httpHandlers.NewEarningHandler(service.NewEarningService(earningRepo)),
		Conversation: httpHandlers.NewConversationHandler(convUC.NewListMessagesUseCase(convRepo, msgRepo)),
		Health:       httpHandlers.NewHealthHandler(healthChecks),
		WS:           httpHandlers.NewWSHandler(hub, tokens, cfg.AllowedOrigins),
	}

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, handlers, tokens, redisClient)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.WithError(err).Error("main: ошибка остановки http сервера")
		}
	}()

	logger.Log.WithField("port", cfg.HTTPPort).Info("main: HTTP сервер запущен")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}

	if !workers.Wait(10 * time.Second) {
		logger.Log.Warn("main: фоновые задачи не завершились за отведённое время")
	}
	logger.Log.Info("main: сервер остановлен")
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		logger.Log.WithError(err).Error("main: ошибка закрытия базы")
	}
}
