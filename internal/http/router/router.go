package router

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/ignatzorin/rental-escrow/internal/config"
	"github.com/ignatzorin/rental-escrow/internal/http/handlers"
	"github.com/ignatzorin/rental-escrow/internal/http/middleware"
	"github.com/ignatzorin/rental-escrow/internal/service"
)

// Handlers набор хэндлеров HTTP поверхности.
type Handlers struct {
	Webhook      *handlers.WebhookHandler
	Ticket       *handlers.TicketHandler
	Earning      *handlers.EarningHandler
	Conversation *handlers.ConversationHandler
	Health       *handlers.HealthHandler
	WS           *handlers.WSHandler
}

// SetupRouter собирает маршруты. redisClient может быть nil, тогда лимиты считаются в памяти.
func SetupRouter(cfg *config.Config, h Handlers, tokens *service.TokenVerifier, redisClient *redis.Client) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", h.Health.Health)

	// Провайдер шлёт события пачками, лимит вебхука выше пользовательского.
	webhookStore := middleware.NewLimiterStore(redisClient, "escrow:limiter:webhook")
	webhookLimit := middleware.RateLimitMiddleware(webhookStore, cfg.RateLimitLimit*10, cfg.RateLimitPeriod)
	r.POST("/webhooks/payments", webhookLimit, h.Webhook.Handle)

	api := r.Group("/api")
	api.GET("/ws", h.WS.Handle)

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(tokens))
	apiStore := middleware.NewLimiterStore(redisClient, "escrow:limiter:api")
	protected.Use(middleware.RateLimitMiddleware(apiStore, cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		protected.POST("/tickets", h.Ticket.Create)
		protected.GET("/tickets/:id", middleware.UUIDValidator("id"), h.Ticket.Get)
		protected.GET("/tickets/:id/history", middleware.UUIDValidator("id"), h.Ticket.History)
		protected.POST("/tickets/:id/:action", middleware.UUIDValidator("id"), h.Ticket.Transition)

		protected.GET("/earnings", h.Earning.List)

		protected.GET("/conversations/:id/messages", middleware.UUIDValidator("id"), h.Conversation.ListMessages)
	}

	return r
}
