package router

import (
	"net/http"

	"livesync/app/handler"
	"livesync/app/middleware"

	"github.com/gin-gonic/gin"
)

// Options route-level protection
type Options struct {
	APIKey       string  // Required on the ingestion webhook when set
	WebhookRPS   float64 // Webhook rate limit, <= 0 disables it
	WebhookBurst int
}

// Router Router
type Router struct {
	wsHandler  *handler.WSHandler
	apiHandler *handler.APIHandler
	opts       Options
}

// NewRouter creates a new Router
func NewRouter(wsHandler *handler.WSHandler, apiHandler *handler.APIHandler, opts Options) *Router {
	return &Router{
		wsHandler:  wsHandler,
		apiHandler: apiHandler,
		opts:       opts,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	// Real-time channel for viewers and AI workers
	engine.GET("/ws", r.wsHandler.Serve)

	api := engine.Group("/api")
	{
		api.GET("/health", r.apiHandler.Health)
		api.GET("/workers/status", r.apiHandler.WorkersStatus)
		api.GET("/transcription", r.apiHandler.Transcription)
		api.POST("/analyze", r.apiHandler.Analyze)

		// Result ingestion from the AI engine
		webhook := api.Group("/webhook")
		webhook.Use(middleware.RateLimit(r.opts.WebhookRPS, r.opts.WebhookBurst))
		webhook.Use(middleware.AuthMiddleware(r.opts.APIKey))
		{
			webhook.POST("", r.apiHandler.Webhook)
		}
	}

	// Legacy probe
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
