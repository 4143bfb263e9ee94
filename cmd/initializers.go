package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"livesync/app/handler"
	"livesync/app/router"
	"livesync/internal/orchestrator"
	"livesync/pkg/config"
	"livesync/pkg/engine"
	"livesync/pkg/logger"
	"livesync/pkg/notification"
	redisstore "livesync/pkg/store/redis"

	"github.com/gin-gonic/gin"
)

// initConfig initializes configuration
func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(app.config.Logger); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.InfoCtx(app.ctx, "Logging system has been closed")
		_ = logger.Sync()
	})
	return nil
}

// initRedis connects the optional status mirror and claims the
// single-orchestrator lock
func (app *Application) initRedis() error {
	if app.config.Redis.Addr == "" {
		logger.InfoCtx(app.ctx, "Redis not configured, pool status mirror disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(app.ctx, 5*time.Second)
	defer cancel()

	client, err := redisstore.NewRedisClient(ctx, app.config.Redis)
	if err != nil {
		return err
	}
	app.redisClient = client
	app.registerCleanup(func() {
		client.Close()
		logger.InfoCtx(app.ctx, "Redis connection has been closed")
	})

	lock := redisstore.NewInstanceLock(client.GetClient(), "")
	acquired, err := lock.TryLock(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("another orchestrator already serves this worker pool")
	}
	app.instanceLock = lock
	app.registerCleanup(func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Unlock(releaseCtx); err != nil {
			logger.WarnCtx(app.ctx, "Failed to release instance lock: %v", err)
		}
	})

	app.statusRepo = redisstore.NewStatusRepository(client)
	return nil
}

// initEngines creates the transcription and AI engine clients
func (app *Application) initEngines() error {
	cfg := app.config.Engines
	app.transcription = engine.NewTranscriptionClient(cfg.TranscriptionURL, cfg.CallTimeout)
	app.ai = engine.NewAIClient(cfg.AIURL, cfg.CallTimeout)
	logger.InfoCtx(app.ctx, "Transcription engine: %s, AI engine: %s (timeout %v)", cfg.TranscriptionURL, cfg.AIURL, cfg.CallTimeout)
	return nil
}

// initOrchestrator builds the event loop owning pool, sessions and playback
func (app *Application) initOrchestrator() error {
	opts := []orchestrator.Option{}
	if app.statusRepo != nil {
		opts = append(opts, orchestrator.WithPublisher(app.statusRepo))
	}
	if notifier := notification.NewFeishuNotifier(app.config.Notification.FeishuWebhookURL); notifier.Enabled() {
		opts = append(opts, orchestrator.WithAlerter(notifier))
	}

	app.orchestrator = orchestrator.New(orchestrator.Options{
		PoolSize:        app.config.Pool.Size,
		ReconnectWindow: app.config.Pool.ReconnectWindow,
		SeekCooldown:    app.config.Playback.SeekCooldown,
		CallTimeout:     app.config.Engines.CallTimeout,
	}, app.transcription, opts...)

	logger.InfoCtx(app.ctx, "Worker pool: %d slots, reconnect window %v, seek cooldown %v",
		app.config.Pool.Size, app.config.Pool.ReconnectWindow, app.config.Playback.SeekCooldown)
	return nil
}

// initHandlers initializes handler layer
func (app *Application) initHandlers() error {
	app.wsHandler = handler.NewWSHandler(app.orchestrator)
	app.apiHandler = handler.NewAPIHandler(app.orchestrator, app.ai, app.webhookURL())
	return nil
}

// webhookURL address the AI engine posts results back to
func (app *Application) webhookURL() string {
	base := app.config.Server.PublicURL
	if base == "" {
		base = fmt.Sprintf("http://localhost:%d", app.config.Server.Port)
	}
	return strings.TrimRight(base, "/") + "/api/webhook"
}

// initHTTPServer initializes HTTP server
func (app *Application) initHTTPServer() error {
	r := router.NewRouter(app.wsHandler, app.apiHandler, router.Options{
		APIKey:       app.config.Server.APIKey,
		WebhookRPS:   app.config.Server.WebhookRPS,
		WebhookBurst: app.config.Server.WebhookBurst,
	})

	gin.SetMode(app.config.Server.Mode)
	app.ginEngine = gin.New()
	r.Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.ginEngine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}
