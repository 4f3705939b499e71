package main

import (
	"click2call-gateway/internal/auth"
	"click2call-gateway/internal/config"
	"click2call-gateway/internal/httpapi"
	"click2call-gateway/internal/lifecycle"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, manager *lifecycle.Manager, authManager *auth.Manager, rdb *redis.Client, cfg config.Config) {
	r.Use(httpapi.SecurityHeaders())
	r.Use(httpapi.CORS(cfg.HTTP.CORSOrigin))
	r.Use(httpapi.RateLimit(rdb, cfg.HTTP))

	h := httpapi.Handlers{Calls: manager}

	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider status callback (public).
	// NOTE: should be protected by provider signature validation in production.
	r.POST("/api/calls/callback", h.ProviderCallback)

	// protected call API, consumed by the browser widget
	calls := r.Group("/api/calls")
	calls.Use(auth.RequireAccessToken(authManager))
	{
		calls.POST("/initiate", h.InitiateCall)
		calls.POST("/end/:callId", h.EndCall)
		calls.POST("/dtmf/:callId", h.SendDTMF)
		calls.GET("/status/:callId", h.GetCallStatus)
	}
}
