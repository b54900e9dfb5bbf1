package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

func NewRouter(s *Server, db Pinger) *gin.Engine {
	router := gin.Default()

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/accounts", s.listAccounts)
		api.PATCH("/accounts/:id", s.updateAccount)
		api.GET("/accounts/:id/sync", s.getSyncStatus)
		api.POST("/accounts/:id/sync", s.triggerSync)
		api.POST("/accounts/:id/sync/pause", s.pauseSync)
		api.POST("/accounts/:id/sync/resume", s.resumeSync)
		api.POST("/accounts/:id/sync/stop", s.stopSync)
		api.GET("/accounts/:id/events", s.listSyncEvents)
	}

	return router
}
