// Package api exposes the read-only run status endpoints.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/gleaner/api/handler"
	"github.com/use-agent/gleaner/api/middleware"
	"github.com/use-agent/gleaner/config"
)

// NewRouter creates a configured Gin engine serving run status.
//
// Health is intentionally outside auth so monitoring probes always work;
// the run endpoints sit behind API-key auth when keys are configured.
func NewRouter(src handler.RunSource, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(startTime))

	protected := v1.Group("")
	protected.Use(middleware.Auth(cfg.Server.APIKeys))

	protected.GET("/run", handler.GetRun(src))
	protected.GET("/run/items", handler.GetItems(src))

	return r
}
