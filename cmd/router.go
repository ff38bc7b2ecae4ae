package main

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhenhaojia/house/config"
	"github.com/zhenhaojia/house/internal/core/pool"
	v1 "github.com/zhenhaojia/house/internal/web/v1"
	"github.com/zhenhaojia/house/middleware"
)

const readyPingTimeout = 2 * time.Second

// newRouter mounts the probes, /metrics and the v1 API. draining flips
// /ready to 503 before the server stops accepting requests.
func newRouter(cfg *config.Config, p *pool.Pool, api *v1.Handler, draining *atomic.Bool) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.CORSMiddleware(cfg.Service.FrontendURL),
		middleware.TracingMiddleware(),
		middleware.LoggingMiddleware(),
		middleware.PrometheusMiddleware(),
	)

	r.GET("/health", func(c *gin.Context) {
		st := p.Stat()
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": cfg.Service.Name,
			"version": cfg.Service.Version,
			"pool": gin.H{
				"total":     st.Total,
				"idle":      st.Idle,
				"acquired":  st.Acquired,
				"max":       st.Max,
				"exhausted": st.Exhausted,
				"discarded": st.Discarded,
			},
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		if draining.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "draining"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyPingTimeout)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database_unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api.RegisterRoutes(r.Group("/api/v1"), middleware.AdminGuard(cfg.Admin.JWTSecret))
	return r
}
