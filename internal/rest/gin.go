package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/config"
)

// NewServer builds the operational HTTP surface: health and Prometheus metrics.
func NewServer(cfg config.Config, metrics http.Handler) (*gin.Engine, *http.Server) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}
	return r, srv
}
