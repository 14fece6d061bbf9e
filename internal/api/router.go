package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// NewRouter builds the HTTP API. The gin engine is wrapped in a CORS
// handler allowing origins (every origin when empty).
func NewRouter(h *Handler, origins []string) http.Handler {
	r := gin.New()
	r.Use(requestLogger(h.log), recovery())

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/strategies", h.ListStrategies)
		v1.GET("/symbols", h.ListSymbols)

		v1.POST("/simulations", h.CreateSimulation)
		v1.GET("/simulations", h.ListSimulations)
		v1.POST("/simulations/compare", h.CompareSimulations)
		v1.GET("/simulations/:id", h.GetSimulation)
		v1.GET("/simulations/:id/export", h.ExportSimulation)
	}

	r.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, CodeNotFound, "no route for "+c.Request.URL.Path, nil)
	})

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         600,
	}).Handler(r)
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelDebug
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		log.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}
