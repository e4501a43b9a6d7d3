// Package httpapi wires the Gin transport to the reservation engine and the
// shared middleware. All dependencies are injected; the router performs no
// I/O of its own beyond serving /health and /metrics.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-library-backend/internal/config"
	"github.com/tbourn/go-library-backend/internal/http/handlers"
	"github.com/tbourn/go-library-backend/internal/http/middleware"
)

// RegisterRoutes attaches all middleware and endpoints to the Gin engine.
//
// Middleware order matters:
//  1. OpenTelemetry tracing
//  2. RequestID (correlation)
//  3. Logger (structured access logs)
//  4. Recovery (panics to JSON 500, after the logger so panics are logged
//     with request context)
//  5. Body size limiter
//  6. Prometheus metrics
//  7. Per-IP token-bucket rate limiter
//  8. CORS
//  9. Security headers
func RegisterRoutes(r *gin.Engine, engine handlers.Engine, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	r.Use(rl.Handler())

	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Permissive default: ACAO * even without an Origin header, which
		// keeps health checks and curl-style clients simple.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	h := handlers.New(engine)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.GET("/books", h.ListBooks)
		api.POST("/book", h.RegisterBook)
		api.POST("/copy", h.RegisterCopy)
		api.POST("/reservation", h.Reserve)
		api.POST("/reservation/renewal", h.Renew)
		api.POST("/reservation/cancel", h.Cancel)
		api.DELETE("/book/:id", h.DeleteBook)
	}
}

// limitBody caps the request body for all endpoints via http.MaxBytesReader;
// oversized bodies surface as read errors in the JSON binder.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
