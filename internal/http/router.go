// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/1lyagent/agent-backend/internal/config"
	"github.com/1lyagent/agent-backend/internal/http/handlers"
	"github.com/1lyagent/agent-backend/internal/http/middleware"
	"github.com/1lyagent/agent-backend/internal/ratelimit"
	"github.com/1lyagent/agent-backend/internal/repo"
	"github.com/1lyagent/agent-backend/internal/services"
)

// Deps bundles the injected application services for route registration.
type Deps struct {
	DB        *gorm.DB
	Sink      *services.Sink
	Requests  *services.RequestService
	Credit    *services.CreditService
	Tokens    *services.TokenTrackerService
	Influence *services.InfluenceService
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with secret scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics and /metrics endpoint
//  7. Gzip compression
//  8. Idempotency-Key validation (replay lookup runs per-route after auth)
//  9. CORS and security headers
//
// The sliding-window rate limiter is applied per-route on request intake
// rather than globally, so status polling and the activity feed stay cheap.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (4 MiB; deliverables can be sizeable)
	r.Use(limitBody(4 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compress JSON responses
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 8) Idempotency-Key validation for sponsorship retries; the replay
	// lookup runs per-route after auth so it keys on the real caller
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}))

	// 9) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderAgentSecret, middleware.HeaderIdempotencyKey,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(d.DB, d.Requests, d.Credit, d.Tokens, d.Influence)

	auth := middleware.AuthOptions{
		AgentSecret: cfg.Auth.AgentSecret,
		DemoMode:    cfg.Auth.DemoMode,
		AdminToken:  cfg.Auth.AdminToken,
		HookToken:   cfg.Auth.HookToken,
	}
	limiter := NewLimiter(cfg.Rate)

	api := r.Group("/api")
	{
		// Public
		api.GET("/activity", h.ListActivity)
		api.GET("/status/:id", h.RequestStatus)
		api.GET("/answer/:id", h.RequestAnswer)
		api.GET("/credit/state", h.CreditState)
		api.GET("/influence", h.InfluencePricing)
		api.GET("/json/:id", h.JSONAnswer)

		// Rate-limited intake
		api.POST("/agent/request", middleware.RateLimit(limiter), h.SubmitRequest)

		// Trusted (agent secret, or admin bearer in demo mode)
		api.POST("/agent/callback", middleware.TrustedOnly(auth), h.ClassifyCallback)
		api.POST("/credit/queue", middleware.TrustedOnly(auth),
			middleware.ReplayLookup(sponsorReceiptLookup(d.DB)), h.QueueSponsorship)
		api.GET("/credit/auto-buy", middleware.TrustedOnly(auth), h.AutoBuyDryRun)
		api.POST("/credit/auto-buy", middleware.TrustedOnly(auth), h.AutoBuy)

		// Agent secret only
		api.POST("/influence", middleware.AgentOnly(auth), h.DispatchInfluence)

		// Static hook bearer
		api.POST("/json/:id", middleware.HookTokenOnly(auth), h.StoreJSONAnswer)
	}
}

// sponsorReceiptLookup adapts the receipt table to the middleware's replay
// check. Lookup failures never block processing.
func sponsorReceiptLookup(db *gorm.DB) middleware.SponsorshipLookup {
	return func(ctx context.Context, caller, key string, now time.Time) (bool, error) {
		rec, err := repo.GetSponsorReceipt(ctx, db, caller, key, now)
		if err != nil || rec == nil {
			return false, nil
		}
		return true, nil
	}
}

// NewLimiter builds the sliding-window limiter from config, using Redis for
// counters when REDIS_ADDR is set and the in-memory store otherwise.
func NewLimiter(rc config.RateLimitConfig) *ratelimit.Limiter {
	var store ratelimit.CounterStore
	if rc.RedisAddr != "" {
		store = ratelimit.NewRedisStore(redis.NewClient(&redis.Options{Addr: rc.RedisAddr}), "")
	} else {
		store = ratelimit.NewMemoryStore()
	}
	return ratelimit.New(store, rc.Window, rc.PerCaller, rc.Global)
}

// limitBody caps the request body size for all endpoints using
// http.MaxBytesReader; oversized bodies error on read downstream.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
