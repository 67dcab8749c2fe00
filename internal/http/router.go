// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, authentication, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-community-messaging/docs"
	"github.com/tbourn/go-community-messaging/internal/config"
	"github.com/tbourn/go-community-messaging/internal/http/handlers"
	"github.com/tbourn/go-community-messaging/internal/http/middleware"
	"github.com/tbourn/go-community-messaging/internal/notify"
	"github.com/tbourn/go-community-messaging/internal/services"
)

// Deps are the runtime collaborators the routes need.
type Deps struct {
	DB *gorm.DB
	// Publisher fans committed notifications out; nil selects notify.Noop.
	Publisher notify.Publisher
}

var (
	corsMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsHeaders = []string{
		"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match",
		middleware.HeaderUserID, middleware.HeaderIdempotencyKey,
	}
	corsExpose = []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderIdempotencyReplayed, "Retry-After"}
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the versioned public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and Security headers
//  8. Preflight terminator
//
// and on the API group:
//  9. Gzip (optional)
//  10. Auth: bearer token → principal
//  11. Idempotency validator (before rate limiter to allow bypass on replay)
//  12. Rate limiter (per principal/user/IP, bypass on replay)
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture (allow all if none configured) and security headers
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     corsMethods,
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    corsExpose,
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
			AllowMethods:     corsMethods,
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    corsExpose,
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

	// Preflights end here, before NoMethod would answer them with 405.
	r.Use(answerPreflight)

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

	h := newHandlers(deps, cfg)

	api := groupWithPrefix(r, cfg.APIBasePath)
	if cfg.GzipEnabled {
		api.Use(gzip.Gzip(gzip.DefaultCompression))
	}
	api.Use(middleware.Auth(middleware.AuthOptions{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Required: cfg.Auth.Required,
	}))
	api.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen:        200,
			UserQueryKeys: []string{"sender_id"},
		},
		h.IdempotencyLookup(),
	))
	if cfg.RateRPS > 0 {
		rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByPrincipal())
		api.Use(rl.Handler())
	}

	{
		// Send + gate
		api.POST("/messages", h.SendMessage)
		api.GET("/messages/can-message/:user_id/:target_id", h.CanMessage)

		// Request lifecycle
		api.GET("/messages/requests/:user_id", h.ListPendingRequests)
		api.POST("/messages/requests/:request_id/respond", h.RespondToRequest)

		// Message store
		api.GET("/messages/conversations/:user_id", h.ListConversations)
		api.GET("/messages/thread/:user_id/:partner_id", h.GetThread)
		api.PATCH("/messages/:message_id", h.UpdateMessageStatus)
		api.GET("/messages/vent-outreach/:post_id", h.ListPostMessages)

		// Administrative cascades
		api.DELETE("/messages/:message_id", h.AdminDeleteMessage)
		api.DELETE("/messages/thread/:user_id/:partner_id", h.AdminDeleteThread)
		api.DELETE("/messages/user/:user_id/all", h.AdminDeleteUserMessages)
		api.DELETE("/messages/post/:post_id/messages", h.AdminDeletePostMessages)

		// Notifications
		api.GET("/notifications/user/:user_id", h.ListNotifications)
		api.GET("/notifications/user/:user_id/count", h.CountUnreadNotifications)
		api.PATCH("/notifications/user/:user_id/read-all", h.MarkAllNotificationsRead)
		api.GET("/notifications/user/:user_id/:id", h.GetNotification)
		api.PATCH("/notifications/user/:user_id/:id/read", h.MarkNotificationRead)
		api.DELETE("/notifications/user/:user_id/:id", h.DeleteNotification)

		// Directory sync
		api.PUT("/directory/users/:id", h.UpsertUser)
		api.PUT("/directory/posts/:id", h.UpsertPost)
	}
}

// answerPreflight replies 204 to CORS preflights. Cross-origin ones are
// already aborted by the cors middleware; this catches the rest (same-host
// origins, paths with no OPTIONS route) so HandleMethodNotAllowed never
// turns a preflight into a 405.
func answerPreflight(c *gin.Context) {
	if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

// newHandlers builds the services from cfg and binds them to the handlers.
func newHandlers(deps Deps, cfg config.Config) *handlers.Handlers {
	pub := deps.Publisher
	if pub == nil {
		pub = notify.Noop{}
	}
	db := deps.DB

	return handlers.New(handlers.Services{
		Gate: &services.GateService{DB: db},
		Messages: &services.MessageService{
			DB:        db,
			Publisher: pub,
			Policy: services.MessagePolicy{
				MaxContentRunes:     cfg.Messaging.MaxContentRunes,
				OutreachCategory:    cfg.Messaging.OutreachCategory,
				RequireApprovedPost: cfg.Messaging.RequireApprovedPost,
			},
		},
		Requests: &services.RequestService{DB: db, Publisher: pub},
		Notifications: &services.NotificationService{
			DB:        db,
			Publisher: pub,
			MaxLimit:  cfg.Messaging.NotificationsMaxLimit,
		},
		Admin: &services.AdminService{DB: db},
	}, handlers.Options{
		DB:             db,
		IdempotencyTTL: cfg.IdempotencyTTL,
	})
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
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
