package router

import (
	"net/http"
	"strconv"
	"strings"

	"airdrop-backend/internal/config"
	"airdrop-backend/internal/handlers"
	"airdrop-backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept, X-Request-ID"
)

// Dependencies everything the router wires into routes
type Dependencies struct {
	Config         *config.Config
	AirdropHandler *handlers.AirdropHandler
	AdminAuth      *handlers.AdminAuthHandler
	Logger         *logrus.Logger
}

// corsMiddleware CORS middleware. An empty allowlist or ["*"] allows every origin.
func corsMiddleware(cfg config.CORSConfig, logger *logrus.Logger) gin.HandlerFunc {
	allowAll := len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*")
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.TrimSpace(o)] = struct{}{}
	}
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "":
			if _, ok := allowed[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			} else {
				logger.WithFields(logrus.Fields{
					"request_origin": origin,
					"path":           c.Request.URL.Path,
					"method":         c.Request.Method,
					"remote_addr":    c.ClientIP(),
				}).Warn("🚫 CORS: Request blocked - Origin not in whitelist")
			}
		}

		c.Header("Access-Control-Allow-Methods", corsAllowMethods)
		c.Header("Access-Control-Allow-Headers", corsAllowHeaders)
		if cfg.AllowCredentials && !allowAll {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Max-Age", maxAge)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Type, X-Request-ID")
		c.Next()
	}
}

// SetupRouter builds the gin engine
func SetupRouter(deps Dependencies) *gin.Engine {
	logger := deps.Logger
	cfg := deps.Config

	r := gin.New()
	// ClientIP feeds the admin allowlist, so forwarded headers count only from configured proxies
	if err := r.SetTrustedProxies(cfg.Admin.TrustedProxies); err != nil {
		logger.WithError(err).Warn("Invalid admin.trustedProxies, trusting no proxies")
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(logger))
	r.Use(corsMiddleware(cfg.CORS, logger))

	if len(cfg.Admin.AllowedIPs) > 0 {
		logger.WithFields(logrus.Fields{
			"allowed_ips": cfg.Admin.AllowedIPs,
			"count":       len(cfg.Admin.AllowedIPs),
		}).Info("Admin API IP whitelist configured")
	} else {
		logger.Info("No admin.allowedIPs configured, using localhost-only mode")
	}
	localhostOnly := middleware.NewLocalhostOnly(logger, cfg.Admin.AllowedIPs)
	adminAuth := middleware.NewAdminAuthMiddleware(cfg.Admin.JWTSecret, logger)

	// ============ Check ============
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/health", handlers.HealthCheckHandler)
	r.GET("/api/health", handlers.HealthCheckHandler)

	// ============ Prometheus Metrics ============
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ============ Public API ============
	v1 := r.Group("/api/v1")
	{
		airdrops := v1.Group("/airdrops/:chainId/:token")
		airdrops.GET("/status", deps.AirdropHandler.GetStatusHandler)
		airdrops.GET("/proofs/:address", deps.AirdropHandler.GetProofHandler)
	}

	// ============ Admin API (allowlisted IPs only) ============
	admin := r.Group("/api/admin", localhostOnly.Restrict())
	{
		admin.POST("/login", deps.AdminAuth.AdminLoginHandler)
		admin.POST("/airdrops", adminAuth.RequireAdminAuth(), deps.AirdropHandler.PublishHandler)
	}

	r.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if !strings.HasPrefix(path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{
				"message":    "Endpoint not found",
				"path":       path,
				"suggestion": "Check /api endpoints for available APIs",
			})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "API endpoint not found",
			"code":    "NOT_FOUND",
			"path":    path,
		})
	})

	return r
}
