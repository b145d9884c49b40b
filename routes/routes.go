package routes

import (
	"context"
	"net/http"
	"strings"
	"time"

	"warelay/config"
	"warelay/handlers"
	"warelay/metrics"
	"warelay/middleware"
	"warelay/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Deps is everything the router wires together.
type Deps struct {
	Settings *config.Settings
	Handler  *handlers.Handler
	Hub      *websocket.Manager
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
	// Ping reports store health for /health. Optional.
	Ping func(ctx context.Context) error
}

func SetupRouter(d Deps) *gin.Engine {
	s := d.Settings
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(d.Logger, d.Metrics))

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", "Content-Type", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(s.AllowedOrigins) == 0 || (len(s.AllowedOrigins) == 1 && s.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.AllowedOrigins
		corsCfg.AllowCredentials = true
	}
	router.Use(cors.New(corsCfg))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "WhatsApp relay running",
			"service": s.ServiceName,
			"ws":      "WebSocket available at /ws",
		})
	})

	router.GET("/health", func(c *gin.Context) {
		if d.Ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := d.Ping(ctx); err != nil {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("Health check failed")
				c.String(http.StatusServiceUnavailable, "UNAVAILABLE")
				return
			}
		}
		c.String(http.StatusOK, "OK")
	})

	if d.Metrics != nil {
		router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	h := d.Handler
	api := router.Group(s.RoutePrefix)

	// Called by Meta, authenticated by verify token and signature instead of JWT.
	api.GET("/webhook", h.VerifyWebhook)
	api.POST("/webhook", h.ReceiveWebhook)

	dashboard := api.Group("")
	dashboard.Use(middleware.JWTAuth(s.DashboardJWTSecret))
	dashboard.Use(middleware.RateLimit(s.RateLimitRPS, s.RateLimitBurst))

	dashboard.POST("/send", h.SendMessage)
	dashboard.POST("/send-audio", h.SendAudio)
	dashboard.POST("/send-image", h.SendImage)
	dashboard.GET("/media/:mediaId", h.GetMedia)
	dashboard.GET("/conversations", h.GetConversations)
	dashboard.GET("/messages/:peer", h.GetMessages)

	if d.Hub != nil {
		router.GET("/ws", middleware.JWTAuth(s.DashboardJWTSecret), d.Hub.Handler())
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, s.RoutePrefix) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Endpoint not found",
				"path":  c.Request.URL.Path,
			})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	return router
}
