// Package api serves the status/dashboard HTTP API and the websocket event
// feed.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"trading-advisor-bot/config"
	"trading-advisor-bot/internal/auth"
	"trading-advisor-bot/internal/events"
	"trading-advisor-bot/internal/logging"
	"trading-advisor-bot/internal/orchestrator"
	"trading-advisor-bot/internal/tracker"
)

// Server hosts the dashboard API.
type Server struct {
	cfg    config.ServerConfig
	orch   *orchestrator.Orchestrator
	track  *tracker.Tracker
	auth   *auth.Service
	hub    *Hub
	logger *logging.Logger

	httpServer *http.Server
}

// NewServer wires the API server.
func NewServer(
	cfg config.ServerConfig,
	orch *orchestrator.Orchestrator,
	track *tracker.Tracker,
	authService *auth.Service,
	bus *events.EventBus,
	logger *logging.Logger,
) *Server {
	if logger == nil {
		logger = logging.WithComponent("api")
	}

	s := &Server{
		cfg:    cfg,
		orch:   orch,
		track:  track,
		auth:   authService,
		hub:    NewHub(bus, logger),
		logger: logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", s.handleHealth)
	router.GET("/ws", s.hub.HandleWebSocket)

	api := router.Group("/api")
	{
		api.POST("/auth/login", s.handleLogin)
		api.GET("/status", s.handleStatus)
		api.GET("/stats/signals", s.handleSignalStats)
	}

	admin := api.Group("/admin", s.requireAdmin())
	{
		admin.GET("/stats", s.handleGlobalStats)
		admin.POST("/screening", s.handleTriggerScreening)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start begins serving; the hub starts relaying bus events.
func (s *Server) Start() error {
	s.hub.Start()
	s.logger.Info("api server listening", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	return s.httpServer.Shutdown(ctx)
}

// requireAdmin guards admin routes with a bearer token check.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := s.auth.Validate(header[len(prefix):])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set("role", claims.Role)
		c.Next()
	}
}
