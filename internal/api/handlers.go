package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"trading-advisor-bot/internal/market"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password required"})
		return
	}

	token, err := s.auth.Login(req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.Stats())
}

func (s *Server) handleSignalStats(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Query("chat_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chat_id required"})
		return
	}

	stats, err := s.track.UserStats(c.Request.Context(), chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleGlobalStats(c *gin.Context) {
	stats, err := s.track.GlobalStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

type screeningRequest struct {
	ChatID    int64   `json:"chat_id" binding:"required"`
	Timeframe string  `json:"timeframe" binding:"required"`
	MinScore  float64 `json:"min_score"`
}

func (s *Server) handleTriggerScreening(c *gin.Context) {
	var req screeningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tf, err := market.ParseTimeframe(req.Timeframe)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !s.orch.EnqueueScreening(req.ChatID, tf, req.MinScore) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "work queue full"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
