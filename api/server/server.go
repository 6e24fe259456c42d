// Package server exposes the monitoring dashboard API over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dbmon/api/middleware"
	"dbmon/internal/collector"
	"dbmon/internal/config"
	"dbmon/internal/elasticsearch"
	"dbmon/internal/logger"
	"dbmon/internal/models"
	"dbmon/internal/monitor"
)

type Server struct {
	router *gin.Engine
	svc    *monitor.Service
	config *config.Config
}

func NewServer(svc *monitor.Service, cfg *config.Config) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	// Request-scoped timeout so a stuck SQL query or AI call cannot hold a
	// handler forever.
	router.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router: router,
		svc:    svc,
		config: cfg,
	}

	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	api := s.router.Group("/")
	api.Use(middleware.RateLimit())
	{
		// Dashboard reads
		api.GET("/stats", s.getStats)
		api.GET("/alerts", s.getAlerts)
		api.GET("/recommendations", s.getRecommendations)
		api.GET("/api/events", s.searchEvents)

		// Delta views
		api.GET("/blocking", s.deltaHandler(models.EventTypeBlocking))
		api.GET("/slow-queries", s.deltaHandler(models.EventTypeSlowQueries))
		api.GET("/deadlocks", s.deltaHandler(models.EventTypeDeadlocks))
		api.GET("/delta/:event_type", s.getDelta)

		// Actions
		api.POST("/run-collector", s.runCollector)
		api.POST("/explain", s.explainEvent)
		api.POST("/kill-session", s.killSession)
		api.POST("/rules/reload", s.reloadRules)
		api.GET("/rules", s.listRules)
	}
}

// Run starts the HTTP server on the given address.
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthCheck(c *gin.Context) {
	status := "healthy"
	sqlStatus := "n/a"
	if s.svc.Mode() == config.ModeLive {
		if err := s.svc.CheckSQL(c.Request.Context()); err != nil {
			status = "degraded"
			sqlStatus = "unreachable"
		} else {
			sqlStatus = "connected"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     status,
		"mode":       s.svc.Mode(),
		"sql_server": sqlStatus,
		"rules":      len(s.svc.Rules()),
		"time":       time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) getStats(c *gin.Context) {
	start := c.DefaultQuery("start", "now-1h")
	end := c.DefaultQuery("end", "now")

	stats, err := s.svc.Store().GetStats(c.Request.Context(), start, end)
	if err != nil {
		logger.Error("Failed to compute stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getAlerts(c *gin.Context) {
	q := elasticsearch.Query{
		Start: c.DefaultQuery("start", "now-1h"),
		End:   c.DefaultQuery("end", "now"),
		Size:  intQuery(c, "size", 50),
	}

	alerts, err := s.svc.Store().SearchAlerts(c.Request.Context(), q)
	if err != nil {
		logger.Error("Failed to search alerts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search alerts"})
		return
	}

	if severity := c.Query("severity"); severity != "" {
		filtered := alerts[:0]
		for _, a := range alerts {
			if string(a.Severity) == severity {
				filtered = append(filtered, a)
			}
		}
		alerts = filtered
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (s *Server) getRecommendations(c *gin.Context) {
	alerts, err := s.svc.Store().SearchAlerts(c.Request.Context(), elasticsearch.Query{
		Start: c.DefaultQuery("start", "now-24h"),
		End:   c.DefaultQuery("end", "now"),
		Size:  100,
	})
	if err != nil {
		logger.Error("Failed to search alerts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load recommendations"})
		return
	}

	seen := make(map[string]bool)
	var recommendations []gin.H
	for _, a := range alerts {
		for _, rec := range a.Recommendations {
			if seen[rec] {
				continue
			}
			seen[rec] = true
			recommendations = append(recommendations, gin.H{
				"recommendation": rec,
				"severity":       a.Severity,
				"alert_id":       a.AlertID,
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"recommendations": recommendations,
		"count":           len(recommendations),
	})
}

func (s *Server) searchEvents(c *gin.Context) {
	q := elasticsearch.Query{
		EventType: c.Query("event_type"),
		Start:     c.Query("start"),
		End:       c.Query("end"),
		Size:      intQuery(c, "size", 50),
		From:      intQuery(c, "from", 0),
	}

	events, total, err := s.svc.Store().SearchEvents(c.Request.Context(), q)
	if err != nil {
		logger.Error("Failed to search events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
		"total":  total,
	})
}

func (s *Server) deltaHandler(eventType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.renderDelta(c, eventType)
	}
}

func (s *Server) getDelta(c *gin.Context) {
	eventType := c.Param("event_type")
	known := false
	for _, t := range models.EventTypes {
		if t == eventType {
			known = true
			break
		}
	}
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown event type: " + eventType})
		return
	}
	s.renderDelta(c, eventType)
}

func (s *Server) renderDelta(c *gin.Context, eventType string) {
	result, err := s.svc.DeltaView(c.Request.Context(), eventType)
	if err != nil {
		logger.Error("Failed to build delta view",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build delta view"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"event_type":      eventType,
		"new":             result.New,
		"changed":         result.Changed,
		"unchanged_count": result.UnchangedCount(),
		"resolved":        result.Resolved,
	})
}

func (s *Server) runCollector(c *gin.Context) {
	result, err := s.svc.RunCycle(c.Request.Context())
	if err != nil {
		logger.Error("Collection cycle failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

type explainRequest struct {
	Event models.Event `json:"event" binding:"required"`
}

func (s *Server) explainEvent(c *gin.Context) {
	var req explainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	explanation, source := s.svc.Explain(c.Request.Context(), req.Event)
	c.JSON(http.StatusOK, gin.H{
		"explanation": explanation,
		"source":      source,
	})
}

type killSessionRequest struct {
	SessionID int `json:"session_id" binding:"required"`
}

func (s *Server) killSession(c *gin.Context) {
	var req killSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := s.svc.KillSession(c.Request.Context(), req.SessionID)
	switch {
	case errors.Is(err, collector.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case errors.Is(err, collector.ErrOwnSession):
		c.JSON(http.StatusForbidden, gin.H{"error": "Refusing to kill the monitor's own session"})
	case err != nil:
		logger.Error("Failed to kill session",
			zap.Int("session_id", req.SessionID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{
			"message":    "Session killed",
			"session_id": req.SessionID,
		})
	}
}

func (s *Server) reloadRules(c *gin.Context) {
	if err := s.svc.ReloadRules(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Rules reloaded",
		"count":   len(s.svc.Rules()),
	})
}

func (s *Server) listRules(c *gin.Context) {
	ruleSet := s.svc.Rules()
	c.JSON(http.StatusOK, gin.H{
		"rules": ruleSet,
		"count": len(ruleSet),
	})
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
