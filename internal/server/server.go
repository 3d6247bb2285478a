package server

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mrohitth/data-observability-platform/internal/config"
	"github.com/mrohitth/data-observability-platform/internal/db"
	"github.com/mrohitth/data-observability-platform/internal/logger"
	"github.com/mrohitth/data-observability-platform/internal/repos"
	"github.com/mrohitth/data-observability-platform/internal/types"
)

// Server exposes the operational surface: database health and a status
// snapshot including the most recent run result.
type Server struct {
	manager *db.Manager
	alerts  repos.AlertRepo
	log     *logger.Logger
	srv     *http.Server
	lastRun atomic.Value
}

func New(cfg config.ServerConfig, mode string, manager *db.Manager, alerts repos.AlertRepo, baseLog *logger.Logger) *Server {
	if mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		manager: manager,
		alerts:  alerts,
		log:     baseLog.With("service", "StatusServer"),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/healthz", s.handleHealth)
	engine.GET("/status", s.handleStatus)

	s.srv = &http.Server{
		Addr:    cfg.Addr,
		Handler: engine,
	}
	return s
}

// SetLastRun records the outcome of the most recent monitoring run for the
// status endpoint.
func (s *Server) SetLastRun(result any) {
	s.lastRun.Store(result)
}

func (s *Server) handleHealth(c *gin.Context) {
	health := s.manager.HealthCheck(c.Request.Context())
	code := http.StatusOK
	for _, ok := range health {
		if !ok {
			code = http.StatusServiceUnavailable
			break
		}
	}
	c.JSON(code, gin.H{"databases": health})
}

func (s *Server) handleStatus(c *gin.Context) {
	out := gin.H{
		"databases": s.manager.Status(),
		"timestamp": time.Now().UTC(),
	}
	var counts map[types.AlertType]int64
	err := s.manager.CDC().Execute(c.Request.Context(), func(tx *gorm.DB) error {
		var err error
		counts, err = s.alerts.RecentCounts(c.Request.Context(), tx, 24*time.Hour)
		return err
	})
	if err == nil {
		out["recent_alerts"] = counts
	} else {
		s.log.Warn("Failed to load recent alert counts", "error", err)
	}
	if last := s.lastRun.Load(); last != nil {
		out["last_run"] = last
	}
	c.JSON(http.StatusOK, out)
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		s.log.Info("Status server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Status server stopped", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
