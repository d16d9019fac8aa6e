package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mealgrid/mealgrid/internal/scheduler"
)

// Internal job endpoints mirror what the background scheduler runs on its
// own cadence. They exist so an external cron or an operator can force a
// run without waiting for the next tick.

func (s *Server) RunCancelStaleOrders(c *gin.Context) {
	if err := s.scheduler.RunJob(c.Request.Context(), scheduler.JobCancelStaleOrders); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) RunAuditExport(c *gin.Context) {
	if err := s.scheduler.RunJob(c.Request.Context(), scheduler.JobAuditExport); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
