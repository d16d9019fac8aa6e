package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	auditdomain "github.com/mealgrid/mealgrid/internal/audit/domain"
	"github.com/mealgrid/mealgrid/internal/authorization"
)

func (s *Server) ListAuditEntries(c *gin.Context) {
	if err := s.authorize(c, authorization.ObjectAuditLog, authorization.ActionAuditLogView); err != nil {
		AbortWithError(c, err)
		return
	}

	var req auditdomain.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.Action = c.Query("action")
	req.TargetType = c.Query("target_type")
	req.TargetID = c.Query("target_id")
	req.ActorType = c.Query("actor_type")

	if raw := c.Query("start_at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, auditdomain.ErrInvalidTimeRange)
			return
		}
		req.StartAt = &parsed
	}
	if raw := c.Query("end_at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, auditdomain.ErrInvalidTimeRange)
			return
		}
		req.EndAt = &parsed
	}

	resp, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
