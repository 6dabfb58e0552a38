package gateway

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// auditLog lists the newest audit entries recorded for one menu or order id.
func (g *Gateway) auditLog(c *gin.Context) {
	if g.services.Audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit log is not configured"})
		return
	}
	limit := defaultAuditLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxAuditLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}

	logs, err := g.services.Audit.GetAuditLogs(c.Request.Context(), c.Param("entity_id"), int64(limit))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}
