package gateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	headerRequestID = "X-Request-ID"
	headerUserID    = "X-User-ID"
	headerUserEmail = "X-User-Email"

	ctxRequestID = "rid"
	ctxUserID    = "user_id"
	ctxUserEmail = "user_email"
)

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(ctxRequestID, rid)
		c.Writer.Header().Set(headerRequestID, rid)
		c.Next()
	}
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// requireUser reads the identity forwarded by the authenticating proxy.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetHeader(headerUserID)
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + headerUserID + " header"})
			return
		}
		c.Set(ctxUserID, uid)
		c.Set(ctxUserEmail, c.GetHeader(headerUserEmail))
		c.Next()
	}
}
