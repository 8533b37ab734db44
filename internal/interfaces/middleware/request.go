package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/mylabook/opsflow/pkg/constants"
	appErrors "github.com/mylabook/opsflow/pkg/errors"
	"github.com/mylabook/opsflow/pkg/utils"
)

// RequestID reuses the caller's X-Request-ID when it is a UUID, otherwise assigns a
// fresh one, and echoes it back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(constants.HeaderRequestID))
		if !utils.IsValidUUID(id) {
			id = utils.GenerateID()
		}
		c.Set(constants.ContextKeyRequestID, id)
		c.Header(constants.HeaderRequestID, id)
		c.Next()
	}
}

// Recovery turns a handler panic into a logged 500 with the standard error body.
// The panic value stays in the log.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered interface{}) {
		err := appErrors.NewInternalError("unexpected server error", fmt.Errorf("panic: %v", recovered))
		log.Error("💥 Handler panicked",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"request_id", c.GetString(constants.ContextKeyRequestID),
			"err", err)
		c.AbortWithStatusJSON(err.HTTPStatus(), gin.H{
			constants.ResponseError: "Internal Server Error",
			constants.FieldMessage:  err.Message,
			"code":                  err.Code(),
			"data":                  nil,
		})
	})
}

// AccessLog writes one structured line per request.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start).Round(time.Microsecond),
			"request_id", c.GetString(constants.ContextKeyRequestID),
		}
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("❌ Request failed", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("⚠️  Request rejected", fields...)
		default:
			log.Debug("📥 Request", fields...)
		}
	}
}

// Cors allows the configured origins. "*" allows any origin.
func Cors(allowedOrigins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Expose-Headers", constants.HeaderRequestID)
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
