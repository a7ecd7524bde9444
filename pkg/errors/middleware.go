package errors

import (
	"fmt"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"

	"dwiju-assistant/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler returns a middleware that renders the first error attached to
// the context as {success:false, error, code, details?, stack?}. Stacks and
// underlying causes are only rendered when showDiagnostics is set.
func ErrorHandler(showDiagnostics bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		appErr := FromError(c.Errors[0].Err)

		log := logger.FromGin(c)
		attrs := []any{
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"status_code", appErr.StatusCode,
			"error_code", appErr.Code,
			"message", appErr.Message,
		}
		if cause := appErr.Unwrap(); cause != nil {
			attrs = append(attrs, "cause", cause.Error())
		}
		if appErr.StatusCode >= http.StatusInternalServerError {
			log.Error("request error", attrs...)
		} else {
			log.Warn("request error", attrs...)
		}

		if appErr.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(appErr.RetryAfter.Seconds()))))
		}

		body := gin.H{
			"success": false,
			"error":   appErr.Message,
			"code":    appErr.Code,
		}
		if appErr.Details != nil {
			body["details"] = appErr.Details
		}
		if showDiagnostics {
			body["stack"] = appErr.Stack
			if cause := appErr.Unwrap(); cause != nil {
				body["originalError"] = cause.Error()
			}
		}

		c.AbortWithStatusJSON(appErr.StatusCode, body)
	}
}

// RecoveryWithLogger returns a middleware that recovers from any panics
// and logs the error with the request ID and user ID if available
func RecoveryWithLogger(showDiagnostics bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())

				logger.FromGin(c).Error("panic recovered",
					"error", r,
					"stack", stack,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				body := gin.H{
					"success": false,
					"error":   "The server encountered an unexpected error",
					"code":    CodeServer,
				}
				if showDiagnostics {
					body["details"] = fmt.Sprintf("panic: %v", r)
					body["stack"] = stack
				}

				c.AbortWithStatusJSON(http.StatusInternalServerError, body)
			}
		}()

		c.Next()
	}
}
