// README: Panic recovery that logs and answers 500.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"buggy/internal/logger"
)

func Recovery(log logger.ILogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic in handler",
					logger.String("path", c.Request.URL.Path),
					logger.Any("panic", rec),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
		}()
		c.Next()
	}
}
