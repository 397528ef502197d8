// Package mw holds the gin middlewares of the read API.
package mw

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AccessLog logs method, path, status, elapsed time and bytes written.
// Requests taking at least slow are logged at warn level; 0 disables that.
func AccessLog(log zerolog.Logger, slow time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		evt := log.Info()
		switch {
		case c.Writer.Status() >= 500:
			evt = log.Error()
		case slow > 0 && elapsed >= slow:
			evt = log.Warn()
		}
		evt.Int("status", c.Writer.Status()).
			Dur("elapsed", elapsed).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("ip", c.ClientIP()).
			Int("bytes", c.Writer.Size()).
			Msg("request done")
	}
}
