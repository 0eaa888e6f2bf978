// README: Request logging middleware.
package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

func Logging(log *slog.Logger) gin.HandlerFunc {
	log = log.With(slog.String("component", "http"))
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelInfo
		if c.Writer.Status() >= 500 {
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("route", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("took", time.Since(start)),
		}
		// Set by Auth on authenticated routes; moderator decisions are traced by it.
		if uid := CallerUID(c); uid != "" {
			attrs = append(attrs, slog.String("uid", uid))
		}
		log.LogAttrs(c.Request.Context(), level, "request", attrs...)
	}
}
