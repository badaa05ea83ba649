package interceptor

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/usagetrack/internal/observability/logger"
)

// StateKey is the gin context key holding the tracking state of a request.
const StateKey = logger.TrackingStateKey

// GinMiddleware runs the pipeline after the downstream handlers completed.
func (i *Interceptor) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, _ := EnsureMarker(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		out := i.Track(c.Request.Context(), c.Request, c.Writer.Status())
		c.Set(StateKey, out.State)
		if out.Reason != "" {
			c.Set(logger.TrackingReasonKey, out.Reason)
		}
	}
}
