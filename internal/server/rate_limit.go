package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/pipetrade/internal/observability/logger"
	"go.uber.org/zap"
)

// MutationRateLimit throttles document writes per actor. It must run after
// ActorRequired.
func (s *Server) MutationRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		actor := actorFromContext(c)
		res, err := s.limiter.Allow(ctx, actor.ID)
		if err != nil {
			obslogger.FromContext(ctx).Warn("mutation rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			endpoint := normalizeRateLimitEndpoint(c)
			obslogger.FromContext(ctx).Warn("mutation rate limit exceeded", zap.String("endpoint", endpoint))
			s.metrics.RecordRateLimited(ctx, endpoint)

			seconds := int(res.RetryAfter.Seconds() + 0.999)
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
