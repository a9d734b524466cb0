package server

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/coursepay/internal/authcontext"
	"github.com/smallbiznis/coursepay/internal/observability/logger"
	"go.uber.org/zap"
)

// SessionContext resolves the session cookie into a principal when one is
// present. Invalid or expired cookies are cleared and the request continues
// anonymously.
func (s *Server) SessionContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			c.Next()
			return
		}

		identity, err := s.access.Authenticate(c.Request.Context(), token)
		if err != nil {
			logger.FromContext(c.Request.Context()).Debug("session rejected", zap.Error(err))
			s.sessions.Clear(c)
			c.Next()
			return
		}

		ctx := authcontext.WithPrincipal(c.Request.Context(), authcontext.Principal{
			UserID:    identity.UserID,
			SessionID: identity.SessionID,
			Email:     identity.Email,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := authcontext.PrincipalFromContext(c.Request.Context()); !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// RateLimit throttles scope per client address when a limiter is configured.
func (s *Server) RateLimit(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		res, allowed := s.limiter.Allow(c.Request.Context(), scope, c.ClientIP())
		if res != nil {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		if allowed {
			c.Next()
			return
		}

		retryAfter := 1
		if res != nil && res.RetryAfter.Seconds() > 1 {
			retryAfter = int(res.RetryAfter.Seconds())
		}
		logger.FromContext(c.Request.Context()).Warn("rate limit exceeded", zap.String("scope", scope))
		s.metrics.RecordRateLimited(scope)
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		AbortWithError(c, ErrRateLimited)
	}
}
