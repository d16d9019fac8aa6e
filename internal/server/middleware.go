package server

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mealgrid/mealgrid/internal/actorctx"
	auditdomain "github.com/mealgrid/mealgrid/internal/audit/domain"
	authdomain "github.com/mealgrid/mealgrid/internal/auth/domain"
)

const contextUserKey = "current_user"

// AuthRequired resolves the bearer token to a user on every request. Role
// comes from the user row, never from anything the client sent.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		user, err := s.authSvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextUserKey, user)
		ctx := actorctx.WithActor(c.Request.Context(), string(auditdomain.ActorTypeUser), user.ID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func currentUser(c *gin.Context) *authdomain.User {
	value, ok := c.Get(contextUserKey)
	if !ok {
		return nil
	}
	user, ok := value.(*authdomain.User)
	if !ok {
		return nil
	}
	return user
}

// RequireRole rejects callers outside the allowed roles. The response never
// reveals which roles would have been accepted.
func RequireRole(roles ...authdomain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}
		AbortWithError(c, ErrForbidden)
	}
}

// SchedulerAuth guards the internal job endpoints with the shared secret.
func (s *Server) SchedulerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := s.cfg.SchedulerSecret
		if secret == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		provided := strings.TrimSpace(c.GetHeader("X-Scheduler-Secret"))
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// Throttle applies the sliding-window limiter for one endpoint class,
// keyed by the client network address.
func (s *Server) Throttle(class string) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := s.limiter.Allow(c.Request.Context(), class, clientAddress(c))
		if err != nil {
			AbortWithError(c, ErrInternal)
			return
		}
		if !result.Allowed {
			seconds := int(result.RetryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"type":                "rate_limited",
					"message":             "too many requests",
					"retry_after_seconds": seconds,
				},
			})
			return
		}
		c.Next()
	}
}

// clientAddress takes the leftmost entry of X-Forwarded-For when present,
// falling back to the socket peer. Alternate client-ip headers are never
// consulted.
func clientAddress(c *gin.Context) string {
	forwarded := strings.TrimSpace(c.GetHeader("X-Forwarded-For"))
	if forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx >= 0 {
			forwarded = forwarded[:idx]
		}
		if addr := strings.TrimSpace(forwarded); addr != "" {
			return addr
		}
	}
	return c.RemoteIP()
}
