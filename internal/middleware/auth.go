package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arvense/authtrail/internal/apperr"
	"github.com/arvense/authtrail/internal/models"
	"github.com/arvense/authtrail/internal/service"
)

// RequireAuth validates the bearer access token and attaches the
// actor's claims to the request context.
func RequireAuth(jwtService service.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := service.ExtractBearer(c.GetHeader("Authorization"))
		if token == "" {
			abortWithError(c, apperr.Unauthorized("missing or malformed authorization header"))
			return
		}

		claims, err := jwtService.ValidateAccessToken(token)
		if err != nil {
			if errors.Is(err, service.ErrTokenExpired) {
				abortWithError(c, apperr.Unauthorized("access token is expired"))
				return
			}
			abortWithError(c, apperr.Unauthorized("invalid access token"))
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserEmail, claims.Email)
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}

// RequireAdmin gates a route to admin actors. Must run after
// RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextUserRole) != models.RoleAdmin {
			abortWithError(c, apperr.Forbidden("admin access required"))
			return
		}
		c.Next()
	}
}

func abortWithError(c *gin.Context, err *apperr.Error) {
	c.AbortWithStatusJSON(err.Status, gin.H{
		"error": gin.H{
			"code":    err.Code,
			"message": err.Message,
		},
		"request_id": c.GetString(ContextRequestID),
	})
}

// abortTooManyRequests is used by the rate limiter, which sits outside
// the apperr taxonomy (it never reaches domain code).
func abortTooManyRequests(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error": gin.H{
			"code":    "RATE_LIMITED",
			"message": "too many requests, slow down",
		},
		"request_id": c.GetString(ContextRequestID),
	})
}
