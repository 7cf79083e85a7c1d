package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rentflow/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
)

// TokenClaims is what a validated bearer token yields.
type TokenClaims struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// ValidateFunc validates a raw bearer token.
type ValidateFunc func(token string) (TokenClaims, error)

// JWT returns a middleware that validates the bearer token and sets user claims in context.
func JWT(validate ValidateFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

// Claims returns the claims JWT stored in the context. ok is false outside a JWT-protected route.
func Claims(c *gin.Context) (TokenClaims, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return TokenClaims{}, false
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		return TokenClaims{}, false
	}
	return TokenClaims{UserID: id, Email: c.GetString(ContextUserEmail), Role: c.GetString(ContextUserRole)}, true
}
