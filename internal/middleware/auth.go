package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/relaychat/internal/apperr"
	"github.com/lalith-99/relaychat/internal/auth"
)

// Context keys for storing claims in gin.Context. Handlers read them through
// GetUserID and GetEmail rather than c.Get directly.
const (
	ContextKeyUserID = "user_id"
	ContextKeyEmail  = "email"
)

// AuthMiddleware validates the bearer token and stores the caller's identity
// in the gin context. A missing or bad token aborts with 401.
func AuthMiddleware(tokens *auth.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := tokens.Verify(BearerToken(c.GetHeader("Authorization")))
		if err != nil {
			kind := apperr.KindOf(err)
			c.AbortWithStatusJSON(apperr.HTTPStatus(kind), gin.H{
				"error":   apperr.Code(kind),
				"message": apperr.PublicMessage(err),
			})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyEmail, claims.Email)
		c.Next()
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. It returns "" for any other shape.
func BearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// GetUserID returns uuid.Nil when the request was not authenticated.
func GetUserID(c *gin.Context) uuid.UUID {
	val, exists := c.Get(ContextKeyUserID)
	if !exists {
		return uuid.Nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

func GetEmail(c *gin.Context) string {
	val, exists := c.Get(ContextKeyEmail)
	if !exists {
		return ""
	}
	email, ok := val.(string)
	if !ok {
		return ""
	}
	return email
}
