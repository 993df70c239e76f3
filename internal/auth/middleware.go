package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const tokenLabelContextKey = "auth_token_label"

// Middleware validates bearer tokens and stores the token's label in the context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authToken := s.extractToken(c)
		if authToken == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		label, err := s.ValidateToken(c.Request.Context(), authToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(tokenLabelContextKey, label)
		c.Next()
	}
}

// TokenLabelFromContext retrieves the label of the token that authorized the request.
func TokenLabelFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(tokenLabelContextKey)
	if !ok {
		return "", false
	}
	label, ok := val.(string)
	return label, ok
}

func (s *Service) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
