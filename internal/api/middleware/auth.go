package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"relay-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type AuthMiddleware struct {
	jwtSecret string
}

func NewAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: jwtSecret}
}

// VerifyToken parses and validates a bearer token and returns the identity
// it carries. Expired or malformed tokens fail here, before any relay state
// is touched.
func (am *AuthMiddleware) VerifyToken(tokenString string) (websocket.Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(am.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return websocket.Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return websocket.Identity{}, ErrInvalidToken
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return websocket.Identity{}, ErrInvalidToken
	}

	identity := websocket.Identity{UserID: userID}
	if username, ok := claims["username"].(string); ok {
		identity.DisplayName = username
	}
	if avatar, ok := claims["avatar"].(string); ok {
		identity.Avatar = avatar
	}
	return identity, nil
}

// RequireAuth guards HTTP routes. The verified identity lands in the gin
// context under "identity".
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header is required"})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		identity, err := am.VerifyToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("identity", identity)
		c.Next()
	}
}

// TokenFromRequest supports both the Authorization header and a token query
// parameter; browser WebSocket clients cannot set headers.
func TokenFromRequest(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return c.Query("token")
}

// IdentityFromContext retrieves what RequireAuth stored.
func IdentityFromContext(c *gin.Context) (websocket.Identity, bool) {
	v, ok := c.Get("identity")
	if !ok {
		return websocket.Identity{}, false
	}
	identity, ok := v.(websocket.Identity)
	return identity, ok
}
