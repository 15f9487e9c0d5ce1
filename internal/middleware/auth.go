package middleware

import (
	"net/http"
	"strings"

	"concentra/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	ClaimsKey = "claims"
)

// JWTClaims are the claims this service reads from access tokens issued by
// the identity provider. Only the subject is used: it becomes the actor id
// recorded with every state change.
type JWTClaims struct {
	UserID string `json:"user_id"`
	Nombre string `json:"nombre"`
	jwt.RegisteredClaims
}

// ActorID returns user_id, falling back to the registered subject.
func (c *JWTClaims) ActorID() (uuid.UUID, error) {
	if c.UserID != "" {
		return uuid.Parse(c.UserID)
	}
	return uuid.Parse(c.Subject)
}

// JWTAuth validates the Bearer token on every protected route.
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("Autenticacion requerida"))
			return
		}

		tokenStr := strings.TrimPrefix(header, "Bearer ")
		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})

		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("Token invalido o expirado"))
			return
		}
		if _, err := claims.ActorID(); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("Token sin identificador de usuario"))
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// GetClaims is a helper to retrieve typed claims from the Gin context.
// Returns nil on routes without JWTAuth.
func GetClaims(c *gin.Context) *JWTClaims {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*JWTClaims)
	return claims
}
