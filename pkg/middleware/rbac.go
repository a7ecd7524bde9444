package middleware

import (
	"errors"
	"strings"

	apperrors "dwiju-assistant/backend/pkg/errors"
	"dwiju-assistant/backend/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// Context keys set by JWTAuthMiddleware.
const (
	ClaimsKey   = "claims"
	UserIDKey   = "userId"
	UserRoleKey = "userRole"
)

// TokenValidator validates a bearer token.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.JWTClaims, error)
}

// JWTAuthMiddleware checks that the request has a valid bearer token and adds
// its claims to the context.
func JWTAuthMiddleware(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.Error(apperrors.NewUnauthorizedError(apperrors.CodeNoToken, "Access token required"))
			c.Abort()
			return
		}

		claims, err := tokens.ValidateToken(token)
		if err != nil {
			c.Error(TokenError(err))
			c.Abort()
			return
		}

		SetClaims(c, claims)
		c.Next()
	}
}

// SetClaims stores validated claims on the context.
func SetClaims(c *gin.Context, claims *jwt.JWTClaims) {
	c.Set(ClaimsKey, claims)
	c.Set(UserIDKey, claims.UserID)
	c.Set(UserRoleKey, string(claims.Role))
}

// TokenError maps a validation failure onto the client-facing error codes.
func TokenError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, jwt.ErrExpiredToken):
		return apperrors.NewUnauthorizedError(apperrors.CodeTokenExpired, "Token expired")
	case errors.Is(err, jwt.ErrInvalidToken):
		return apperrors.NewUnauthorizedError(apperrors.CodeInvalidToken, "Invalid token")
	default:
		return apperrors.NewForbiddenError(apperrors.CodeTokenError, "Token verification failed")
	}
}

// Claims returns the claims set by JWTAuthMiddleware.
func Claims(c *gin.Context) (*jwt.JWTClaims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*jwt.JWTClaims)
	return claims, ok
}

// RequireRole returns a middleware that requires the user to have one of roles.
func RequireRole(roles ...jwt.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			c.Error(apperrors.NewUnauthorizedError(apperrors.CodeNotAuthenticated, "Authentication required"))
			c.Abort()
			return
		}

		for _, role := range roles {
			if claims.HasRole(role) {
				c.Next()
				return
			}
		}

		c.Error(apperrors.ForbiddenWithDetails(apperrors.CodeInsufficientRole, "Insufficient permissions", gin.H{
			"required": roles,
			"current":  claims.Role,
		}))
		c.Abort()
	}
}

// RequireAdmin admits admins only.
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(jwt.RoleAdmin)
}

// RequireModerator admits admins and moderators.
func RequireModerator() gin.HandlerFunc {
	return RequireRole(jwt.RoleAdmin, jwt.RoleModerator)
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
