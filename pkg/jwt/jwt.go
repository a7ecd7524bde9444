package jwt

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken covers malformed tokens and bad signatures.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for tokens past their exp claim.
	ErrExpiredToken = errors.New("token has expired")
	// ErrTokenVerification covers every other verification failure
	// (not yet valid, missing claims).
	ErrTokenVerification = errors.New("token verification failed")
	// ErrInvalidRole is returned when a role name is not one of the known roles.
	ErrInvalidRole = errors.New("invalid role")
	// ErrMissingSecret is returned when the service is built without a signing key.
	ErrMissingSecret = errors.New("jwt secret is not configured")
)

// Role is an account role carried in the token.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// ParseRole validates s against the known roles.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleModerator, RoleAdmin:
		return r, nil
	}
	return "", ErrInvalidRole
}

// JWTClaims represents the claims in a JWT token
type JWTClaims struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims carry exactly role.
func (c *JWTClaims) HasRole(role Role) bool {
	return c.Role == role
}
