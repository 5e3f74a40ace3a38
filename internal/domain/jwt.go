package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims represents the claims carried by the provider's access
// token. The provider signs with HS256 using the project JWT secret.
type AccessClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}
