package jwt

import "github.com/golang-jwt/jwt"

// Payload is the claim set of a session token.
type Payload struct {
	jwt.StandardClaims

	// UserID is the stable identifier of the authenticated account.
	UserID string `json:"userId"`
}
