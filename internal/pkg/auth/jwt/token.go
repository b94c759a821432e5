package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	// DefaultSessionTTL is the lifetime of a session token and its cookie.
	DefaultSessionTTL = 7 * 24 * time.Hour

	// TokenIssuer identifies tokens minted by this server.
	TokenIssuer = "dmchat"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or claim checks.
var ErrInvalidToken = errors.New("invalid or expired token")

// GenerateToken signs a session token for userID valid for ttl.
func GenerateToken(userID string, secretKey string, ttl time.Duration) (string, error) {
	now := time.Now()

	payload := &Payload{
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
			Issuer:    TokenIssuer,
			Subject:   userID,
		},
		UserID: userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)

	return token.SignedString([]byte(secretKey))
}

// ParseToken validates tokenString with secretKey and returns its claims.
func ParseToken(tokenString string, secretKey string) (*Payload, error) {
	claims := &Payload{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid || claims.UserID == "" || claims.Issuer != TokenIssuer {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
