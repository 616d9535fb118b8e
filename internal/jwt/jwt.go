package jwt

import (
	"fmt"
	"strings"
	"time"

	"github.com/ashevelev/order-platform-service/internal/models/claims"
	"github.com/ashevelev/order-platform-service/internal/models/user"
	"github.com/golang-jwt/jwt/v4"
)

// BuildString creates a JWT string carrying the user identity and role,
// expiring after tokenExp.
func BuildString(userID int, role user.Role, secret string, tokenExp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims.Auth{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenExp)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID: userID,
		Role:   role,
	})

	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Bearer %s", tokenString), nil
}

// Parse validates the token signature and expiry and returns its claims.
func Parse(tokenString, secret string) (*claims.Auth, error) {
	c := new(claims.Auth)

	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.ParseWithClaims(tokenString, c,
		func(token *jwt.Token) (interface{}, error) {
			// Verify that the token method is HS256.
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf(
					"unexpected signing method: %v", token.Header["alg"],
				)
			}
			return []byte(secret), nil
		})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return c, nil
}
