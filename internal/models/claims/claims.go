package claims

import (
	"github.com/ashevelev/order-platform-service/internal/models/user"
	"github.com/golang-jwt/jwt/v4"
)

// Auth represents the token claims: the registered set plus
// the user identity and role.
type Auth struct {
	jwt.RegisteredClaims
	UserID int       `json:"uid"`
	Role   user.Role `json:"role"`
}
