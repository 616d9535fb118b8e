package user

import (
	"context"
	"time"
)

// Role of a user. Elevated users may read and mutate orders of any owner.
type Role string

const (
	RoleStandard Role = "standard"
	RoleElevated Role = "elevated"
)

// Elevated reports whether the role grants access across all orders.
func (r Role) Elevated() bool {
	return r == RoleElevated
}

// User description. Fields aligned for the GC optimal scanning.
type User struct {
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	Email     string    `db:"email" json:"email"`
	Name      string    `db:"name" json:"name"`
	Password  string    `db:"password" json:"-"`
	Role      Role      `db:"role" json:"role"`
	ID        int       `db:"id" json:"id"`
	Active    bool      `db:"active" json:"active"`
}

// key is an unexported type for keys defined in this package.
// This prevents collisions with keys defined in other packages.
type key int

// userKey is the key for user.User values in Contexts. It is
// unexported; clients use user.NewContext and user.FromContext
// instead of using this key directly.
var userKey key

// NewContext returns a new Context that carries value u.
func NewContext(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// FromContext returns the User value stored in ctx, if any.
func FromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userKey).(*User)
	return u, ok
}
