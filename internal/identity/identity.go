// Package identity holds the signed-in operator and persists it across
// restarts under a fixed storage key.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of operator roles.
type Role string

const (
	// RoleFarmer is the standard user.
	RoleFarmer     Role = "farmer"
	RoleAdmin      Role = "admin"
	RoleResearcher Role = "researcher"
)

// ErrUnknownRole is returned by ParseRole.
var ErrUnknownRole = errors.New("identity: unknown role")

// Roles lists every valid role in display order.
func Roles() []Role {
	return []Role{RoleFarmer, RoleAdmin, RoleResearcher}
}

// ParseRole accepts a role name in any case. "user" is accepted as an alias
// for farmer.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "farmer", "user":
		return RoleFarmer, nil
	case "admin":
		return RoleAdmin, nil
	case "researcher":
		return RoleResearcher, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleFarmer, RoleAdmin, RoleResearcher:
		return true
	}
	return false
}

// Label is the human-readable role name.
func (r Role) Label() string {
	switch r {
	case RoleFarmer:
		return "Farmer"
	case RoleAdmin:
		return "Administrator"
	case RoleResearcher:
		return "Researcher"
	default:
		return string(r)
	}
}

// Identity is the authenticated principal.
type Identity struct {
	LastLogin time.Time `json:"lastLogin"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
}

// Validate checks the fields a persisted snapshot must carry.
func (i Identity) Validate() error {
	switch {
	case strings.TrimSpace(i.ID) == "":
		return errors.New("identity: id cannot be empty")
	case !i.Role.Valid():
		return fmt.Errorf("%w: %q", ErrUnknownRole, i.Role)
	case i.LastLogin.IsZero():
		return errors.New("identity: lastLogin cannot be zero")
	}
	return nil
}

// HasRole reports whether the identity carries one of roles.
func (i Identity) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}
