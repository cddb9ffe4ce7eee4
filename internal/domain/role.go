package domain

import (
	"fmt"
	"strings"
)

// Role is one of the closed set of authorization roles a user can hold.
type Role string

const (
	RoleUser           Role = "user"
	RoleVerifiedTester Role = "verified_tester"
	RoleVendor         Role = "vendor"
	RoleAdmin          Role = "admin"
	RoleSuperAdmin     Role = "super_admin"
)

// AllRoles lists every role in ascending order of authority.
var AllRoles = []Role{RoleUser, RoleVerifiedTester, RoleVendor, RoleAdmin, RoleSuperAdmin}

// ParseRole normalizes s and returns the matching role or ErrInvalidRole.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(strings.ToLower(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleVerifiedTester, RoleVendor, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsPrivileged reports whether r may perform administrative actions.
func (r Role) IsPrivileged() bool {
	switch r {
	case RoleAdmin, RoleSuperAdmin:
		return true
	case RoleUser, RoleVerifiedTester, RoleVendor:
		return false
	}
	return false
}

// ReviewWeight is the multiplier applied to reviews written under r.
func (r Role) ReviewWeight() float64 {
	switch r {
	case RoleSuperAdmin, RoleAdmin:
		return 2.0
	case RoleVerifiedTester:
		return 1.5
	case RoleVendor:
		return 0.5
	case RoleUser:
		return 1.0
	}
	return 1.0
}

func (r Role) String() string { return string(r) }
