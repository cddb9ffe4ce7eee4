package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/rasyiqi-code/breaktool-sub003/internal/domain"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID     string
	Roles      []domain.Role
	ActiveRole domain.Role
}

// PrincipalFromClaims keeps only roles the engine knows about.
func PrincipalFromClaims(c *Claims) Principal {
	p := Principal{UserID: strings.TrimSpace(c.Subject)}
	for _, raw := range c.Roles {
		if r, err := domain.ParseRole(raw); err == nil {
			p.Roles = append(p.Roles, r)
		}
	}
	if r, err := domain.ParseRole(c.ActiveRole); err == nil {
		p.ActiveRole = r
	}
	return p
}

// HasRole reports whether the principal holds role.
func (p Principal) HasRole(role domain.Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsPrivileged is true when the token claims admin or super_admin. Callers
// confirm the claim against the role store with Privileged.
func (p Principal) IsPrivileged() bool {
	for _, r := range p.Roles {
		if r.IsPrivileged() {
			return true
		}
	}
	return false
}

// CanActOn allows users to act on themselves and staff claims to act on anyone.
func (p Principal) CanActOn(userID string) bool {
	return p.UserID != "" && (p.UserID == userID || p.IsPrivileged())
}

// RoleSource reads a user's current role state.
type RoleSource interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	UserHasRole(ctx context.Context, userID string, role domain.Role) (bool, error)
}

// Privileged reports whether p may perform administrative actions now. The
// token must claim a privileged role, and in the role store the caller's
// active role must be privileged and still actively granted.
func Privileged(ctx context.Context, src RoleSource, p Principal) (bool, error) {
	if p.UserID == "" || !p.IsPrivileged() {
		return false, nil
	}
	u, err := src.GetUser(ctx, p.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	role := u.CurrentRole()
	if !role.IsPrivileged() {
		return false, nil
	}
	return src.UserHasRole(ctx, p.UserID, role)
}
