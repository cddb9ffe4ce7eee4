package roles

import (
	"context"
	"time"

	"github.com/rasyiqi-code/breaktool-sub003/internal/domain"
)

// Store is the persistence contract for role grants and role pointers.
type Store interface {
	// GetUser returns domain.ErrUserNotFound for unknown ids.
	GetUser(ctx context.Context, userID string) (domain.User, error)
	// ListGrants returns every grant, active or revoked, for the user.
	ListGrants(ctx context.Context, userID string) ([]domain.RoleGrant, error)
	// UpdateUser runs fn while holding the user's lock. Writes made through tx
	// become visible atomically when fn returns nil and are discarded otherwise.
	UpdateUser(ctx context.Context, userID string, fn func(tx Tx) error) error
}

// Tx is a locked, read-your-writes view of one user record and its grants.
type Tx interface {
	User() domain.User
	Grants() []domain.RoleGrant
	// PutGrant upserts by (user, role) and returns the stored grant.
	PutGrant(ctx context.Context, g domain.RoleGrant) (domain.RoleGrant, error)
	// SetActiveRole moves the active role pointer. A nil switchedAt keeps the
	// previous role_switched_at stamp.
	SetActiveRole(ctx context.Context, role domain.Role, switchedAt *time.Time) error
	SetVerificationStatus(ctx context.Context, status domain.ApplicationStatus) error
	SetVendorStatus(ctx context.Context, status domain.ApplicationStatus) error
}

// FindGrant returns the grant for role among grants, if any.
func FindGrant(grants []domain.RoleGrant, role domain.Role) (domain.RoleGrant, bool) {
	for _, g := range grants {
		if g.Role == role {
			return g, true
		}
	}
	return domain.RoleGrant{}, false
}

// HasActiveGrant reports whether grants contain an active grant for role.
func HasActiveGrant(grants []domain.RoleGrant, role domain.Role) bool {
	g, ok := FindGrant(grants, role)
	return ok && g.IsActive
}
