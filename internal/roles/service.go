package roles

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rasyiqi-code/breaktool-sub003/internal/domain"
)

// Service owns role grants and the primary/active role pointers.
type Service struct {
	store Store
	now   func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithClock overrides the time source used for grant and switch stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("role store is required")
	}
	s := &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GrantRole activates role for the user, reusing an existing grant row when
// one exists for the pair.
func (s *Service) GrantRole(ctx context.Context, userID string, role domain.Role, grantedBy string) (domain.RoleGrant, error) {
	userID, err := s.validate(userID, role)
	if err != nil {
		return domain.RoleGrant{}, err
	}
	var stored domain.RoleGrant
	err = s.store.UpdateUser(ctx, userID, func(tx Tx) error {
		stored, err = s.grant(ctx, tx, role, strings.TrimSpace(grantedBy))
		return err
	})
	if err != nil {
		return domain.RoleGrant{}, err
	}
	return stored, nil
}

// RevokeRole deactivates the grant for role. If role was active, the active
// role falls back to the primary role in the same transaction.
func (s *Service) RevokeRole(ctx context.Context, userID string, role domain.Role) error {
	userID, err := s.validate(userID, role)
	if err != nil {
		return err
	}
	return s.store.UpdateUser(ctx, userID, func(tx Tx) error {
		return s.revoke(ctx, tx, role)
	})
}

// SwitchActiveRole makes role the active role. Switching to the current
// active role is a no-op apart from the switch stamp.
func (s *Service) SwitchActiveRole(ctx context.Context, userID string, role domain.Role) error {
	userID, err := s.validate(userID, role)
	if err != nil {
		return err
	}
	return s.store.UpdateUser(ctx, userID, func(tx Tx) error {
		if !HasActiveGrant(tx.Grants(), role) {
			return fmt.Errorf("%w: %s", domain.ErrRoleNotHeld, role)
		}
		now := s.now()
		return tx.SetActiveRole(ctx, role, &now)
	})
}

// UserHasRole reports whether an active grant exists for the pair.
func (s *Service) UserHasRole(ctx context.Context, userID string, role domain.Role) (bool, error) {
	userID, err := s.validate(userID, role)
	if err != nil {
		return false, err
	}
	grants, err := s.store.ListGrants(ctx, userID)
	if err != nil {
		return false, err
	}
	return HasActiveGrant(grants, role), nil
}

// AvailableRoles lists actively granted roles, most recently granted first.
func (s *Service) AvailableRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrInvalidInput)
	}
	grants, err := s.store.ListGrants(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := make([]domain.RoleGrant, 0, len(grants))
	for _, g := range grants {
		if g.IsActive {
			active = append(active, g)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].GrantedAt.After(active[j].GrantedAt)
	})
	out := make([]domain.Role, len(active))
	for i, g := range active {
		out[i] = g.Role
	}
	return out, nil
}

// SetVerificationStatus records the tester verification outcome. Approval
// grants verified_tester; rejection revokes it if it was held.
func (s *Service) SetVerificationStatus(ctx context.Context, userID string, status domain.ApplicationStatus, actor string) error {
	return s.setApplication(ctx, userID, status, actor, domain.RoleVerifiedTester, Tx.SetVerificationStatus)
}

// SetVendorStatus records the vendor application outcome. Approval grants
// vendor; rejection revokes it if it was held.
func (s *Service) SetVendorStatus(ctx context.Context, userID string, status domain.ApplicationStatus, actor string) error {
	return s.setApplication(ctx, userID, status, actor, domain.RoleVendor, Tx.SetVendorStatus)
}

func (s *Service) setApplication(
	ctx context.Context,
	userID string,
	status domain.ApplicationStatus,
	actor string,
	role domain.Role,
	set func(Tx, context.Context, domain.ApplicationStatus) error,
) error {
	userID, err := s.validate(userID, role)
	if err != nil {
		return err
	}
	switch status {
	case domain.StatusPending, domain.StatusApproved, domain.StatusRejected:
	default:
		return fmt.Errorf("%w: unsupported application status %q", domain.ErrInvalidInput, status)
	}
	return s.store.UpdateUser(ctx, userID, func(tx Tx) error {
		if err := set(tx, ctx, status); err != nil {
			return err
		}
		switch status {
		case domain.StatusApproved:
			_, err := s.grant(ctx, tx, role, strings.TrimSpace(actor))
			return err
		case domain.StatusRejected:
			if !HasActiveGrant(tx.Grants(), role) || tx.User().PrimaryRole == role {
				return nil
			}
			return s.revoke(ctx, tx, role)
		}
		return nil
	})
}

func (s *Service) grant(ctx context.Context, tx Tx, role domain.Role, grantedBy string) (domain.RoleGrant, error) {
	g := domain.RoleGrant{
		UserID:    tx.User().ID,
		Role:      role,
		IsActive:  true,
		GrantedAt: s.now(),
		GrantedBy: grantedBy,
	}
	if existing, ok := FindGrant(tx.Grants(), role); ok {
		g.ID = existing.ID
	}
	return tx.PutGrant(ctx, g)
}

func (s *Service) revoke(ctx context.Context, tx Tx, role domain.Role) error {
	user := tx.User()
	g, ok := FindGrant(tx.Grants(), role)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrRoleNotFound, role)
	}
	if role == user.PrimaryRole {
		return fmt.Errorf("%w: %s", domain.ErrPrimaryRoleRevoke, role)
	}
	g.IsActive = false
	if _, err := tx.PutGrant(ctx, g); err != nil {
		return err
	}
	if user.ActiveRole == role {
		return tx.SetActiveRole(ctx, user.PrimaryRole, nil)
	}
	return nil
}

func (s *Service) validate(userID string, role domain.Role) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidRole, string(role))
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("%w: user_id is required", domain.ErrInvalidInput)
	}
	return userID, nil
}
