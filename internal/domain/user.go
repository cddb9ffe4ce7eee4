package domain

import (
	"fmt"
	"strings"
	"time"
)

// ApplicationStatus tracks a verification or vendor application.
type ApplicationStatus string

const (
	StatusNone     ApplicationStatus = ""
	StatusPending  ApplicationStatus = "pending"
	StatusApproved ApplicationStatus = "approved"
	StatusRejected ApplicationStatus = "rejected"
)

// ParseApplicationStatus accepts pending, approved or rejected.
func ParseApplicationStatus(s string) (ApplicationStatus, error) {
	switch st := ApplicationStatus(strings.TrimSpace(strings.ToLower(s))); st {
	case StatusPending, StatusApproved, StatusRejected:
		return st, nil
	}
	return StatusNone, fmt.Errorf("%w: unsupported application status %q", ErrInvalidInput, s)
}

// User is the subset of the user record owned by the reputation engine.
type User struct {
	ID                   string            `json:"id"`
	PrimaryRole          Role              `json:"primary_role"`
	ActiveRole           Role              `json:"active_role,omitempty"`
	RoleSwitchedAt       *time.Time        `json:"role_switched_at,omitempty"`
	TrustScore           int               `json:"trust_score"`
	Badges               []string          `json:"badges"`
	VerificationStatus   ApplicationStatus `json:"verification_status,omitempty"`
	VendorStatus         ApplicationStatus `json:"vendor_status,omitempty"`
	HelpfulVotesReceived int               `json:"helpful_votes_received"`
	CreatedAt            time.Time         `json:"created_at"`
}

// CurrentRole is the role in effect, falling back to the primary role while
// ActiveRole is transiently unset.
func (u User) CurrentRole() Role {
	if u.ActiveRole != "" {
		return u.ActiveRole
	}
	return u.PrimaryRole
}

// RoleGrant asserts that a user may act under Role. Revoked grants are kept
// with IsActive=false.
type RoleGrant struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"is_active"`
	GrantedAt time.Time `json:"granted_at"`
	GrantedBy string    `json:"granted_by,omitempty"`
}
