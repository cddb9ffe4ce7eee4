package badges

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rasyiqi-code/breaktool-sub003/internal/domain"
)

// DefaultNewMemberWindow is how long the new-member badge is shown.
const DefaultNewMemberWindow = 30 * 24 * time.Hour

// Store is the persistence contract of the assigner.
type Store interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	SetBadges(ctx context.Context, userID string, badgeIDs []string) error
}

// Derive returns the user's badges, highest priority first. Candidates are
// collected as role, trust tier, status, activity; equal priorities keep
// that order.
func Derive(u domain.User, now time.Time, newMemberWindow time.Duration) []Badge {
	role := u.CurrentRole()
	var out []Badge

	if b, ok := ForRole(role); ok {
		out = append(out, b)
	}
	if b, ok := ForTrustScore(u.TrustScore); ok {
		out = append(out, b)
	}
	// A vendor's pending vendor application must not surface a stale
	// tester-pending badge as well.
	if u.VerificationStatus == domain.StatusPending && role != domain.RoleVendor {
		out = append(out, catalog[VerificationPending])
	}
	if u.VendorStatus == domain.StatusPending {
		out = append(out, catalog[VendorApplicationPending])
	}
	if role == domain.RoleUser && !u.CreatedAt.IsZero() && now.Sub(u.CreatedAt) <= newMemberWindow {
		out = append(out, catalog[NewMember])
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

// IDs projects badges to their identifiers.
func IDs(list []Badge) []string {
	out := make([]string, len(list))
	for i, b := range list {
		out[i] = b.ID
	}
	return out
}

// Assigner recomputes and persists a user's badge list.
type Assigner struct {
	store           Store
	now             func() time.Time
	newMemberWindow time.Duration
}

func NewAssigner(store Store, now func() time.Time, newMemberWindow time.Duration) (*Assigner, error) {
	if store == nil {
		return nil, errors.New("badge store is required")
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if newMemberWindow <= 0 {
		newMemberWindow = DefaultNewMemberWindow
	}
	return &Assigner{store: store, now: now, newMemberWindow: newMemberWindow}, nil
}

// Compute derives the badge list from the stored user and writes it back.
func (a *Assigner) Compute(ctx context.Context, userID string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	u, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := IDs(Derive(u, a.now(), a.newMemberWindow))
	if err := a.store.SetBadges(ctx, userID, ids); err != nil {
		return nil, err
	}
	return ids, nil
}
