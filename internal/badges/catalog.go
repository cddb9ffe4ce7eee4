package badges

import (
	"sort"

	"github.com/rasyiqi-code/breaktool-sub003/internal/domain"
)

// Category groups badges for display.
type Category string

const (
	CategoryRole        Category = "role"
	CategoryAchievement Category = "achievement"
	CategoryStatus      Category = "status"
	CategoryActivity    Category = "activity"
)

// Badge is a catalog entry. Higher Priority is shown first.
type Badge struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Priority    int      `json:"priority"`
}

const (
	SuperAdmin               = "super_admin"
	Admin                    = "admin"
	Vendor                   = "vendor"
	VerifiedTester           = "verified_tester"
	Member                   = "user"
	TopExpert                = "top_expert"
	VerifiedExpert           = "verified_expert"
	TrustedReviewer          = "trusted_reviewer"
	ActiveContributor        = "active_contributor"
	VerificationPending      = "verification_pending"
	VendorApplicationPending = "vendor_application_pending"
	NewMember                = "new_member"
)

var catalog = map[string]Badge{
	SuperAdmin:               {SuperAdmin, "Super Admin", "Platform owner", CategoryRole, 100},
	Admin:                    {Admin, "Admin", "Platform administrator", CategoryRole, 90},
	Vendor:                   {Vendor, "Vendor", "Approved tool vendor", CategoryRole, 70},
	VerifiedTester:           {VerifiedTester, "Verified Tester", "Verified hands-on tester", CategoryRole, 60},
	Member:                   {Member, "Member", "Community member", CategoryRole, 10},
	TopExpert:                {TopExpert, "Top Expert", "Trust score of 90 or more", CategoryAchievement, 95},
	VerifiedExpert:           {VerifiedExpert, "Verified Expert", "Trust score of 80 or more", CategoryAchievement, 85},
	TrustedReviewer:          {TrustedReviewer, "Trusted Reviewer", "Trust score of 70 or more", CategoryAchievement, 75},
	ActiveContributor:        {ActiveContributor, "Active Contributor", "Trust score of 50 or more", CategoryAchievement, 55},
	VendorApplicationPending: {VendorApplicationPending, "Vendor Application Pending", "Vendor application under review", CategoryStatus, 45},
	VerificationPending:      {VerificationPending, "Verification Pending", "Tester verification under review", CategoryStatus, 40},
	NewMember:                {NewMember, "New Member", "Joined in the last 30 days", CategoryActivity, 20},
}

var roleBadges = map[domain.Role]string{
	domain.RoleSuperAdmin:     SuperAdmin,
	domain.RoleAdmin:          Admin,
	domain.RoleVendor:         Vendor,
	domain.RoleVerifiedTester: VerifiedTester,
	domain.RoleUser:           Member,
}

// trustTiers is ordered from the highest threshold down.
var trustTiers = []struct {
	min int
	id  string
}{
	{90, TopExpert},
	{80, VerifiedExpert},
	{70, TrustedReviewer},
	{50, ActiveContributor},
}

// Catalog returns every badge definition, highest priority first.
func Catalog() []Badge {
	out := make([]Badge, 0, len(catalog))
	for _, b := range catalog {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Lookup returns the catalog entry for id.
func Lookup(id string) (Badge, bool) {
	b, ok := catalog[id]
	return b, ok
}

// ForRole returns the role badge for r.
func ForRole(r domain.Role) (Badge, bool) {
	id, ok := roleBadges[r]
	if !ok {
		return Badge{}, false
	}
	return catalog[id], true
}

// ForTrustScore returns the single highest trust tier met by score.
func ForTrustScore(score int) (Badge, bool) {
	for _, tier := range trustTiers {
		if score >= tier.min {
			return catalog[tier.id], true
		}
	}
	return Badge{}, false
}
