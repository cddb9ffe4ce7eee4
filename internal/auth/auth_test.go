package auth

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/rasyiqi-code/breaktool-sub003/internal/domain"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestIssuerGenerateAndValidate(t *testing.T) {
	now := time.Now().UTC()
	iss, err := NewIssuer("test-secret", WithIssuerName("test-issuer"), WithClock(fixedClock(now)))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	token, expiresAt, err := iss.GenerateToken("user-42", []string{"Admin", "user", "admin"}, "admin", 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if !expiresAt.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	claims, err := iss.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "user-42" || claims.Issuer != "test-issuer" {
		t.Fatalf("unexpected claims: %+v", claims.RegisteredClaims)
	}
	if len(claims.Roles) != 2 || !slices.Contains(claims.Roles, "admin") || !slices.Contains(claims.Roles, "user") {
		t.Fatalf("roles were not normalized: %v", claims.Roles)
	}
	if claims.ActiveRole != "admin" {
		t.Fatalf("unexpected active role %q", claims.ActiveRole)
	}
}

func TestIssuerRejectsForeignAndExpiredTokens(t *testing.T) {
	now := time.Now().UTC()
	iss, _ := NewIssuer("secret-a", WithClock(fixedClock(now)))
	other, _ := NewIssuer("secret-b", WithClock(fixedClock(now)))

	token, _, err := other.GenerateToken("u1", nil, "", time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := iss.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}

	token, _, _ = iss.GenerateToken("u1", nil, "", time.Minute)
	later, _ := NewIssuer("secret-a", WithClock(fixedClock(now.Add(time.Hour))))
	if _, err := later.ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}

	if _, err := iss.ParseAndValidate("  "); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer(" "); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestPrincipalFromClaims(t *testing.T) {
	p := PrincipalFromClaims(&Claims{Roles: []string{"user", "vendor", "viewer"}, ActiveRole: "vendor"})
	if len(p.Roles) != 2 {
		t.Fatalf("unknown roles should be dropped: %v", p.Roles)
	}
	if p.ActiveRole != domain.RoleVendor {
		t.Fatalf("unexpected active role %q", p.ActiveRole)
	}
	if p.IsPrivileged() {
		t.Fatal("vendor must not be privileged")
	}
}

func TestPrincipalCanActOn(t *testing.T) {
	self := Principal{UserID: "u1", Roles: []domain.Role{domain.RoleUser}}
	staff := Principal{UserID: "a1", Roles: []domain.Role{domain.RoleUser, domain.RoleAdmin}}
	if !self.CanActOn("u1") || self.CanActOn("u2") {
		t.Fatal("users may act only on themselves")
	}
	if !staff.CanActOn("u2") || !staff.HasRole(domain.RoleAdmin) {
		t.Fatal("staff may act on anyone")
	}
	if (Principal{}).CanActOn("") {
		t.Fatal("anonymous principal must not act")
	}
}

type roleSource struct {
	users  map[string]domain.User
	grants map[string]map[domain.Role]bool
	err    error
}

func (s roleSource) GetUser(_ context.Context, id string) (domain.User, error) {
	if s.err != nil {
		return domain.User{}, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (s roleSource) UserHasRole(_ context.Context, id string, role domain.Role) (bool, error) {
	return s.grants[id][role], nil
}

func TestPrivilegedChecksRoleStore(t *testing.T) {
	ctx := context.Background()
	src := roleSource{
		users: map[string]domain.User{
			"active":   {ID: "active", PrimaryRole: domain.RoleUser, ActiveRole: domain.RoleAdmin},
			"switched": {ID: "switched", PrimaryRole: domain.RoleUser, ActiveRole: domain.RoleUser},
			"revoked":  {ID: "revoked", PrimaryRole: domain.RoleUser, ActiveRole: domain.RoleAdmin},
		},
		grants: map[string]map[domain.Role]bool{
			"active":   {domain.RoleUser: true, domain.RoleAdmin: true},
			"switched": {domain.RoleUser: true, domain.RoleAdmin: true},
			"revoked":  {domain.RoleUser: true},
		},
	}
	claims := []domain.Role{domain.RoleUser, domain.RoleAdmin}

	cases := map[string]bool{"active": true, "switched": false, "revoked": false, "missing": false}
	for id, want := range cases {
		got, err := Privileged(ctx, src, Principal{UserID: id, Roles: claims})
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		if got != want {
			t.Fatalf("Privileged(%s)=%v, want %v", id, got, want)
		}
	}

	got, err := Privileged(ctx, src, Principal{UserID: "active", Roles: []domain.Role{domain.RoleUser}})
	if err != nil || got {
		t.Fatalf("token without admin claim must not be privileged: %v %v", got, err)
	}

	src.err = errors.New("db down")
	if _, err := Privileged(ctx, src, Principal{UserID: "active", Roles: claims}); err == nil {
		t.Fatal("expected store error")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := ContextWithPrincipal(context.Background(), Principal{UserID: "user-7"})
	id, ok := UserIDFromContext(ctx)
	if !ok || id != "user-7" {
		t.Fatalf("unexpected user id: %s, ok=%v", id, ok)
	}
	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Fatal("expected no user in empty context")
	}
}
