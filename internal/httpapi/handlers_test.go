package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rasyiqi-code/breaktool-sub003/internal/auth"
	"github.com/rasyiqi-code/breaktool-sub003/internal/domain"
	"github.com/rasyiqi-code/breaktool-sub003/internal/engine"
	"github.com/rasyiqi-code/breaktool-sub003/internal/obs"
	"github.com/rasyiqi-code/breaktool-sub003/internal/store/memory"
)

const testSecret = "test-secret"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	t      *testing.T
	store  *memory.Store
	eng    *engine.Engine
	issuer *auth.Issuer
	srv    http.Handler
}

func newFixture(t *testing.T, users ...string) *fixture {
	t.Helper()
	f := newUnauthenticatedFixture(t, users...)
	issuer, err := auth.NewIssuer(testSecret)
	require.NoError(t, err)
	api, err := New(Options{Engine: f.eng, Verifier: issuer, Version: "test", RateBurst: 1000, RatePerSec: 1000})
	require.NoError(t, err)
	f.issuer = issuer
	f.srv = api.Handler()
	return f
}

// newUnauthenticatedFixture serves without a token verifier.
func newUnauthenticatedFixture(t *testing.T, users ...string) *fixture {
	t.Helper()
	prev := obs.SetLogger(obs.NewJSONLogger(io.Discard, slog.LevelError))
	t.Cleanup(func() { obs.SetLogger(prev) })

	store := memory.New()
	for _, id := range users {
		_, err := store.EnsureUser(context.Background(), id, testNow.Add(-48*time.Hour))
		require.NoError(t, err)
	}
	eng, err := engine.New(store, engine.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	api, err := New(Options{Engine: eng, Version: "test", RateBurst: 1000, RatePerSec: 1000})
	require.NoError(t, err)

	return &fixture{t: t, store: store, eng: eng, srv: api.Handler()}
}

// admin provisions userID with role granted and active, and returns a token
// claiming it.
func (f *fixture) admin(userID string, role domain.Role) string {
	f.t.Helper()
	f.promote(userID, role)
	return f.token(userID, domain.RoleUser, role)
}

func (f *fixture) promote(userID string, role domain.Role) {
	f.t.Helper()
	ctx := context.Background()
	_, err := f.store.EnsureUser(ctx, userID, testNow.Add(-48*time.Hour))
	require.NoError(f.t, err)
	_, err = f.eng.GrantRole(ctx, userID, role, "")
	require.NoError(f.t, err)
	require.NoError(f.t, f.eng.SwitchActiveRole(ctx, userID, role))
}

func (f *fixture) token(userID string, roles ...domain.Role) string {
	f.t.Helper()
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.String())
	}
	tok, _, err := f.issuer.GenerateToken(userID, names, "", time.Hour)
	require.NoError(f.t, err)
	return tok
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	f.t.Helper()
	return f.doWith(method, path, body, func(req *http.Request) {
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	})
}

func (f *fixture) doWith(method, path, body string, prepare func(*http.Request)) *httptest.ResponseRecorder {
	f.t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	prepare(req)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&out), rec.Body.String())
	return out
}

func TestPublicEndpointsSkipAuth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = f.do(http.MethodGet, "/v1/badges", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list, ok := decode(t, rec)["badges"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, list)

	rec = f.do(http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	f := newFixture(t, "u1")

	rec := f.do(http.MethodGet, "/v1/users/u1", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/v1/users/u1", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid token", decode(t, rec)["error"])

	other, err := auth.NewIssuer("other-secret")
	require.NoError(t, err)
	forged, _, err := other.GenerateToken("u1", []string{"super_admin"}, "", time.Hour)
	require.NoError(t, err)
	rec = f.do(http.MethodGet, "/v1/users/u1", forged, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUsersReadOnlyThemselves(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	tok := f.token("u1", domain.RoleUser)

	rec := f.do(http.MethodGet, "/v1/users/u1/roles", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "user", body["primary_role"])
	assert.Equal(t, "user", body["active_role"])
	assert.Equal(t, []any{"user"}, body["roles"])

	rec = f.do(http.MethodGet, "/v1/users/u2/roles", tok, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := f.admin("admin-1", domain.RoleAdmin)
	rec = f.do(http.MethodGet, "/v1/users/u2", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u2", decode(t, rec)["id"])

	rec = f.do(http.MethodGet, "/v1/users/ghost", admin, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGrantSwitchRevokeFlow(t *testing.T) {
	f := newFixture(t, "u1")
	user := f.token("u1", domain.RoleUser)
	admin := f.admin("admin-1", domain.RoleAdmin)

	rec := f.do(http.MethodPost, "/v1/users/u1/roles", user, `{"role":"vendor"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/v1/users/u1/roles", admin, `{"role":" Vendor "}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "/v1/users/u1/roles/vendor", rec.Header().Get("Location"))
	grant := decode(t, rec)
	assert.Equal(t, "vendor", grant["role"])
	assert.Equal(t, "admin-1", grant["granted_by"])
	assert.Equal(t, true, grant["is_active"])

	rec = f.do(http.MethodGet, "/v1/users/u1/roles/vendor", user, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["has_role"])

	rec = f.do(http.MethodPut, "/v1/users/u1/active-role", user, `{"role":"vendor"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "vendor", decode(t, rec)["active_role"])

	u, err := f.store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"vendor"}, u.Badges)

	rec = f.do(http.MethodDelete, "/v1/users/u1/roles/vendor", admin, "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/v1/users/u1/roles", user, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "user", body["active_role"])
	assert.Equal(t, []any{"user"}, body["roles"])
}

func TestRoleErrorsMapToStatusCodes(t *testing.T) {
	f := newFixture(t, "u1")
	user := f.token("u1", domain.RoleUser)
	admin := f.admin("admin-1", domain.RoleSuperAdmin)

	rec := f.do(http.MethodPost, "/v1/users/u1/roles", admin, `{"role":"owner"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	details, ok := decode(t, rec)["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "invalid_role", details["role"])

	rec = f.do(http.MethodPost, "/v1/users/u1/roles", admin, `{"role":"vendor","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/v1/users/u1/roles", admin, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "request body is required", decode(t, rec)["error"])

	rec = f.do(http.MethodPut, "/v1/users/u1/active-role", user, `{"role":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodDelete, "/v1/users/u1/roles/user", admin, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodDelete, "/v1/users/u1/roles/admin", admin, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/v1/users/u1/roles/owner", user, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/v1/users/ghost/roles", admin, `{"role":"vendor"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApplicationStatusRules(t *testing.T) {
	f := newFixture(t, "u1")
	user := f.token("u1", domain.RoleUser)
	admin := f.admin("admin-1", domain.RoleAdmin)

	rec := f.do(http.MethodPut, "/v1/users/u1/verification", user, `{"status":"pending"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "pending", decode(t, rec)["verification_status"])

	rec = f.do(http.MethodPut, "/v1/users/u1/verification", user, `{"status":"approved"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPut, "/v1/users/u1/verification", admin, `{"status":"done"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPut, "/v1/users/u1/verification", admin, `{"status":"approved"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "approved", body["verification_status"])
	assert.EqualValues(t, 10, body["trust_score"])

	rec = f.do(http.MethodGet, "/v1/users/u1/roles/verified_tester", user, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["has_role"])

	rec = f.do(http.MethodPut, "/v1/users/u1/vendor-application", admin, `{"status":"rejected"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rejected", decode(t, rec)["vendor_status"])
}

func TestReviewEventsRecomputeReputation(t *testing.T) {
	f := newFixture(t, "author", "u2")
	ctx := context.Background()
	require.NoError(t, f.store.PutTool(ctx, domain.Tool{ID: "tool-1", Name: "Linter", OverallScore: 8.6}))
	for i := 0; i < 6; i++ {
		_, err := f.store.AddReview(ctx, domain.Review{
			ToolID:       "tool-1",
			UserID:       "author",
			OverallScore: 9,
			HelpfulVotes: 4,
			TotalVotes:   4,
			ReviewerRole: domain.RoleUser,
			CreatedAt:    testNow.Add(-time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
	require.NoError(t, f.store.SetHelpfulVotesReceived(ctx, "author", 24))

	admin := f.admin("admin-1", domain.RoleAdmin)
	user := f.token("author", domain.RoleUser)

	rec := f.do(http.MethodPost, "/v1/review-events", user, `{"author_id":"author","tool_id":"tool-1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/v1/review-events", admin, `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	details, ok := decode(t, rec)["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "author_or_tool_required", details["author_id"])

	rec = f.do(http.MethodPost, "/v1/review-events", admin, `{"author_id":"author","tool_id":"tool-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	u, err := f.store.GetUser(ctx, "author")
	require.NoError(t, err)
	assert.Greater(t, u.TrustScore, 0)
	assert.NotEmpty(t, u.Badges)

	tool, err := f.store.GetTool(ctx, "tool-1")
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictKeep, tool.Verdict)

	rec = f.do(http.MethodPost, "/v1/review-events", admin, `{"tool_id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecomputeEndpoints(t *testing.T) {
	f := newFixture(t, "u1")
	ctx := context.Background()
	require.NoError(t, f.store.PutTool(ctx, domain.Tool{ID: "tool-1", Name: "Empty"}))
	user := f.token("u1", domain.RoleUser)
	admin := f.admin("admin-1", domain.RoleAdmin)

	rec := f.do(http.MethodPost, "/v1/users/u1/trust-score", user, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "u1", body["user_id"])
	assert.EqualValues(t, 0, body["score"])

	rec = f.do(http.MethodPost, "/v1/users/u1/badges", user, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, []any{"new_member", "user"}, body["badges"])
	details, ok := body["details"].([]any)
	require.True(t, ok)
	assert.Len(t, details, 2)

	rec = f.do(http.MethodPost, "/v1/tools/tool-1/verdict", user, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/v1/tools/tool-1/verdict", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "try", body["verdict"])
	assert.EqualValues(t, 50, body["confidence"])

	rec = f.do(http.MethodPost, "/v1/tools/nope/verdict", admin, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaleAdminTokenIsRejected(t *testing.T) {
	f := newFixture(t, "u2")
	ctx := context.Background()
	admin := f.admin("admin-1", domain.RoleAdmin)

	rec := f.do(http.MethodPost, "/v1/users/u2/roles", admin, `{"role":"vendor"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NoError(t, f.eng.RevokeRole(ctx, "admin-1", domain.RoleAdmin))
	rec = f.do(http.MethodPost, "/v1/users/u2/roles", admin, `{"role":"admin"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	held, err := f.eng.UserHasRole(ctx, "u2", domain.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, held)

	rec = f.do(http.MethodGet, "/v1/users/u2", admin, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminActingAsUserIsNotPrivileged(t *testing.T) {
	f := newFixture(t, "u2")
	ctx := context.Background()
	admin := f.admin("admin-1", domain.RoleAdmin)
	_, err := f.eng.GrantRole(ctx, "u2", domain.RoleVendor, "admin-1")
	require.NoError(t, err)

	require.NoError(t, f.eng.SwitchActiveRole(ctx, "admin-1", domain.RoleUser))
	rec := f.do(http.MethodDelete, "/v1/users/u2/roles/vendor", admin, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.NoError(t, f.eng.SwitchActiveRole(ctx, "admin-1", domain.RoleAdmin))
	rec = f.do(http.MethodDelete, "/v1/users/u2/roles/vendor", admin, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWithoutVerifierCallerComesFromHeader(t *testing.T) {
	f := newUnauthenticatedFixture(t, "u1", "u2")
	f.promote("admin-1", domain.RoleAdmin)
	as := func(userID string) func(*http.Request) {
		return func(req *http.Request) {
			if userID != "" {
				req.Header.Set(devUserHeader, userID)
			}
		}
	}

	rec := f.doWith(http.MethodGet, "/v1/users/u1/roles", "", as(""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.doWith(http.MethodGet, "/v1/users/u1/roles", "", as("u1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []any{"user"}, decode(t, rec)["roles"])

	rec = f.doWith(http.MethodGet, "/v1/users/u2", "", as("u1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.doWith(http.MethodPost, "/v1/users/u2/roles", `{"role":"vendor"}`, as("u1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.doWith(http.MethodPost, "/v1/users/u2/roles", `{"role":"vendor"}`, as("admin-1"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "admin-1", decode(t, rec)["granted_by"])

	rec = f.doWith(http.MethodGet, "/v1/badges", "", as(""))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewRequiresEngine(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
