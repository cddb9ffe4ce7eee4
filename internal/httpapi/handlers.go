package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/rasyiqi-code/breaktool-sub003/internal/audit"
	"github.com/rasyiqi-code/breaktool-sub003/internal/auth"
	"github.com/rasyiqi-code/breaktool-sub003/internal/badges"
	"github.com/rasyiqi-code/breaktool-sub003/internal/domain"
	"github.com/rasyiqi-code/breaktool-sub003/internal/obs"
	"github.com/rasyiqi-code/breaktool-sub003/internal/trust"
	"github.com/rasyiqi-code/breaktool-sub003/internal/verdict"
)

const (
	serviceName  = "breaktool-reputation"
	maxBodyBytes = 1 << 20
)

// Engine is the reputation engine surface exposed over HTTP.
type Engine interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	GrantRole(ctx context.Context, userID string, role domain.Role, grantedBy string) (domain.RoleGrant, error)
	RevokeRole(ctx context.Context, userID string, role domain.Role) error
	SwitchActiveRole(ctx context.Context, userID string, role domain.Role) error
	UserHasRole(ctx context.Context, userID string, role domain.Role) (bool, error)
	AvailableRoles(ctx context.Context, userID string) ([]domain.Role, error)
	SetVerificationStatus(ctx context.Context, userID string, status domain.ApplicationStatus, actor string) error
	SetVendorStatus(ctx context.Context, userID string, status domain.ApplicationStatus, actor string) error
	CalculateTrustScore(ctx context.Context, userID string) (trust.Result, error)
	ComputeBadges(ctx context.Context, userID string) ([]string, error)
	BadgeCatalog() []badges.Badge
	AggregateVerdict(ctx context.Context, toolID string) (verdict.Result, error)
	OnReviewChanged(ctx context.Context, authorID, toolID string) error
}

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	ParseAndValidate(token string) (*auth.Claims, error)
}

// ReadyProbe pings the database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

type Options struct {
	Engine     Engine
	Verifier   TokenVerifier
	Ready      ReadyProbe
	Version    string
	RateBurst  int
	RatePerSec int
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	engine     Engine
	verifier   TokenVerifier
	readyProbe ReadyProbe
	version    string
	rateBurst  int
	ratePerSec int
}

func New(opts Options) (*API, error) {
	if opts.Engine == nil {
		return nil, errors.New("httpapi: engine is required")
	}
	a := &API{
		mux:        http.NewServeMux(),
		engine:     opts.Engine,
		verifier:   opts.Verifier,
		readyProbe: opts.Ready,
		version:    opts.Version,
		rateBurst:  opts.RateBurst,
		ratePerSec: opts.RatePerSec,
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 40
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 20
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("GET /v1/badges", a.handleBadgeCatalog)

	a.mux.HandleFunc("GET /v1/users/{id}", a.handleGetUser)
	a.mux.HandleFunc("GET /v1/users/{id}/roles", a.handleListRoles)
	a.mux.HandleFunc("POST /v1/users/{id}/roles", a.handleGrantRole)
	a.mux.HandleFunc("GET /v1/users/{id}/roles/{role}", a.handleHasRole)
	a.mux.HandleFunc("DELETE /v1/users/{id}/roles/{role}", a.handleRevokeRole)
	a.mux.HandleFunc("PUT /v1/users/{id}/active-role", a.handleSwitchActiveRole)
	a.mux.HandleFunc("PUT /v1/users/{id}/verification", a.handleApplication(applicationVerification))
	a.mux.HandleFunc("PUT /v1/users/{id}/vendor-application", a.handleApplication(applicationVendor))

	a.mux.HandleFunc("POST /v1/users/{id}/trust-score", a.handleTrustScore)
	a.mux.HandleFunc("POST /v1/users/{id}/badges", a.handleComputeBadges)
	a.mux.HandleFunc("POST /v1/tools/{id}/verdict", a.handleVerdict)
	a.mux.HandleFunc("POST /v1/review-events", a.handleReviewEvent)
}

// Handler returns the fully wrapped handler.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	body := map[string]any{"error": msg}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		body["request_id"] = rid
	}
	writeJSON(w, code, body)
}

// writeDomainError maps engine errors to status codes.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		obs.Logger().ErrorContext(r.Context(), "request failed",
			"request_id", audit.RequestIDFromContext(r.Context()), "path", r.URL.Path, "error", err.Error())
		msg = "internal error"
	}
	writeError(w, r, code, msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRole),
		errors.Is(err, domain.ErrRoleNotHeld),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrPrimaryRoleRevoke):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrToolNotFound),
		errors.Is(err, domain.ErrRoleNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a single JSON object into dst and runs its validation rules.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, r, http.StatusBadRequest, "request body is required")
			return false
		}
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return false
	}
	if n, ok := dst.(interface{ normalize() }); ok {
		n.normalize()
	}
	if v, ok := dst.(validation.Validatable); ok {
		if err := v.Validate(); err != nil {
			var verrs validation.Errors
			if errors.As(err, &verrs) {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"error":      "invalid request",
					"details":    verrs,
					"request_id": audit.RequestIDFromContext(r.Context()),
				})
				return false
			}
			writeError(w, r, http.StatusBadRequest, err.Error())
			return false
		}
	}
	return true
}
