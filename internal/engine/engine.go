// Package engine wires the role store, trust calculator, badge assigner and
// verdict aggregator behind one facade.
//
// Mutations are followed by the matching hook (OnRoleChanged,
// OnReviewChanged, OnApplicationStatusChanged). Hooks recompute derived
// state best-effort: a failed recompute is logged and counted but never
// undoes the committed mutation. Callers retry by invoking the hook or the
// recompute operation again.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rasyiqi-code/breaktool-sub003/internal/audit"
	"github.com/rasyiqi-code/breaktool-sub003/internal/badges"
	"github.com/rasyiqi-code/breaktool-sub003/internal/domain"
	"github.com/rasyiqi-code/breaktool-sub003/internal/obs"
	"github.com/rasyiqi-code/breaktool-sub003/internal/roles"
	"github.com/rasyiqi-code/breaktool-sub003/internal/trust"
	"github.com/rasyiqi-code/breaktool-sub003/internal/verdict"
)

const (
	stageTrust   = "trust"
	stageBadges  = "badges"
	stageVerdict = "verdict"
)

// Store is everything the engine reads and writes.
type Store interface {
	roles.Store
	trust.Store
	badges.Store
	verdict.Store
	ListToolIDs(ctx context.Context) ([]string, error)
}

type Engine struct {
	store    Store
	roles    *roles.Service
	trust    *trust.Calculator
	badges   *badges.Assigner
	verdicts *verdict.Aggregator
	logger   *slog.Logger
}

type options struct {
	now             func() time.Time
	newMemberWindow time.Duration
	evidenceK       float64
	logger          *slog.Logger
}

type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithNewMemberWindow(d time.Duration) Option {
	return func(o *options) { o.newMemberWindow = d }
}

func WithEvidenceK(k float64) Option {
	return func(o *options) { o.evidenceK = k }
}

// WithLogger pins the logger. Without it the shared obs logger is used.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func New(store Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("engine store is required")
	}
	o := options{
		now:             func() time.Time { return time.Now().UTC() },
		newMemberWindow: badges.DefaultNewMemberWindow,
		evidenceK:       verdict.DefaultEvidenceK,
	}
	for _, opt := range opts {
		opt(&o)
	}

	rs, err := roles.NewService(store, roles.WithClock(o.now))
	if err != nil {
		return nil, err
	}
	tc, err := trust.NewCalculator(store, o.now)
	if err != nil {
		return nil, err
	}
	ba, err := badges.NewAssigner(store, o.now, o.newMemberWindow)
	if err != nil {
		return nil, err
	}
	va, err := verdict.NewAggregator(store, o.now, o.evidenceK)
	if err != nil {
		return nil, err
	}
	return &Engine{store: store, roles: rs, trust: tc, badges: ba, verdicts: va, logger: o.logger}, nil
}

func (e *Engine) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return obs.Logger()
}

func (e *Engine) GrantRole(ctx context.Context, userID string, role domain.Role, grantedBy string) (domain.RoleGrant, error) {
	g, err := e.roles.GrantRole(ctx, userID, role, grantedBy)
	obs.ObserveRoleMutation("grant", err)
	if err != nil {
		return domain.RoleGrant{}, err
	}
	_ = audit.LogEvent(ctx, "roles.grant", map[string]any{
		"user_id": userID, "role": role.String(), "granted_by": grantedBy, "grant_id": g.ID,
	})
	_ = e.OnRoleChanged(ctx, userID)
	return g, nil
}

func (e *Engine) RevokeRole(ctx context.Context, userID string, role domain.Role) error {
	err := e.roles.RevokeRole(ctx, userID, role)
	obs.ObserveRoleMutation("revoke", err)
	if err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "roles.revoke", map[string]any{"user_id": userID, "role": role.String()})
	_ = e.OnRoleChanged(ctx, userID)
	return nil
}

func (e *Engine) SwitchActiveRole(ctx context.Context, userID string, role domain.Role) error {
	err := e.roles.SwitchActiveRole(ctx, userID, role)
	obs.ObserveRoleMutation("switch", err)
	if err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "roles.switch", map[string]any{"user_id": userID, "role": role.String()})
	_ = e.OnRoleChanged(ctx, userID)
	return nil
}

func (e *Engine) UserHasRole(ctx context.Context, userID string, role domain.Role) (bool, error) {
	return e.roles.UserHasRole(ctx, userID, role)
}

// AvailableRoles lists actively granted roles, most recently granted first.
func (e *Engine) AvailableRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	return e.roles.AvailableRoles(ctx, userID)
}

// GetUser returns the stored user with its cached trust score and badges.
func (e *Engine) GetUser(ctx context.Context, userID string) (domain.User, error) {
	return e.store.GetUser(ctx, userID)
}

func (e *Engine) SetVerificationStatus(ctx context.Context, userID string, status domain.ApplicationStatus, actor string) error {
	err := e.roles.SetVerificationStatus(ctx, userID, status, actor)
	obs.ObserveRoleMutation("verification_status", err)
	if err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "applications.verification", map[string]any{
		"user_id": userID, "status": string(status), "actor": actor,
	})
	_ = e.OnApplicationStatusChanged(ctx, userID)
	return nil
}

func (e *Engine) SetVendorStatus(ctx context.Context, userID string, status domain.ApplicationStatus, actor string) error {
	err := e.roles.SetVendorStatus(ctx, userID, status, actor)
	obs.ObserveRoleMutation("vendor_status", err)
	if err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "applications.vendor", map[string]any{
		"user_id": userID, "status": string(status), "actor": actor,
	})
	_ = e.OnApplicationStatusChanged(ctx, userID)
	return nil
}

// CalculateTrustScore recomputes and stores the trust score only.
func (e *Engine) CalculateTrustScore(ctx context.Context, userID string) (trust.Result, error) {
	var res trust.Result
	err := e.observe(stageTrust, func() (err error) {
		res, err = e.trust.Calculate(ctx, userID)
		return err
	})
	return res, err
}

func (e *Engine) ComputeBadges(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := e.observe(stageBadges, func() (err error) {
		ids, err = e.badges.Compute(ctx, userID)
		return err
	})
	return ids, err
}

// BadgeCatalog returns the static badge definitions.
func (e *Engine) BadgeCatalog() []badges.Badge {
	return badges.Catalog()
}

func (e *Engine) AggregateVerdict(ctx context.Context, toolID string) (verdict.Result, error) {
	var res verdict.Result
	err := e.observe(stageVerdict, func() (err error) {
		res, err = e.verdicts.Aggregate(ctx, toolID)
		return err
	})
	if err == nil {
		obs.ObserveVerdict(string(res.Verdict))
	}
	return res, err
}

// RecalculateUser refreshes trust score and then badges. Both stages run
// even when the first fails.
func (e *Engine) RecalculateUser(ctx context.Context, userID string) (trust.Result, []string, error) {
	res, trustErr := e.CalculateTrustScore(ctx, userID)
	ids, badgeErr := e.ComputeBadges(ctx, userID)
	return res, ids, errors.Join(trustErr, badgeErr)
}

// RecalculateAllVerdicts re-aggregates every tool and returns how many
// succeeded. Failures do not stop the sweep.
func (e *Engine) RecalculateAllVerdicts(ctx context.Context) (int, error) {
	toolIDs, err := e.store.ListToolIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list tools: %w", err)
	}
	var (
		done int
		errs []error
	)
	for _, id := range toolIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := e.AggregateVerdict(ctx, id); err != nil {
			e.warn(ctx, stageVerdict, err, "tool_id", id)
			errs = append(errs, fmt.Errorf("tool %s: %w", id, err))
			continue
		}
		done++
	}
	return done, errors.Join(errs...)
}

func (e *Engine) observe(stage string, fn func() error) error {
	started := time.Now()
	err := fn()
	obs.ObserveRecompute(stage, started, err)
	return err
}

func (e *Engine) warn(ctx context.Context, stage string, err error, attrs ...any) {
	attrs = append(attrs, "stage", stage, "error", err.Error())
	e.log().WarnContext(ctx, "recompute failed", attrs...)
}
