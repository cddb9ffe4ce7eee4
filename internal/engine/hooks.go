package engine

import (
	"context"
	"errors"
	"strings"
)

// OnRoleChanged refreshes the user's trust score and badges after a grant,
// revoke or switch. The verified_tester grant carries the trust bonus.
func (e *Engine) OnRoleChanged(ctx context.Context, userID string) error {
	return e.refreshUser(ctx, userID, "role_changed")
}

// OnApplicationStatusChanged refreshes badges after a verification or vendor
// status change. Approval also changes the trust bonus, so trust runs first.
func (e *Engine) OnApplicationStatusChanged(ctx context.Context, userID string) error {
	return e.refreshUser(ctx, userID, "application_status_changed")
}

// OnReviewChanged runs after a review is created, edited, deleted or voted
// on. It refreshes the author's trust score and badges and the tool verdict.
// Either id may be empty to skip that side.
func (e *Engine) OnReviewChanged(ctx context.Context, authorID, toolID string) error {
	var errs []error
	if authorID = strings.TrimSpace(authorID); authorID != "" {
		if err := e.refreshUser(ctx, authorID, "review_changed"); err != nil {
			errs = append(errs, err)
		}
	}
	if toolID = strings.TrimSpace(toolID); toolID != "" {
		if _, err := e.AggregateVerdict(ctx, toolID); err != nil {
			e.warn(ctx, stageVerdict, err, "tool_id", toolID, "trigger", "review_changed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// refreshUser recomputes trust first so the tier badge sees the new score.
func (e *Engine) refreshUser(ctx context.Context, userID, trigger string) error {
	var errs []error
	if _, err := e.CalculateTrustScore(ctx, userID); err != nil {
		e.warn(ctx, stageTrust, err, "user_id", userID, "trigger", trigger)
		errs = append(errs, err)
	}
	if _, err := e.ComputeBadges(ctx, userID); err != nil {
		e.warn(ctx, stageBadges, err, "user_id", userID, "trigger", trigger)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
