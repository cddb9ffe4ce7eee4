// Package trust computes a user's 0-100 trust score from review history.
package trust

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/rasyiqi-code/breaktool-sub003/internal/domain"
	"github.com/rasyiqi-code/breaktool-sub003/internal/roles"
)

const (
	maxVolumePoints  = 30
	pointsPerReview  = 5
	qualityPoints    = 25
	maxHelpfulPoints = 20
	pointsPerHelpful = 2
	recencyPoints    = 15
	verifiedBonus    = 10
	recencyHorizon   = 365.0
	maxScore         = 100
)

// Store is the persistence contract of the calculator.
type Store interface {
	GetUser(ctx context.Context, userID string) (domain.User, error)
	ListGrants(ctx context.Context, userID string) ([]domain.RoleGrant, error)
	ListUserReviews(ctx context.Context, userID string) ([]domain.Review, error)
	SetTrustScore(ctx context.Context, userID string, score int) error
}

// Factors is the breakdown a score is computed from.
type Factors struct {
	ReviewCount          int        `json:"review_count"`
	ReviewQuality        float64    `json:"review_quality"`
	HelpfulVotesReceived int        `json:"helpful_votes_received"`
	ActivityRecency      float64    `json:"activity_recency"`
	VerifiedExpertise    bool       `json:"verified_expertise"`
	LastReviewAt         *time.Time `json:"last_review_at,omitempty"`
}

// Result is the outcome of one calculation.
type Result struct {
	UserID       string    `json:"user_id"`
	Score        int       `json:"score"`
	Factors      Factors   `json:"factors"`
	CalculatedAt time.Time `json:"calculated_at"`
}

// DeriveFactors reduces a user's reviews to score factors as of now.
// Verified expertise follows the active verified_tester grant, so the bonus
// and the role badge always agree.
func DeriveFactors(user domain.User, grants []domain.RoleGrant, reviews []domain.Review, now time.Time) Factors {
	f := Factors{
		ReviewCount:          len(reviews),
		HelpfulVotesReceived: user.HelpfulVotesReceived,
		VerifiedExpertise:    roles.HasActiveGrant(grants, domain.RoleVerifiedTester),
	}
	if len(reviews) == 0 {
		return f
	}

	var (
		qualitySum float64
		latest     time.Time
	)
	for _, r := range reviews {
		qualitySum += r.HelpfulRatio()
		if r.CreatedAt.After(latest) {
			latest = r.CreatedAt
		}
	}
	f.ReviewQuality = qualitySum / float64(len(reviews))
	f.LastReviewAt = &latest

	days := now.Sub(latest).Hours() / 24
	f.ActivityRecency = clamp(1-days/recencyHorizon, 0, 1)
	return f
}

// Score applies the weighting to f. Volume and helpful votes are capped so
// neither can dominate, and the result is rounded into [0, 100].
func Score(f Factors) int {
	score := math.Min(float64(f.ReviewCount*pointsPerReview), maxVolumePoints) +
		clamp(f.ReviewQuality, 0, 1)*qualityPoints +
		math.Min(float64(f.HelpfulVotesReceived*pointsPerHelpful), maxHelpfulPoints) +
		clamp(f.ActivityRecency, 0, 1)*recencyPoints
	if f.VerifiedExpertise {
		score += verifiedBonus
	}
	return int(math.Round(clamp(score, 0, maxScore)))
}

// Calculator recomputes and persists trust scores.
type Calculator struct {
	store Store
	now   func() time.Time
}

func NewCalculator(store Store, now func() time.Time) (*Calculator, error) {
	if store == nil {
		return nil, errors.New("trust store is required")
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Calculator{store: store, now: now}, nil
}

// Calculate recomputes the user's score and writes it back. It does not
// refresh badges.
func (c *Calculator) Calculate(ctx context.Context, userID string) (Result, error) {
	userID = strings.TrimSpace(userID)
	user, err := c.store.GetUser(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	grants, err := c.store.ListGrants(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	reviews, err := c.store.ListUserReviews(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	now := c.now()
	factors := DeriveFactors(user, grants, reviews, now)
	score := Score(factors)
	if err := c.store.SetTrustScore(ctx, userID, score); err != nil {
		return Result{}, err
	}
	return Result{UserID: userID, Score: score, Factors: factors, CalculatedAt: now}, nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
