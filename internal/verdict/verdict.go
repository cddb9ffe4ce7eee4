// Package verdict turns a tool's reviews into a keep/try/stop recommendation.
//
// The canonical algorithm is reviewer-weighted: each review counts by its
// reviewer role weight, boosted by how helpful voters found it. The weighted
// rating picks the band through Classify, whose confidence is the ceiling
// approached as review count grows:
//
//	confidence = 50 + (ceiling - 50 + 10*decisiveness) * n / (n + k)
//
// decisiveness measures how far the rating sits from the nearest band edge.
// Confidence is clamped to [0, 100] and never falls as n grows for a fixed
// rating. A tool without reviews gets (try, 50).
package verdict

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rasyiqi-code/breaktool-sub003/internal/domain"
)

const (
	keepThreshold = 8.0
	tryThreshold  = 6.0

	baselineConfidence = 50
	decisivenessPoints = 10
	helpfulBoost       = 0.5

	// DefaultEvidenceK is the review count at which confidence is halfway
	// between the baseline and the band ceiling.
	DefaultEvidenceK = 2.0
)

// Store is the persistence contract of the aggregator.
type Store interface {
	GetTool(ctx context.Context, toolID string) (domain.Tool, error)
	ListToolReviews(ctx context.Context, toolID string) ([]domain.Review, error)
	// SaveVerdict replaces verdict, confidence and updated-at in one write.
	SaveVerdict(ctx context.Context, toolID string, verdict domain.VerdictKind, confidence int, updatedAt time.Time) error
}

// Factors is the evidence a verdict was computed from.
type Factors struct {
	ReviewCount         int     `json:"review_count"`
	PrivilegedCount     int     `json:"privileged_review_count"`
	VerifiedTesterCount int     `json:"verified_tester_review_count"`
	AverageRating       float64 `json:"average_rating"`
	WeightedRating      float64 `json:"weighted_rating"`
	TotalWeight         float64 `json:"total_weight"`
	Evidence            float64 `json:"evidence"`
	Decisiveness        float64 `json:"decisiveness"`
}

// Result is a computed verdict.
type Result struct {
	ToolID      string             `json:"tool_id"`
	Verdict     domain.VerdictKind `json:"verdict"`
	Confidence  int                `json:"confidence"`
	Explanation string             `json:"explanation"`
	Factors     Factors            `json:"factors"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Classify maps a 0-10 score to its band and the band's confidence ceiling.
// A low score is a stronger signal than a middling one, so stop outranks try.
func Classify(score float64) (domain.VerdictKind, int) {
	switch {
	case score >= keepThreshold:
		return domain.VerdictKeep, 85
	case score >= tryThreshold:
		return domain.VerdictTry, 70
	default:
		return domain.VerdictStop, 75
	}
}

// Weight is the influence of a single review.
func Weight(r domain.Review) float64 {
	return r.ReviewerRole.ReviewWeight() * (1 + helpfulBoost*r.HelpfulRatio())
}

// Compute aggregates reviews with evidence constant k.
func Compute(reviews []domain.Review, k float64) Result {
	if k <= 0 {
		k = DefaultEvidenceK
	}
	if len(reviews) == 0 {
		res := Result{Verdict: domain.VerdictTry, Confidence: baselineConfidence}
		res.Explanation = Explain(res.Verdict, res.Confidence, res.Factors)
		return res
	}

	var f Factors
	var sum, weighted float64
	for _, r := range reviews {
		score := math.Max(0, math.Min(10, r.OverallScore))
		w := Weight(r)
		sum += score
		weighted += w * score
		f.TotalWeight += w
		switch {
		case r.ReviewerRole.IsPrivileged():
			f.PrivilegedCount++
		case r.ReviewerRole == domain.RoleVerifiedTester:
			f.VerifiedTesterCount++
		}
	}
	n := float64(len(reviews))
	f.ReviewCount = len(reviews)
	f.AverageRating = sum / n
	f.WeightedRating = f.AverageRating
	if f.TotalWeight > 0 {
		f.WeightedRating = weighted / f.TotalWeight
	}
	f.Evidence = n / (n + k)
	f.Decisiveness = decisiveness(f.WeightedRating)

	kind, ceiling := Classify(f.WeightedRating)
	raw := baselineConfidence + (float64(ceiling-baselineConfidence)+decisivenessPoints*f.Decisiveness)*f.Evidence
	confidence := int(math.Round(math.Max(0, math.Min(100, raw))))

	return Result{
		Verdict:     kind,
		Confidence:  confidence,
		Explanation: Explain(kind, confidence, f),
		Factors:     f,
	}
}

// Explain renders a verdict from its factors only.
func Explain(kind domain.VerdictKind, confidence int, f Factors) string {
	if f.ReviewCount == 0 {
		return fmt.Sprintf("%s (%d%% confidence): no reviews yet, insufficient evidence", kind, confidence)
	}
	return fmt.Sprintf(
		"%s (%d%% confidence): weighted rating %.1f/10 (plain average %.1f) from %d reviews, %d by staff and %d by verified testers",
		kind, confidence, f.WeightedRating, f.AverageRating, f.ReviewCount, f.PrivilegedCount, f.VerifiedTesterCount,
	)
}

func decisiveness(rating float64) float64 {
	d := math.Min(math.Abs(rating-keepThreshold), math.Abs(rating-tryThreshold))
	return math.Min(1, d/(keepThreshold-tryThreshold))
}

// Aggregator computes and persists tool verdicts.
type Aggregator struct {
	store Store
	now   func() time.Time
	k     float64
}

func NewAggregator(store Store, now func() time.Time, evidenceK float64) (*Aggregator, error) {
	if store == nil {
		return nil, errors.New("verdict store is required")
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if evidenceK <= 0 {
		evidenceK = DefaultEvidenceK
	}
	return &Aggregator{store: store, now: now, k: evidenceK}, nil
}

// Aggregate recomputes the tool's verdict from a snapshot of its reviews. On
// error the stored verdict is left untouched.
func (a *Aggregator) Aggregate(ctx context.Context, toolID string) (Result, error) {
	toolID = strings.TrimSpace(toolID)
	if _, err := a.store.GetTool(ctx, toolID); err != nil {
		return Result{}, err
	}
	reviews, err := a.store.ListToolReviews(ctx, toolID)
	if err != nil {
		return Result{}, err
	}
	res := Compute(reviews, a.k)
	res.ToolID = toolID
	res.UpdatedAt = a.now()
	if err := a.store.SaveVerdict(ctx, toolID, res.Verdict, res.Confidence, res.UpdatedAt); err != nil {
		return Result{}, err
	}
	return res, nil
}
