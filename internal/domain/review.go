package domain

import "time"

// Review is read-only input owned by the reviews subsystem.
type Review struct {
	ID           string    `json:"id"`
	ToolID       string    `json:"tool_id"`
	UserID       string    `json:"user_id"`
	OverallScore float64   `json:"overall_score"`
	HelpfulVotes int       `json:"helpful_votes"`
	TotalVotes   int       `json:"total_votes"`
	ReviewerRole Role      `json:"reviewer_role"`
	CreatedAt    time.Time `json:"created_at"`
}

// HelpfulRatio is HelpfulVotes/TotalVotes, or 0 when nobody voted.
func (r Review) HelpfulRatio() float64 {
	if r.TotalVotes <= 0 {
		return 0
	}
	ratio := float64(r.HelpfulVotes) / float64(r.TotalVotes)
	if ratio > 1 {
		return 1
	}
	if ratio < 0 {
		return 0
	}
	return ratio
}

// VerdictKind is the three-way tool recommendation.
type VerdictKind string

const (
	VerdictKeep VerdictKind = "keep"
	VerdictTry  VerdictKind = "try"
	VerdictStop VerdictKind = "stop"
)

// Tool carries the cached verdict fields of a reviewed tool.
type Tool struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	OverallScore float64     `json:"overall_score"`
	Verdict      VerdictKind `json:"verdict,omitempty"`
	Confidence   int         `json:"confidence"`
	UpdatedAt    *time.Time  `json:"verdict_updated_at,omitempty"`
}
