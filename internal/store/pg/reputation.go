package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rasyiqi-code/breaktool-sub003/internal/domain"
	"github.com/rasyiqi-code/breaktool-sub003/internal/ids"
)

const reviewColumns = `id, tool_id, user_id, overall_score, helpful_votes, total_votes, reviewer_role, created_at`

func (s *Store) listReviews(ctx context.Context, column, id string) ([]domain.Review, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+reviewColumns+`
		from reviews
		where `+column+` = $1
		order by created_at, id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		var r domain.Review
		if err := rows.Scan(&r.ID, &r.ToolID, &r.UserID, &r.OverallScore, &r.HelpfulVotes, &r.TotalVotes,
			&r.ReviewerRole, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListUserReviews(ctx context.Context, userID string) ([]domain.Review, error) {
	return s.listReviews(ctx, "user_id", userID)
}

func (s *Store) ListToolReviews(ctx context.Context, toolID string) ([]domain.Review, error) {
	return s.listReviews(ctx, "tool_id", toolID)
}

// AddReview inserts a review, assigning an id when missing.
func (s *Store) AddReview(ctx context.Context, r domain.Review) (domain.Review, error) {
	if s.db == nil {
		return domain.Review{}, errNoDB
	}
	if r.ID == "" {
		r.ID = ids.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.ReviewerRole == "" {
		r.ReviewerRole = domain.RoleUser
	}
	_, err := s.db.ExecContext(ctx, `
		insert into reviews (`+reviewColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, r.ID, r.ToolID, r.UserID, r.OverallScore, r.HelpfulVotes, r.TotalVotes, string(r.ReviewerRole), r.CreatedAt.UTC())
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrForeignKeyViolation:
				return domain.Review{}, fmt.Errorf("%w: unknown tool or user", domain.ErrInvalidInput)
			case pgErrUniqueViolation:
				return domain.Review{}, fmt.Errorf("%w: duplicate review id %s", domain.ErrInvalidInput, r.ID)
			}
		}
		return domain.Review{}, err
	}
	return r, nil
}

func (s *Store) SetTrustScore(ctx context.Context, userID string, score int) error {
	return s.updateUserColumn(ctx, userID, `update users set trust_score = $2 where id = $1`, score)
}

func (s *Store) SetBadges(ctx context.Context, userID string, badgeIDs []string) error {
	if badgeIDs == nil {
		badgeIDs = []string{}
	}
	raw, err := json.Marshal(badgeIDs)
	if err != nil {
		return fmt.Errorf("encode badges: %w", err)
	}
	return s.updateUserColumn(ctx, userID, `update users set badges = $2 where id = $1`, raw)
}

func (s *Store) SetHelpfulVotesReceived(ctx context.Context, userID string, votes int) error {
	return s.updateUserColumn(ctx, userID, `update users set helpful_votes_received = $2 where id = $1`, votes)
}

func (s *Store) updateUserColumn(ctx context.Context, userID, query string, value any) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, query, userID, value)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// PutTool inserts or renames a tool. Stored verdicts are kept.
func (s *Store) PutTool(ctx context.Context, tool domain.Tool) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into tools (id, name, overall_score)
		values ($1, $2, $3)
		on conflict (id) do update set name = excluded.name, overall_score = excluded.overall_score
	`, tool.ID, tool.Name, tool.OverallScore)
	return err
}

func (s *Store) GetTool(ctx context.Context, toolID string) (domain.Tool, error) {
	if s.db == nil {
		return domain.Tool{}, errNoDB
	}
	var (
		t       domain.Tool
		verdict sql.NullString
		updated sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, overall_score, verdict, confidence, updated_at
		from tools
		where id = $1
	`, toolID).Scan(&t.ID, &t.Name, &t.OverallScore, &verdict, &t.Confidence, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Tool{}, domain.ErrToolNotFound
	}
	if err != nil {
		return domain.Tool{}, err
	}
	t.Verdict = domain.VerdictKind(verdict.String)
	if updated.Valid {
		at := updated.Time.UTC()
		t.UpdatedAt = &at
	}
	return t, nil
}

// SaveVerdict writes verdict, confidence and updated_at in one statement.
func (s *Store) SaveVerdict(ctx context.Context, toolID string, verdict domain.VerdictKind, confidence int, updatedAt time.Time) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		update tools
		set verdict = $2, confidence = $3, updated_at = $4
		where id = $1
	`, toolID, string(verdict), confidence, updatedAt.UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrToolNotFound
	}
	return nil
}

func (s *Store) ListToolIDs(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `select id from tools order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
