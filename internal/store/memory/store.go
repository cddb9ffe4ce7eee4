// Package memory keeps users, grants, reviews and tools in process memory.
// Mutations of a single user are serialized by a per-user mutex.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rasyiqi-code/breaktool-sub003/internal/domain"
	"github.com/rasyiqi-code/breaktool-sub003/internal/ids"
	"github.com/rasyiqi-code/breaktool-sub003/internal/roles"
)

type Store struct {
	mu      sync.RWMutex
	users   map[string]*domain.User
	grants  map[string]map[domain.Role]domain.RoleGrant
	reviews []domain.Review
	tools   map[string]*domain.Tool

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

var _ roles.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:  make(map[string]*domain.User),
		grants: make(map[string]map[domain.Role]domain.RoleGrant),
		tools:  make(map[string]*domain.Tool),
		locks:  make(map[string]*sync.Mutex),
	}
}

// EnsureUser creates the user with primary and active role "user" and an
// active user grant. Existing users are returned unchanged.
func (s *Store) EnsureUser(ctx context.Context, userID string, createdAt time.Time) (domain.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.User{}, fmt.Errorf("%w: user_id is required", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		return copyUser(u), nil
	}
	u := &domain.User{
		ID:          userID,
		PrimaryRole: domain.RoleUser,
		ActiveRole:  domain.RoleUser,
		Badges:      []string{},
		CreatedAt:   createdAt.UTC(),
	}
	s.users[userID] = u
	s.grants[userID] = map[domain.Role]domain.RoleGrant{
		domain.RoleUser: {
			ID:        ids.New(),
			UserID:    userID,
			Role:      domain.RoleUser,
			IsActive:  true,
			GrantedAt: createdAt.UTC(),
		},
	}
	return copyUser(u), nil
}

// SetHelpfulVotesReceived overwrites the aggregate helpful-vote counter.
func (s *Store) SetHelpfulVotesReceived(ctx context.Context, userID string, votes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.HelpfulVotesReceived = votes
	return nil
}

// PutTool inserts a tool or updates its name and score. Stored verdicts are kept.
func (s *Store) PutTool(ctx context.Context, tool domain.Tool) error {
	if strings.TrimSpace(tool.ID) == "" {
		return fmt.Errorf("%w: tool id is required", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tools[tool.ID]; ok {
		t.Name = tool.Name
		t.OverallScore = tool.OverallScore
		return nil
	}
	t := tool
	s.tools[tool.ID] = &t
	return nil
}

// AddReview appends a review, assigning an id when missing. The tool must
// exist; the author may be unknown to the engine.
func (s *Store) AddReview(ctx context.Context, r domain.Review) (domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tools[r.ToolID]; !ok {
		return domain.Review{}, fmt.Errorf("%w: unknown tool %q", domain.ErrInvalidInput, r.ToolID)
	}
	if r.ID == "" {
		r.ID = ids.New()
	}
	if r.ReviewerRole == "" {
		r.ReviewerRole = domain.RoleUser
	}
	s.reviews = append(s.reviews, r)
	return r, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return copyUser(u), nil
}

func (s *Store) ListGrants(ctx context.Context, userID string) ([]domain.RoleGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.users[userID]; !ok {
		return nil, domain.ErrUserNotFound
	}
	return sortedGrants(s.grants[userID]), nil
}

func (s *Store) UpdateUser(ctx context.Context, userID string, fn func(tx roles.Tx) error) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	u, ok := s.users[userID]
	if !ok {
		s.mu.RUnlock()
		return domain.ErrUserNotFound
	}
	tx := &memTx{user: copyUser(u), grants: make(map[domain.Role]domain.RoleGrant, len(s.grants[userID]))}
	for role, g := range s.grants[userID] {
		tx.grants[role] = g
	}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Trust score and badges are written outside the user lock; only the
	// fields a Tx can change are copied back.
	cur := s.users[userID]
	cur.ActiveRole = tx.user.ActiveRole
	cur.RoleSwitchedAt = tx.user.RoleSwitchedAt
	cur.VerificationStatus = tx.user.VerificationStatus
	cur.VendorStatus = tx.user.VendorStatus
	s.grants[userID] = tx.grants
	return nil
}

func (s *Store) ListUserReviews(ctx context.Context, userID string) ([]domain.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Review
	for _, r := range s.reviews {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) SetTrustScore(ctx context.Context, userID string, score int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.TrustScore = score
	return nil
}

func (s *Store) SetBadges(ctx context.Context, userID string, badgeIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Badges = append([]string{}, badgeIDs...)
	return nil
}

func (s *Store) GetTool(ctx context.Context, toolID string) (domain.Tool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tools[toolID]
	if !ok {
		return domain.Tool{}, domain.ErrToolNotFound
	}
	return *t, nil
}

func (s *Store) ListToolReviews(ctx context.Context, toolID string) ([]domain.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Review
	for _, r := range s.reviews {
		if r.ToolID == toolID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) SaveVerdict(ctx context.Context, toolID string, verdict domain.VerdictKind, confidence int, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tools[toolID]
	if !ok {
		return domain.ErrToolNotFound
	}
	at := updatedAt
	t.Verdict = verdict
	t.Confidence = confidence
	t.UpdatedAt = &at
	return nil
}

func (s *Store) ListToolIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tools))
	for id := range s.tools {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) userLock(userID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

type memTx struct {
	user   domain.User
	grants map[domain.Role]domain.RoleGrant
}

func (t *memTx) User() domain.User { return copyUser(&t.user) }

func (t *memTx) Grants() []domain.RoleGrant { return sortedGrants(t.grants) }

func (t *memTx) PutGrant(ctx context.Context, g domain.RoleGrant) (domain.RoleGrant, error) {
	if existing, ok := t.grants[g.Role]; ok {
		g.ID = existing.ID
	}
	if g.ID == "" {
		g.ID = ids.New()
	}
	g.UserID = t.user.ID
	t.grants[g.Role] = g
	return g, nil
}

func (t *memTx) SetActiveRole(ctx context.Context, role domain.Role, switchedAt *time.Time) error {
	t.user.ActiveRole = role
	if switchedAt != nil {
		at := *switchedAt
		t.user.RoleSwitchedAt = &at
	}
	return nil
}

func (t *memTx) SetVerificationStatus(ctx context.Context, status domain.ApplicationStatus) error {
	t.user.VerificationStatus = status
	return nil
}

func (t *memTx) SetVendorStatus(ctx context.Context, status domain.ApplicationStatus) error {
	t.user.VendorStatus = status
	return nil
}

func copyUser(u *domain.User) domain.User {
	out := *u
	out.Badges = append([]string{}, u.Badges...)
	if u.RoleSwitchedAt != nil {
		at := *u.RoleSwitchedAt
		out.RoleSwitchedAt = &at
	}
	return out
}

func sortedGrants(m map[domain.Role]domain.RoleGrant) []domain.RoleGrant {
	out := make([]domain.RoleGrant, 0, len(m))
	for _, g := range m {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].GrantedAt.Equal(out[j].GrantedAt) {
			return out[i].GrantedAt.After(out[j].GrantedAt)
		}
		return out[i].Role < out[j].Role
	})
	return out
}
