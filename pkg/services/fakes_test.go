package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eap-project/eap/pkg/models"
	"github.com/eap-project/eap/pkg/policy"
)

type fakeTenantStore struct {
	tenants map[string]*models.Tenant
}

func newFakeTenantStore(ids ...string) *fakeTenantStore {
	s := &fakeTenantStore{tenants: make(map[string]*models.Tenant)}
	for _, id := range ids {
		s.tenants[id] = &models.Tenant{ID: id, Name: id, Active: true}
	}
	return s
}

func (s *fakeTenantStore) Get(_ context.Context, tenantID string) (*models.Tenant, error) {
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, policy.ErrNotFound
	}
	return t, nil
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User // keyed by tenantID|externalID
	seq   int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*models.User)}
}

func (s *fakeUserStore) key(tenantID, externalID string) string {
	return tenantID + "|" + externalID
}

func (s *fakeUserStore) GetByExternalID(_ context.Context, tenantID, externalID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[s.key(tenantID, externalID)]
	if !ok {
		return nil, policy.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *fakeUserStore) Get(_ context.Context, tenantID, userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.TenantID == tenantID && u.ID == userID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, policy.ErrNotFound
}

func (s *fakeUserStore) Provision(_ context.Context, tenantID, externalID, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.key(tenantID, externalID)
	if u, ok := s.users[key]; ok {
		copied := *u
		return &copied, nil
	}
	s.seq++
	u := &models.User{
		ID:         fmt.Sprintf("user-%d", s.seq),
		TenantID:   tenantID,
		ExternalID: externalID,
		Email:      email,
		Role:       models.RoleViewer,
		Active:     true,
		CreatedAt:  time.Now(),
	}
	s.users[key] = u
	copied := *u
	return &copied, nil
}

func (s *fakeUserStore) TouchLastLogin(_ context.Context, tenantID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.TenantID == tenantID && u.ID == userID {
			u.LastLogin = &at
			return nil
		}
	}
	return policy.ErrNotFound
}

func (s *fakeUserStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

type fakePlanStore struct {
	mu    sync.Mutex
	plans map[string]*models.PlanRecord
	seq   int
}

func newFakePlanStore() *fakePlanStore {
	return &fakePlanStore{plans: make(map[string]*models.PlanRecord)}
}

func (s *fakePlanStore) Create(_ context.Context, p *models.PlanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	p.ID = fmt.Sprintf("plan-%d", s.seq)
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	copied := *p
	s.plans[p.ID] = &copied
	return nil
}

func (s *fakePlanStore) Get(_ context.Context, tenantID, planID string) (*models.PlanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok || p.TenantID != tenantID {
		return nil, policy.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *fakePlanStore) List(_ context.Context, tenantID string, limit, offset int) ([]models.PlanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PlanRecord
	for _, p := range s.plans {
		if p.TenantID == tenantID {
			out = append(out, *p)
		}
	}
	return out, nil
}

// TransitionStatus mirrors the store's compare-and-set UPDATE: a mismatch
// on tenant, id, or current status all look like a missing row.
func (s *fakePlanStore) TransitionStatus(_ context.Context, tenantID, planID string, from, to models.PlanStatus, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok || p.TenantID != tenantID || p.Status != from {
		return policy.ErrNotFound
	}
	p.Status = to
	now := time.Now()
	switch to {
	case models.PlanStatusApproved:
		p.ApprovedBy = &actor
		p.ApprovedAt = &now
	case models.PlanStatusRejected:
		p.RejectedBy = &actor
		p.RejectedAt = &now
	}
	p.UpdatedAt = now
	return nil
}

func (s *fakePlanStore) UpdateGraph(_ context.Context, tenantID, planID string, graphJSON []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok || p.TenantID != tenantID {
		return policy.ErrNotFound
	}
	p.GraphJSON = graphJSON
	return nil
}

func (s *fakePlanStore) Delete(_ context.Context, tenantID, planID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok || p.TenantID != tenantID {
		return policy.ErrNotFound
	}
	delete(s.plans, planID)
	return nil
}

type fakeGoalStore struct {
	mu    sync.Mutex
	goals map[string]*models.UserGoal
	seq   int
}

func newFakeGoalStore() *fakeGoalStore {
	return &fakeGoalStore{goals: make(map[string]*models.UserGoal)}
}

func (s *fakeGoalStore) Create(_ context.Context, g *models.UserGoal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	g.ID = fmt.Sprintf("goal-%d", s.seq)
	copied := *g
	s.goals[g.ID] = &copied
	return nil
}

func (s *fakeGoalStore) Get(_ context.Context, tenantID, goalID string) (*models.UserGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[goalID]
	if !ok || g.TenantID != tenantID {
		return nil, policy.ErrNotFound
	}
	copied := *g
	return &copied, nil
}

func (s *fakeGoalStore) ActiveForUser(_ context.Context, tenantID, userID string) ([]models.UserGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.UserGoal
	for _, g := range s.goals {
		if g.TenantID == tenantID && g.UserID == userID && g.Status == models.GoalStatusActive {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (s *fakeGoalStore) AppendProgress(_ context.Context, tenantID, goalID, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[goalID]
	if !ok || g.TenantID != tenantID {
		return policy.ErrNotFound
	}
	g.ProgressNotes += note + "\n"
	return nil
}

func (s *fakeGoalStore) TransitionStatus(_ context.Context, tenantID, goalID string, to models.GoalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[goalID]
	if !ok || g.TenantID != tenantID {
		return policy.ErrNotFound
	}
	g.Status = to
	return nil
}

type fakeConvStore struct {
	mu       sync.Mutex
	convs    map[string]*models.Conversation
	messages map[string][]models.ConversationMessage
	seq      int
}

func newFakeConvStore() *fakeConvStore {
	return &fakeConvStore{
		convs:    make(map[string]*models.Conversation),
		messages: make(map[string][]models.ConversationMessage),
	}
}

func (s *fakeConvStore) Create(_ context.Context, c *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	c.ID = fmt.Sprintf("conv-%d", s.seq)
	copied := *c
	s.convs[c.ID] = &copied
	return nil
}

func (s *fakeConvStore) Get(_ context.Context, tenantID, conversationID string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok || c.TenantID != tenantID {
		return nil, policy.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *fakeConvStore) ListForUser(_ context.Context, tenantID, userID string, limit, offset int) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Conversation
	for _, c := range s.convs {
		if c.TenantID == tenantID && c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *fakeConvStore) AppendMessage(_ context.Context, m *models.ConversationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[m.ConversationID]
	if !ok || c.TenantID != m.TenantID {
		return policy.ErrNotFound
	}
	m.SequenceNumber = len(s.messages[m.ConversationID]) + 1
	m.ID = fmt.Sprintf("msg-%d-%d", s.seq, m.SequenceNumber)
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], *m)
	return nil
}

func (s *fakeConvStore) Messages(_ context.Context, tenantID, conversationID string) ([]models.ConversationMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[conversationID]
	if !ok || c.TenantID != tenantID {
		return nil, policy.ErrNotFound
	}
	out := make([]models.ConversationMessage, len(s.messages[conversationID]))
	copy(out, s.messages[conversationID])
	return out, nil
}

type fakeAuditStore struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (s *fakeAuditStore) Append(_ context.Context, e *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = int64(len(s.entries) + 1)
	e.CreatedAt = time.Now()
	s.entries = append(s.entries, *e)
	return nil
}

func (s *fakeAuditStore) List(_ context.Context, tenantID string, limit, offset int) ([]models.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AuditEntry
	for _, e := range s.entries {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeAuditStore) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Action+":"+string(e.Status))
	}
	return out
}

type publishedEvent struct {
	TenantID  string
	EventType string
	Payload   any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *fakePublisher) Publish(_ context.Context, tenantID, eventType string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{TenantID: tenantID, EventType: eventType, Payload: payload})
	return nil
}

func (p *fakePublisher) published() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedEvent, len(p.events))
	copy(out, p.events)
	return out
}
