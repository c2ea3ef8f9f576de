package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eap-project/eap/pkg/agent"
	"github.com/eap-project/eap/pkg/auth"
	"github.com/eap-project/eap/pkg/config"
	"github.com/eap-project/eap/pkg/executor"
	"github.com/eap-project/eap/pkg/llm/llmtest"
	"github.com/eap-project/eap/pkg/models"
	"github.com/eap-project/eap/pkg/planner"
	"github.com/eap-project/eap/pkg/policy"
	"github.com/eap-project/eap/pkg/ratelimit"
	"github.com/eap-project/eap/pkg/services"
)

const (
	devSecret = "test-secret"
	audience  = "eap-platform"
	tenantA   = "0b7e4a52-90ec-4fbe-8e8f-6b9f4a7de90e"
	tenantB   = "7c1d3f9a-2e64-4a10-b2ab-57f1c2a9e441"
)

// testStores is a minimal in-memory backing for the service layer.
type testStores struct {
	mu      sync.Mutex
	tenants map[string]*models.Tenant
	users   map[string]*models.User
	plans   map[string]*models.PlanRecord
	seq     int
}

func newTestStores(tenantIDs ...string) *testStores {
	s := &testStores{
		tenants: make(map[string]*models.Tenant),
		users:   make(map[string]*models.User),
		plans:   make(map[string]*models.PlanRecord),
	}
	for _, id := range tenantIDs {
		s.tenants[id] = &models.Tenant{ID: id, Name: id, Active: true}
	}
	return s
}

func (s *testStores) Get(_ context.Context, tenantID string) (*models.Tenant, error) {
	if t, ok := s.tenants[tenantID]; ok {
		return t, nil
	}
	return nil, policy.ErrNotFound
}

// userStore facade.

type testUserStore struct{ s *testStores }

func (u testUserStore) GetByExternalID(_ context.Context, tenantID, externalID string) (*models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if user, ok := u.s.users[tenantID+"|"+externalID]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, policy.ErrNotFound
}

func (u testUserStore) Get(_ context.Context, tenantID, userID string) (*models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, user := range u.s.users {
		if user.TenantID == tenantID && user.ID == userID {
			copied := *user
			return &copied, nil
		}
	}
	return nil, policy.ErrNotFound
}

func (u testUserStore) Provision(_ context.Context, tenantID, externalID, email string) (*models.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	key := tenantID + "|" + externalID
	if user, ok := u.s.users[key]; ok {
		copied := *user
		return &copied, nil
	}
	u.s.seq++
	user := &models.User{
		ID:         fmt.Sprintf("user-%d", u.s.seq),
		TenantID:   tenantID,
		ExternalID: externalID,
		Email:      email,
		Role:       models.RoleViewer,
		Active:     true,
	}
	u.s.users[key] = user
	copied := *user
	return &copied, nil
}

func (u testUserStore) TouchLastLogin(_ context.Context, tenantID, userID string, at time.Time) error {
	return nil
}

// seedUser registers a user with an explicit stored role.
func (s *testStores) seedUser(tenantID, externalID string, role models.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.users[tenantID+"|"+externalID] = &models.User{
		ID:         fmt.Sprintf("user-%d", s.seq),
		TenantID:   tenantID,
		ExternalID: externalID,
		Role:       role,
		Active:     true,
	}
}

// planStore facade.

type testPlanStore struct{ s *testStores }

func (p testPlanStore) Create(_ context.Context, record *models.PlanRecord) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.seq++
	record.ID = fmt.Sprintf("plan-%d", p.s.seq)
	copied := *record
	p.s.plans[record.ID] = &copied
	return nil
}

func (p testPlanStore) Get(_ context.Context, tenantID, planID string) (*models.PlanRecord, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	plan, ok := p.s.plans[planID]
	if !ok || plan.TenantID != tenantID {
		return nil, policy.ErrNotFound
	}
	copied := *plan
	return &copied, nil
}

func (p testPlanStore) List(_ context.Context, tenantID string, limit, offset int) ([]models.PlanRecord, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	var out []models.PlanRecord
	for _, plan := range p.s.plans {
		if plan.TenantID == tenantID {
			out = append(out, *plan)
		}
	}
	return out, nil
}

func (p testPlanStore) TransitionStatus(_ context.Context, tenantID, planID string, from, to models.PlanStatus, actor string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	plan, ok := p.s.plans[planID]
	if !ok || plan.TenantID != tenantID || plan.Status != from {
		return policy.ErrNotFound
	}
	plan.Status = to
	return nil
}

func (p testPlanStore) UpdateGraph(_ context.Context, tenantID, planID string, graphJSON []byte) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	plan, ok := p.s.plans[planID]
	if !ok || plan.TenantID != tenantID {
		return policy.ErrNotFound
	}
	plan.GraphJSON = graphJSON
	return nil
}

func (p testPlanStore) Delete(_ context.Context, tenantID, planID string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	plan, ok := p.s.plans[planID]
	if !ok || plan.TenantID != tenantID {
		return policy.ErrNotFound
	}
	delete(p.s.plans, planID)
	return nil
}

type nullAuditStore struct{}

func (nullAuditStore) Append(context.Context, *models.AuditEntry) error { return nil }
func (nullAuditStore) List(context.Context, string, int, int) ([]models.AuditEntry, error) {
	return nil, nil
}

func newTestServer(t *testing.T, stores *testStores, rpm int) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg, err := agent.NewRegistry([]agent.Spec{
		{ID: "dev", Description: "Implementation"},
	}, agent.NewSpecialist)
	require.NoError(t, err)

	decomp := `{"tasks": [{"id": "t1", "description": "do it", "agent_id": "dev", "dependencies": []}]}`
	client := llmtest.NewScripted(llmtest.Reply{Content: decomp})

	audit := services.NewAuditService(nullAuditStore{})
	users := services.NewUserService(testUserStore{stores}, stores, audit, nil)
	plans := services.NewPlanService(testPlanStore{stores},
		planner.New(client, reg, nil), executor.New(client, reg, nil),
		audit, nil, services.MFAConfig{Enabled: true, StaticCode: "424242"})

	cfg := &config.Config{
		Environment:        config.EnvTest,
		CORSAllowedOrigins: []string{"*"},
		RateLimitPerMinute: rpm,
	}

	return NewServer(Deps{
		Config:   cfg,
		Verifier: auth.NewDevVerifier(devSecret, audience),
		Users:    users,
		Plans:    plans,
		Audit:    audit,
		Limiter:  ratelimit.NewMemoryLimiter(ratelimit.Config{RPM: rpm}),
	})
}

func token(t *testing.T, tenantID, subject string, role models.Role) string {
	t.Helper()
	signed, err := auth.SignDevToken(devSecret, audience, auth.Claims{
		Subject:  subject,
		TenantID: tenantID,
		Role:     role,
		Email:    subject + "@example.com",
	}, time.Hour)
	require.NoError(t, err)
	return signed
}

func do(t *testing.T, router http.Handler, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRequestIDAndSecurityHeaders(t *testing.T) {
	router := newTestServer(t, newTestStores(tenantA), 100).Router()

	rec := do(t, router, http.MethodGet, "/health/live", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Regexp(t, regexp.MustCompile(`^req_[0-9a-f]{16}$`), rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	// Test environment: no HSTS.
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestAuth_MissingOrInvalidToken(t *testing.T) {
	router := newTestServer(t, newTestStores(tenantA), 100).Router()

	rec := do(t, router, http.MethodGet, "/api/v1/plans", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or expired token")

	rec = do(t, router, http.MethodGet, "/api/v1/plans", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_JITProvisionedUserIsViewer(t *testing.T) {
	stores := newTestStores(tenantA)
	router := newTestServer(t, stores, 100).Router()

	// The token claims admin, but the stored role decides: a first-login
	// user is a viewer and may not create plans.
	bearer := token(t, tenantA, "okta|mallory", models.RoleAdmin)
	rec := do(t, router, http.MethodPost, "/api/v1/plans", bearer, gin.H{"goal": "escalate"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient permissions")

	stores.mu.Lock()
	user := stores.users[tenantA+"|okta|mallory"]
	stores.mu.Unlock()
	require.NotNil(t, user)
	assert.Equal(t, models.RoleViewer, user.Role)
}

func TestRateLimitHeadersAndRefusal(t *testing.T) {
	stores := newTestStores(tenantA)
	stores.seedUser(tenantA, "okta|op", models.RoleOperator)
	router := newTestServer(t, stores, 2).Router()
	bearer := token(t, tenantA, "okta|op", models.RoleOperator)

	rec := do(t, router, http.MethodGet, "/api/v1/plans", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

	do(t, router, http.MethodGet, "/api/v1/plans", bearer, nil)
	rec = do(t, router, http.MethodGet, "/api/v1/plans", bearer, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestPlanLifecycleOverHTTP(t *testing.T) {
	stores := newTestStores(tenantA, tenantB)
	stores.seedUser(tenantA, "okta|op-a", models.RoleOperator)
	stores.seedUser(tenantB, "okta|admin-b", models.RoleAdmin)
	router := newTestServer(t, stores, 100).Router()

	opA := token(t, tenantA, "okta|op-a", models.RoleOperator)
	adminB := token(t, tenantB, "okta|admin-b", models.RoleAdmin)

	rec := do(t, router, http.MethodPost, "/api/v1/plans", opA, gin.H{"goal": "Deploy service X"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var plan models.PlanRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plan))
	assert.Equal(t, models.PlanStatusDraft, plan.Status)

	// Cross-tenant reads and deletes are indistinguishable from not-found.
	rec = do(t, router, http.MethodGet, "/api/v1/plans/"+plan.ID, adminB, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, router, http.MethodDelete, "/api/v1/plans/"+plan.ID, adminB, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Approval needs a valid MFA code.
	rec = do(t, router, http.MethodPost, "/api/v1/plans/"+plan.ID+"/approve", opA, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "valid mfa code required")

	rec = do(t, router, http.MethodPost, "/api/v1/plans/"+plan.ID+"/approve", opA, gin.H{"mfa_code": "424242"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Second approval conflicts.
	rec = do(t, router, http.MethodPost, "/api/v1/plans/"+plan.ID+"/approve", opA, gin.H{"mfa_code": "424242"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Execution completes the single-task graph.
	rec = do(t, router, http.MethodPost, "/api/v1/plans/"+plan.ID+"/execute", opA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plan))
	assert.Equal(t, models.PlanStatusComplete, plan.Status)

	// Owner can delete.
	rec = do(t, router, http.MethodDelete, "/api/v1/plans/"+plan.ID, opA, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
