package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eap-project/eap/pkg/llm/llmtest"
	"github.com/eap-project/eap/pkg/models"
)

type fakeRepo struct {
	entries map[string]*models.AgentMemory
	listErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{entries: make(map[string]*models.AgentMemory)}
}

func scopeKey(agentID, tenantID, key string) string {
	return agentID + "/" + tenantID + "/" + key
}

func (r *fakeRepo) Upsert(_ context.Context, m *models.AgentMemory) error {
	k := scopeKey(m.AgentID, m.TenantID, m.Key)
	if existing, ok := r.entries[k]; ok {
		existing.Value = m.Value
		existing.Metadata = m.Metadata
		return nil
	}
	cp := *m
	cp.ID = fmt.Sprintf("mem-%d", len(r.entries)+1)
	cp.CreatedAt = time.Now()
	r.entries[k] = &cp
	return nil
}

func (r *fakeRepo) Get(_ context.Context, agentID, tenantID, key string) (*models.AgentMemory, error) {
	m, ok := r.entries[scopeKey(agentID, tenantID, key)]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *m
	return &cp, nil
}

func (r *fakeRepo) IncrementAccess(_ context.Context, id string) error {
	for _, m := range r.entries {
		if m.ID == id {
			m.AccessCount++
			return nil
		}
	}
	return errors.New("not found")
}

func (r *fakeRepo) ListByScope(_ context.Context, agentID, tenantID string) ([]models.AgentMemory, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []models.AgentMemory
	// Stable order by id so scoring indices are deterministic.
	for i := 1; ; i++ {
		found := false
		for _, m := range r.entries {
			if m.AgentID == agentID && m.TenantID == tenantID && m.ID == fmt.Sprintf("mem-%d", i) {
				out = append(out, *m)
				found = true
			}
		}
		if !found {
			break
		}
	}
	return out, nil
}

func (r *fakeRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	for k, m := range r.entries {
		if m.CreatedAt.Before(cutoff) {
			delete(r.entries, k)
			deleted++
		}
	}
	return deleted, nil
}

func seedRepo(t *testing.T, svc *Service) {
	t.Helper()
	require.NoError(t, svc.Store(context.Background(), "dev", "t1", "deploy-steps", "use the blue/green script", nil))
	require.NoError(t, svc.Store(context.Background(), "dev", "t1", "db-owner", "platform team owns migrations", nil))
	require.NoError(t, svc.Store(context.Background(), "dev", "t1", "oncall", "page #infra for prod issues", nil))
}

func TestStoreAndRetrieve(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, llmtest.NewScripted())

	require.NoError(t, svc.Store(context.Background(), "dev", "t1", "k", "v1", nil))
	require.NoError(t, svc.Store(context.Background(), "dev", "t1", "k", "v2", nil))

	m, err := svc.Retrieve(context.Background(), "dev", "t1", "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", m.Value, "store upserts on same key")
	assert.Equal(t, 1, m.AccessCount)

	m, err = svc.Retrieve(context.Background(), "dev", "t1", "k")
	require.NoError(t, err)
	assert.Equal(t, 2, m.AccessCount, "retrieve bumps access count")
}

func TestStore_RequiresScope(t *testing.T) {
	svc := NewService(newFakeRepo(), llmtest.NewScripted())
	assert.Error(t, svc.Store(context.Background(), "", "t1", "k", "v", nil))
	assert.Error(t, svc.Store(context.Background(), "dev", "t1", "", "v", nil))
}

func TestSearch_RanksByRelevance(t *testing.T) {
	repo := newFakeRepo()
	client := llmtest.NewScripted(llmtest.Reply{Content: `{"scores": [0.2, 0.9, 0.5]}`})
	svc := NewService(repo, client)
	seedRepo(t, svc)

	scored, err := svc.Search(context.Background(), "dev", "t1", "who owns the database?", 2)
	require.NoError(t, err)

	require.Len(t, scored, 2)
	assert.Equal(t, "db-owner", scored[0].Key)
	assert.Equal(t, 0.9, scored[0].Relevance)
	assert.Equal(t, "oncall", scored[1].Key)
}

func TestSearch_MalformedScoresFallBackToAccessOrder(t *testing.T) {
	repo := newFakeRepo()
	client := llmtest.NewScripted(llmtest.Reply{Content: "the most relevant is probably db-owner"})
	svc := NewService(repo, client)
	seedRepo(t, svc)
	repo.entries[scopeKey("dev", "t1", "oncall")].AccessCount = 7

	scored, err := svc.Search(context.Background(), "dev", "t1", "query", 2)
	require.NoError(t, err)

	require.Len(t, scored, 2)
	assert.Equal(t, "oncall", scored[0].Key, "highest access count first")
}

func TestSearch_WrongScoreCountFallsBack(t *testing.T) {
	repo := newFakeRepo()
	client := llmtest.NewScripted(llmtest.Reply{Content: `{"scores": [0.9]}`})
	svc := NewService(repo, client)
	seedRepo(t, svc)

	scored, err := svc.Search(context.Background(), "dev", "t1", "query", 3)
	require.NoError(t, err)
	assert.Len(t, scored, 3)
}

func TestSearch_CallFailureReturnsEmpty(t *testing.T) {
	repo := newFakeRepo()
	client := llmtest.NewScripted(llmtest.Reply{Err: errors.New("model down")})
	svc := NewService(repo, client)
	seedRepo(t, svc)

	scored, err := svc.Search(context.Background(), "dev", "t1", "query", 3)
	require.NoError(t, err)
	assert.Empty(t, scored)
}

func TestSearch_EmptyScopeSkipsLLM(t *testing.T) {
	client := llmtest.NewScripted()
	svc := NewService(newFakeRepo(), client)

	scored, err := svc.Search(context.Background(), "dev", "t1", "query", 3)
	require.NoError(t, err)
	assert.Empty(t, scored)
	assert.Equal(t, 0, client.CallCount())
}

func TestContextForAgent_Format(t *testing.T) {
	repo := newFakeRepo()
	client := llmtest.NewScripted(llmtest.Reply{Content: `{"scores": [0.9, 0.1, 0.1]}`})
	svc := NewService(repo, client)
	seedRepo(t, svc)

	block, err := svc.ContextForAgent(context.Background(), "dev", "t1", "how do we deploy?", 1)
	require.NoError(t, err)
	assert.Equal(t, "- deploy-steps: use the blue/green script\n", block)
}

func TestCleanup(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, llmtest.NewScripted())
	seedRepo(t, svc)
	repo.entries[scopeKey("dev", "t1", "oncall")].CreatedAt = time.Now().AddDate(0, 0, -90)

	deleted, err := svc.Cleanup(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = svc.Cleanup(context.Background(), 0)
	assert.Error(t, err)
}
