// Package memory implements the tenant+agent-scoped key/value memory store
// with LLM-scored recall.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/eap-project/eap/pkg/llm"
	"github.com/eap-project/eap/pkg/models"
)

const scoreTemperature = 0.1

// Repository is the persistence contract for memory entries.
type Repository interface {
	Upsert(ctx context.Context, m *models.AgentMemory) error
	Get(ctx context.Context, agentID, tenantID, key string) (*models.AgentMemory, error)
	IncrementAccess(ctx context.Context, id string) error
	ListByScope(ctx context.Context, agentID, tenantID string) ([]models.AgentMemory, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service provides memory operations to agents and the API layer.
type Service struct {
	repo   Repository
	llm    llm.Client
	logger *slog.Logger
}

// NewService creates a memory service.
func NewService(repo Repository, client llm.Client) *Service {
	return &Service{
		repo:   repo,
		llm:    client,
		logger: slog.With("component", "memory"),
	}
}

// Store upserts a memory entry keyed by (agent_id, tenant_id, key).
func (s *Service) Store(ctx context.Context, agentID, tenantID, key, value string, metadata map[string]any) error {
	if agentID == "" || tenantID == "" || key == "" {
		return fmt.Errorf("agent_id, tenant_id and key are required")
	}
	return s.repo.Upsert(ctx, &models.AgentMemory{
		AgentID:  agentID,
		TenantID: tenantID,
		Key:      key,
		Value:    value,
		Metadata: metadata,
	})
}

// Retrieve returns one entry by key and bumps its access count.
func (s *Service) Retrieve(ctx context.Context, agentID, tenantID, key string) (*models.AgentMemory, error) {
	m, err := s.repo.Get(ctx, agentID, tenantID, key)
	if err != nil {
		return nil, err
	}
	if err := s.repo.IncrementAccess(ctx, m.ID); err != nil {
		s.logger.Warn("Failed to bump memory access count", "memory_id", m.ID, "error", err)
	} else {
		m.AccessCount++
	}
	return m, nil
}

// Search scores every memory in scope against the query with one LLM call
// and returns the top limit by relevance.
//
// Degradation: malformed scoring JSON falls back to most-recently-accessed
// order; a failed call returns an empty list.
func (s *Service) Search(ctx context.Context, agentID, tenantID, query string, limit int) ([]models.ScoredMemory, error) {
	if limit <= 0 {
		return nil, nil
	}
	entries, err := s.repo.ListByScope(ctx, agentID, tenantID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	scores, err := s.scoreMemories(ctx, query, entries)
	if err != nil {
		var parseErr *scoreParseError
		if errors.As(err, &parseErr) {
			s.logger.Warn("Memory scoring returned malformed JSON, falling back to access order", "error", err)
			return recentlyAccessed(entries, limit), nil
		}
		s.logger.Warn("Memory scoring call failed", "error", err)
		return []models.ScoredMemory{}, nil
	}

	scored := make([]models.ScoredMemory, 0, len(entries))
	for i, m := range entries {
		scored = append(scored, models.ScoredMemory{AgentMemory: m, Relevance: scores[i]})
	}
	sort.SliceStable(scored, func(a, b int) bool { return scored[a].Relevance > scored[b].Relevance })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// Cleanup deletes entries older than the given age in days.
func (s *Service) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, fmt.Errorf("older_than_days must be positive")
	}
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("Cleaned up old memories", "deleted", deleted, "older_than_days", olderThanDays)
	}
	return deleted, nil
}

// ContextForAgent renders the most relevant memories as a context block of
// "- {key}: {value}" lines. Implements agent.MemoryProvider.
func (s *Service) ContextForAgent(ctx context.Context, agentID, tenantID, query string, max int) (string, error) {
	scored, err := s.Search(ctx, agentID, tenantID, query, max)
	if err != nil {
		return "", err
	}
	if len(scored) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, m := range scored {
		fmt.Fprintf(&b, "- %s: %s\n", m.Key, m.Value)
	}
	return b.String(), nil
}

// scoreParseError marks scoring output the model produced but we could not
// use, distinguishing it from transport failure.
type scoreParseError struct{ cause error }

func (e *scoreParseError) Error() string { return fmt.Sprintf("unusable scoring output: %v", e.cause) }
func (e *scoreParseError) Unwrap() error { return e.cause }

// scoreMemories returns one relevance per entry, index-aligned.
func (s *Service) scoreMemories(ctx context.Context, query string, entries []models.AgentMemory) ([]float64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Query:\n%s\n\nMemories:\n", query)
	for i, m := range entries {
		fmt.Fprintf(&b, "%d. %s: %s\n", i, m.Key, m.Value)
	}

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: scoreSystemPrompt},
			{Role: "user", Content: b.String()},
		},
		Temperature: scoreTemperature,
	})
	if err != nil {
		return nil, err
	}

	raw := llm.ExtractJSON(llm.ExtractText(resp))
	if raw == "" {
		return nil, &scoreParseError{cause: fmt.Errorf("no JSON object in response")}
	}
	var parsed struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, &scoreParseError{cause: err}
	}
	if len(parsed.Scores) != len(entries) {
		return nil, &scoreParseError{cause: fmt.Errorf("got %d scores for %d memories", len(parsed.Scores), len(entries))}
	}
	return parsed.Scores, nil
}

// recentlyAccessed is the fallback ordering: highest access count first.
func recentlyAccessed(entries []models.AgentMemory, limit int) []models.ScoredMemory {
	sorted := make([]models.AgentMemory, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].AccessCount > sorted[b].AccessCount })
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]models.ScoredMemory, 0, len(sorted))
	for _, m := range sorted {
		out = append(out, models.ScoredMemory{AgentMemory: m})
	}
	return out
}

const scoreSystemPrompt = `You score memories for relevance to a query.
Respond with ONLY a JSON object:
{"scores": [0.0-1.0, ...]}
The scores array must have exactly one entry per memory, in the given order.`
