package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/eap-project/eap/pkg/models"
	"github.com/eap-project/eap/pkg/policy"
)

// MemoryRepo persists agent memory entries. Implements memory.Repository.
type MemoryRepo struct {
	db *sqlx.DB
}

// Upsert inserts or replaces the value for (agent_id, tenant_id, key).
func (r *MemoryRepo) Upsert(ctx context.Context, m *models.AgentMemory) error {
	var metadata []byte
	if m.Metadata != nil {
		var err error
		if metadata, err = json.Marshal(m.Metadata); err != nil {
			return err
		}
	}
	return r.db.QueryRowxContext(ctx,
		`INSERT INTO agent_memories (agent_id, tenant_id, key, value, metadata)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (agent_id, tenant_id, key)
		 DO UPDATE SET value = EXCLUDED.value, metadata = EXCLUDED.metadata
		 RETURNING id, created_at`,
		m.AgentID, m.TenantID, m.Key, m.Value, metadata,
	).Scan(&m.ID, &m.CreatedAt)
}

// Get returns one entry by key.
func (r *MemoryRepo) Get(ctx context.Context, agentID, tenantID, key string) (*models.AgentMemory, error) {
	filter, err := policy.TenantFilter[models.AgentMemory](tenantID)
	if err != nil {
		return nil, err
	}
	var m models.AgentMemory
	err = r.db.GetContext(ctx, &m,
		`SELECT id, agent_id, tenant_id, key, value, access_count, created_at
		 FROM agent_memories
		 WHERE agent_id = $1 AND key = $2 AND `+filter.Predicate(3),
		agentID, key, filter.TenantID())
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

// IncrementAccess bumps a row's access counter.
func (r *MemoryRepo) IncrementAccess(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE agent_memories SET access_count = access_count + 1 WHERE id = $1`, id)
	return err
}

// ListByScope returns every entry for one (agent, tenant) pair.
func (r *MemoryRepo) ListByScope(ctx context.Context, agentID, tenantID string) ([]models.AgentMemory, error) {
	filter, err := policy.TenantFilter[models.AgentMemory](tenantID)
	if err != nil {
		return nil, err
	}
	var entries []models.AgentMemory
	err = r.db.SelectContext(ctx, &entries,
		`SELECT id, agent_id, tenant_id, key, value, access_count, created_at
		 FROM agent_memories
		 WHERE agent_id = $1 AND `+filter.Predicate(2)+`
		 ORDER BY created_at`,
		agentID, filter.TenantID())
	return entries, err
}

// DeleteOlderThan removes entries created before the cutoff, across all
// tenants. Only the cleanup job calls this.
func (r *MemoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM agent_memories WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
