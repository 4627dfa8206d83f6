// Package learning holds agent learning state: the Store contract, an
// in-memory Store and the Updater that folds evaluation results into profiles.
package learning

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jordanhubbard/gauntlet/pkg/models"
)

var (
	// ErrProfileNotFound is returned by Load for an unknown agent.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrAlreadyRecorded is returned by Commit when the (scenario, agent)
	// record exists. Nothing is written.
	ErrAlreadyRecorded = errors.New("execution already recorded")
)

// Store persists profiles and the execution archive.
type Store interface {
	Load(ctx context.Context, agentID string) (*models.AgentProfile, error)
	Save(ctx context.Context, profile *models.AgentProfile) error
	// Commit writes the updated profile and archives rec in one atomic step.
	Commit(ctx context.Context, profile *models.AgentProfile, rec *models.ExecutionRecord) error
	ListProfiles(ctx context.Context) ([]*models.AgentProfile, error)
	// Records returns the newest archived records for an agent, newest first.
	Records(ctx context.Context, agentID string, limit int) ([]*models.ExecutionRecord, error)
	Close() error
}

// LoadOrCreate returns the stored profile or a fresh one when the agent is unknown.
// The fresh profile is not saved.
func LoadOrCreate(ctx context.Context, s Store, agentID string) (*models.AgentProfile, error) {
	p, err := s.Load(ctx, agentID)
	if errors.Is(err, ErrProfileNotFound) {
		return models.NewAgentProfile(agentID), nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// MemoryStore is a Store backed by maps. Profiles are copied on the way in
// and out so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*models.AgentProfile
	records  map[string]*models.ExecutionRecord
	byAgent  map[string][]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*models.AgentProfile),
		records:  make(map[string]*models.ExecutionRecord),
		byAgent:  make(map[string][]string),
	}
}

func recordKey(scenarioID, agentID string) string {
	return scenarioID + "\x00" + agentID
}

// Load returns a copy of the agent's profile.
func (m *MemoryStore) Load(ctx context.Context, agentID string) (*models.AgentProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, agentID)
	}
	return p.Clone(), nil
}

// Save stores a copy of profile.
func (m *MemoryStore) Save(ctx context.Context, profile *models.AgentProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.AgentID] = profile.Clone()
	return nil
}

// Commit stores the profile and the record together.
func (m *MemoryStore) Commit(ctx context.Context, profile *models.AgentProfile, rec *models.ExecutionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recordKey(rec.ScenarioID, rec.AgentID)
	if _, ok := m.records[key]; ok {
		return fmt.Errorf("%w: scenario %s agent %s", ErrAlreadyRecorded, rec.ScenarioID, rec.AgentID)
	}
	stored := *rec
	if stored.RecordedAt.IsZero() {
		stored.RecordedAt = time.Now().UTC()
	}
	m.records[key] = &stored
	m.byAgent[rec.AgentID] = append(m.byAgent[rec.AgentID], key)
	m.profiles[profile.AgentID] = profile.Clone()
	return nil
}

// ListProfiles returns copies of every profile ordered by agent id.
func (m *MemoryStore) ListProfiles(ctx context.Context) ([]*models.AgentProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.AgentProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

// Records returns up to limit records for agentID, newest first. limit <= 0 means all.
func (m *MemoryStore) Records(ctx context.Context, agentID string, limit int) ([]*models.ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := m.byAgent[agentID]
	var out []*models.ExecutionRecord
	for i := len(keys) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		rec := *m.records[keys[i]]
		out = append(out, &rec)
	}
	return out, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
