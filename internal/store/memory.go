package store

import (
	"sort"
	"sync"

	"github.com/vm799/trust-by-design-sub003/internal/models"
)

// MemoryRepo is an in-memory Repository used by tests and by callers that
// need a store without a database file.
type MemoryRepo struct {
	mu   sync.RWMutex
	recs map[string]models.Record
}

// NewMemoryRepo creates an empty in-memory repository.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{recs: make(map[string]models.Record)}
}

func (m *MemoryRepo) Upsert(rec models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.ID] = rec
	return nil
}

func (m *MemoryRepo) Get(id string) (*models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryRepo) GetByWorkspace(workspaceID string) ([]models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Record
	for _, rec := range m.recs {
		if rec.WorkspaceID == workspaceID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepo) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, id)
	return nil
}

func (m *MemoryRepo) Count(workspaceID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, rec := range m.recs {
		if rec.WorkspaceID == workspaceID {
			n++
		}
	}
	return n, nil
}
