package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/cloo-solutions/policyqa/internal/domain"
)

// Memory is a process-local cosine index for development and tests.
type Memory struct {
	mu         sync.RWMutex
	dimensions int
	namespaces map[string][]domain.Vector
}

func NewMemory(dimensions int) *Memory {
	return &Memory{
		dimensions: dimensions,
		namespaces: make(map[string][]domain.Vector),
	}
}

func (m *Memory) EnsureIndex(ctx context.Context) error {
	return nil
}

func (m *Memory) Upsert(ctx context.Context, namespace string, vectors []domain.Vector) error {
	for _, v := range vectors {
		if m.dimensions > 0 && len(v.Values) != m.dimensions {
			return fmt.Errorf("vector %s has %d dimensions, index expects %d", v.ID, len(v.Values), m.dimensions)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.namespaces[namespace]
	for _, v := range vectors {
		replaced := false
		for i := range stored {
			if stored[i].ID == v.ID {
				stored[i] = v
				replaced = true
				break
			}
		}
		if !replaced {
			stored = append(stored, v)
		}
	}
	m.namespaces[namespace] = stored
	return nil
}

func (m *Memory) Query(ctx context.Context, namespace string, vector []float32, k int) ([]domain.Clause, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.namespaces[namespace]
	clauses := make([]domain.Clause, 0, len(stored))
	for _, v := range stored {
		clauses = append(clauses, domain.Clause{
			ID:      v.ID,
			Content: v.Content,
			Score:   cosine(vector, v.Values),
		})
	}

	sort.SliceStable(clauses, func(i, j int) bool {
		return clauses[i].Score > clauses[j].Score
	})

	if k < len(clauses) {
		clauses = clauses[:k]
	}
	return clauses, nil
}

func (m *Memory) Count(ctx context.Context, namespace string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.namespaces[namespace]), nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
