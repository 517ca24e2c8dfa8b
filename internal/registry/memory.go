// Package registry holds the in-process name -> directory map of captured
// datasets.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
)

// Memory is a DatasetRegistry kept in process memory. It is safe for
// concurrent use.
type Memory struct {
	mu       sync.RWMutex
	datasets map[string]entity.Dataset
}

func NewMemory() *Memory {
	return &Memory{datasets: make(map[string]entity.Dataset)}
}

// Register adds ds, replacing any dataset registered under the same name.
func (m *Memory) Register(_ context.Context, ds entity.Dataset) error {
	if ds.Name == "" {
		return fmt.Errorf("register dataset: empty name")
	}
	if ds.Dir == "" {
		return fmt.Errorf("register dataset %s: empty directory", ds.Name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[ds.Name] = ds
	return nil
}

func (m *Memory) Lookup(_ context.Context, name string) (entity.Dataset, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ds, ok := m.datasets[name]
	return ds, ok, nil
}

// List returns every dataset ordered by creation time, then name.
func (m *Memory) List(_ context.Context) ([]entity.Dataset, error) {
	m.mu.RLock()
	out := make([]entity.Dataset, 0, len(m.datasets))
	for _, ds := range m.datasets {
		out = append(out, ds)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
