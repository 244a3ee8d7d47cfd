package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemoryConfigStorage keeps configs for the lifetime of the process.
type InMemoryConfigStorage struct {
	records map[string]ServerRecord // id -> record
	mu      sync.RWMutex
}

// NewInMemoryConfigStorage creates an empty in-memory storage.
func NewInMemoryConfigStorage() *InMemoryConfigStorage {
	return &InMemoryConfigStorage{
		records: make(map[string]ServerRecord),
	}
}

func (r *InMemoryConfigStorage) Init(ctx context.Context, manager ClientManager) error {
	return nil
}

// LoadAll returns every record ordered by name.
func (r *InMemoryConfigStorage) LoadAll(ctx context.Context) ([]ServerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ServerRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *InMemoryConfigStorage) Save(ctx context.Context, server ServerInsert) (ServerRecord, error) {
	if err := ctx.Err(); err != nil {
		return ServerRecord{}, err
	}
	if server.Config == nil {
		return ServerRecord{}, fmt.Errorf("save %q: config is required", server.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := server.ID
	if id == "" {
		id = uuid.NewString()
	}
	rec := ServerRecord{ID: id, Name: server.Name, Config: server.Config}
	r.records[id] = rec
	return rec, nil
}

func (r *InMemoryConfigStorage) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(r.records, id)
	return nil
}

func (r *InMemoryConfigStorage) Has(ctx context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[id]
	return ok, nil
}

func (r *InMemoryConfigStorage) Get(ctx context.Context, id string) (*ServerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}
