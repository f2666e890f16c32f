package pipeline

import (
	"context"

	"github.com/dgraph-io/ristretto"

	"github.com/rcliao/chat-memory/internal/model"
	"github.com/rcliao/chat-memory/internal/store"
)

// Snapshots is a read-through cache of each owner's global memory set. Both
// pipeline branches read the same snapshot at dispatch time; every global
// memory write invalidates the owner's entry.
type Snapshots struct {
	cache *ristretto.Cache
	store store.MemoryStore
}

// NewSnapshots builds the cache over the given memory store.
func NewSnapshots(st store.MemoryStore) (*Snapshots, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Snapshots{cache: cache, store: st}, nil
}

// Globals returns the owner's global memories, from cache when warm.
func (s *Snapshots) Globals(ctx context.Context, owner string) ([]model.Memory, error) {
	if v, ok := s.cache.Get(owner); ok {
		return v.([]model.Memory), nil
	}

	memories, err := s.store.ListMemories(ctx, store.ListMemoriesParams{
		Owner: owner,
		Scope: model.ScopeGlobal,
	})
	if err != nil {
		return nil, err
	}

	s.cache.Set(owner, memories, int64(len(memories))+1)
	s.cache.Wait()
	return memories, nil
}

// Invalidate drops the owner's cached snapshot.
func (s *Snapshots) Invalidate(owner string) {
	s.cache.Del(owner)
}
