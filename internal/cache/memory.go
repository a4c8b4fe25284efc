package cache

// #region imports
import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"
)

// #endregion imports

// #region memory-store

// MemoryStore is an in-process Store bounded by total value size.
type MemoryStore struct {
	cache *ristretto.Cache[string, string]
}

// NewMemoryStore creates a store holding roughly maxBytes of values.
func NewMemoryStore(maxBytes int64) (*MemoryStore, error) {
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: maxBytes / 64, // ~10x expected entries of a few hundred bytes
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create ristretto cache")
	}
	return &MemoryStore{cache: c}, nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.cache.Get(key)
	return v, ok, nil
}

// Set implements Store. Writes are visible to the next Get once Set returns.
func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if !m.cache.SetWithTTL(key, value, int64(len(value))+int64(len(key)), ttl) {
		return errors.New("cache write dropped")
	}
	m.cache.Wait()
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.cache.Del(key)
	return nil
}

// Close releases the cache's background goroutines.
func (m *MemoryStore) Close() {
	m.cache.Close()
}

// #endregion memory-store
