package storage

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/vjranagit/timesync/pkg/timeseries"
)

const sampleCost = 40

// BlockCache keeps decoded blocks in a cost bounded cache. Entries expire
// after the configured TTL; a zero TTL keeps them until evicted.
type BlockCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewBlockCache creates a cache holding roughly maxBytes of decoded samples.
func NewBlockCache(maxBytes int64, ttl time.Duration) (*BlockCache, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", maxBytes)
	}
	counters := maxBytes / sampleCost * 10
	if counters < 1000 {
		counters = 1000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: counters,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create block cache: %w", err)
	}
	return &BlockCache{cache: cache, ttl: ttl}, nil
}

// Get returns the decoded block stored under key. The returned slice must
// not be modified.
func (bc *BlockCache) Get(key []byte) ([]timeseries.Sample, bool) {
	v, ok := bc.cache.Get(key)
	if !ok {
		return nil, false
	}
	samples, ok := v.([]timeseries.Sample)
	return samples, ok
}

// Put stores a decoded block. The write is visible to Get once it returns.
func (bc *BlockCache) Put(key []byte, samples []timeseries.Sample) {
	if bc.cache.SetWithTTL(key, samples, blockCost(samples), bc.ttl) {
		bc.cache.Wait()
	}
}

// Invalidate drops the block stored under key.
func (bc *BlockCache) Invalidate(key []byte) {
	bc.cache.Del(key)
}

// Clear clears all cache entries
func (bc *BlockCache) Clear() {
	bc.cache.Clear()
}

// Close stops the cache's background goroutines.
func (bc *BlockCache) Close() {
	bc.cache.Close()
}

func blockCost(samples []timeseries.Sample) int64 {
	cost := int64(len(samples)) * sampleCost
	for _, s := range samples {
		if s.Value.Kind() == timeseries.KindString {
			cost += int64(len(s.Value.String()))
		}
	}
	if cost == 0 {
		cost = 1
	}
	return cost
}
