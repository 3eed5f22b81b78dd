package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the key does not exist or has expired.
var ErrNotFound = errors.New("key not found")

// Store is the shared key-value store backing tasks, results, and cache entries.
// All values are opaque strings; every write carries an expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Stats carries best-effort store introspection for the cache stats endpoint.
type Stats struct {
	ConnectedClients       int64   `json:"connected_clients"`
	UsedMemory             string  `json:"used_memory"`
	TotalCommandsProcessed int64   `json:"total_commands_processed"`
	KeyspaceHits           int64   `json:"keyspace_hits"`
	KeyspaceMisses         int64   `json:"keyspace_misses"`
	HitRate                float64 `json:"hit_rate"`
}

// StatsProvider is implemented by backends that can report usage statistics.
type StatsProvider interface {
	Stats(ctx context.Context) (Stats, error)
}
