package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"prreview-backend/internal/kvstore"
	"prreview-backend/internal/shared/telemetry"
)

const (
	// NamespacePRAnalysis keys completed analysis payloads.
	NamespacePRAnalysis = "pr_analysis"
	// NamespacePRData keys raw PR metadata and file diffs.
	NamespacePRData = "pr_data"
	// NamespaceFileAnalysis keys per-file analysis output.
	NamespaceFileAnalysis = "file_analysis"

	// DefaultTTL applies when a namespace has no override.
	DefaultTTL = time.Hour
	// PRDataTTL bounds how long fetched PR metadata stays fresh.
	PRDataTTL = 30 * time.Minute
	// PRAnalysisTTL bounds reuse of a completed analysis.
	PRAnalysisTTL = time.Hour
)

// Manager caches PR data and analysis results in the shared store. Every
// operation degrades to a cache miss on failure; callers never see an error.
type Manager struct {
	store kvstore.Store
}

// NewManager constructs a Manager over the given store.
func NewManager(store kvstore.Store) *Manager {
	return &Manager{store: store}
}

// DeriveKey builds a deterministic key from the namespace and parameters.
// Parameters are canonicalized (sorted by name) before hashing, so permutations
// of the same logical request always collide to the same key, and distinct
// namespaces never collide with each other.
func DeriveKey(namespace string, params map[string]any) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		encoded, err := json.Marshal(params[name])
		if err != nil {
			encoded = []byte(fmt.Sprintf("%v", params[name]))
		}
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.Write(encoded)
		sb.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return namespace + ":" + hex.EncodeToString(sum[:])
}

// PRAnalysisKey derives the cache key for a PR's analysis result.
func PRAnalysisKey(repoURL string, prNumber int) string {
	return DeriveKey(NamespacePRAnalysis, map[string]any{
		"repo_url":  repoURL,
		"pr_number": prNumber,
	})
}

// PRDataKey derives the cache key for a PR's metadata and diffs.
func PRDataKey(repoURL string, prNumber int) string {
	return DeriveKey(NamespacePRData, map[string]any{
		"repo_url":  repoURL,
		"pr_number": prNumber,
	})
}

// FileAnalysisKey derives the cache key for a single file's analysis, pinned to
// the file's content hash.
func FileAnalysisKey(repoURL string, prNumber int, filePath, fileSHA string) string {
	return DeriveKey(NamespaceFileAnalysis, map[string]any{
		"repo_url":  repoURL,
		"pr_number": prNumber,
		"file_path": filePath,
		"file_sha":  fileSHA,
	})
}

// Put serializes value into the store under key. A zero ttl selects the
// namespace default. Returns false (and logs) instead of erroring.
func (m *Manager) Put(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = defaultTTLFor(key)
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		telemetry.Error("cache.set_failed", map[string]any{"cache_key": key, "error": err.Error()})
		return false
	}
	if err := m.store.Set(ctx, key, string(encoded), ttl); err != nil {
		telemetry.Error("cache.set_failed", map[string]any{"cache_key": key, "error": err.Error()})
		return false
	}
	telemetry.Info("cache.set", map[string]any{
		"cache_key":   key,
		"ttl_seconds": int(ttl.Seconds()),
		"value_size":  len(encoded),
	})
	return true
}

// Get deserializes the value under key into out. Any store or decode failure
// is treated as absent.
func (m *Manager) Get(ctx context.Context, key string, out any) bool {
	raw, err := m.store.Get(ctx, key)
	if err != nil {
		if err != kvstore.ErrNotFound {
			telemetry.Error("cache.get_failed", map[string]any{"cache_key": key, "error": err.Error()})
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		telemetry.Error("cache.decode_failed", map[string]any{"cache_key": key, "error": err.Error()})
		return false
	}
	return true
}

// Delete removes key and reports whether it existed.
func (m *Manager) Delete(ctx context.Context, key string) bool {
	existed, err := m.store.Delete(ctx, key)
	if err != nil {
		telemetry.Error("cache.delete_failed", map[string]any{"cache_key": key, "error": err.Error()})
		return false
	}
	return existed
}

// TTL reports the remaining lifetime of key, or false if it is absent.
func (m *Manager) TTL(ctx context.Context, key string) (time.Duration, bool) {
	ttl, err := m.store.TTL(ctx, key)
	if err != nil {
		return 0, false
	}
	return ttl, true
}

// Invalidate deletes both the PR-data and PR-analysis entries for the PR and
// reports whether anything was actually removed.
func (m *Manager) Invalidate(ctx context.Context, repoURL string, prNumber int) bool {
	analysisDeleted := m.Delete(ctx, PRAnalysisKey(repoURL, prNumber))
	dataDeleted := m.Delete(ctx, PRDataKey(repoURL, prNumber))
	telemetry.Info("cache.invalidated", map[string]any{
		"repo_url":         repoURL,
		"pr_number":        prNumber,
		"analysis_deleted": analysisDeleted,
		"data_deleted":     dataDeleted,
	})
	return analysisDeleted || dataDeleted
}

// Stats returns store-level usage counters, or an empty struct on failure.
func (m *Manager) Stats(ctx context.Context) kvstore.Stats {
	provider, ok := m.store.(kvstore.StatsProvider)
	if !ok {
		return kvstore.Stats{}
	}
	stats, err := provider.Stats(ctx)
	if err != nil {
		telemetry.Error("cache.stats_failed", map[string]any{"error": err.Error()})
		return kvstore.Stats{}
	}
	return stats
}

func defaultTTLFor(key string) time.Duration {
	switch {
	case strings.HasPrefix(key, NamespacePRData+":"):
		return PRDataTTL
	case strings.HasPrefix(key, NamespacePRAnalysis+":"):
		return PRAnalysisTTL
	default:
		return DefaultTTL
	}
}
