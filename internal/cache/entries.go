package cache

import (
	"context"
	"encoding/json"
	"time"

	"prreview-backend/internal/shared/telemetry"
)

// AnalysisEntry wraps a cached analysis payload with provenance metadata.
type AnalysisEntry struct {
	Result   json.RawMessage `json:"result"`
	CachedAt string          `json:"cached_at"`
	RepoURL  string          `json:"repo_url"`
	PRNumber int             `json:"pr_number"`
}

// PRDataEntry wraps cached PR metadata and diffs.
type PRDataEntry struct {
	PRData   json.RawMessage `json:"pr_data"`
	CachedAt string          `json:"cached_at"`
	RepoURL  string          `json:"repo_url"`
	PRNumber int             `json:"pr_number"`
}

// PutPRAnalysis caches a completed analysis payload for the PR. A zero ttl
// selects the PR-analysis default.
func (m *Manager) PutPRAnalysis(ctx context.Context, repoURL string, prNumber int, result json.RawMessage, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = PRAnalysisTTL
	}
	entry := AnalysisEntry{
		Result:   result,
		CachedAt: time.Now().UTC().Format(time.RFC3339),
		RepoURL:  repoURL,
		PRNumber: prNumber,
	}
	return m.Put(ctx, PRAnalysisKey(repoURL, prNumber), entry, ttl)
}

// GetPRAnalysis returns the cached analysis payload for the PR, if present.
func (m *Manager) GetPRAnalysis(ctx context.Context, repoURL string, prNumber int) (json.RawMessage, bool) {
	var entry AnalysisEntry
	if !m.Get(ctx, PRAnalysisKey(repoURL, prNumber), &entry) {
		return nil, false
	}
	if len(entry.Result) == 0 {
		return nil, false
	}
	telemetry.Info("cache.pr_analysis_hit", map[string]any{
		"repo_url":  repoURL,
		"pr_number": prNumber,
		"cached_at": entry.CachedAt,
	})
	return entry.Result, true
}

// PutPRData caches fetched PR metadata and diffs for the PR.
func (m *Manager) PutPRData(ctx context.Context, repoURL string, prNumber int, prData json.RawMessage, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = PRDataTTL
	}
	entry := PRDataEntry{
		PRData:   prData,
		CachedAt: time.Now().UTC().Format(time.RFC3339),
		RepoURL:  repoURL,
		PRNumber: prNumber,
	}
	return m.Put(ctx, PRDataKey(repoURL, prNumber), entry, ttl)
}

// GetPRData returns the cached PR metadata and diffs, if present.
func (m *Manager) GetPRData(ctx context.Context, repoURL string, prNumber int) (json.RawMessage, bool) {
	var entry PRDataEntry
	if !m.Get(ctx, PRDataKey(repoURL, prNumber), &entry) {
		return nil, false
	}
	if len(entry.PRData) == 0 {
		return nil, false
	}
	telemetry.Info("cache.pr_data_hit", map[string]any{
		"repo_url":  repoURL,
		"pr_number": prNumber,
		"cached_at": entry.CachedAt,
	})
	return entry.PRData, true
}
