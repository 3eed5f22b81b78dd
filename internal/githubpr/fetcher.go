package githubpr

import (
	"context"
	"encoding/json"

	"prreview-backend/internal/cache"
	"prreview-backend/internal/shared/telemetry"
)

// Source fetches PR metadata and diffs. Satisfied by Client and by test
// stubs.
type Source interface {
	GetPullRequestData(ctx context.Context, repoURL string, prNumber int) (*PRData, error)
	GetPullRequestDiffs(ctx context.Context, repoURL string, prNumber int) ([]FileDiff, error)
}

// Fetcher is a read-through cache over a Source. Bundles are cached under
// the PR-data namespace so retriggered analyses of the same PR skip the
// GitHub round trips.
type Fetcher struct {
	source Source
	cache  *cache.Manager
}

// NewFetcher wraps source with the given cache. A nil cache disables
// caching entirely.
func NewFetcher(source Source, cacheManager *cache.Manager) *Fetcher {
	return &Fetcher{source: source, cache: cacheManager}
}

// Fetch returns the PR bundle, reading from cache when possible and
// populating it on miss. Cache failures degrade to a direct fetch.
func (f *Fetcher) Fetch(ctx context.Context, repoURL string, prNumber int) (*PRBundle, error) {
	if f.cache != nil {
		if raw, ok := f.cache.GetPRData(ctx, repoURL, prNumber); ok {
			var bundle PRBundle
			if err := json.Unmarshal(raw, &bundle); err == nil {
				return &bundle, nil
			}
			telemetry.Error("githubpr.cached_bundle_corrupt", map[string]any{
				"repo_url":  repoURL,
				"pr_number": prNumber,
			})
		}
	}

	pr, err := f.source.GetPullRequestData(ctx, repoURL, prNumber)
	if err != nil {
		return nil, err
	}
	diffs, err := f.source.GetPullRequestDiffs(ctx, repoURL, prNumber)
	if err != nil {
		return nil, err
	}

	bundle := &PRBundle{PR: *pr, Diffs: diffs}
	if f.cache != nil {
		if raw, err := json.Marshal(bundle); err == nil {
			f.cache.PutPRData(ctx, repoURL, prNumber, raw, 0)
		}
	}
	return bundle, nil
}
