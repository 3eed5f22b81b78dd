package githubpr

import (
	"context"
	"errors"
	"testing"

	"prreview-backend/internal/cache"
	"prreview-backend/internal/kvstore"
)

type stubSource struct {
	dataCalls int
	diffCalls int
	err       error
}

func (s *stubSource) GetPullRequestData(ctx context.Context, repoURL string, prNumber int) (*PRData, error) {
	s.dataCalls++
	if s.err != nil {
		return nil, s.err
	}
	return &PRData{Number: prNumber, Title: "Tighten validation", HeadSHA: "deadbeef"}, nil
}

func (s *stubSource) GetPullRequestDiffs(ctx context.Context, repoURL string, prNumber int) ([]FileDiff, error) {
	s.diffCalls++
	if s.err != nil {
		return nil, s.err
	}
	return []FileDiff{{Filename: "main.go", Status: "modified", Language: "go", Patch: "@@ +1 @@"}}, nil
}

func TestFetcherReadThrough(t *testing.T) {
	ctx := context.Background()
	source := &stubSource{}
	mgr := cache.NewManager(kvstore.NewMemoryStore())
	fetcher := NewFetcher(source, mgr)

	bundle, err := fetcher.Fetch(ctx, "https://github.com/acme/widgets", 7)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if bundle.PR.HeadSHA != "deadbeef" || len(bundle.Diffs) != 1 {
		t.Fatalf("unexpected bundle %+v", bundle)
	}
	if source.dataCalls != 1 || source.diffCalls != 1 {
		t.Fatalf("expected one source round trip, got %d/%d", source.dataCalls, source.diffCalls)
	}

	// Second fetch is served from the PR-data cache.
	cached, err := fetcher.Fetch(ctx, "https://github.com/acme/widgets", 7)
	if err != nil {
		t.Fatalf("cached fetch: %v", err)
	}
	if cached.PR.HeadSHA != "deadbeef" || len(cached.Diffs) != 1 {
		t.Fatalf("unexpected cached bundle %+v", cached)
	}
	if source.dataCalls != 1 || source.diffCalls != 1 {
		t.Fatalf("cached fetch must not hit the source, got %d/%d", source.dataCalls, source.diffCalls)
	}
}

func TestFetcherNilCache(t *testing.T) {
	ctx := context.Background()
	source := &stubSource{}
	fetcher := NewFetcher(source, nil)

	for i := 0; i < 2; i++ {
		if _, err := fetcher.Fetch(ctx, "https://github.com/acme/widgets", 7); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if source.dataCalls != 2 {
		t.Fatalf("nil cache should fetch every time, got %d calls", source.dataCalls)
	}
}

func TestFetcherPropagatesSourceError(t *testing.T) {
	source := &stubSource{err: errors.New("api unavailable")}
	fetcher := NewFetcher(source, nil)

	if _, err := fetcher.Fetch(context.Background(), "https://github.com/acme/widgets", 7); err == nil {
		t.Fatalf("expected source error")
	}
}
