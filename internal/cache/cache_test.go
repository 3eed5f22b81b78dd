package cache

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"prreview-backend/internal/kvstore"
)

func TestDeriveKeyParamOrderIrrelevant(t *testing.T) {
	a := DeriveKey(NamespacePRAnalysis, map[string]any{
		"repo_url":  "https://github.com/acme/widgets",
		"pr_number": 42,
	})
	b := DeriveKey(NamespacePRAnalysis, map[string]any{
		"pr_number": 42,
		"repo_url":  "https://github.com/acme/widgets",
	})
	if a != b {
		t.Fatalf("expected identical keys, got %q and %q", a, b)
	}
}

func TestDeriveKeyNamespacePrefix(t *testing.T) {
	params := map[string]any{"repo_url": "https://github.com/acme/widgets", "pr_number": 1}
	analysisKey := DeriveKey(NamespacePRAnalysis, params)
	dataKey := DeriveKey(NamespacePRData, params)

	if !strings.HasPrefix(analysisKey, NamespacePRAnalysis+":") {
		t.Fatalf("key missing namespace prefix: %q", analysisKey)
	}
	if analysisKey == dataKey {
		t.Fatalf("distinct namespaces must not collide")
	}
}

func TestDeriveKeyDistinctParams(t *testing.T) {
	a := PRAnalysisKey("https://github.com/acme/widgets", 1)
	b := PRAnalysisKey("https://github.com/acme/widgets", 2)
	if a == b {
		t.Fatalf("different PR numbers must derive different keys")
	}
}

func TestManagerPutGetRoundTrip(t *testing.T) {
	store := kvstore.NewMemoryStore()
	mgr := NewManager(store)
	ctx := context.Background()

	type payload struct {
		Value string `json:"value"`
	}
	key := DeriveKey(NamespacePRAnalysis, map[string]any{"k": "v"})
	if !mgr.Put(ctx, key, payload{Value: "hello"}, time.Hour) {
		t.Fatalf("put failed")
	}

	var got payload
	if !mgr.Get(ctx, key, &got) {
		t.Fatalf("expected cache hit")
	}
	if got.Value != "hello" {
		t.Fatalf("unexpected value %q", got.Value)
	}
}

func TestManagerGetMiss(t *testing.T) {
	mgr := NewManager(kvstore.NewMemoryStore())
	var out map[string]any
	if mgr.Get(context.Background(), "pr_analysis:missing", &out) {
		t.Fatalf("expected miss for absent key")
	}
}

func TestManagerNamespaceDefaultTTL(t *testing.T) {
	store := kvstore.NewMemoryStore()
	mgr := NewManager(store)
	ctx := context.Background()

	dataKey := PRDataKey("https://github.com/acme/widgets", 7)
	if !mgr.Put(ctx, dataKey, map[string]string{"x": "y"}, 0) {
		t.Fatalf("put failed")
	}
	ttl, ok := mgr.TTL(ctx, dataKey)
	if !ok {
		t.Fatalf("expected ttl for cached key")
	}
	if ttl <= 0 || ttl > PRDataTTL {
		t.Fatalf("expected ttl within %v, got %v", PRDataTTL, ttl)
	}
}

func TestManagerInvalidate(t *testing.T) {
	store := kvstore.NewMemoryStore()
	mgr := NewManager(store)
	ctx := context.Background()
	repoURL := "https://github.com/acme/widgets"

	if !mgr.PutPRAnalysis(ctx, repoURL, 3, json.RawMessage(`{"files":[]}`), 0) {
		t.Fatalf("put analysis failed")
	}
	if !mgr.PutPRData(ctx, repoURL, 3, json.RawMessage(`{"pr":{}}`), 0) {
		t.Fatalf("put data failed")
	}

	if !mgr.Invalidate(ctx, repoURL, 3) {
		t.Fatalf("expected invalidate to report deletions")
	}
	if _, ok := mgr.GetPRAnalysis(ctx, repoURL, 3); ok {
		t.Fatalf("analysis entry should be gone")
	}
	if _, ok := mgr.GetPRData(ctx, repoURL, 3); ok {
		t.Fatalf("data entry should be gone")
	}
	if mgr.Invalidate(ctx, repoURL, 3) {
		t.Fatalf("second invalidate should report nothing deleted")
	}
}

func TestPRAnalysisEntryMetadata(t *testing.T) {
	store := kvstore.NewMemoryStore()
	mgr := NewManager(store)
	ctx := context.Background()
	repoURL := "https://github.com/acme/widgets"

	if !mgr.PutPRAnalysis(ctx, repoURL, 9, json.RawMessage(`{"files":[]}`), 0) {
		t.Fatalf("put analysis failed")
	}

	raw, err := store.Get(ctx, PRAnalysisKey(repoURL, 9))
	if err != nil {
		t.Fatalf("get raw entry: %v", err)
	}
	var entry AnalysisEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if entry.RepoURL != repoURL || entry.PRNumber != 9 {
		t.Fatalf("unexpected provenance: %+v", entry)
	}
	if entry.CachedAt == "" {
		t.Fatalf("expected cached_at to be set")
	}
}
