package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"prreview-backend/internal/analyzer"
	"prreview-backend/internal/cache"
	"prreview-backend/internal/githubpr"
	"prreview-backend/internal/kvstore"
	"prreview-backend/internal/queue"
	"prreview-backend/internal/tasks"
)

type fakeSource struct {
	pr      githubpr.PRData
	diffs   []githubpr.FileDiff
	dataErr error
	diffErr error
}

func (f *fakeSource) GetPullRequestData(ctx context.Context, repoURL string, prNumber int) (*githubpr.PRData, error) {
	if f.dataErr != nil {
		return nil, f.dataErr
	}
	pr := f.pr
	return &pr, nil
}

func (f *fakeSource) GetPullRequestDiffs(ctx context.Context, repoURL string, prNumber int) ([]githubpr.FileDiff, error) {
	if f.diffErr != nil {
		return nil, f.diffErr
	}
	return f.diffs, nil
}

type fakeAnalyzer struct {
	responses map[string]string
	failFor   map[string]error
	calls     []string
}

func (f *fakeAnalyzer) AnalyzeFile(ctx context.Context, input analyzer.FileInput) (json.RawMessage, error) {
	f.calls = append(f.calls, input.Filename)
	if err, ok := f.failFor[input.Filename]; ok {
		return nil, err
	}
	if resp, ok := f.responses[input.Filename]; ok {
		return json.RawMessage(resp), nil
	}
	return json.RawMessage(`{"issues":[]}`), nil
}

type runnerFixture struct {
	runner *Runner
	store  *tasks.Store
	ai     *fakeAnalyzer
}

func newRunnerFixture(source githubpr.Source, ai *fakeAnalyzer) *runnerFixture {
	kv := kvstore.NewMemoryStore()
	cacheMgr := cache.NewManager(kv)
	store := tasks.NewStore(kv, cacheMgr)
	runner := NewRunner(store, cacheMgr, ai, func(token string) githubpr.Source { return source })
	return &runnerFixture{runner: runner, store: store, ai: ai}
}

func testMessage() queue.Message {
	return queue.Message{
		TaskID:   "t1",
		RepoURL:  "https://github.com/acme/widgets",
		PRNumber: 5,
		Version:  1,
	}
}

func testSource() *fakeSource {
	return &fakeSource{
		pr: githubpr.PRData{
			Number:  5,
			Title:   "Add retry logic",
			HeadSHA: "abc123",
		},
		diffs: []githubpr.FileDiff{
			{Filename: "internal/retry/retry.go", Status: "added", Language: "go", Patch: "@@ +1 @@"},
			{Filename: "docs/retry.md", Status: "modified", Language: "markdown", Patch: "@@ +1 @@"},
		},
	}
}

func TestExecuteCompletesTask(t *testing.T) {
	ctx := context.Background()
	ai := &fakeAnalyzer{responses: map[string]string{
		"internal/retry/retry.go": `{"issues":[{"type":"bug","line":4,"description":"missing backoff cap","suggestion":"cap the delay","severity":"medium"}]}`,
	}}
	f := newRunnerFixture(testSource(), ai)
	msg := testMessage()

	if _, err := f.store.CreateTask(ctx, msg.TaskID, msg.RepoURL, msg.PRNumber, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.runner.Execute(ctx, msg); err != nil {
		t.Fatalf("execute: %v", err)
	}

	record, err := f.store.GetRawTaskData(ctx, msg.TaskID)
	if err != nil {
		t.Fatalf("raw: %v", err)
	}
	if record.Status != tasks.StatusCompleted {
		t.Fatalf("expected completed, got %s", record.Status)
	}
	if record.CompletedAt == "" {
		t.Fatalf("completed_at should be stamped")
	}

	resp, err := f.store.GetResults(ctx, msg.TaskID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if resp.Results == nil {
		t.Fatalf("expected stored results")
	}
	if resp.Results.Summary.TotalFiles != 2 || resp.Results.Summary.TotalIssues != 1 {
		t.Fatalf("unexpected summary %+v", resp.Results.Summary)
	}
	if resp.Results.Metadata["head_sha"] != "abc123" {
		t.Fatalf("metadata should carry the head SHA, got %v", resp.Results.Metadata)
	}
}

func TestExecuteFetchFailureFailsTask(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{dataErr: errors.New("boom")}
	f := newRunnerFixture(source, &fakeAnalyzer{})
	msg := testMessage()

	if _, err := f.store.CreateTask(ctx, msg.TaskID, msg.RepoURL, msg.PRNumber, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.runner.Execute(ctx, msg); err == nil {
		t.Fatalf("expected execute error")
	}

	record, err := f.store.GetRawTaskData(ctx, msg.TaskID)
	if err != nil {
		t.Fatalf("raw: %v", err)
	}
	if record.Status != tasks.StatusFailed {
		t.Fatalf("expected failed, got %s", record.Status)
	}
	if !strings.HasPrefix(record.ErrorMessage, "Analysis failed:") {
		t.Fatalf("unexpected error message %q", record.ErrorMessage)
	}
}

func TestExecuteSkipsTerminalTask(t *testing.T) {
	ctx := context.Background()
	ai := &fakeAnalyzer{}
	f := newRunnerFixture(testSource(), ai)
	msg := testMessage()

	if _, err := f.store.CreateTask(ctx, msg.TaskID, msg.RepoURL, msg.PRNumber, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.store.UpdateStatus(ctx, msg.TaskID, tasks.StatusCancelled, "Task cancelled by user request"); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := f.runner.Execute(ctx, msg); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(ai.calls) != 0 {
		t.Fatalf("terminal task must not be analyzed, got calls %v", ai.calls)
	}

	record, _ := f.store.GetRawTaskData(ctx, msg.TaskID)
	if record.Status != tasks.StatusCancelled {
		t.Fatalf("terminal status must survive, got %s", record.Status)
	}
}

func TestExecuteMissingTaskIsNoop(t *testing.T) {
	f := newRunnerFixture(testSource(), &fakeAnalyzer{})
	if err := f.runner.Execute(context.Background(), testMessage()); err != nil {
		t.Fatalf("missing task should be a no-op, got %v", err)
	}
}

func TestExecuteAbortsOnCancelledContext(t *testing.T) {
	ctx := context.Background()
	f := newRunnerFixture(testSource(), &fakeAnalyzer{})
	msg := testMessage()

	if _, err := f.store.CreateTask(ctx, msg.TaskID, msg.RepoURL, msg.PRNumber, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Simulate the cancel endpoint landing just before execution starts.
	if err := f.store.UpdateStatus(ctx, msg.TaskID, tasks.StatusProcessing, ""); err != nil {
		t.Fatalf("update: %v", err)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	cancel()
	if err := f.runner.Execute(jobCtx, msg); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	record, _ := f.store.GetRawTaskData(ctx, msg.TaskID)
	if record.Status == tasks.StatusFailed || record.Status == tasks.StatusCompleted {
		t.Fatalf("abort must not write a terminal status, got %s", record.Status)
	}
}

func TestExecuteDegradesPerFileFailures(t *testing.T) {
	ctx := context.Background()
	ai := &fakeAnalyzer{
		failFor: map[string]error{"internal/retry/retry.go": errors.New("model timeout")},
		responses: map[string]string{
			"docs/retry.md": `{"issues":[{"type":"style","line":1,"description":"typo","suggestion":"fix it","severity":"low"}]}`,
		},
	}
	f := newRunnerFixture(testSource(), ai)
	msg := testMessage()

	if _, err := f.store.CreateTask(ctx, msg.TaskID, msg.RepoURL, msg.PRNumber, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.runner.Execute(ctx, msg); err != nil {
		t.Fatalf("execute: %v", err)
	}

	resp, err := f.store.GetResults(ctx, msg.TaskID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if resp.Status != tasks.StatusCompleted {
		t.Fatalf("task should complete despite a bad file, got %s", resp.Status)
	}
	if resp.Results.Summary.TotalFiles != 2 || resp.Results.Summary.TotalIssues != 1 {
		t.Fatalf("unexpected summary %+v", resp.Results.Summary)
	}
	for _, file := range resp.Results.Files {
		if file.Path == "internal/retry/retry.go" && len(file.Issues) != 0 {
			t.Fatalf("failed file should carry an empty analysis, got %+v", file)
		}
	}
}

func TestExecuteSkipsRemovedAndEmptyFiles(t *testing.T) {
	ctx := context.Background()
	ai := &fakeAnalyzer{}
	source := testSource()
	source.diffs = []githubpr.FileDiff{
		{Filename: "gone.go", Status: "removed", Language: "go"},
		{Filename: "empty.go", Status: "modified", Language: "go"},
	}
	f := newRunnerFixture(source, ai)
	msg := testMessage()

	if _, err := f.store.CreateTask(ctx, msg.TaskID, msg.RepoURL, msg.PRNumber, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.runner.Execute(ctx, msg); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(ai.calls) != 0 {
		t.Fatalf("nothing reviewable should reach the analyzer, got %v", ai.calls)
	}
}

func TestExecuteUsesFileCache(t *testing.T) {
	ctx := context.Background()
	ai := &fakeAnalyzer{responses: map[string]string{
		"internal/retry/retry.go": `{"issues":[]}`,
		"docs/retry.md":           `{"issues":[]}`,
	}}
	f := newRunnerFixture(testSource(), ai)

	first := testMessage()
	if _, err := f.store.CreateTask(ctx, first.TaskID, first.RepoURL, first.PRNumber, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.runner.Execute(ctx, first); err != nil {
		t.Fatalf("execute: %v", err)
	}
	callsAfterFirst := len(ai.calls)
	if callsAfterFirst != 2 {
		t.Fatalf("expected 2 analyzer calls, got %d", callsAfterFirst)
	}

	// A forced re-run of the same PR at the same head hits the per-file cache.
	second := first
	second.TaskID = "t2"
	f.seedPendingTask(t, ctx, second)
	if err := f.runner.Execute(ctx, second); err != nil {
		t.Fatalf("execute second: %v", err)
	}
	if len(ai.calls) != callsAfterFirst {
		t.Fatalf("second run should be served from cache, got %d extra calls", len(ai.calls)-callsAfterFirst)
	}
}

// seedPendingTask creates a pending record under a repo URL variant so the
// analysis-cache short-circuit in CreateTask does not fire.
func (f *runnerFixture) seedPendingTask(t *testing.T, ctx context.Context, msg queue.Message) {
	t.Helper()
	if _, err := f.store.CreateTask(ctx, msg.TaskID, msg.RepoURL+"?fresh", msg.PRNumber, ""); err != nil {
		t.Fatalf("seed create: %v", err)
	}
}
