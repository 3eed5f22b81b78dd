package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prreview-backend/internal/analyzer"
	"prreview-backend/internal/cache"
	"prreview-backend/internal/githubpr"
	"prreview-backend/internal/queue"
	"prreview-backend/internal/shared/metrics"
	"prreview-backend/internal/shared/telemetry"
	"prreview-backend/internal/tasks"
)

// SourceFactory builds a PR data source for the token carried by a job.
// Jobs without a token get an unauthenticated source.
type SourceFactory func(token string) githubpr.Source

// Runner executes one analysis job end to end: marks the task processing,
// fetches PR data and diffs, reviews each changed file, assembles the
// summary, and stores the result.
type Runner struct {
	store    *tasks.Store
	cache    *cache.Manager
	analyzer analyzer.Client
	sources  SourceFactory
}

// NewRunner constructs a Runner. A nil sources factory defaults to real
// GitHub clients.
func NewRunner(store *tasks.Store, cacheMgr *cache.Manager, analyzerClient analyzer.Client, sources SourceFactory) *Runner {
	if sources == nil {
		sources = func(token string) githubpr.Source {
			return githubpr.NewClient(token)
		}
	}
	return &Runner{
		store:    store,
		cache:    cacheMgr,
		analyzer: analyzerClient,
		sources:  sources,
	}
}

// Execute runs the analysis for one job. Terminal tasks are skipped so a
// job that raced a cancel or a duplicate delivery is a no-op. A context
// cancellation aborts without touching the task record; the cancel endpoint
// already wrote the terminal status.
func (r *Runner) Execute(ctx context.Context, msg queue.Message) error {
	start := time.Now()

	record, err := r.store.GetRawTaskData(ctx, msg.TaskID)
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			telemetry.Info("worker.task_missing", map[string]any{"task_id": msg.TaskID})
			return nil
		}
		return err
	}
	if tasks.IsTerminal(record.Status) {
		telemetry.Info("worker.task_already_terminal", map[string]any{
			"task_id": msg.TaskID,
			"status":  record.Status,
		})
		return nil
	}

	if err := r.store.UpdateStatus(ctx, msg.TaskID, tasks.StatusProcessing, ""); err != nil {
		return err
	}

	results, err := r.analyze(ctx, msg)
	if err != nil {
		if ctx.Err() != nil {
			telemetry.Info("worker.task_aborted", map[string]any{"task_id": msg.TaskID})
			return ctx.Err()
		}
		failMsg := fmt.Sprintf("Analysis failed: %v", err)
		if updateErr := r.store.UpdateStatus(ctx, msg.TaskID, tasks.StatusFailed, failMsg); updateErr != nil {
			telemetry.Error("worker.fail_update_failed", map[string]any{
				"task_id": msg.TaskID,
				"error":   updateErr.Error(),
			})
		}
		return err
	}

	if err := ctx.Err(); err != nil {
		telemetry.Info("worker.task_aborted", map[string]any{"task_id": msg.TaskID})
		return err
	}
	if err := r.store.StoreResults(ctx, msg.TaskID, *results); err != nil {
		if updateErr := r.store.UpdateStatus(ctx, msg.TaskID, tasks.StatusFailed, fmt.Sprintf("Failed to store results: %v", err)); updateErr != nil {
			telemetry.Error("worker.fail_update_failed", map[string]any{
				"task_id": msg.TaskID,
				"error":   updateErr.Error(),
			})
		}
		return err
	}
	if err := r.store.UpdateStatus(ctx, msg.TaskID, tasks.StatusCompleted, ""); err != nil {
		return err
	}

	elapsed := time.Since(start)
	metrics.ObserveAnalysisDurationMs(float64(elapsed.Milliseconds()))
	telemetry.Info("worker.task_completed", map[string]any{
		"task_id":     msg.TaskID,
		"repo_url":    msg.RepoURL,
		"pr_number":   msg.PRNumber,
		"duration_ms": elapsed.Milliseconds(),
		"total_files": results.Summary.TotalFiles,
	})
	return nil
}

func (r *Runner) analyze(ctx context.Context, msg queue.Message) (*tasks.AnalysisResults, error) {
	fetcher := githubpr.NewFetcher(r.sources(msg.GitHubToken), r.cache)
	bundle, err := fetcher.Fetch(ctx, msg.RepoURL, msg.PRNumber)
	if err != nil {
		return nil, fmt.Errorf("fetch PR data: %w", err)
	}

	files := make([]tasks.FileAnalysis, 0, len(bundle.Diffs))
	for _, diff := range bundle.Diffs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files = append(files, r.analyzeFile(ctx, msg, bundle.PR.HeadSHA, diff))
	}

	results := &tasks.AnalysisResults{
		Files:   files,
		Summary: tasks.BuildSummary(files),
		Metadata: map[string]any{
			"repo_url":    msg.RepoURL,
			"pr_number":   msg.PRNumber,
			"pr_title":    bundle.PR.Title,
			"head_sha":    bundle.PR.HeadSHA,
			"analyzed_at": time.Now().UTC().Format(time.RFC3339),
		},
	}
	return results, nil
}

// analyzeFile reviews one diff, consulting the per-file cache first. Files
// that were removed or have nothing to review come back empty. Analyzer
// failures degrade to an empty analysis so one bad file does not fail the
// task.
func (r *Runner) analyzeFile(ctx context.Context, msg queue.Message, headSHA string, diff githubpr.FileDiff) tasks.FileAnalysis {
	input := analyzer.FileInput{
		Filename: diff.Filename,
		Language: diff.Language,
		Status:   diff.Status,
		Patch:    diff.Patch,
	}
	if diff.Content != nil {
		input.Content = *diff.Content
	}

	empty := analyzer.ParseFileAnalysis(nil, input)
	if diff.Status == "removed" || (diff.Patch == "" && input.Content == "") {
		return empty
	}

	key := cache.FileAnalysisKey(msg.RepoURL, msg.PRNumber, diff.Filename, headSHA)
	if r.cache != nil {
		var cached tasks.FileAnalysis
		if r.cache.Get(ctx, key, &cached) {
			return cached
		}
	}

	raw, err := r.analyzer.AnalyzeFile(ctx, input)
	if err != nil {
		telemetry.Error("worker.file_analysis_failed", map[string]any{
			"task_id":  msg.TaskID,
			"filename": diff.Filename,
			"error":    err.Error(),
		})
		return empty
	}

	result := analyzer.ParseFileAnalysis(raw, input)
	if r.cache != nil {
		r.cache.Put(ctx, key, result, 0)
	}
	return result
}
