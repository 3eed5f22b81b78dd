package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"prreview-backend/internal/cache"
	"prreview-backend/internal/kvstore"
	"prreview-backend/internal/shared/metrics"
	"prreview-backend/internal/shared/telemetry"
)

const (
	taskKeyPrefix    = "task:"
	resultsKeyPrefix = "results:"
)

// Store owns task and result records in the shared key-value store. Tasks are
// last-write-wins: no compare-and-swap guards concurrent administrative writes,
// and a cancel racing a worker completion may lose. Each task normally has a
// single writer, so this is tolerated.
type Store struct {
	kv    kvstore.Store
	cache *cache.Manager
}

// NewStore constructs a Store over the shared key-value store and cache.
func NewStore(kv kvstore.Store, cacheMgr *cache.Manager) *Store {
	return &Store{kv: kv, cache: cacheMgr}
}

func taskKey(taskID string) string    { return taskKeyPrefix + taskID }
func resultsKey(taskID string) string { return resultsKeyPrefix + taskID }

func nowStamp() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// CheckCachedResult looks up a previously computed analysis for the PR.
func (s *Store) CheckCachedResult(ctx context.Context, repoURL string, prNumber int) (*AnalysisResults, bool) {
	raw, ok := s.cache.GetPRAnalysis(ctx, repoURL, prNumber)
	if !ok {
		metrics.IncCacheMiss()
		return nil, false
	}
	var results AnalysisResults
	if err := json.Unmarshal(raw, &results); err != nil {
		telemetry.Error("task.cached_result_decode_failed", map[string]any{
			"repo_url":  repoURL,
			"pr_number": prNumber,
			"error":     err.Error(),
		})
		metrics.IncCacheMiss()
		return nil, false
	}
	metrics.IncCacheHit()
	return &results, true
}

// CreateTask persists a new task record, consulting the analysis cache first.
// On a cache hit the task is born completed, the cached payload becomes its
// result record, and the payload is returned; otherwise a pending record is
// written and nil is returned so the caller knows to dispatch work.
//
// The check-then-create sequence is not atomic across concurrent identical
// requests; duplicate tasks for the same PR each run independently.
func (s *Store) CreateTask(ctx context.Context, taskID, repoURL string, prNumber int, githubToken string) (*AnalysisResults, error) {
	now := nowStamp()
	task := Task{
		SchemaVersion: SchemaVersion,
		TaskID:        taskID,
		Status:        StatusPending,
		RepoURL:       repoURL,
		PRNumber:      prNumber,
		GitHubToken:   githubToken,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if cached, ok := s.CheckCachedResult(ctx, repoURL, prNumber); ok {
		task.Status = StatusCompleted
		task.CompletedAt = now
		if err := s.writeTask(ctx, task); err != nil {
			return nil, err
		}
		if err := s.StoreResults(ctx, taskID, *cached); err != nil {
			return nil, err
		}
		telemetry.Info("task.completed_from_cache", map[string]any{
			"task_id":   taskID,
			"repo_url":  repoURL,
			"pr_number": prNumber,
		})
		metrics.IncTaskCreated()
		return cached, nil
	}

	if err := s.writeTask(ctx, task); err != nil {
		return nil, err
	}
	telemetry.Info("task.created", map[string]any{
		"task_id":   taskID,
		"repo_url":  repoURL,
		"pr_number": prNumber,
	})
	metrics.IncTaskCreated()
	return nil, nil
}

// UpdateStatus applies a status transition to an existing record. A missing
// record (e.g. expired) is logged and ignored. updated_at is stamped on every
// call, completed_at only when transitioning to completed, and the error
// message only when provided. The write refreshes the 24h retention window.
func (s *Store) UpdateStatus(ctx context.Context, taskID, status, errorMessage string) error {
	task, err := s.readTask(ctx, taskID)
	if err != nil {
		if err == ErrNotFound {
			telemetry.Error("task.status_update_missing", map[string]any{
				"task_id":    taskID,
				"new_status": status,
			})
			return nil
		}
		return err
	}

	oldStatus := task.Status
	task.Status = status
	task.UpdatedAt = nowStamp()
	if status == StatusCompleted {
		task.CompletedAt = task.UpdatedAt
	}
	if errorMessage != "" {
		task.ErrorMessage = errorMessage
	}

	if err := s.writeTask(ctx, task); err != nil {
		return err
	}
	telemetry.Info("task.status_updated", map[string]any{
		"task_id":    taskID,
		"old_status": oldStatus,
		"new_status": status,
	})
	switch status {
	case StatusCompleted:
		metrics.IncTaskCompleted()
	case StatusFailed:
		metrics.IncTaskFailed()
	case StatusCancelled:
		metrics.IncTaskCancelled()
	}
	return nil
}

// GetStatus returns the status snapshot for the task, or ErrNotFound.
func (s *Store) GetStatus(ctx context.Context, taskID string) (StatusSnapshot, error) {
	task, err := s.readTask(ctx, taskID)
	if err != nil {
		return StatusSnapshot{}, err
	}
	return StatusSnapshot{
		TaskID:    taskID,
		Status:    task.Status,
		Progress:  ProgressFor(task.Status),
		Message:   MessageFor(task.Status),
		CreatedAt: task.CreatedAt,
	}, nil
}

// StoreResults writes the result record for the task. A primary-write failure
// is a hard error; populating the analysis cache for future requests is
// best-effort.
func (s *Store) StoreResults(ctx context.Context, taskID string, results AnalysisResults) error {
	encoded, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode results %s: %w", taskID, err)
	}
	if err := s.kv.Set(ctx, resultsKey(taskID), string(encoded), RecordTTL); err != nil {
		return fmt.Errorf("store results %s: %w", taskID, err)
	}
	telemetry.Info("task.results_stored", map[string]any{
		"task_id":    taskID,
		"size_bytes": len(encoded),
	})

	// Populate the analysis cache so identical future requests short-circuit.
	task, err := s.readTask(ctx, taskID)
	if err != nil {
		telemetry.Error("task.results_cache_skipped", map[string]any{
			"task_id": taskID,
			"error":   err.Error(),
		})
		return nil
	}
	if task.RepoURL != "" && task.PRNumber > 0 {
		s.cache.PutPRAnalysis(ctx, task.RepoURL, task.PRNumber, encoded, cache.PRAnalysisTTL)
	}
	return nil
}

// GetResults returns the full task response. Results are only read when the
// task has completed.
func (s *Store) GetResults(ctx context.Context, taskID string) (TaskResponse, error) {
	task, err := s.readTask(ctx, taskID)
	if err != nil {
		return TaskResponse{}, err
	}

	resp := TaskResponse{
		TaskID:       taskID,
		Status:       task.Status,
		ErrorMessage: task.ErrorMessage,
		CreatedAt:    task.CreatedAt,
		CompletedAt:  task.CompletedAt,
	}
	if task.Status == StatusCompleted {
		raw, err := s.kv.Get(ctx, resultsKey(taskID))
		if err == nil {
			var results AnalysisResults
			if err := json.Unmarshal([]byte(raw), &results); err != nil {
				return TaskResponse{}, fmt.Errorf("decode results %s: %w", taskID, err)
			}
			resp.Results = &results
		} else if err != kvstore.ErrNotFound {
			return TaskResponse{}, err
		}
	}
	return resp, nil
}

// GetRawTaskData returns the stored task record, used by retrigger to clone
// parameters.
func (s *Store) GetRawTaskData(ctx context.Context, taskID string) (Task, error) {
	return s.readTask(ctx, taskID)
}

// ListTasks scans all task records, skipping corrupt entries, optionally
// filters by status, and returns up to limit tasks newest-first.
func (s *Store) ListTasks(ctx context.Context, statusFilter string, limit int) ([]Task, error) {
	keys, err := s.kv.Keys(ctx, taskKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("scan tasks: %w", err)
	}

	tasks := make([]Task, 0, len(keys))
	for _, key := range keys {
		raw, err := s.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		var task Task
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			telemetry.Error("task.list_skipping_invalid", map[string]any{"task_key": key, "error": err.Error()})
			continue
		}
		if statusFilter != "" && task.Status != statusFilter {
			continue
		}
		if task.TaskID == "" {
			task.TaskID = strings.TrimPrefix(key, taskKeyPrefix)
		}
		task.GitHubToken = ""
		tasks = append(tasks, task)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return parseStamp(tasks[i].CreatedAt).After(parseStamp(tasks[j].CreatedAt))
	})
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

// StuckTask identifies one record force-failed by the cleanup sweep.
type StuckTask struct {
	TaskID    string `json:"task_id"`
	CreatedAt string `json:"created_at"`
	RepoURL   string `json:"repo_url"`
	PRNumber  int    `json:"pr_number"`
}

// CleanupReport summarizes a stuck-task sweep.
type CleanupReport struct {
	CheckedCount int         `json:"checked_count"`
	CleanedCount int         `json:"cleaned_count"`
	MaxAgeHours  int         `json:"max_age_hours"`
	CutoffTime   string      `json:"cutoff_time"`
	StuckTasks   []StuckTask `json:"stuck_tasks"`
}

// CleanupStuck force-fails every task that has sat in processing since before
// now - maxAgeHours. Corrupt records are skipped.
func (s *Store) CleanupStuck(ctx context.Context, maxAgeHours int) (CleanupReport, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(maxAgeHours) * time.Hour)
	report := CleanupReport{
		MaxAgeHours: maxAgeHours,
		CutoffTime:  cutoff.Format(time.RFC3339Nano),
		StuckTasks:  []StuckTask{},
	}

	keys, err := s.kv.Keys(ctx, taskKeyPrefix)
	if err != nil {
		return report, fmt.Errorf("scan tasks: %w", err)
	}

	for _, key := range keys {
		raw, err := s.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		var task Task
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			telemetry.Error("task.cleanup_skipping_invalid", map[string]any{"task_key": key, "error": err.Error()})
			continue
		}
		report.CheckedCount++

		createdAt := parseStamp(task.CreatedAt)
		if task.Status != StatusProcessing || createdAt.IsZero() || !createdAt.Before(cutoff) {
			continue
		}

		taskID := task.TaskID
		if taskID == "" {
			taskID = strings.TrimPrefix(key, taskKeyPrefix)
		}
		msg := fmt.Sprintf("Task stuck in processing for more than %d hours", maxAgeHours)
		if err := s.UpdateStatus(ctx, taskID, StatusFailed, msg); err != nil {
			telemetry.Error("task.cleanup_update_failed", map[string]any{"task_id": taskID, "error": err.Error()})
			continue
		}
		report.StuckTasks = append(report.StuckTasks, StuckTask{
			TaskID:    taskID,
			CreatedAt: task.CreatedAt,
			RepoURL:   task.RepoURL,
			PRNumber:  task.PRNumber,
		})
		report.CleanedCount++
		telemetry.Info("task.cleaned_stuck", map[string]any{"task_id": taskID, "created_at": task.CreatedAt})
	}
	return report, nil
}

// Cache exposes the cache manager for handlers that delegate to it directly.
func (s *Store) Cache() *cache.Manager { return s.cache }

func (s *Store) readTask(ctx context.Context, taskID string) (Task, error) {
	raw, err := s.kv.Get(ctx, taskKey(taskID))
	if err != nil {
		if err == kvstore.ErrNotFound {
			return Task{}, ErrNotFound
		}
		return Task{}, err
	}
	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return Task{}, fmt.Errorf("decode task %s: %w", taskID, err)
	}
	return task, nil
}

func (s *Store) writeTask(ctx context.Context, task Task) error {
	encoded, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.TaskID, err)
	}
	if err := s.kv.Set(ctx, taskKey(task.TaskID), string(encoded), RecordTTL); err != nil {
		return fmt.Errorf("store task %s: %w", task.TaskID, err)
	}
	return nil
}

func parseStamp(raw string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}
