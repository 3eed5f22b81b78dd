package tasks

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"prreview-backend/internal/queue"
	"prreview-backend/internal/shared/server/middleware"
	"prreview-backend/internal/shared/server/respond"
	"prreview-backend/internal/shared/telemetry"
)

// Handler wires HTTP handlers to the task store and job queue.
type Handler struct {
	Store *Store
	Queue queue.Client

	// StuckMaxAgeHours is the default window for the stuck-task sweep when
	// the request does not override it.
	StuckMaxAgeHours int
}

// NewHandler constructs a Handler.
func NewHandler(store *Store, queueClient queue.Client) *Handler {
	return &Handler{Store: store, Queue: queueClient, StuckMaxAgeHours: 2}
}

// RegisterRoutes attaches task routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyze-pr", h.analyzePR)
	rg.GET("/status/:task_id", h.getStatus)
	rg.GET("/results/:task_id", h.getResults)
	rg.POST("/retrigger/:task_id", h.retrigger)
	rg.DELETE("/cancel/:task_id", h.cancel)
	rg.GET("/tasks", h.listTasks)
	rg.POST("/cleanup-stuck-tasks", h.cleanupStuck)
	rg.GET("/cache/stats", h.cacheStats)
	rg.DELETE("/cache/pr/:owner/:repo/:pr_number", h.invalidateCache)
}

type analyzePRRequest struct {
	RepoURL     string `json:"repo_url"`
	PRNumber    int    `json:"pr_number"`
	GitHubToken string `json:"github_token"`
}

func (h *Handler) analyzePR(c *gin.Context) {
	var req analyzePRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusUnprocessableEntity, "validation_error", "invalid request body", nil)
		return
	}
	if req.PRNumber <= 0 {
		respond.Error(c, http.StatusUnprocessableEntity, "validation_error", "pr_number must be a positive integer", nil)
		return
	}
	if parsed, err := url.ParseRequestURI(req.RepoURL); err != nil || parsed.Host == "" {
		respond.Error(c, http.StatusUnprocessableEntity, "validation_error", "repo_url must be a valid URL", nil)
		return
	}

	taskID := uuid.NewString()
	c.Set("taskId", taskID)
	telemetry.Info("api.analyze_pr", map[string]any{
		"task_id":   taskID,
		"repo_url":  req.RepoURL,
		"pr_number": req.PRNumber,
	})

	cached, err := h.Store.CreateTask(c.Request.Context(), taskID, req.RepoURL, req.PRNumber, req.GitHubToken)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "task_creation_failed", "Failed to create analysis task", nil)
		return
	}
	if cached != nil {
		respond.OK(c, TaskResponse{
			TaskID:  taskID,
			Status:  StatusCompleted,
			Results: cached,
		})
		return
	}

	msg := queue.Message{
		TaskID:      taskID,
		RepoURL:     req.RepoURL,
		PRNumber:    req.PRNumber,
		GitHubToken: req.GitHubToken,
		RequestID:   middleware.RequestIDFromContext(c),
		EnqueuedAt:  time.Now().UTC().Format(time.RFC3339Nano),
		Version:     1,
	}
	if err := h.Queue.Send(c.Request.Context(), msg); err != nil {
		telemetry.Error("api.dispatch_failed", map[string]any{
			"task_id": taskID,
			"error":   err.Error(),
		})
		respond.Error(c, http.StatusInternalServerError, "task_creation_failed", "Failed to create analysis task", nil)
		return
	}

	respond.OK(c, TaskResponse{TaskID: taskID, Status: StatusPending})
}

func (h *Handler) getStatus(c *gin.Context) {
	taskID := c.Param("task_id")
	c.Set("taskId", taskID)

	snapshot, err := h.Store.GetStatus(c.Request.Context(), taskID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "task_not_found", fmt.Sprintf("Task %s not found", taskID), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "status_check_failed", "Failed to check task status", nil)
		}
		return
	}
	respond.OK(c, snapshot)
}

func (h *Handler) getResults(c *gin.Context) {
	taskID := c.Param("task_id")
	c.Set("taskId", taskID)

	result, err := h.Store.GetResults(c.Request.Context(), taskID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "task_not_found", fmt.Sprintf("Task %s not found", taskID), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "results_retrieval_failed", "Failed to retrieve task results", nil)
		}
		return
	}
	if result.Status != StatusCompleted {
		respond.Error(c, http.StatusBadRequest, "task_not_completed",
			fmt.Sprintf("Task %s is not completed yet. Current status: %s", taskID, result.Status), nil)
		return
	}
	respond.OK(c, result)
}

func (h *Handler) retrigger(c *gin.Context) {
	taskID := c.Param("task_id")
	c.Set("taskId", taskID)

	original, err := h.Store.GetRawTaskData(c.Request.Context(), taskID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "task_not_found", fmt.Sprintf("Task %s not found", taskID), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "retrigger_failed", "Failed to retrigger task", nil)
		}
		return
	}
	if original.Status == StatusCompleted {
		respond.Error(c, http.StatusBadRequest, "task_already_completed",
			fmt.Sprintf("Task %s is already completed. Cannot retrigger.", taskID), nil)
		return
	}

	newTaskID := uuid.NewString()
	if _, err := h.Store.CreateTask(c.Request.Context(), newTaskID, original.RepoURL, original.PRNumber, original.GitHubToken); err != nil {
		respond.Error(c, http.StatusInternalServerError, "retrigger_failed", "Failed to retrigger task", nil)
		return
	}

	// The superseded task records where its work went.
	supersededMsg := fmt.Sprintf("Retriggered as task %s", newTaskID)
	if err := h.Store.UpdateStatus(c.Request.Context(), taskID, StatusCancelled, supersededMsg); err != nil {
		respond.Error(c, http.StatusInternalServerError, "retrigger_failed", "Failed to retrigger task", nil)
		return
	}
	h.Queue.Cancel(c.Request.Context(), taskID)

	msg := queue.Message{
		TaskID:      newTaskID,
		RepoURL:     original.RepoURL,
		PRNumber:    original.PRNumber,
		GitHubToken: original.GitHubToken,
		RequestID:   middleware.RequestIDFromContext(c),
		EnqueuedAt:  time.Now().UTC().Format(time.RFC3339Nano),
		Version:     1,
	}
	if err := h.Queue.Send(c.Request.Context(), msg); err != nil {
		telemetry.Error("api.dispatch_failed", map[string]any{
			"task_id": newTaskID,
			"error":   err.Error(),
		})
		respond.Error(c, http.StatusInternalServerError, "retrigger_failed", "Failed to retrigger task", nil)
		return
	}

	telemetry.Info("api.task_retriggered", map[string]any{
		"original_task_id": taskID,
		"new_task_id":      newTaskID,
	})
	respond.OK(c, TaskResponse{TaskID: newTaskID, Status: StatusPending})
}

func (h *Handler) cancel(c *gin.Context) {
	taskID := c.Param("task_id")
	c.Set("taskId", taskID)

	snapshot, err := h.Store.GetStatus(c.Request.Context(), taskID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "task_not_found", fmt.Sprintf("Task %s not found", taskID), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "cancel_failed", "Failed to cancel task", nil)
		}
		return
	}
	if IsTerminal(snapshot.Status) {
		respond.Error(c, http.StatusBadRequest, "task_not_cancellable",
			fmt.Sprintf("Task %s is in %s state and cannot be cancelled", taskID, snapshot.Status), nil)
		return
	}

	if err := h.Store.UpdateStatus(c.Request.Context(), taskID, StatusCancelled, "Task cancelled by user request"); err != nil {
		respond.Error(c, http.StatusInternalServerError, "cancel_failed", "Failed to cancel task", nil)
		return
	}
	h.Queue.Cancel(c.Request.Context(), taskID)

	respond.OK(c, gin.H{
		"message": fmt.Sprintf("Task %s has been cancelled", taskID),
		"task_id": taskID,
		"status":  StatusCancelled,
	})
}

func (h *Handler) listTasks(c *gin.Context) {
	statusFilter := c.Query("status")
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	list, err := h.Store.ListTasks(c.Request.Context(), statusFilter, limit)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "list_tasks_failed", "Failed to retrieve task list", nil)
		return
	}

	statusCounts := make(map[string]int)
	for _, task := range list {
		statusCounts[task.Status]++
	}

	respond.OK(c, gin.H{
		"tasks":         list,
		"total":         len(list),
		"status_filter": statusFilter,
		"status_counts": statusCounts,
		"limit":         limit,
	})
}

func (h *Handler) cleanupStuck(c *gin.Context) {
	maxAgeHours := h.StuckMaxAgeHours
	if maxAgeHours <= 0 {
		maxAgeHours = 2
	}
	if raw := c.Query("max_age_hours"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			maxAgeHours = parsed
		}
	}

	report, err := h.Store.CleanupStuck(c.Request.Context(), maxAgeHours)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "cleanup_failed", "Failed to cleanup stuck tasks", nil)
		return
	}
	respond.OK(c, report)
}

func (h *Handler) cacheStats(c *gin.Context) {
	stats := h.Store.Cache().Stats(c.Request.Context())
	respond.OK(c, gin.H{
		"status":      "success",
		"cache_stats": stats,
	})
}

func (h *Handler) invalidateCache(c *gin.Context) {
	owner := c.Param("owner")
	repo := c.Param("repo")
	prNumber, err := strconv.Atoi(c.Param("pr_number"))
	if err != nil || prNumber <= 0 {
		respond.Error(c, http.StatusUnprocessableEntity, "validation_error", "pr_number must be a positive integer", nil)
		return
	}

	repoURL := fmt.Sprintf("https://github.com/%s/%s", owner, repo)
	invalidated := h.Store.Cache().Invalidate(c.Request.Context(), repoURL, prNumber)

	message := fmt.Sprintf("Cache invalidated for PR #%d", prNumber)
	if !invalidated {
		message = fmt.Sprintf("No cache entries found for PR #%d", prNumber)
	}
	respond.OK(c, gin.H{
		"status":      "success",
		"repo_url":    repoURL,
		"pr_number":   prNumber,
		"invalidated": invalidated,
		"message":     message,
	})
}
