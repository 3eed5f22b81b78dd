package tasks

import "time"

// Task statuses. pending and processing are transient; the rest are terminal.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// SchemaVersion tags persisted task records so malformed or legacy payloads can
// be detected and skipped instead of misread.
const SchemaVersion = 1

// RecordTTL is the retention window for task and result records. Every write
// refreshes it.
const RecordTTL = 24 * time.Hour

// Task is the persisted record for one unit of PR-analysis work.
type Task struct {
	SchemaVersion int    `json:"schema_version"`
	TaskID        string `json:"task_id"`
	Status        string `json:"status"`
	RepoURL       string `json:"repo_url"`
	PRNumber      int    `json:"pr_number"`
	// GitHubToken is carried for retrigger; it is never logged.
	GitHubToken  string `json:"github_token,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
	CompletedAt  string `json:"completed_at,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// IsTerminal reports whether the status admits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsValidStatus reports whether status names a known state.
func IsValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ProgressFor maps a status to its coarse progress percentage.
func ProgressFor(status string) float64 {
	switch status {
	case StatusProcessing:
		return 50
	case StatusCompleted:
		return 100
	default:
		return 0
	}
}

// MessageFor maps a status to its human-readable description.
func MessageFor(status string) string {
	switch status {
	case StatusPending:
		return "Task is queued for processing"
	case StatusProcessing:
		return "Analyzing pull request..."
	case StatusCompleted:
		return "Analysis completed successfully"
	case StatusFailed:
		return "Analysis failed"
	case StatusCancelled:
		return "Task was cancelled"
	default:
		return "Unknown status"
	}
}

// StatusSnapshot is the response shape for status polls.
type StatusSnapshot struct {
	TaskID    string  `json:"task_id"`
	Status    string  `json:"status"`
	Progress  float64 `json:"progress"`
	Message   string  `json:"message"`
	CreatedAt string  `json:"created_at"`
}

// TaskResponse is the response shape for result retrieval and task creation.
type TaskResponse struct {
	TaskID       string           `json:"task_id"`
	Status       string           `json:"status"`
	Results      *AnalysisResults `json:"results,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    string           `json:"created_at,omitempty"`
	CompletedAt  string           `json:"completed_at,omitempty"`
}
