package queue

import (
	"encoding/json"
	"time"
)

// Job status constants
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job kind constants
const (
	KindCreateAndPublishIssue = "create-and-publish-issue"
)

// Job represents one unit of deferred work and its outcome. Payload and
// Result are opaque JSON; the queue never inspects them.
type Job struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Kind        string          `json:"kind"`
	Status      string          `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	RetryCount  int             `json:"retry_count"`
	MaxRetries  int             `json:"max_retries"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the job has reached a terminal status.
// Terminal jobs receive no further worker action; a retry starts a new cycle.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// IssuePayload is the input for a create-and-publish-issue job.
type IssuePayload struct {
	Title            string `json:"title"`
	Prompt           string `json:"prompt"`
	Repository       string `json:"repository"`
	GeneratedContent string `json:"generatedContent,omitempty"`
}

// IssueResult is the outcome of a completed create-and-publish-issue job.
type IssueResult struct {
	IssueURL    string `json:"issueUrl"`
	IssueNumber int    `json:"issueNumber"`
	Repository  string `json:"repository"`
	Title       string `json:"title"`
}
