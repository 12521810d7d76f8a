package dto

import (
	"encoding/json"
	"time"

	"github.com/ccarella/pmai-jobs/internal/queue"
)

// CreateJobRequest is the body of POST /api/v1/jobs. GeneratedContent is
// optional: when absent the worker enriches Prompt before publishing.
type CreateJobRequest struct {
	Title            string `json:"title" binding:"required"`
	Prompt           string `json:"prompt" binding:"required"`
	Repository       string `json:"repository" binding:"required"`
	GeneratedContent string `json:"generatedContent"`
	MaxRetries       int    `json:"max_retries"`
}

// CreateJobResponse returns the full record of the job that was enqueued.
type CreateJobResponse struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	RetryCount int       `json:"retry_count"`
	MaxRetries int       `json:"max_retries"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// JobStatusDTO is the polling view of a job. It exposes only status and
// outcome fields, never the internal payload.
type JobStatusDTO struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// NewCreateJobResponse builds the create response from a job record.
func NewCreateJobResponse(job *queue.Job) CreateJobResponse {
	return CreateJobResponse{
		ID:         job.ID,
		OwnerID:    job.OwnerID,
		Kind:       job.Kind,
		Status:     job.Status,
		RetryCount: job.RetryCount,
		MaxRetries: job.MaxRetries,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}
}

// NewJobStatusDTO builds the polling view from a job record.
func NewJobStatusDTO(job *queue.Job) JobStatusDTO {
	return JobStatusDTO{
		ID:          job.ID,
		Status:      job.Status,
		Result:      job.Result,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		CompletedAt: job.CompletedAt,
	}
}

// ListJobsResponse is the body of GET /api/v1/jobs.
type ListJobsResponse struct {
	Jobs []JobStatusDTO `json:"jobs"`
}

// WaitJobResponse is the body of GET /api/v1/jobs/:job_id/wait. TimedOut is
// true when the server-side watch gave up while the job was still running;
// that is not a failure and the client may keep polling.
type WaitJobResponse struct {
	Job      JobStatusDTO `json:"job"`
	TimedOut bool         `json:"timed_out"`
}
