package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ccarella/pmai-jobs/internal/api/dto"
	"github.com/ccarella/pmai-jobs/internal/poller"
	"github.com/ccarella/pmai-jobs/internal/queue"
)

// ownerHeader carries the authenticated user id, injected upstream by the
// auth proxy.
const ownerHeader = "X-User-ID"

// CreateJob handles POST /api/v1/jobs
// Enqueues a create-and-publish-issue job and returns the full record.
func (h *JobHandler) CreateJob(c *gin.Context) {
	ownerID := c.GetHeader(ownerHeader)
	if ownerID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "missing " + ownerHeader + " header",
		})
		return
	}

	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	payload, err := json.Marshal(queue.IssuePayload{
		Title:            req.Title,
		Prompt:           req.Prompt,
		Repository:       req.Repository,
		GeneratedContent: req.GeneratedContent,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	job, err := h.queue.CreateJob(c.Request.Context(), ownerID, queue.KindCreateAndPublishIssue, payload, req.MaxRetries)
	if err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	h.nudgeWorker(c.Request.Context(), job.ID)

	c.JSON(http.StatusCreated, dto.NewCreateJobResponse(job))
}

// GetJob handles GET /api/v1/jobs/:job_id
// Returns the polling view of a job: status plus result or error.
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.queue.GetJob(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	}

	c.JSON(http.StatusOK, dto.NewJobStatusDTO(job))
}

// WaitJob handles GET /api/v1/jobs/:job_id/wait
// Watches the job server-side until it settles or the wait cap elapses.
// A timed-out watch is reported distinctly from a failed job.
func (h *JobHandler) WaitJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.queue.GetJob(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	}

	watcher := poller.New(h.queue, h.logger, poller.Options{
		Interval: h.waitInterval,
		Timeout:  h.waitTimeout,
	})

	res, err := watcher.Watch(c.Request.Context(), jobID)
	if err != nil {
		// Client went away mid-watch.
		c.Status(http.StatusNoContent)
		return
	}

	current, err := h.queue.GetJob(c.Request.Context(), jobID)
	if err != nil || current == nil {
		current = job
	}

	c.JSON(http.StatusOK, dto.WaitJobResponse{
		Job:      dto.NewJobStatusDTO(current),
		TimedOut: res.Outcome == poller.OutcomeTimedOut,
	})
}

// RetryJob handles POST /api/v1/jobs/:job_id/retry
// Re-enqueues a failed job if retry budget remains.
func (h *JobHandler) RetryJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.queue.RetryJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}

		h.logger.Error("Failed to retry job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retry job",
		})
		return
	}

	if job.Status == queue.JobStatusPending {
		h.nudgeWorker(c.Request.Context(), job.ID)
	}

	c.JSON(http.StatusOK, dto.NewJobStatusDTO(job))
}

// ListUserJobs handles GET /api/v1/jobs
// Returns the caller's recent jobs, most-recent-first.
func (h *JobHandler) ListUserJobs(c *gin.Context) {
	ownerID := c.GetHeader(ownerHeader)
	if ownerID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "missing " + ownerHeader + " header",
		})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		limit = parsed
	}

	jobs, err := h.queue.GetUserJobs(c.Request.Context(), ownerID, limit)
	if err != nil {
		h.logger.Error("Failed to list user jobs",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	views := make([]dto.JobStatusDTO, len(jobs))
	for i, job := range jobs {
		views[i] = dto.NewJobStatusDTO(job)
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{Jobs: views})
}
