package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ccarella/pmai-jobs/internal/issues"
	"github.com/ccarella/pmai-jobs/internal/queue"
)

// Executor runs the kind-specific work of a job and returns its result.
type Executor interface {
	Execute(ctx context.Context, job *queue.Job) (json.RawMessage, error)
}

// IssueCreator publishes an issue on the source-hosting platform.
type IssueCreator interface {
	CreateIssue(ctx context.Context, repository, title, body string) (*issues.Issue, error)
}

// Enricher expands a raw prompt into issue-ready markdown.
type Enricher interface {
	Enrich(ctx context.Context, prompt string) (string, error)
}

// IssueExecutor handles create-and-publish-issue jobs: it enriches the
// prompt when no pre-generated content is supplied, publishes the issue, and
// reports where it landed.
type IssueExecutor struct {
	creator  IssueCreator
	enricher Enricher // optional
	logger   *slog.Logger
}

// NewIssueExecutor creates the executor. enricher may be nil, in which case
// the raw prompt is published as the issue body.
func NewIssueExecutor(creator IssueCreator, enricher Enricher, logger *slog.Logger) *IssueExecutor {
	return &IssueExecutor{
		creator:  creator,
		enricher: enricher,
		logger:   logger,
	}
}

// Execute publishes the issue described by the job payload.
func (e *IssueExecutor) Execute(ctx context.Context, job *queue.Job) (json.RawMessage, error) {
	var payload queue.IssuePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid job payload: %w", err)
	}

	if payload.Title == "" || payload.Repository == "" {
		return nil, fmt.Errorf("job payload missing title or repository")
	}

	body := payload.GeneratedContent
	if body == "" && e.enricher != nil && payload.Prompt != "" {
		enriched, err := e.enricher.Enrich(ctx, payload.Prompt)
		if err != nil {
			// Enrichment is best-effort: publish the raw prompt instead.
			e.logger.Warn("Enrichment failed, falling back to raw prompt",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		} else {
			body = enriched
		}
	}
	if body == "" {
		body = payload.Prompt
	}

	issue, err := e.creator.CreateIssue(ctx, payload.Repository, payload.Title, body)
	if err != nil {
		return nil, fmt.Errorf("failed to publish issue: %w", err)
	}

	result, err := json.Marshal(queue.IssueResult{
		IssueURL:    issue.URL,
		IssueNumber: issue.Number,
		Repository:  payload.Repository,
		Title:       payload.Title,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode job result: %w", err)
	}

	return result, nil
}
