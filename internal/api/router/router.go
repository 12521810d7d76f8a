package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ccarella/pmai-jobs/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "job-api-service",
		})
	})

	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Enqueue a create-and-publish-issue job
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs - List the caller's recent jobs
			jobs.GET("", jobHandler.ListUserJobs)

			// GET /api/v1/jobs/:job_id - Poll job status
			jobs.GET("/:job_id", jobHandler.GetJob)

			// GET /api/v1/jobs/:job_id/wait - Watch a job until it settles
			jobs.GET("/:job_id/wait", jobHandler.WaitJob)

			// POST /api/v1/jobs/:job_id/retry - Re-enqueue a failed job
			jobs.POST("/:job_id/retry", jobHandler.RetryJob)
		}
	}

	return r
}
