package router

import (
	"github.com/cuongbtq/jobledger/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// Options tune the router
type Options struct {
	AllowedOrigins []string
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware(opts.AllowedOrigins))

	r.GET("/health", handler.Health(deps))

	jobHandler := handler.NewJobHandler(deps)
	creditHandler := handler.NewCreditHandler(deps)

	v1 := r.Group("/api/v1", RequireUser())
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/:job_id", jobHandler.GetJob)
			jobs.GET("/:job_id/artifact", jobHandler.DownloadArtifact)
		}

		v1.GET("/credits", creditHandler.GetBalance)
	}

	return r
}
