package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"recon-review-gateway/internal/config"
	"recon-review-gateway/internal/controller"
	handler "recon-review-gateway/internal/handlers"
	"recon-review-gateway/internal/upstream"
)

func RegisterRoutes(r *gin.Engine, cfg config.Config) {
	log := config.GetLogger()

	var creds upstream.TokenProvider
	if cfg.UpstreamToken != "" {
		creds = upstream.StaticTokenProvider(cfg.UpstreamToken)
	} else {
		creds = upstream.NewPasswordTokenProvider(cfg.UpstreamBaseURL, cfg.UpstreamEmail, cfg.UpstreamPass)
	}

	client := upstream.NewClient(cfg.UpstreamBaseURL, creds, cfg.CacheTTL, log)
	// one controller session per request; only the client (and its cache)
	// is shared between concurrent clients
	newSession := func() *controller.Controller {
		return controller.New(client, nil, nil, cfg.DebounceWindow)
	}
	reviewHandler := handler.NewReviewHandler(newSession, client, log)

	r.Use(correlationID())

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Batch review routes
	batches := api.Group("/batches")
	batches.GET("", reviewHandler.ListBatches)
	batches.GET("/:batchId", reviewHandler.GetBatch)
	batches.GET("/:batchId/records", reviewHandler.ListRecords)
	batches.GET("/:batchId/stats", reviewHandler.GetBatchStats)
	batches.GET("/:batchId/export", reviewHandler.ExportIssues)
	batches.POST("/:batchId/retry", reviewHandler.RetryBatch)

	// Record-level routes
	records := api.Group("/records")
	records.POST("/:id/resolve", reviewHandler.ResolveRecord)
	records.POST("/:id/comment", reviewHandler.AddComment)

	// Upload routes
	recon := api.Group("/reconciliation")
	recon.POST("/upload", reviewHandler.Upload)

	// User/role/template administration is relayed to the backend opaquely
	api.Any("/admin/*path", reviewHandler.AdminProxy)
}

// correlationID tags every request so upstream calls and log lines can be
// tied together.
func correlationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Correlation-Id")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("correlationId", id)
		c.Writer.Header().Set("X-Correlation-Id", id)
		c.Next()
	}
}
