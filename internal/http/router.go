package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/Siencmd/darkbroad/internal/http/handlers"
	httpMW "github.com/Siencmd/darkbroad/internal/http/middleware"
	"github.com/Siencmd/darkbroad/internal/observability"
	"github.com/Siencmd/darkbroad/internal/pkg/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	Metrics     *observability.Metrics
	CORSOrigins []string

	SyncHandler     *httpH.SyncHandler
	RealtimeHandler *httpH.RealtimeHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.TraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
		}

		if h := cfg.SyncHandler; h != nil {
			api.GET("/status", h.GetStatus)
			api.POST("/session", h.StartSession)

			// Subject list
			api.GET("/subjects", h.ListSubjects)
			api.PUT("/subjects", h.ReplaceSubjects)
			api.POST("/subjects", h.AddSubject)
			api.DELETE("/subjects/:id", h.DeleteSubject)
			api.POST("/sync", h.SyncNow)
			api.POST("/seed", h.Seed)

			// Submissions
			api.POST("/submissions", h.Submit)
			api.POST("/grades", h.Grade)
			api.POST("/submission-counts", h.WatchSubmissionCounts)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "route not found", "code": "not_found"}})
	})
	return r
}
