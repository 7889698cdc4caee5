package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/rollup-backend/internal/http/handlers"
	httpMW "github.com/yungbote/rollup-backend/internal/http/middleware"
	"github.com/yungbote/rollup-backend/internal/observability"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	CORSOrigins    []string
	Metrics        *observability.Metrics
	AuthMiddleware *httpMW.AuthMiddleware

	RollupHandler *httpH.RollupHandler
	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	auth := cfg.AuthMiddleware
	if auth == nil {
		auth = httpMW.NewAuthMiddleware(logger.NewNop(), "")
	}

	rollups := r.Group("/api/rollups/:source_type")
	if cfg.RollupHandler != nil {
		rollups.POST("/run", auth.RequireScope(httpMW.ScopeRun), cfg.RollupHandler.Run)
		rollups.GET("/records", auth.RequireScope(httpMW.ScopeRead), cfg.RollupHandler.ListRecords)
		rollups.GET("/export", auth.RequireScope(httpMW.ScopeRead), cfg.RollupHandler.Export)
	}

	return r
}
