package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/fx"

	"storekit-keyplane/pkg/config"
	"storekit-keyplane/pkg/health"
	"storekit-keyplane/pkg/middleware"
)

// Module builds the shared gin engine: recovery, error projection, health
// probes and the metrics endpoint. Services hang their own route groups
// off the engine in their fx invokes.
var Module = fx.Module("httpapi",
	fx.Provide(
		NewEngine,
		asHandler,
	),
	fx.Invoke(registerProbes),
)

func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), otelgin.Middleware(cfg.AppName), middleware.Error())
	return engine
}

func asHandler(engine *gin.Engine) http.Handler {
	return engine
}

func registerProbes(engine *gin.Engine, h health.HealthService) {
	engine.GET("/health/liveness", h.Liveness)
	engine.GET("/health/readiness", h.Readiness)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
