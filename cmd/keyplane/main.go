package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"storekit-keyplane/pkg/accesscontrol"
	"storekit-keyplane/pkg/config"
	"storekit-keyplane/pkg/db"
	"storekit-keyplane/pkg/eventbus"
	"storekit-keyplane/pkg/gen"
	"storekit-keyplane/pkg/hashistack/secretmanager"
	"storekit-keyplane/pkg/hashistack/servicediscover"
	"storekit-keyplane/pkg/health"
	"storekit-keyplane/pkg/httpapi"
	"storekit-keyplane/pkg/logger"
	"storekit-keyplane/pkg/otelcol"
	"storekit-keyplane/pkg/profiling"
	"storekit-keyplane/pkg/redis"
	"storekit-keyplane/pkg/server"
	"storekit-keyplane/services/publishablekey"
	"storekit-keyplane/services/webhook"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		gen.Module,
		otelcol.Module,
		health.Module,
		accesscontrol.Module,
		profiling.Module,
		servicediscover.Module,
		eventbus.Module,
		httpapi.Module,
		publishablekey.Module,
		webhook.Module,
		server.ProvideHTTPServer,
		server.ProvideGRPCServer,
		fx.Invoke(db.Otel, db.Metric),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
