package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"storekit-keyplane/pkg/config"
	"storekit-keyplane/pkg/db"
	"storekit-keyplane/pkg/eventbus"
	"storekit-keyplane/pkg/featureflags"
	"storekit-keyplane/pkg/gen"
	"storekit-keyplane/pkg/logger"
	"storekit-keyplane/pkg/task"
	"storekit-keyplane/services/webhook"
)

// The worker drains the event outbox and performs webhook deliveries. It
// holds no HTTP surface; scale it independently of the API replicas.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		featureflags.Module,
		task.Client,
		task.Server,
		eventbus.RelayModule,
		webhook.Worker,
		fxLogger,
	)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
