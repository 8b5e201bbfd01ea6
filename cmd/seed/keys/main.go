package main

import (
	"context"
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"storekit-keyplane/pkg/config"
	"storekit-keyplane/pkg/db"
	"storekit-keyplane/pkg/db/pagination"
	"storekit-keyplane/pkg/eventbus"
	"storekit-keyplane/pkg/gen"
	"storekit-keyplane/pkg/logger"
	"storekit-keyplane/services/publishablekey"
	"storekit-keyplane/services/webhook"
)

// Seeds one publishable key and one webhook endpoint for local stacks.
// Running it twice changes nothing.
const (
	seedActor       = "seed"
	seedKeyTitle    = "Local development key"
	seedEndpointURL = "http://localhost:9400/hooks"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		eventbus.Module,
		fx.Invoke(runSeed),
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

func runSeed(lc fx.Lifecycle, shutdowner fx.Shutdowner, conn *gorm.DB, node *snowflake.Node, emitter eventbus.Emitter, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := seed(context.Background(), conn, node, emitter, cfg); err != nil {
					zap.L().Error("seed failed", zap.Error(err))
					_ = shutdowner.Shutdown(fx.ExitCode(1))
					return
				}
				_ = shutdowner.Shutdown()
			}()
			return nil
		},
	})
}

func seed(ctx context.Context, conn *gorm.DB, node *snowflake.Node, emitter eventbus.Emitter, cfg *config.Config) error {
	if err := conn.AutoMigrate(
		&publishablekey.PublishableKey{},
		&webhook.Endpoint{},
		&eventbus.Event{},
	); err != nil {
		return err
	}

	if err := seedKey(ctx, publishablekey.NewService(conn, node, emitter, nil)); err != nil {
		return err
	}

	return seedEndpoint(ctx, webhook.NewService(conn, node, cfg))
}

func seedKey(ctx context.Context, svc *publishablekey.Service) error {
	existing, _, err := svc.List(ctx, publishablekey.ListFilter{CreatedBy: seedActor}, pagination.Pagination{Limit: 1})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		zap.L().Info("publishable key already seeded", zap.String("key_id", existing[0].ID))
		return nil
	}

	key, err := svc.Create(ctx, seedActor, publishablekey.CreateKeyRequest{Title: seedKeyTitle})
	if err != nil {
		return err
	}

	zap.L().Info("publishable key seeded",
		zap.String("key_id", key.ID),
		zap.String("token", key.Token),
	)
	return nil
}

func seedEndpoint(ctx context.Context, svc *webhook.Service) error {
	endpoints, _, err := svc.List(ctx, pagination.Pagination{Limit: pagination.MaxLimit})
	if err != nil {
		return err
	}
	for _, endpoint := range endpoints {
		if endpoint.URL == seedEndpointURL {
			zap.L().Info("webhook endpoint already seeded", zap.String("endpoint_id", endpoint.ID))
			return nil
		}
	}

	created, err := svc.Create(ctx, webhook.CreateEndpointRequest{
		URL:         seedEndpointURL,
		Description: "Local development receiver",
	})
	if err != nil {
		return err
	}

	// the signing secret is only ever printed here
	zap.L().Info("webhook endpoint seeded",
		zap.String("endpoint_id", created.ID),
		zap.String("secret", created.Secret),
	)
	return nil
}
