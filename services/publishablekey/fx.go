package publishablekey

import (
	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"storekit-keyplane/pkg/accesscontrol"
	"storekit-keyplane/pkg/config"
	"storekit-keyplane/pkg/middleware"
)

var Module = fx.Module("publishablekey.service",
	fx.Provide(
		provideValidityCache,
		NewService,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

func provideValidityCache(rdb *redis.Client, cfg *config.Config) *ValidityCache {
	return NewValidityCache(rdb, cfg.Cache.ValidityTTL)
}

type routeParams struct {
	fx.In

	Engine   *gin.Engine
	Handler  *Handler
	Config   *config.Config
	Enforcer *casbin.Enforcer `optional:"true"`
}

func registerRoutes(p routeParams) {
	authn := middleware.BearerAuth(p.Config.Session.Secret)

	keys := p.Engine.Group("/v1/publishable-api-keys", authn)
	{
		keys.POST("", accesscontrol.Authorize(p.Enforcer, "publishable-api-keys", "create"), p.Handler.Create)
		keys.GET("", accesscontrol.Authorize(p.Enforcer, "publishable-api-keys", "list"), p.Handler.List)
		keys.GET("/:id", accesscontrol.Authorize(p.Enforcer, "publishable-api-keys", "read"), p.Handler.Get)
		keys.POST("/:id/revoke", accesscontrol.Authorize(p.Enforcer, "publishable-api-keys", "revoke"), p.Handler.Revoke)
		keys.GET("/:id/validity", accesscontrol.Authorize(p.Enforcer, "publishable-api-keys", "read"), p.Handler.Validity)
	}

	storefront := p.Engine.Group("/v1/storefront", middleware.PublishableKey())
	{
		storefront.GET("/validate", p.Handler.StorefrontValidate)
	}
}
