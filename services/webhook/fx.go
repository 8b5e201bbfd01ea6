package webhook

import (
	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"

	"storekit-keyplane/pkg/accesscontrol"
	"storekit-keyplane/pkg/config"
	"storekit-keyplane/pkg/eventbus"
	"storekit-keyplane/pkg/middleware"
)

// Module is the admin-facing endpoint management surface.
var Module = fx.Module("webhook.service",
	fx.Provide(
		NewService,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

// Worker wires the fan-out and delivery handlers into the asynq mux.
var Worker = fx.Module("webhook.worker",
	fx.Provide(
		NewService,
		NewDispatcher,
	),
	fx.Invoke(registerTaskHandlers),
)

func registerTaskHandlers(mux *asynq.ServeMux, dispatcher *Dispatcher) {
	mux.HandleFunc(eventbus.TypeEventFanout, dispatcher.HandleFanout)
	mux.HandleFunc(TypeEventDeliver, dispatcher.HandleDeliver)
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

	endpoints := p.Engine.Group("/v1/webhook-endpoints", authn)
	{
		endpoints.POST("", accesscontrol.Authorize(p.Enforcer, "webhook-endpoints", "create"), p.Handler.Create)
		endpoints.GET("", accesscontrol.Authorize(p.Enforcer, "webhook-endpoints", "list"), p.Handler.List)
		endpoints.GET("/:id", accesscontrol.Authorize(p.Enforcer, "webhook-endpoints", "read"), p.Handler.Get)
		endpoints.PATCH("/:id", accesscontrol.Authorize(p.Enforcer, "webhook-endpoints", "update"), p.Handler.Update)
		endpoints.DELETE("/:id", accesscontrol.Authorize(p.Enforcer, "webhook-endpoints", "delete"), p.Handler.Delete)
	}
}
