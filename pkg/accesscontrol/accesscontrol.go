package accesscontrol

import (
	"net/http"

	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"storekit-keyplane/pkg/config"
	"storekit-keyplane/pkg/errutil"
	"storekit-keyplane/pkg/middleware"
)

var Module = fx.Module("accesscontrol", fx.Provide(ProvideEnforcer))

// ProvideEnforcer loads the casbin model and policy files named in config.
// When unset the enforcer is nil and Authorize admits every authenticated
// actor, which keeps local setups usable without a policy file.
func ProvideEnforcer(cfg *config.Config) (*casbin.Enforcer, error) {
	if cfg.AccessControl.Model == "" || cfg.AccessControl.Policy == "" {
		zap.L().Warn("[AccessControl] model/policy not configured, authorization disabled")
		return nil, nil
	}

	enforcer, err := casbin.NewEnforcer(cfg.AccessControl.Model, cfg.AccessControl.Policy)
	if err != nil {
		zap.L().Error("[AccessControl] failed to load enforcer", zap.Error(err))
		return nil, err
	}

	zap.L().Info("[AccessControl] enforcer loaded",
		zap.String("model", cfg.AccessControl.Model),
		zap.String("policy", cfg.AccessControl.Policy),
	)

	return enforcer, nil
}

// Authorize checks the acting subject against the policy for an object and
// action, e.g. Authorize(e, "publishable-api-keys", "revoke").
func Authorize(enforcer *casbin.Enforcer, object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if enforcer == nil {
			c.Next()
			return
		}

		actor, ok := middleware.ActorFromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errutil.BaseError{
				Code:    errutil.StatusUnauthorized,
				Message: "missing actor",
			})
			return
		}

		allowed, err := enforcer.Enforce(actor, object, action)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, errutil.BaseError{
				Code:    errutil.StatusInternal,
				Message: "authorization check failed",
			})
			return
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, errutil.BaseError{
				Code:    errutil.StatusForbidden,
				Message: "not permitted",
			})
			return
		}

		c.Next()
	}
}
