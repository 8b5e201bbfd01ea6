package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"storekit-keyplane/pkg/errutil"
)

type actorCtx struct{}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errutil.BaseError{
		Code:    errutil.StatusUnauthorized,
		Message: msg,
	})
}

// BearerAuth validates the HS256 bearer token on admin routes and stores
// the token subject as the acting user. Key mutations record it as
// created_by / revoked_by.
func BearerAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw := strings.TrimPrefix(header, "Bearer ")
		if raw == "" || raw == header {
			abortUnauthorized(c, "missing bearer token")
			return
		}

		tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
		if err != nil {
			abortUnauthorized(c, "malformed token")
			return
		}

		var claims jwt.Claims
		if err := tok.Claims([]byte(secret), &claims); err != nil {
			abortUnauthorized(c, "invalid token signature")
			return
		}

		if err := claims.Validate(jwt.Expected{Time: time.Now()}); err != nil {
			abortUnauthorized(c, "token expired")
			return
		}

		if claims.Subject == "" {
			abortUnauthorized(c, "token missing subject")
			return
		}

		ctx := context.WithValue(c.Request.Context(), actorCtx{}, claims.Subject)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ActorFromContext returns the authenticated subject BearerAuth stored.
func ActorFromContext(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(actorCtx{}).(string)
	return actor, ok && actor != ""
}
