package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
)

// HeaderPublishableKey is the header storefront clients present their
// publishable key token in on every request.
const HeaderPublishableKey = "x-publishable-api-key"

type publishableKeyCtx struct{}

// PublishableKey lifts the publishable key token off the request header
// onto the request context for handlers downstream.
func PublishableKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := c.GetHeader(HeaderPublishableKey); token != "" {
			ctx := context.WithValue(c.Request.Context(), publishableKeyCtx{}, token)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// PublishableKeyFromContext returns the token captured by PublishableKey.
func PublishableKeyFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(publishableKeyCtx{}).(string)
	return token, ok && token != ""
}
