package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storekit-keyplane/pkg/errutil"
)

// Error maps errors attached by handlers onto their HTTP projection.
// Register it first so it runs after every handler in the chain.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err

		var base errutil.BaseError
		if errors.As(err, &base) {
			c.AbortWithStatusJSON(base.Code.HTTPStatus(), base)
			return
		}

		c.AbortWithStatusJSON(http.StatusInternalServerError, errutil.BaseError{
			Code:    errutil.StatusInternal,
			Message: "internal error",
		})
	}
}
