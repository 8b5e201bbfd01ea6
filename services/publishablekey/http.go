package publishablekey

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storekit-keyplane/pkg/db/pagination"
	"storekit-keyplane/pkg/errutil"
	"storekit-keyplane/pkg/middleware"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateKeyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(errutil.BadRequest("invalid request body", err))
			return
		}
	}

	actor, ok := middleware.ActorFromContext(c.Request.Context())
	if !ok {
		c.Error(errutil.Unauthorized("missing actor", nil))
		return
	}

	key, err := h.svc.Create(c.Request.Context(), actor, req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, key)
}

func (h *Handler) Get(c *gin.Context) {
	key, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, key)
}

func (h *Handler) List(c *gin.Context) {
	var filter ListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.Error(errutil.BadRequest("invalid filter", err))
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(errutil.BadRequest("invalid pagination", err))
		return
	}

	keys, pageInfo, err := h.svc.List(c.Request.Context(), filter, page)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   keys,
		"count":  pageInfo.Count,
		"limit":  pageInfo.Limit,
		"offset": pageInfo.Offset,
	})
}

func (h *Handler) Revoke(c *gin.Context) {
	actor, ok := middleware.ActorFromContext(c.Request.Context())
	if !ok {
		c.Error(errutil.Unauthorized("missing actor", nil))
		return
	}

	key, err := h.svc.Revoke(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, key)
}

func (h *Handler) Validity(c *gin.Context) {
	valid, err := h.svc.IsValid(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

// StorefrontValidate serves the unauthenticated storefront path: the key
// token arrives in the x-publishable-api-key header.
func (h *Handler) StorefrontValidate(c *gin.Context) {
	token, ok := middleware.PublishableKeyFromContext(c.Request.Context())
	if !ok {
		c.Error(errutil.BadRequest("missing "+middleware.HeaderPublishableKey+" header", nil))
		return
	}

	valid, err := h.svc.ValidateToken(c.Request.Context(), token)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": valid})
}
