package users

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"smart-library-backend/internal/platform/apperr"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service, requireAuth gin.HandlerFunc) {
	h := &Handler{svc: svc}

	r.POST("/users", requireAuth, h.Create)
	r.GET("/users/:id", h.Get)
	r.PUT("/users/:id", requireAuth, h.Update)
	r.GET("/users/:id/exists", h.Exists)
	r.GET("/users/stats", h.Stats)
	r.GET("/users/active", h.MostActive)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.ToPayload(apperr.ErrInvalid("invalid json or missing required fields")))
		return
	}
	res, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	res, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.ToPayload(apperr.ErrInvalid("invalid json")))
		return
	}
	res, err := h.svc.Update(c.Request.Context(), id, req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Exists(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	exists, err := h.svc.Exists(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

func (h *Handler) Stats(c *gin.Context) {
	res, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) MostActive(c *gin.Context) {
	res, err := h.svc.MostActiveUsers(c.Request.Context())
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, apperr.ToPayload(apperr.ErrInvalid("id must be a positive integer")))
		return 0, false
	}
	return id, true
}
