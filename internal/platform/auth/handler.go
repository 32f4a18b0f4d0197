package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-library-backend/internal/platform/apperr"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/auth/login", h.Login)
	r.POST("/auth/register", h.Register)
}

type LoginRequest struct {
	ID       string `json:"id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.ToPayload(apperr.ErrInvalid("id and password are required")))
		return
	}

	token, err := h.svc.Login(c.Request.Context(), req.ID, req.Password)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

type RegisterRequest struct {
	ID       string  `json:"id" binding:"required"`
	Password string  `json:"password" binding:"required"`
	Role     *string `json:"role,omitempty"` // defaults to librarian
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.ToPayload(apperr.ErrInvalid("id and password are required")))
		return
	}

	role := "librarian"
	if req.Role != nil && *req.Role != "" {
		role = *req.Role
	}

	if err := h.svc.Register(c.Request.Context(), req.ID, req.Password, role); err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "registered"})
}
