package books

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"smart-library-backend/internal/platform/apperr"
)

type Handler struct{ svc *Service }

// RegisterRoutes mounts the book-store surface. requireAuth guards the
// librarian-facing catalog mutations, requireAdmin additionally gates
// deletes; the reserve/release/re-reserve endpoints are the ledger
// contract consumed by the loan service.
func RegisterRoutes(r gin.IRoutes, svc *Service, requireAuth, requireAdmin gin.HandlerFunc) {
	h := &Handler{svc: svc}

	r.POST("/books", requireAuth, h.Create)
	r.GET("/books/:id", h.Get)
	r.PUT("/books/:id", requireAuth, h.Update)
	r.DELETE("/books/:id", requireAuth, requireAdmin, h.Delete)
	r.POST("/books/:id/copies", requireAuth, h.AddCopies)
	r.GET("/books/search", h.Search)
	r.GET("/books/stats", h.Stats)
	r.GET("/books/popular", h.Popular)

	r.POST("/books/:id/reserve", h.Reserve)
	r.POST("/books/:id/release", h.Release)
	r.POST("/books/:id/re-reserve", h.ReReserve)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateBookRequest
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
	var req UpdateBookRequest
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

func (h *Handler) Delete(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (h *Handler) AddCopies(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req AddCopiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.ToPayload(apperr.ErrInvalid("invalid json")))
		return
	}
	res, err := h.svc.AddCopies(c.Request.Context(), id, req.Count)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Search(c *gin.Context) {
	res, err := h.svc.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Stats(c *gin.Context) {
	res, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Popular(c *gin.Context) {
	res, err := h.svc.PopularBooks(c.Request.Context())
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Reserve(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	res, err := h.svc.Reserve(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Release(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.ToPayload(apperr.ErrInvalid("invalid json")))
		return
	}
	if err := h.svc.Release(c.Request.Context(), id, req.Token); err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "released"})
}

func (h *Handler) ReReserve(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req ReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.ToPayload(apperr.ErrInvalid("invalid json")))
		return
	}
	if err := h.svc.ReReserve(c.Request.Context(), id, req.Token); err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "re-reserved"})
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, apperr.ToPayload(apperr.ErrInvalid("id must be a positive integer")))
		return 0, false
	}
	return id, true
}
