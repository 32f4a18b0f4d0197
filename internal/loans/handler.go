package loans

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"smart-library-backend/internal/platform/apperr"
)

type Handler struct{ svc *Service }

// RegisterRoutes mounts the coordinator surface. The /loans/stats/books
// and /loans/stats/users endpoints are the aggregation contract the book
// and user services consume for their rankings.
func RegisterRoutes(r gin.IRoutes, svc *Service, requireAuth gin.HandlerFunc) {
	h := &Handler{svc: svc}

	r.POST("/loans", requireAuth, h.Issue)
	r.POST("/loans/:id/return", requireAuth, h.Return)
	r.POST("/loans/:id/extend", requireAuth, h.Extend)
	r.GET("/loans/user/:user_id", h.ByUser)
	r.GET("/loans/active", h.Active)
	r.GET("/loans/overdue", h.Overdue)
	r.GET("/loans/stats", h.Stats)
	r.GET("/loans/stats/books", h.BookCounts)
	r.GET("/loans/stats/users", h.UserCounts)
	r.GET("/stats/overview", h.Overview)
}

func (h *Handler) Issue(c *gin.Context) {
	var req IssueLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.ToPayload(apperr.ErrInvalid("invalid json or missing required fields")))
		return
	}
	res, err := h.svc.IssueLoan(c.Request.Context(), req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Return(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	res, err := h.svc.ReturnBook(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Extend(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req ExtendLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.ToPayload(apperr.ErrInvalid("invalid json")))
		return
	}
	res, err := h.svc.ExtendLoan(c.Request.Context(), id, req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ByUser(c *gin.Context) {
	id, ok := paramID(c, "user_id")
	if !ok {
		return
	}
	res, err := h.svc.GetUserLoans(c.Request.Context(), id)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Active(c *gin.Context) {
	var bookID int64
	if raw := c.Query("book_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, apperr.ToPayload(apperr.ErrInvalid("book_id must be a positive integer")))
			return
		}
		bookID = id
	}
	res, err := h.svc.GetActiveLoans(c.Request.Context(), bookID)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Overdue(c *gin.Context) {
	res, err := h.svc.GetOverdueLoans(c.Request.Context())
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Stats(c *gin.Context) {
	res, err := h.svc.LoanStats(c.Request.Context())
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) BookCounts(c *gin.Context) {
	ids, ok := queryIDs(c)
	if !ok {
		return
	}
	counts, err := h.svc.CountBorrowed(c.Request.Context(), ids)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	out := make(map[string]int64, len(counts))
	for id, n := range counts {
		out[strconv.FormatInt(id, 10)] = n
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) UserCounts(c *gin.Context) {
	ids, ok := queryIDs(c)
	if !ok {
		return
	}
	totals, active, err := h.svc.CountBorrowedByUser(c.Request.Context(), ids)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.ToPayload(err))
		return
	}
	out := make(map[string]UserBorrowStats, len(totals))
	for id, total := range totals {
		out[strconv.FormatInt(id, 10)] = UserBorrowStats{
			BooksBorrowed:  total,
			CurrentBorrows: active[id],
		}
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Overview(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.GetSystemOverview(c.Request.Context()))
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, apperr.ToPayload(apperr.ErrInvalid(name+" must be a positive integer")))
		return 0, false
	}
	return id, true
}

func queryIDs(c *gin.Context) ([]int64, bool) {
	raw := strings.TrimSpace(c.Query("ids"))
	if raw == "" {
		return nil, true
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, apperr.ToPayload(apperr.ErrInvalid("ids must be comma-separated positive integers")))
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}
