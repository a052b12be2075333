package transport

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ds124wfegd/WB_L3/parking/internal/service"
	"github.com/ds124wfegd/WB_L3/parking/pkg/queue"
	"github.com/gin-gonic/gin"
)

// FailedNotifications lists notification tasks that ran out of retries.
type FailedNotifications interface {
	GetFailedTasks(ctx context.Context, limit int) ([]*queue.FailedTask, error)
}

// AdminHandler serves the back office: tickets, staff, history and the
// notification dead letters.
type AdminHandler struct {
	tickets service.TicketService
	staff   service.StaffService
	history service.HistoryService
	failed  FailedNotifications
}

// NewAdminHandler accepts a nil failed lister when no queue is configured.
func NewAdminHandler(tickets service.TicketService, staff service.StaffService, history service.HistoryService, failed FailedNotifications) *AdminHandler {
	return &AdminHandler{tickets: tickets, staff: staff, history: history, failed: failed}
}

type createTicketsRequest struct {
	Codes []string `json:"codes"`
}

func (h *AdminHandler) CreateTickets(c *gin.Context) {
	var req createTicketsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	tickets, err := h.tickets.CreateTickets(c.Request.Context(), req.Codes)
	if err != nil {
		respondError(c, err, 0)
		return
	}
	ok(c, http.StatusCreated, "Tickets created", tickets)
}

func (h *AdminHandler) GetTickets(c *gin.Context) {
	tickets, err := h.tickets.GetAllTickets(c.Request.Context())
	if err != nil {
		respondError(c, err, 0)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data:    tickets,
		Meta:    map[string]interface{}{"total": len(tickets)},
	})
}

func (h *AdminHandler) CreateStaff(c *gin.Context) {
	var req service.CreateStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	created, err := h.staff.CreateStaff(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, 0)
		return
	}
	ok(c, http.StatusCreated, "Staff member created", created)
}

func (h *AdminHandler) GetStaff(c *gin.Context) {
	staff, err := h.staff.GetAllStaff(c.Request.Context())
	if err != nil {
		respondError(c, err, 0)
		return
	}
	ok(c, http.StatusOK, "", staff)
}

func (h *AdminHandler) UpdateStaff(c *gin.Context) {
	var req service.UpdateStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	staff, err := h.staff.UpdateStaff(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		// занятый email отдается как 400
		respondError(c, err, http.StatusBadRequest)
		return
	}
	ok(c, http.StatusOK, "Staff member updated", staff)
}

func (h *AdminHandler) DeleteStaff(c *gin.Context) {
	if err := h.staff.DeleteStaff(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, 0)
		return
	}
	ok(c, http.StatusOK, "Staff member deleted", nil)
}

// GetRecentHistory отдает последние записи истории, limit по умолчанию 50
func (h *AdminHandler) GetRecentHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := h.history.GetRecent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err, 0)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data:    entries,
		Meta:    map[string]interface{}{"total": len(entries)},
	})
}

func (h *AdminHandler) GetHistory(c *gin.Context) {
	entry, err := h.history.GetHistory(c.Request.Context(), c.Param("vehicleId"))
	if err != nil {
		respondError(c, err, 0)
		return
	}
	ok(c, http.StatusOK, "", entry)
}

func (h *AdminHandler) HistorySummary(c *gin.Context) {
	summary, err := h.history.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err, 0)
		return
	}
	ok(c, http.StatusOK, "", summary)
}

func (h *AdminHandler) FailedNotifications(c *gin.Context) {
	if h.failed == nil {
		c.JSON(http.StatusOK, SuccessResponse{
			Success: true,
			Data:    []*queue.FailedTask{},
			Meta:    map[string]interface{}{"queue": "disabled"},
		})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	tasks, err := h.failed.GetFailedTasks(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err, 0)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data:    tasks,
		Meta:    map[string]interface{}{"total": len(tasks)},
	})
}
