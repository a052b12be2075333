package transport

import (
	"net/http"

	"github.com/ds124wfegd/WB_L3/parking/internal/service"
	"github.com/gin-gonic/gin"
)

type LifecycleHandler struct {
	lifecycle service.LifecycleService
}

func NewLifecycleHandler(lifecycle service.LifecycleService) *LifecycleHandler {
	return &LifecycleHandler{lifecycle: lifecycle}
}

type confirmParkingRequest struct {
	TicketCode string `json:"ticketCode"`
}

type validatePaymentRequest struct {
	PaymentID string `json:"paymentId"`
}

type quickExitRequest struct {
	Justification string `json:"justification"`
}

func (h *LifecycleHandler) RegisterVehicle(c *gin.Context) {
	var req service.RegisterVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	vehicle, err := h.lifecycle.RegisterVehicle(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}

	ok(c, http.StatusOK, "Vehicle registered", vehicle)
}

func (h *LifecycleHandler) ActiveVehicles(c *gin.Context) {
	vehicles, err := h.lifecycle.ActiveVehicles(c.Request.Context())
	if err != nil {
		respondError(c, err, 0)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Data:    vehicles,
		Meta:    map[string]interface{}{"total": len(vehicles)},
	})
}

// UpdateVehicle правит данные автомобиля; статус через этот маршрут не меняется
func (h *LifecycleHandler) UpdateVehicle(c *gin.Context) {
	var req service.UpdateVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	vehicle, err := h.lifecycle.UpdateVehicle(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err, 0)
		return
	}

	ok(c, http.StatusOK, "Vehicle updated", vehicle)
}

func (h *LifecycleHandler) ConfirmParking(c *gin.Context) {
	var req confirmParkingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.lifecycle.ConfirmParking(c.Request.Context(), req.TicketCode)
	if err != nil {
		respondError(c, err, http.StatusNotFound)
		return
	}

	ok(c, http.StatusOK, "Parking confirmed", res)
}

// SubmitPayment is the only lifecycle call open to customers.
func (h *LifecycleHandler) SubmitPayment(c *gin.Context) {
	var req service.SubmitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.lifecycle.SubmitPayment(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, 0)
		return
	}

	ok(c, http.StatusOK, "Payment submitted", res)
}

func (h *LifecycleHandler) ValidatePayment(c *gin.Context) {
	var req validatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.lifecycle.ValidatePayment(c.Request.Context(), req.PaymentID)
	if err != nil {
		respondError(c, err, 0)
		return
	}

	msg := "Payment validated"
	if res.AlreadyValidated {
		msg = "Payment was already validated"
	}
	ok(c, http.StatusOK, msg, res)
}

func (h *LifecycleHandler) Exit(c *gin.Context) {
	res, err := h.lifecycle.Exit(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, 0)
		return
	}

	ok(c, http.StatusOK, "Vehicle exited", res)
}

func (h *LifecycleHandler) QuickExit(c *gin.Context) {
	var req quickExitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.lifecycle.QuickExit(c.Request.Context(), c.Param("id"), req.Justification)
	if err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}

	ok(c, http.StatusOK, "Quick exit processed", res)
}
