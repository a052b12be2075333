package transport

import (
	"errors"
	"net/http"

	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SuccessResponse представляет успешный ответ
type SuccessResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
}

const reasonInvalidBody = "invalid_body"

func ok(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, SuccessResponse{Success: true, Message: message, Data: data})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Success: false,
		Error:   "Invalid request body: " + err.Error(),
		Reason:  reasonInvalidBody,
	})
}

// respondError maps the error taxonomy to a status code. conflictStatus
// replaces 409 for endpoints that report conflicts differently; 0 keeps 409.
func respondError(c *gin.Context, err error, conflictStatus int) {
	status := statusOf(err, conflictStatus)
	msg := err.Error()

	if status == http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}).WithError(err).Error("Request failed with internal error")
		msg = "internal server error"
	}
	_ = c.Error(err)

	c.JSON(status, ErrorResponse{Success: false, Error: msg, Reason: entity.ReasonOf(err)})
}

func statusOf(err error, conflictStatus int) int {
	switch entity.KindOf(err) {
	case entity.KindValidation:
		return http.StatusBadRequest
	case entity.KindNotFound:
		return http.StatusNotFound
	case entity.KindConflict:
		// несуществующий талон всегда 404, даже если движок считает это конфликтом
		if errors.Is(err, entity.ErrTicketNotFound) {
			return http.StatusNotFound
		}
		if conflictStatus != 0 {
			return conflictStatus
		}
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
