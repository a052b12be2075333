package transport

import (
	"net/http"

	"github.com/ds124wfegd/WB_L3/parking/internal/service"
	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	settings service.SettingsService
}

func NewSettingsHandler(settings service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) Get(c *gin.Context) {
	settings, err := h.settings.GetSettings(c.Request.Context())
	if err != nil {
		respondError(c, err, 0)
		return
	}
	ok(c, http.StatusOK, "", settings)
}

// Update сохраняет только переданные разделы настроек
func (h *SettingsHandler) Update(c *gin.Context) {
	var req service.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	settings, err := h.settings.UpdateSettings(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, 0)
		return
	}
	ok(c, http.StatusOK, "Settings updated", settings)
}
