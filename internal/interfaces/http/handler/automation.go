package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	appautomation "github.com/pricecycle/backend/internal/application/automation"
	"github.com/pricecycle/backend/internal/interfaces/http/dto"
)

// AutomationService is the run control surface used by AutomationHandler
type AutomationService interface {
	Start(ctx context.Context, input appautomation.StartRunInput) (*appautomation.RunStatus, error)
	Stop(ctx context.Context) (*appautomation.RunStatus, error)
	Status(ctx context.Context) *appautomation.RunStatus
}

// AutomationHandler starts, stops and reports the price cycle run
type AutomationHandler struct {
	BaseHandler
	service AutomationService
}

// NewAutomationHandler creates an AutomationHandler
func NewAutomationHandler(service AutomationService) *AutomationHandler {
	return &AutomationHandler{service: service}
}

// Start handles POST /automation/start. The body is optional; omitted fields
// fall back to the configured run defaults.
func (h *AutomationHandler) Start(c *gin.Context) {
	var req dto.StartRunRequest
	if !h.BindJSON(c, &req) {
		return
	}

	status, err := h.service.Start(c.Request.Context(), req.ToInput())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewRunStatusResponse(status))
}

// Stop handles POST /automation/stop
func (h *AutomationHandler) Stop(c *gin.Context) {
	status, err := h.service.Stop(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewRunStatusResponse(status))
}

// Status handles GET /automation/status
func (h *AutomationHandler) Status(c *gin.Context) {
	h.Success(c, dto.NewRunStatusResponse(h.service.Status(c.Request.Context())))
}
