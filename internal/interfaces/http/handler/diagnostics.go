package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	appautomation "github.com/pricecycle/backend/internal/application/automation"
	"github.com/pricecycle/backend/internal/domain/integration"
	"github.com/pricecycle/backend/internal/interfaces/http/dto"
	"github.com/pricecycle/backend/internal/interfaces/http/middleware"
)

// DiagnosticsService exposes read-mostly checks against the platform
type DiagnosticsService interface {
	CheckConnection(ctx context.Context) *appautomation.ConnectionReport
	PreviewProducts(ctx context.Context, limit int) ([]appautomation.ProductPreview, error)
	PreviewProduct(ctx context.Context, productID string) (*appautomation.ProductPreview, error)
	PreviewOrders(ctx context.Context, limit int) ([]integration.Order, error)
	PreviewAwaitingShipment(ctx context.Context) (*appautomation.AwaitingShipmentPreview, error)
	TestPriceChange(ctx context.Context, productID string, price int64) (*appautomation.PriceChangeResult, error)
}

// DiagnosticsHandler serves the operator's platform checks
type DiagnosticsHandler struct {
	BaseHandler
	service DiagnosticsService
}

// NewDiagnosticsHandler creates a DiagnosticsHandler
func NewDiagnosticsHandler(service DiagnosticsService) *DiagnosticsHandler {
	return &DiagnosticsHandler{service: service}
}

// Connection handles POST /diagnostics/connection. A failed check is a
// successful call reporting ok=false.
func (h *DiagnosticsHandler) Connection(c *gin.Context) {
	h.Success(c, dto.NewConnectionResponse(h.service.CheckConnection(c.Request.Context())))
}

// Products handles GET /diagnostics/products?limit=
func (h *DiagnosticsHandler) Products(c *gin.Context) {
	var query dto.LimitQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	products, err := h.service.PreviewProducts(c.Request.Context(), query.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, products)
}

// Product handles GET /diagnostics/products/:id
func (h *DiagnosticsHandler) Product(c *gin.Context) {
	preview, err := h.service.PreviewProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, preview)
}

// Orders handles GET /diagnostics/orders?limit=
func (h *DiagnosticsHandler) Orders(c *gin.Context) {
	var query dto.LimitQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	orders, err := h.service.PreviewOrders(c.Request.Context(), query.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, orders)
}

// AwaitingShipment handles GET /diagnostics/awaiting-shipment
func (h *DiagnosticsHandler) AwaitingShipment(c *gin.Context) {
	preview, err := h.service.PreviewAwaitingShipment(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, preview)
}

// PriceChange handles POST /diagnostics/price-change. It changes a live price;
// the caller is expected to set it back.
func (h *DiagnosticsHandler) PriceChange(c *gin.Context) {
	var req dto.PriceChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.service.TestPriceChange(c.Request.Context(), req.ProductID, req.Price)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
