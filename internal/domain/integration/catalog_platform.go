package integration

import (
	"context"
	"errors"
	"time"
)

// ---------------------------------------------------------------------------
// CatalogPlatform Errors
// ---------------------------------------------------------------------------

var (
	ErrPlatformNotConfigured   = errors.New("integration: platform not configured")
	ErrPlatformUnavailable     = errors.New("integration: platform temporarily unavailable")
	ErrPlatformRequestFailed   = errors.New("integration: platform request failed")
	ErrPlatformInvalidResponse = errors.New("integration: invalid platform response")
	ErrPlatformUnauthorized    = errors.New("integration: platform authentication failed")
	ErrPlatformQuery           = errors.New("integration: platform query returned errors")
	ErrProductNotFound         = errors.New("integration: product not found")
	ErrInvalidPriceUpdate      = errors.New("integration: invalid price update")
)

// ---------------------------------------------------------------------------
// Catalog value objects
// ---------------------------------------------------------------------------

// Product is a catalog listing as reported by the platform.
type Product struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Price  int64  `json:"price"` // smallest currency unit
	Status string `json:"status"`
}

// Order is the minimal order view used for new-order counting.
type Order struct {
	ID       string    `json:"id"`
	Status   string    `json:"status"`
	OpenedAt time.Time `json:"opened_at"`
}

// OrderProduct references a product inside an order. Some backends return the
// identifier directly, others only under a nested product object.
type OrderProduct struct {
	ProductID       string `json:"product_id,omitempty"`
	NestedProductID string `json:"nested_product_id,omitempty"`
}

// ID returns the referenced product identifier, preferring the direct field.
func (p OrderProduct) ID() string {
	if p.ProductID != "" {
		return p.ProductID
	}
	return p.NestedProductID
}

// AwaitingOrder is an open order that has not been shipped yet.
type AwaitingOrder struct {
	ID       string         `json:"id"`
	Status   string         `json:"status"`
	Products []OrderProduct `json:"products"`
}

// PriceUpdate requests a new price for one product.
type PriceUpdate struct {
	ProductID string `json:"product_id"`
	Price     int64  `json:"price"`
}

// Validate checks the update before it is sent to the platform
func (u PriceUpdate) Validate() error {
	if u.ProductID == "" || u.Price <= 0 {
		return ErrInvalidPriceUpdate
	}
	return nil
}

// PriceUpdateResult reports the outcome for one product of a batch.
type PriceUpdateResult struct {
	ProductID string
	Err       error
}

// OK reports whether the update was applied
func (r PriceUpdateResult) OK() bool {
	return r.Err == nil
}

// Page is one cursor-delimited slice of a listing.
type Page[T any] struct {
	Items      []T
	NextCursor string
	HasNext    bool
}

// ---------------------------------------------------------------------------
// CatalogPlatform Port (Ports & Adapters)
// ---------------------------------------------------------------------------

// CatalogPlatform is the port the automation core uses to talk to the remote
// storefront. Listings are page based; drain them through a Paginator.
type CatalogPlatform interface {
	// Name identifies the adapter in logs and status output
	Name() string

	// TestConnection verifies credentials and reachability
	TestConnection(ctx context.Context) error

	// ListProducts returns one page of the catalog starting at cursor ("" = first page)
	ListProducts(ctx context.Context, cursor string) (*Page[Product], error)

	// ListOrders returns one page of all orders regardless of status
	ListOrders(ctx context.Context, cursor string) (*Page[Order], error)

	// ListOrdersAwaitingShipment returns one page of orders waiting for shipment
	ListOrdersAwaitingShipment(ctx context.Context, cursor string) (*Page[AwaitingOrder], error)

	// GetProduct returns a single product or ErrProductNotFound
	GetProduct(ctx context.Context, productID string) (*Product, error)

	// UpdateProductPrices applies a batch of price changes and reports per-item
	// results. A non-nil error means the whole batch failed before any result
	// could be attributed to an item.
	UpdateProductPrices(ctx context.Context, batch []PriceUpdate) ([]PriceUpdateResult, error)

	// SupportsBatchUpdate reports whether the backend has a true batch mutation.
	// Backends without one emulate batches with sequential calls.
	SupportsBatchUpdate() bool
}

// ListAllProducts drains every product page.
func ListAllProducts(ctx context.Context, p CatalogPlatform) ([]Product, error) {
	return NewPaginator(p.ListProducts, "").Drain(ctx)
}

// ListAllOrders drains every order page.
func ListAllOrders(ctx context.Context, p CatalogPlatform) ([]Order, error) {
	return NewPaginator(p.ListOrders, "").Drain(ctx)
}

// ListAllAwaitingShipment drains every awaiting-shipment page.
func ListAllAwaitingShipment(ctx context.Context, p CatalogPlatform) ([]AwaitingOrder, error) {
	return NewPaginator(p.ListOrdersAwaitingShipment, "").Drain(ctx)
}
