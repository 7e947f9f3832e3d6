package automation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pricecycle/backend/internal/domain/automation"
	"github.com/pricecycle/backend/internal/domain/integration"
	"github.com/pricecycle/backend/internal/domain/shared"
)

const defaultPreviewLimit = 20

// CheckConnection tests the platform credentials. Failures are reported in
// the result, not as an error.
func (s *Service) CheckConnection(ctx context.Context) *ConnectionReport {
	started := s.now()
	err := s.platform.TestConnection(ctx)
	report := &ConnectionReport{
		Platform:      s.platform.Name(),
		OK:            err == nil,
		Latency:       s.now().Sub(started),
		SupportsBatch: s.platform.SupportsBatchUpdate(),
	}
	if err != nil {
		report.Error = err.Error()
	}
	return report
}

// PreviewProducts returns up to limit products with the price a run using
// the default discount would apply. Nothing is written.
func (s *Service) PreviewProducts(ctx context.Context, limit int) ([]ProductPreview, error) {
	products, err := firstN(ctx, integration.NewPaginator(s.platform.ListProducts, ""), limit)
	if err != nil {
		return nil, platformError(err)
	}

	previews := make([]ProductPreview, 0, len(products))
	for _, p := range products {
		price, kind := automation.CalculatePrice(p.Price, s.opts.Defaults.DiscountAmount)
		previews = append(previews, ProductPreview{Product: p, ProposedPrice: price, Adjustment: kind})
	}
	return previews, nil
}

// PreviewProduct fetches one product by id along with the price a run would
// give it.
func (s *Service) PreviewProduct(ctx context.Context, productID string) (*ProductPreview, error) {
	if productID == "" {
		return nil, shared.ErrInvalidInput.WithMessage("product id is required")
	}
	p, err := s.platform.GetProduct(ctx, productID)
	if err != nil {
		return nil, platformError(err)
	}
	price, kind := automation.CalculatePrice(p.Price, s.opts.Defaults.DiscountAmount)
	return &ProductPreview{Product: *p, ProposedPrice: price, Adjustment: kind}, nil
}

// PreviewOrders returns up to limit orders of any status
func (s *Service) PreviewOrders(ctx context.Context, limit int) ([]integration.Order, error) {
	orders, err := firstN(ctx, integration.NewPaginator(s.platform.ListOrders, ""), limit)
	if err != nil {
		return nil, platformError(err)
	}
	return orders, nil
}

// PreviewAwaitingShipment lists every unshipped order and the products a run
// started now would leave untouched.
func (s *Service) PreviewAwaitingShipment(ctx context.Context) (*AwaitingShipmentPreview, error) {
	orders, err := integration.ListAllAwaitingShipment(ctx, s.platform)
	if err != nil {
		return nil, platformError(err)
	}
	if orders == nil {
		orders = []integration.AwaitingOrder{}
	}
	return &AwaitingShipmentPreview{
		Orders:             orders,
		ExcludedProductIDs: automation.ResolveExclusions(orders).IDs(),
	}, nil
}

// TestPriceChange sets one product's price by hand. It is refused while a
// run is active because the ledger would no longer match the platform.
func (s *Service) TestPriceChange(ctx context.Context, productID string, price int64) (*PriceChangeResult, error) {
	update := integration.PriceUpdate{ProductID: productID, Price: price}
	if err := update.Validate(); err != nil {
		return nil, shared.ErrInvalidInput.WithMessage("product id and a positive price are required")
	}

	s.ensureLoaded(ctx)
	s.mu.Lock()
	busy := s.live != nil || s.state.Phase.IsActive()
	s.mu.Unlock()
	if busy {
		return nil, automation.ErrRunInProgress
	}

	product, err := s.platform.GetProduct(ctx, productID)
	if err != nil {
		return nil, platformError(err)
	}

	results, err := s.platform.UpdateProductPrices(ctx, []integration.PriceUpdate{update})
	if err != nil {
		return nil, platformError(err)
	}
	for _, r := range results {
		if r.ProductID == productID && !r.OK() {
			return nil, platformError(r.Err)
		}
	}

	s.logger.Info("Manual price change applied",
		zap.String("product_id", productID),
		zap.Int64("previous_price", product.Price),
		zap.Int64("new_price", price))
	return &PriceChangeResult{
		ProductID:     productID,
		PreviousPrice: product.Price,
		NewPrice:      price,
	}, nil
}

func firstN[T any](ctx context.Context, p *integration.Paginator[T], limit int) ([]T, error) {
	if limit <= 0 {
		limit = defaultPreviewLimit
	}
	out := make([]T, 0, limit)
	for len(out) < limit && !p.Done() {
		items, err := p.Next(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// platformError maps adapter errors onto the shared error codes
func platformError(err error) error {
	var domainErr *shared.DomainError
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, integration.ErrProductNotFound):
		return shared.ErrNotFound.WithMessage(err.Error())
	case errors.Is(err, integration.ErrInvalidPriceUpdate):
		return shared.ErrInvalidInput.WithMessage(err.Error())
	case errors.Is(err, integration.ErrPlatformUnauthorized):
		return shared.ErrUnauthorized.WithMessage(err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return shared.ErrUnavailable.WithMessage(fmt.Sprintf("platform request failed: %v", err))
	}
}
