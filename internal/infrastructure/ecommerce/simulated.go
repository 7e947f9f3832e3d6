package ecommerce

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/pricecycle/backend/internal/domain/integration"
)

// SimulatedPlatform is an in-memory storefront. It backs the simulated
// platform mode for dry runs and doubles as the platform of service tests.
type SimulatedPlatform struct {
	mu       sync.Mutex
	pageSize int
	batch    bool
	now      func() time.Time

	products []*integration.Product
	index    map[string]int
	orders   []integration.Order
	awaiting []integration.AwaitingOrder
	applied  []integration.PriceUpdate

	connErr     error
	ordersErr   error
	awaitingErr error
	batchErr    error
	failing     map[string]error
	updateCalls int
}

// SimulatedOptions seeds a SimulatedPlatform
type SimulatedOptions struct {
	Products int
	PageSize int
	Batch    bool
	Now      func() time.Time
}

// NewSimulatedPlatform creates a catalog of opts.Products listings with
// deterministic prices between 200 and 4999.
func NewSimulatedPlatform(opts SimulatedOptions) *SimulatedPlatform {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &SimulatedPlatform{
		pageSize: opts.PageSize,
		batch:    opts.Batch,
		now:      opts.Now,
		index:    make(map[string]int),
		failing:  make(map[string]error),
	}
	for i := 1; i <= opts.Products; i++ {
		s.addProductLocked(integration.Product{
			ID:     fmt.Sprintf("sim-%04d", i),
			Name:   fmt.Sprintf("Simulated item %d", i),
			Price:  int64(200 + (i*137)%4800),
			Status: "STATUS_OPENED",
		})
	}
	return s
}

// Name implements integration.CatalogPlatform
func (s *SimulatedPlatform) Name() string { return "simulated" }

// SupportsBatchUpdate implements integration.CatalogPlatform
func (s *SimulatedPlatform) SupportsBatchUpdate() bool { return s.batch }

// TestConnection implements integration.CatalogPlatform
func (s *SimulatedPlatform) TestConnection(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connErr
}

// ListProducts implements integration.CatalogPlatform
func (s *SimulatedPlatform) ListProducts(ctx context.Context, cursor string) (*integration.Page[integration.Product], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]integration.Product, len(s.products))
	for i, p := range s.products {
		items[i] = *p
	}
	return paginate(items, cursor, s.pageSize)
}

// ListOrders implements integration.CatalogPlatform
func (s *SimulatedPlatform) ListOrders(ctx context.Context, cursor string) (*integration.Page[integration.Order], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ordersErr != nil {
		return nil, s.ordersErr
	}
	return paginate(append([]integration.Order(nil), s.orders...), cursor, s.pageSize)
}

// ListOrdersAwaitingShipment implements integration.CatalogPlatform
func (s *SimulatedPlatform) ListOrdersAwaitingShipment(ctx context.Context, cursor string) (*integration.Page[integration.AwaitingOrder], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.awaitingErr != nil {
		return nil, s.awaitingErr
	}
	return paginate(append([]integration.AwaitingOrder(nil), s.awaiting...), cursor, s.pageSize)
}

// GetProduct implements integration.CatalogPlatform
func (s *SimulatedPlatform) GetProduct(ctx context.Context, productID string) (*integration.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[productID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrProductNotFound, productID)
	}
	p := *s.products[i]
	return &p, nil
}

// UpdateProductPrices implements integration.CatalogPlatform
func (s *SimulatedPlatform) UpdateProductPrices(ctx context.Context, batch []integration.PriceUpdate) ([]integration.PriceUpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	if s.batchErr != nil {
		return nil, s.batchErr
	}

	results := make([]integration.PriceUpdateResult, 0, len(batch))
	for _, u := range batch {
		res := integration.PriceUpdateResult{ProductID: u.ProductID}
		i, ok := s.index[u.ProductID]
		switch {
		case u.Validate() != nil:
			res.Err = u.Validate()
		case !ok:
			res.Err = fmt.Errorf("%w: %s", integration.ErrProductNotFound, u.ProductID)
		case s.failing[u.ProductID] != nil:
			res.Err = s.failing[u.ProductID]
		default:
			s.products[i].Price = u.Price
			s.applied = append(s.applied, u)
		}
		results = append(results, res)
	}
	return results, nil
}

// ---------------------------------------------------------------------------
// Simulation controls
// ---------------------------------------------------------------------------

// AddProduct appends a listing
func (s *SimulatedPlatform) AddProduct(p integration.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addProductLocked(p)
}

func (s *SimulatedPlatform) addProductLocked(p integration.Product) {
	s.index[p.ID] = len(s.products)
	s.products = append(s.products, &p)
}

// PlaceOrder records a new order opened now
func (s *SimulatedPlatform) PlaceOrder(id, status string) integration.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := integration.Order{ID: id, Status: status, OpenedAt: s.now()}
	s.orders = append(s.orders, o)
	return o
}

// AddOrder records an order with an explicit timestamp
func (s *SimulatedPlatform) AddOrder(o integration.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, o)
}

// AddAwaitingOrder records an unshipped order containing productIDs
func (s *SimulatedPlatform) AddAwaitingOrder(id string, productIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := integration.AwaitingOrder{ID: id, Status: "STATUS_WAITING_SHIPPING"}
	for _, pid := range productIDs {
		o.Products = append(o.Products, integration.OrderProduct{ProductID: pid})
	}
	s.awaiting = append(s.awaiting, o)
}

// FailUpdatesFor makes every update of productID fail with err (nil clears it)
func (s *SimulatedPlatform) FailUpdatesFor(productID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failing, productID)
		return
	}
	s.failing[productID] = err
}

// SetConnectionError makes TestConnection fail
func (s *SimulatedPlatform) SetConnectionError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connErr = err
}

// SetOrdersError makes ListOrders fail
func (s *SimulatedPlatform) SetOrdersError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ordersErr = err
}

// SetAwaitingError makes ListOrdersAwaitingShipment fail
func (s *SimulatedPlatform) SetAwaitingError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.awaitingErr = err
}

// SetBatchError makes whole UpdateProductPrices calls fail
func (s *SimulatedPlatform) SetBatchError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchErr = err
}

// Price returns the current price of productID
func (s *SimulatedPlatform) Price(productID string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[productID]
	if !ok {
		return 0, false
	}
	return s.products[i].Price, true
}

// Applied returns every update that changed a price, in order
func (s *SimulatedPlatform) Applied() []integration.PriceUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]integration.PriceUpdate(nil), s.applied...)
}

// UpdateCalls returns how many UpdateProductPrices calls were made
func (s *SimulatedPlatform) UpdateCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateCalls
}

// paginate slices items with an offset cursor
func paginate[T any](items []T, cursor string, size int) (*integration.Page[T], error) {
	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: bad cursor %q", integration.ErrPlatformRequestFailed, cursor)
		}
		start = min(n, len(items))
	}
	end := min(start+size, len(items))
	page := &integration.Page[T]{Items: items[start:end]}
	if end < len(items) {
		page.HasNext = true
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

var _ integration.CatalogPlatform = (*SimulatedPlatform)(nil)
