package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pricecycle/backend/internal/domain/integration"
	"github.com/pricecycle/backend/internal/infrastructure/telemetry"
)

// maxResponseSize limits the response body size to prevent memory exhaustion
const maxResponseSize = 10 * 1024 * 1024

// CallRecorder observes the latency and outcome of every platform call
type CallRecorder interface {
	PlatformCall(ctx context.Context, platform, operation string, d time.Duration, err error)
}

// GraphQLAdapter implements integration.CatalogPlatform for the storefront
// GraphQL API. The official mode authenticates with a bearer token and has a
// batch price mutation; the web mode replays the seller dashboard calls and
// updates one listing at a time.
type GraphQLAdapter struct {
	config     *GraphQLConfig
	httpClient *http.Client
	logger     *zap.Logger
	recorder   CallRecorder

	// paces the sequential calls of an emulated batch
	limiter *rate.Limiter

	mu     sync.Mutex
	shopID string
}

// AdapterOption configures a GraphQLAdapter
type AdapterOption func(*GraphQLAdapter)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) AdapterOption {
	return func(a *GraphQLAdapter) { a.httpClient = c }
}

// WithAdapterLogger sets the logger
func WithAdapterLogger(l *zap.Logger) AdapterOption {
	return func(a *GraphQLAdapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithCallRecorder reports call latencies, usually to telemetry.AutomationMetrics
func WithCallRecorder(r CallRecorder) AdapterOption {
	return func(a *GraphQLAdapter) { a.recorder = r }
}

// NewGraphQLAdapter creates a new adapter with the given configuration
func NewGraphQLAdapter(config *GraphQLConfig, opts ...AdapterOption) (*GraphQLAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	a := &GraphQLAdapter{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     zap.NewNop(),
		limiter:    rate.NewLimiter(rate.Every(config.EmulatedBatchGap), 1),
		shopID:     config.ShopID,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("catalog_platform").With(zap.String("mode", config.Mode))
	return a, nil
}

// Name implements integration.CatalogPlatform
func (a *GraphQLAdapter) Name() string {
	return "graphql-" + a.config.Mode
}

// SupportsBatchUpdate implements integration.CatalogPlatform
func (a *GraphQLAdapter) SupportsBatchUpdate() bool {
	return a.config.Mode == ModeOfficial
}

func (a *GraphQLAdapter) isWeb() bool {
	return a.config.Mode == ModeWeb
}

// ---------------------------------------------------------------------------
// Connection
// ---------------------------------------------------------------------------

// TestConnection implements integration.CatalogPlatform. The web mode checks
// the session identity; the official mode lists one product and falls back to
// the shop query.
func (a *GraphQLAdapter) TestConnection(ctx context.Context) error {
	if a.isWeb() {
		var data struct {
			Self *struct {
				AccountID string `json:"accountId"`
			} `json:"self"`
		}
		if err := a.execute(ctx, "Self", webSelfQuery, nil, &data); err != nil {
			return err
		}
		if data.Self == nil || data.Self.AccountID == "" {
			return fmt.Errorf("%w: session is not logged in", integration.ErrPlatformUnauthorized)
		}
		return nil
	}

	err := a.execute(ctx, "TestConnection", officialTestConnectionQuery, map[string]any{"first": 1}, nil)
	if err == nil {
		return nil
	}
	if shopErr := a.execute(ctx, "Shop", officialShopQuery, nil, nil); shopErr == nil {
		return nil
	}
	return err
}

// resolveShopID returns the configured shop or discovers the first owned one
func (a *GraphQLAdapter) resolveShopID(ctx context.Context) (string, error) {
	a.mu.Lock()
	id := a.shopID
	a.mu.Unlock()
	if id != "" {
		return id, nil
	}

	var data struct {
		OwnShops []idRef `json:"ownShops"`
	}
	if err := a.execute(ctx, "GetOwnShops", webOwnShopsQuery, nil, &data); err != nil {
		return "", err
	}
	if len(data.OwnShops) == 0 || data.OwnShops[0].ID == "" {
		return "", fmt.Errorf("%w: no shop found for this account", integration.ErrPlatformNotConfigured)
	}

	a.mu.Lock()
	a.shopID = data.OwnShops[0].ID
	a.mu.Unlock()
	return data.OwnShops[0].ID, nil
}

// ---------------------------------------------------------------------------
// Listings
// ---------------------------------------------------------------------------

// ListProducts implements integration.CatalogPlatform
func (a *GraphQLAdapter) ListProducts(ctx context.Context, cursor string) (*integration.Page[integration.Product], error) {
	var conn connection[productNode]
	if a.isWeb() {
		shopID, err := a.resolveShopID(ctx)
		if err != nil {
			return nil, err
		}
		vars := map[string]any{"shopId": shopID}
		if cursor != "" {
			vars["cursor"] = cursor
		}
		var data struct {
			ShopProducts connection[productNode] `json:"shopProducts"`
		}
		if err := a.execute(ctx, "SellerShopProductsPage", webProductsQuery, vars, &data); err != nil {
			return nil, err
		}
		conn = data.ShopProducts
	} else {
		vars := map[string]any{"first": a.config.PageSize}
		if cursor != "" {
			vars["after"] = cursor
		}
		var data struct {
			Products connection[productNode] `json:"products"`
		}
		if err := a.execute(ctx, "GetProducts", officialProductsQuery, vars, &data); err != nil {
			return nil, err
		}
		conn = data.Products
	}

	page := &integration.Page[integration.Product]{
		Items:      make([]integration.Product, 0, len(conn.Edges)),
		NextCursor: conn.PageInfo.EndCursor,
		HasNext:    conn.PageInfo.HasNextPage,
	}
	for _, e := range conn.Edges {
		page.Items = append(page.Items, e.Node.toProduct())
	}
	return page, nil
}

func (n productNode) toProduct() integration.Product {
	return integration.Product{
		ID:     n.ID,
		Name:   n.Name,
		Price:  toPrice(n.Price),
		Status: string(n.Status),
	}
}

// ListOrders implements integration.CatalogPlatform
func (a *GraphQLAdapter) ListOrders(ctx context.Context, cursor string) (*integration.Page[integration.Order], error) {
	conn, err := a.listOrders(ctx, cursor, false)
	if err != nil {
		return nil, err
	}
	page := &integration.Page[integration.Order]{
		Items:      make([]integration.Order, 0, len(conn.Edges)),
		NextCursor: conn.PageInfo.EndCursor,
		HasNext:    conn.PageInfo.HasNextPage,
	}
	for _, e := range conn.Edges {
		o := integration.Order{ID: e.Node.ID, Status: string(e.Node.Status)}
		switch {
		case e.Node.OpenedAt != nil:
			o.OpenedAt = *e.Node.OpenedAt
		case e.Node.CreatedAt != nil:
			o.OpenedAt = *e.Node.CreatedAt
		}
		page.Items = append(page.Items, o)
	}
	return page, nil
}

// ListOrdersAwaitingShipment implements integration.CatalogPlatform
func (a *GraphQLAdapter) ListOrdersAwaitingShipment(ctx context.Context, cursor string) (*integration.Page[integration.AwaitingOrder], error) {
	conn, err := a.listOrders(ctx, cursor, true)
	if err != nil {
		return nil, err
	}
	page := &integration.Page[integration.AwaitingOrder]{
		Items:      make([]integration.AwaitingOrder, 0, len(conn.Edges)),
		NextCursor: conn.PageInfo.EndCursor,
		HasNext:    conn.PageInfo.HasNextPage,
	}
	for _, e := range conn.Edges {
		o := integration.AwaitingOrder{ID: e.Node.ID, Status: string(e.Node.Status)}
		for _, p := range e.Node.OrderProducts {
			ref := integration.OrderProduct{ProductID: p.ProductID}
			if p.Product != nil {
				ref.NestedProductID = p.Product.ID
			}
			o.Products = append(o.Products, ref)
		}
		page.Items = append(page.Items, o)
	}
	return page, nil
}

func (a *GraphQLAdapter) listOrders(ctx context.Context, cursor string, awaiting bool) (connection[orderNode], error) {
	var data struct {
		Orders connection[orderNode] `json:"orders"`
	}

	if a.isWeb() {
		shopID, err := a.resolveShopID(ctx)
		if err != nil {
			return data.Orders, err
		}
		statuses := webOrderStatuses
		if awaiting {
			statuses = []string{"STATUS_WAITING_SHIPPING"}
		}
		vars := map[string]any{"shopId": shopID, "statuses": statuses, "first": a.config.PageSize}
		if cursor != "" {
			vars["cursor"] = cursor
		}
		err = a.execute(ctx, "ShopOrdersPage", webOrdersQuery, vars, &data)
		return data.Orders, err
	}

	vars := map[string]any{"first": a.config.PageSize}
	if cursor != "" {
		vars["after"] = cursor
	}
	if awaiting {
		vars["statusFilter"] = map[string]any{"status": "WAITING_FOR_SHIPPING"}
	}
	err := a.execute(ctx, "GetOrders", officialOrdersQuery, vars, &data)
	return data.Orders, err
}

// GetProduct implements integration.CatalogPlatform
func (a *GraphQLAdapter) GetProduct(ctx context.Context, productID string) (*integration.Product, error) {
	if a.isWeb() {
		node, err := a.getProductForEdit(ctx, productID)
		if err != nil {
			return nil, err
		}
		return &integration.Product{
			ID:     node.ID,
			Name:   node.Name,
			Price:  toPrice(node.Price),
			Status: string(node.Status),
		}, nil
	}

	var data struct {
		Product *productNode `json:"product"`
	}
	if err := a.execute(ctx, "GetProduct", officialProductQuery, map[string]any{"id": productID}, &data); err != nil {
		return nil, err
	}
	if data.Product == nil || data.Product.ID == "" {
		return nil, fmt.Errorf("%w: %s", integration.ErrProductNotFound, productID)
	}
	p := data.Product.toProduct()
	return &p, nil
}

func (a *GraphQLAdapter) getProductForEdit(ctx context.Context, productID string) (*editProductNode, error) {
	var data struct {
		ShopProduct *editProductNode `json:"shopProduct"`
	}
	if err := a.execute(ctx, "EditProductPage", webEditProductQuery, map[string]any{"id": productID}, &data); err != nil {
		return nil, err
	}
	if data.ShopProduct == nil || data.ShopProduct.ID == "" {
		return nil, fmt.Errorf("%w: %s", integration.ErrProductNotFound, productID)
	}
	return data.ShopProduct, nil
}

// ---------------------------------------------------------------------------
// Price updates
// ---------------------------------------------------------------------------

// UpdateProductPrices implements integration.CatalogPlatform. The official mode
// sends one batch mutation and falls back to individual updates when it
// fails; the web mode always updates one listing at a time.
func (a *GraphQLAdapter) UpdateProductPrices(ctx context.Context, batch []integration.PriceUpdate) ([]integration.PriceUpdateResult, error) {
	for _, u := range batch {
		if err := u.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s", err, u.ProductID)
		}
	}
	if len(batch) == 0 {
		return nil, nil
	}

	if a.isWeb() {
		return a.updateSequential(ctx, batch)
	}

	updates := make([]map[string]any, 0, len(batch))
	for _, u := range batch {
		updates = append(updates, map[string]any{"id": u.ProductID, "price": u.Price})
	}
	var data struct {
		UpdateProducts *updatedProducts `json:"updateProducts"`
	}
	err := a.execute(ctx, "UpdateProducts", officialUpdateProductsMutation, map[string]any{"updates": updates}, &data)
	if err == nil {
		return batchResults(batch, data.UpdateProducts), nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	a.logger.Warn("Batch price update failed, falling back to individual updates",
		zap.Int("batch_size", len(batch)),
		zap.Error(err),
	)
	return a.updateSequential(ctx, batch)
}

// batchResults marks an update successful only when the mutation returned
// its product. Listings the backend skipped get errMissingFromBatch.
func batchResults(batch []integration.PriceUpdate, payload *updatedProducts) []integration.PriceUpdateResult {
	updated := make(map[string]struct{}, len(batch))
	if payload != nil {
		for _, p := range payload.Products {
			updated[p.ID] = struct{}{}
		}
	}

	results := make([]integration.PriceUpdateResult, 0, len(batch))
	for _, u := range batch {
		r := integration.PriceUpdateResult{ProductID: u.ProductID}
		if _, ok := updated[u.ProductID]; !ok {
			r.Err = fmt.Errorf("%w: %s", errMissingFromBatch, u.ProductID)
		}
		results = append(results, r)
	}
	return results
}

// updateSequential applies each update on its own. Per-item errors are
// reported in the results; only a cancelled context aborts the loop.
func (a *GraphQLAdapter) updateSequential(ctx context.Context, batch []integration.PriceUpdate) ([]integration.PriceUpdateResult, error) {
	results := make([]integration.PriceUpdateResult, 0, len(batch))
	for _, u := range batch {
		if a.isWeb() {
			if err := a.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		err := a.updateOne(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("Price update failed",
				zap.String("product_id", u.ProductID),
				zap.Int64("price", u.Price),
				zap.Error(err),
			)
		}
		results = append(results, integration.PriceUpdateResult{ProductID: u.ProductID, Err: err})
	}
	return results, nil
}

func (a *GraphQLAdapter) updateOne(ctx context.Context, u integration.PriceUpdate) error {
	if !a.isWeb() {
		vars := map[string]any{"input": map[string]any{"id": u.ProductID, "price": u.Price}}
		return a.execute(ctx, "UpdateProduct", officialUpdateProductMutation, vars, nil)
	}

	// the web mutation resubmits the whole listing, so fetch it first
	product, err := a.getProductForEdit(ctx, u.ProductID)
	if err != nil {
		return err
	}
	shopID := ""
	if product.Shop == nil || product.Shop.ID == "" {
		if shopID, err = a.resolveShopID(ctx); err != nil {
			return err
		}
	}
	vars := map[string]any{
		"input":              product.updateInput(shopID, u.Price),
		"idempotencyKeySeed": float64(time.Now().UnixMilli()) + rand.Float64(),
	}
	return a.execute(ctx, "UpdateProductV2", webUpdateProductMutation, vars, nil)
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

func (a *GraphQLAdapter) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if a.isWeb() {
		req.Header.Set("Accept", "*/*")
		req.Header.Set("x-data-fetch-for", "csr")
		req.Header.Set("x-feature-toggles", "{}")
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Cookie", "id_token="+a.config.Token)
		return
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.config.Token)
	req.Header.Set("User-Agent", a.config.ClientName+"/"+a.config.Version)
}

// execute posts one GraphQL document and decodes data into out (may be nil).
func (a *GraphQLAdapter) execute(ctx context.Context, operation, query string, variables map[string]any, out any) (err error) {
	ctx, span := telemetry.StartClientSpan(ctx, "catalog_platform", operation,
		telemetry.AttrPlatform.String(a.Name()),
	)
	defer telemetry.EndSpan(span, &err)

	start := time.Now()
	defer func() {
		if a.recorder != nil {
			a.recorder.PlatformCall(ctx, a.Name(), operation, time.Since(start), err)
		}
	}()

	if variables == nil {
		variables = map[string]any{}
	}
	body := graphqlRequest{Query: query, Variables: variables}
	if a.isWeb() {
		body.OperationName = operation
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("graphql: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL(), bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("graphql: failed to create request: %w", err)
	}
	a.setHeaders(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", integration.ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", integration.ErrPlatformUnavailable, err)
	}

	if err := statusError(resp.StatusCode, raw, a.config.URL()); err != nil {
		return err
	}

	var gr graphqlResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}
	if len(gr.Errors) > 0 {
		return fmt.Errorf("%w: %s", integration.ErrPlatformQuery, joinErrors(gr.Errors))
	}
	if out == nil {
		return nil
	}
	if len(gr.Data) == 0 || bytes.Equal(gr.Data, []byte("null")) {
		return fmt.Errorf("%w: empty data", integration.ErrPlatformInvalidResponse)
	}
	if err := json.Unmarshal(gr.Data, out); err != nil {
		return fmt.Errorf("%w: %v", integration.ErrPlatformInvalidResponse, err)
	}
	return nil
}

// statusError maps HTTP failures onto the integration error taxonomy
func statusError(code int, body []byte, endpoint string) error {
	if code < 400 {
		return nil
	}
	detail := string(body)
	if len(detail) > 512 {
		detail = detail[:512]
	}
	// GraphQL servers sometimes report errors with a 4xx status
	var gr graphqlResponse
	if json.Unmarshal(body, &gr) == nil && len(gr.Errors) > 0 {
		detail = joinErrors(gr.Errors)
	}

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d: %s", integration.ErrPlatformUnauthorized, code, detail)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: HTTP 404 from %s (is this IP address registered with the shop API?): %s",
			integration.ErrPlatformRequestFailed, endpoint, detail)
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", integration.ErrPlatformUnavailable, code, detail)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", integration.ErrPlatformRequestFailed, code, detail)
	}
}

var _ integration.CatalogPlatform = (*GraphQLAdapter)(nil)

var errMissingFromBatch = fmt.Errorf("%w: product missing from batch update response", integration.ErrPlatformRequestFailed)
