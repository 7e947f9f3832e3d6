package ecommerce

// Official API documents

const officialTestConnectionQuery = `query TestConnection($first: Int!) {
  products(first: $first) {
    edges { node { id } }
    pageInfo { hasNextPage }
  }
}`

const officialShopQuery = `query Shop { shop { id name } }`

const officialProductsQuery = `query GetProducts($first: Int!, $after: String) {
  products(first: $first, after: $after) {
    edges { node { id name price status } cursor }
    pageInfo { hasNextPage endCursor }
  }
}`

const officialProductQuery = `query GetProduct($id: ID!) {
  product(id: $id) { id name price status }
}`

const officialOrdersQuery = `query GetOrders($first: Int!, $after: String, $statusFilter: OrderStatusFilter) {
  orders(first: $first, after: $after, statusFilter: $statusFilter) {
    edges {
      node {
        id
        status
        createdAt
        orderProducts { productId product { id } }
      }
      cursor
    }
    pageInfo { hasNextPage endCursor }
  }
}`

const officialUpdateProductMutation = `mutation UpdateProduct($input: UpdateProductInput!) {
  updateProduct(input: $input) { product { id name price } }
}`

const officialUpdateProductsMutation = `mutation UpdateProducts($updates: [UpdateProductInput!]!) {
  updateProducts(updates: $updates) { products { id name price } }
}`

// Seller web endpoint documents

const webSelfQuery = `query Self {
  self { nickname accountId roles email }
}`

const webOwnShopsQuery = `query GetOwnShops {
  ownShops { id }
}`

const webProductsQuery = `query SellerShopProductsPage($shopId: String!, $cursor: String) {
  shopProducts(after: $cursor, shopId: $shopId) {
    pageInfo { hasNextPage endCursor }
    edges { node { id name price status { id name } } }
  }
}`

const webOrdersQuery = `query ShopOrdersPage($shopId: String!, $statuses: [OrderStatus!]!, $cursor: String, $first: Int = 100) {
  orders(shopId: $shopId, statuses: $statuses, after: $cursor, first: $first) {
    pageInfo { hasNextPage endCursor }
    edges {
      node {
        id
        status
        openedAt
        orderProducts { productId product { id } }
      }
    }
  }
}`

const webEditProductQuery = `query EditProductPage($id: String!) {
  shopProduct(id: $id) {
    ... on Product {
      id
      name
      price
      snapshotId
      description
      shop { id }
      status { id name }
      variants {
        id
        name
        quantity
        stockSnapshotId
        skuCode
        janCode
        optionTypes { id options { id } }
      }
      shippingMethodType { id }
      shippingPayerType { id }
      shippingDurationType { id }
      shippingFromState { id }
      condition { id }
      thumbnails { id }
      categories { category { id } }
      brands { id }
      countryRestrictionTemplateId
    }
  }
}`

const webUpdateProductMutation = `mutation UpdateProductV2($input: UpdateProductInput!, $idempotencyKeySeed: Float!) {
  updateProductV2(updateProductInput: $input, idempotencyKeySeed: $idempotencyKeySeed) {
    id
    name
    price
  }
}`

// webOrderStatuses is every status the web listing accepts.
var webOrderStatuses = []string{
	"STATUS_WAITING_SHIPPING",
	"STATUS_COMPLETING",
	"STATUS_CANCELING",
	"STATUS_WAITING_PAYMENT",
	"STATUS_COMPLETED",
	"STATUS_CANCELED",
}
