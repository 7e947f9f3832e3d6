// Package integration contains the port to the remote storefront.
//
// Key concepts:
//   - CatalogPlatform: port interface for listing products and orders and for
//     changing product prices on the seller's storefront
//   - Paginator: lazy, resumable walk over cursor-paginated listings
//   - Product, Order, AwaitingOrder: value objects returned by the platform
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
