package automation

import (
	"sort"

	"github.com/pricecycle/backend/internal/domain/integration"
)

// awaitingShipmentStatuses lists every label backends use for an order that is
// paid but not yet shipped. They are synonyms.
var awaitingShipmentStatuses = map[string]struct{}{
	"STATUS_WAITING_SHIPPING": {},
	"WAITING_FOR_SHIPPING":    {},
	"SHIPPING_WAIT":           {},
}

// IsAwaitingShipment reports whether status means "awaiting shipment".
func IsAwaitingShipment(status string) bool {
	_, ok := awaitingShipmentStatuses[status]
	return ok
}

// ProductSet is a set of product identifiers.
type ProductSet map[string]struct{}

// Contains reports whether id is in the set
func (s ProductSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// IDs returns the identifiers in sorted order
func (s ProductSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResolveExclusions returns every product referenced by an order awaiting
// shipment. Those products keep their current price for the whole run.
func ResolveExclusions(orders []integration.AwaitingOrder) ProductSet {
	excluded := make(ProductSet)
	for _, order := range orders {
		if !IsAwaitingShipment(order.Status) {
			continue
		}
		for _, product := range order.Products {
			if id := product.ID(); id != "" {
				excluded[id] = struct{}{}
			}
		}
	}
	return excluded
}
