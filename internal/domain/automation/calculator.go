package automation

// Floor is the minimum acceptable price in the smallest currency unit.
// An adjusted price never ends up at or below it.
const Floor int64 = 300

// AdjustmentKind classifies how a product's price was changed.
type AdjustmentKind string

const (
	// AdjustmentDiscounted means the discount was subtracted
	AdjustmentDiscounted AdjustmentKind = "discounted"
	// AdjustmentIncreased means the discount would have crossed the floor,
	// so it was added instead
	AdjustmentIncreased AdjustmentKind = "increased"
	// AdjustmentNone marks products that were left untouched
	AdjustmentNone AdjustmentKind = "none"
)

// String returns the string representation of AdjustmentKind
func (k AdjustmentKind) String() string {
	return string(k)
}

// CalculatePrice applies discount to original. When the discounted price would
// land at or below Floor the change inverts and the discount is added instead,
// so the result is always above Floor for a positive discount.
func CalculatePrice(original, discount int64) (int64, AdjustmentKind) {
	candidate := original - discount
	if candidate <= Floor {
		return original + discount, AdjustmentIncreased
	}
	return candidate, AdjustmentDiscounted
}
