package quote

// Money represents a monetary value stored in minor units.
type Money = int64

// MaxLineItems caps the number of distinct SKUs a working quote may hold.
const MaxLineItems = 4

// LineItem is one priced entry in a working quote.
type LineItem struct {
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Qty      int    `json:"qty"`
	UnitRate Money  `json:"unitRate"`
}

// Totals aggregates computed quote components.
type Totals struct {
	Subtotal Money `json:"subtotal"`
	Tax      Money `json:"tax"`
	Total    Money `json:"total"`
}

// Add merges a line item into the collection. An existing SKU has its quantity
// incremented; a new SKU is appended unless the distinct-item cap is reached,
// in which case the addition is ignored.
func Add(items []LineItem, li LineItem) []LineItem {
	if li.SKU == "" || li.Qty <= 0 {
		return items
	}
	for i := range items {
		if items[i].SKU == li.SKU {
			items[i].Qty += li.Qty
			return items
		}
	}
	if len(items) >= MaxLineItems {
		return items
	}
	return append(items, li)
}

// Remove drops the line item with the given SKU, if present.
func Remove(items []LineItem, sku string) []LineItem {
	out := items[:0]
	for _, it := range items {
		if it.SKU != sku {
			out = append(out, it)
		}
	}
	return out
}

// Compute calculates quote totals from line items. Tax is taxBps basis points
// of the subtotal, rounded half-up at the cent. Summation is order-independent
// and nothing is rounded before the cent boundary.
func Compute(items []LineItem, taxBps int) Totals {
	var subtotal Money
	for _, it := range items {
		if it.Qty <= 0 || it.UnitRate < 0 {
			continue
		}
		subtotal += Money(it.Qty) * it.UnitRate
	}
	if taxBps < 0 {
		taxBps = 0
	}
	tax := (subtotal*Money(taxBps) + 5000) / 10000
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal + tax,
	}
}

// Dollars converts minor units to major units for outbound payloads.
func Dollars(m Money) float64 {
	return float64(m) / 100
}

// FromDollars converts a major-unit amount to minor units, rounding half-up.
func FromDollars(v float64) Money {
	if v < 0 {
		return 0
	}
	return Money(v*100 + 0.5)
}
