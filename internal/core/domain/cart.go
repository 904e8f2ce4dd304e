package domain

import "time"

// CartItem is one stored line of a cart, keyed by (CartID, ProductID).
type CartItem struct {
	CartID    int64
	ProductID int64
	Quantity  int
	UnitPrice Money // captured on create and on every quantity change
	UpdatedAt time.Time
}

// CartLine is a CartItem joined with the product's display fields.
type CartLine struct {
	CartItem
	Name             string
	ShortDescription string
	ImageURL         string
	CatalogPrice     Money
	PriceRef         string
}

func (l CartLine) Subtotal() Money {
	return l.UnitPrice * Money(l.Quantity)
}

// CartTotal is derived from the lines and never stored.
func CartTotal(lines []CartLine) Money {
	var total Money
	for _, l := range lines {
		total += l.Subtotal()
	}
	return total
}
