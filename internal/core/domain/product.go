package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor currency units (cents).
type Money int64

// String renders the amount as dollars, e.g. 1999 -> "$19.99".
func (m Money) String() string {
	return "$" + decimal.New(int64(m), -2).StringFixed(2)
}

type Product struct {
	ID               int64
	Name             string
	ShortDescription string
	LongDescription  string
	Price            Money
	PriceRef         string // payment provider price identifier, may be empty
	Category         string
	InventoryQty     int
	ImageURL         string
	CreatedAt        time.Time
}

type ProductSort string

const (
	SortDefault   ProductSort = ""
	SortPriceAsc  ProductSort = "asc"
	SortPriceDesc ProductSort = "desc"
)

// ProductFilter narrows a catalog listing. Zero values mean "no constraint".
type ProductFilter struct {
	Categories []string
	MinPrice   Money
	MaxPrice   Money
	Sort       ProductSort
}

// Matches reports whether p passes the category and price constraints of f.
func (f ProductFilter) Matches(p Product) bool {
	if len(f.Categories) > 0 {
		found := false
		for _, c := range f.Categories {
			if c == p.Category {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.MinPrice > 0 && p.Price < f.MinPrice {
		return false
	}
	if f.MaxPrice > 0 && p.Price > f.MaxPrice {
		return false
	}
	return true
}
