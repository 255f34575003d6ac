package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("catalog: product not found")
	ErrSizeNotFound    = errors.New("catalog: size not available for product")
	ErrOutOfStock      = errors.New("catalog: insufficient stock")
	ErrInvalidQuantity = errors.New("catalog: quantity must be greater than zero")
	ErrInvalidProduct  = errors.New("catalog: invalid product fields")
)

// SizeStock is the per-size stock counter, the only contended shared state in
// the system.
type SizeStock struct {
	Size  string
	Stock int
}

type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Brand       string
	Category    string
	Color       string
	Images      []string
	Sizes       []SizeStock
	TotalStock  int
	Featured    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TotalStock derives the aggregate stock from the per-size counters. It is a
// pure function called explicitly by create/update paths rather than a hidden
// persistence hook.
func TotalStock(sizes []SizeStock) int {
	total := 0
	for _, s := range sizes {
		total += s.Stock
	}
	return total
}

func (p *Product) Validate() error {
	if p.Name == "" || p.Brand == "" || p.Category == "" || p.Color == "" {
		return ErrInvalidProduct
	}
	if p.Price.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidProduct
	}
	for _, s := range p.Sizes {
		if s.Size == "" || s.Stock < 0 {
			return ErrInvalidProduct
		}
	}
	return nil
}

// StockFor reports the stock available for a size.
func (p *Product) StockFor(size string) (int, bool) {
	for _, s := range p.Sizes {
		if s.Size == size {
			return s.Stock, true
		}
	}
	return 0, false
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Images = append([]string(nil), p.Images...)
	clone.Sizes = append([]SizeStock(nil), p.Sizes...)
	return &clone
}
