package service

import (
	"context"
	"fmt"

	"github.com/rl1809/timeless/internal/core/domain"
	"github.com/rl1809/timeless/internal/port"
)

// CatalogService is the read-only product surface.
type CatalogService struct {
	catalog port.CatalogReader
}

func NewCatalogService(catalog port.CatalogReader) *CatalogService {
	return &CatalogService{catalog: catalog}
}

func (s *CatalogService) GetProduct(ctx context.Context, productID int64) (domain.Product, error) {
	if productID <= 0 {
		return domain.Product{}, fmt.Errorf("product %d: %w", productID, domain.ErrInvalidInput)
	}
	p, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product %d: %w", productID, err)
	}
	return p, nil
}

func (s *CatalogService) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	if filter.MinPrice < 0 || filter.MaxPrice < 0 {
		return nil, fmt.Errorf("negative price bound: %w", domain.ErrInvalidInput)
	}
	if filter.MaxPrice > 0 && filter.MinPrice > filter.MaxPrice {
		return nil, fmt.Errorf("min price %d above max price %d: %w", filter.MinPrice, filter.MaxPrice, domain.ErrInvalidInput)
	}
	switch filter.Sort {
	case domain.SortDefault, domain.SortPriceAsc, domain.SortPriceDesc:
	default:
		return nil, fmt.Errorf("sort %q: %w", filter.Sort, domain.ErrInvalidInput)
	}

	products, err := s.catalog.ListProducts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, nil
}
