package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	domain "github.com/stridewear/shoestore/internal/domain/catalog"
	"github.com/stridewear/shoestore/internal/domain/identity"
	"github.com/stridewear/shoestore/internal/pkg/logging"
	"go.uber.org/zap"
)

// IDGenerator issues product identifiers.
type IDGenerator interface {
	NewID() string
}

// Service covers staff catalog maintenance plus the public reads. The
// derived total stock is recomputed explicitly on every create and update
// rather than by a persistence hook.
type Service struct {
	products domain.Repository
	ids      IDGenerator
}

func NewService(products domain.Repository, ids IDGenerator) *Service {
	return &Service{
		products: products,
		ids:      ids,
	}
}

type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Brand       string
	Category    string
	Color       string
	Images      []string
	Sizes       []domain.SizeStock
	Featured    bool
}

func (s *Service) Create(ctx context.Context, actor identity.Actor, input ProductInput) (*domain.Product, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &domain.Product{
		ID:          s.ids.NewID(),
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		Brand:       input.Brand,
		Category:    input.Category,
		Color:       input.Color,
		Images:      input.Images,
		Sizes:       input.Sizes,
		TotalStock:  domain.TotalStock(input.Sizes),
		Featured:    input.Featured,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.products.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("catalog: save product: %w", err)
	}
	logging.FromContext(ctx).Info("product_created",
		zap.String("product_id", p.ID),
		zap.String("name", p.Name),
	)
	return p, nil
}

func (s *Service) Update(ctx context.Context, actor identity.Actor, id string, input ProductInput) (*domain.Product, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}

	existing, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.Name = input.Name
	existing.Description = input.Description
	existing.Price = input.Price
	existing.Brand = input.Brand
	existing.Category = input.Category
	existing.Color = input.Color
	existing.Images = input.Images
	existing.Sizes = input.Sizes
	existing.TotalStock = domain.TotalStock(input.Sizes)
	existing.Featured = input.Featured
	existing.UpdatedAt = time.Now().UTC()

	if err := existing.Validate(); err != nil {
		return nil, err
	}
	if err := s.products.Save(ctx, existing); err != nil {
		return nil, fmt.Errorf("catalog: save product: %w", err)
	}
	return existing, nil
}

func (s *Service) Delete(ctx context.Context, actor identity.Actor, id string) error {
	if err := actor.RequireAdmin(); err != nil {
		return err
	}
	return s.products.Delete(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Product, error) {
	return s.products.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*domain.Product, error) {
	return s.products.List(ctx)
}
