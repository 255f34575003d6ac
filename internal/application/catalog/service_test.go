package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domain "github.com/stridewear/shoestore/internal/domain/catalog"
	"github.com/stridewear/shoestore/internal/domain/identity"
	"github.com/stridewear/shoestore/internal/infrastructure/memory"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() string {
	s.n++
	return fmt.Sprintf("p-%d", s.n)
}

var (
	admin    = identity.Actor{UserID: "staff-1", Role: identity.RoleAdmin}
	customer = identity.Actor{UserID: "u-1", Role: identity.RoleCustomer}
)

func validInput() ProductInput {
	return ProductInput{
		Name:     "Trail Runner",
		Price:    decimal.RequireFromString("129.99"),
		Brand:    "Stride",
		Category: "sports",
		Color:    "black",
		Sizes: []domain.SizeStock{
			{Size: "8", Stock: 4},
			{Size: "9", Stock: 8},
		},
	}
}

func TestCreateDerivesTotalStock(t *testing.T) {
	svc := NewService(memory.NewProductRepository(), &seqIDs{})

	p, err := svc.Create(context.Background(), admin, validInput())
	require.NoError(t, err)

	assert.Equal(t, "p-1", p.ID)
	assert.Equal(t, 12, p.TotalStock)
	assert.False(t, p.CreatedAt.IsZero())
}

func TestCreateRequiresAdmin(t *testing.T) {
	svc := NewService(memory.NewProductRepository(), &seqIDs{})

	_, err := svc.Create(context.Background(), customer, validInput())
	assert.ErrorIs(t, err, identity.ErrForbidden)
}

func TestCreateValidates(t *testing.T) {
	svc := NewService(memory.NewProductRepository(), &seqIDs{})

	bad := validInput()
	bad.Price = decimal.Zero
	_, err := svc.Create(context.Background(), admin, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidProduct)
}

func TestUpdateRecomputesTotalStock(t *testing.T) {
	svc := NewService(memory.NewProductRepository(), &seqIDs{})
	ctx := context.Background()

	p, err := svc.Create(ctx, admin, validInput())
	require.NoError(t, err)

	input := validInput()
	input.Sizes = []domain.SizeStock{{Size: "9", Stock: 3}}
	updated, err := svc.Update(ctx, admin, p.ID, input)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.TotalStock)

	_, err = svc.Update(ctx, customer, p.ID, input)
	assert.ErrorIs(t, err, identity.ErrForbidden)
	_, err = svc.Update(ctx, admin, "missing", input)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteAndPublicReads(t *testing.T) {
	svc := NewService(memory.NewProductRepository(), &seqIDs{})
	ctx := context.Background()

	p, err := svc.Create(ctx, admin, validInput())
	require.NoError(t, err)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.ErrorIs(t, svc.Delete(ctx, customer, p.ID), identity.ErrForbidden)
	require.NoError(t, svc.Delete(ctx, admin, p.ID))
	_, err = svc.Get(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
