package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	pkgerrors "github.com/giftmarket/giftmarket-backend/pkg/errors"
)

// Service exposes read-only catalog lookups with availability gating.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetAvailable(ctx context.Context, id uuid.UUID, qty int) (*models.Product, error)
	List(ctx context.Context) ([]models.Product, error)
}

type service struct {
	repo Repository
}

// NewService wires a catalog service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	product, err := s.repo.FindProduct(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

// GetAvailable loads a product and rejects inactive or understocked listings.
func (s *service) GetAvailable(ctx context.Context, id uuid.UUID, qty int) (*models.Product, error) {
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	product, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !product.Active || product.Stock < qty {
		return nil, pkgerrors.New(pkgerrors.CodeProductUnavailable, "product unavailable").
			WithDetails(map[string]any{"product_id": id, "requested_qty": qty})
	}
	return product, nil
}

func (s *service) List(ctx context.Context) ([]models.Product, error) {
	products, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return products, nil
}
