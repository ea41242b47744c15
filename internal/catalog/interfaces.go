package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/pkg/db/models"
	"github.com/storefrontlabs/storefront-backend/pkg/pagination"
)

// Repository defines persistence operations for categories and products.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateCategory(ctx context.Context, category *models.Category) error
	FindCategory(ctx context.Context, id uuid.UUID) (*models.Category, error)
	FindActiveCategory(ctx context.Context, id uuid.UUID) (*models.Category, error)
	ListActiveCategories(ctx context.Context, params pagination.Params) (*CategoryList, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, updates map[string]any) error
	CountActiveProductsInCategory(ctx context.Context, categoryID uuid.UUID) (int64, error)

	CreateProduct(ctx context.Context, product *models.Product) error
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindActiveProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	// FindProductByIdentity matches on the duplicate-equality key: normalized
	// name, category and normalized description. States narrows the search.
	FindProductByIdentity(ctx context.Context, name string, categoryID uuid.UUID, description string, states []string) (*models.Product, error)
	ListProducts(ctx context.Context, params pagination.Params, filters ProductFilters) (*ProductList, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

// ProductFilters narrows the product listing. IncludeInactive is only ever
// set for privileged callers.
type ProductFilters struct {
	CategoryID      *uuid.UUID
	Search          string
	IncludeInactive bool
}

// ProductList is one page of products.
type ProductList struct {
	Products []models.Product
	HasMore  bool
}

// CategoryList is one page of categories.
type CategoryList struct {
	Categories []models.Category
	HasMore    bool
}
