package catalog

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storefrontlabs/storefront-backend/pkg/db/models"
)

// CreateCategoryInput carries the fields for a new category.
type CreateCategoryInput struct {
	Name        string
	Description *string
}

// UpdateCategoryInput carries optional category updates.
type UpdateCategoryInput struct {
	Name        *string
	Description *string
}

// CreateProductInput carries the fields for a new product.
type CreateProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	CategoryID  uuid.UUID
}

// UpdateProductInput carries optional product updates. Stock is deliberately
// absent, stock only moves through the inventory adjuster.
type UpdateProductInput struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	CategoryID  *uuid.UUID
}

// productSnapshot is the audit-facing view of a product.
type productSnapshot struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       string    `json:"price"`
	Stock       int       `json:"stock"`
	CategoryID  uuid.UUID `json:"category_id"`
	State       string    `json:"state"`
}

func snapshotProduct(p *models.Product) productSnapshot {
	return productSnapshot{
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		Stock:       p.Stock,
		CategoryID:  p.CategoryID,
		State:       p.State.String(),
	}
}

// categorySnapshot is the audit-facing view of a category.
type categorySnapshot struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	State       string  `json:"state"`
}

func snapshotCategory(c *models.Category) categorySnapshot {
	return categorySnapshot{
		Name:        c.Name,
		Description: c.Description,
		State:       c.State.String(),
	}
}
