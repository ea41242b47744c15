package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/internal/audit"
	"github.com/storefrontlabs/storefront-backend/internal/inventory"
	"github.com/storefrontlabs/storefront-backend/pkg/db"
	"github.com/storefrontlabs/storefront-backend/pkg/db/models"
	"github.com/storefrontlabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/storefrontlabs/storefront-backend/pkg/errors"
	"github.com/storefrontlabs/storefront-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines catalog operations for categories and products.
type Service interface {
	CreateCategory(ctx context.Context, input CreateCategoryInput) (*models.Category, error)
	UpdateCategory(ctx context.Context, id uuid.UUID, input UpdateCategoryInput) (*models.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) error
	ActivateCategory(ctx context.Context, id uuid.UUID) (*models.Category, error)
	GetCategory(ctx context.Context, id uuid.UUID) (*models.Category, error)
	ListCategories(ctx context.Context, params pagination.Params) (*CategoryList, error)

	CreateProduct(ctx context.Context, input CreateProductInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*models.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	ActivateProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context, params pagination.Params, filters ProductFilters) (*ProductList, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	stock    inventory.Adjuster
	recorder audit.Recorder
}

// NewService builds the catalog service with the required dependencies.
func NewService(repo Repository, tx txRunner, stock inventory.Adjuster, recorder audit.Recorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if stock == nil {
		return nil, fmt.Errorf("inventory adjuster required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	return &service{repo: repo, tx: tx, stock: stock, recorder: recorder}, nil
}

func (s *service) CreateCategory(ctx context.Context, input CreateCategoryInput) (*models.Category, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category name required")
	}

	category := &models.Category{
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		State:       enums.EntityStateActive,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateCategory(ctx, category); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create category")
		}
		return s.recorder.Record(ctx, tx, audit.Change{
			Entity:   enums.AuditEntityCategories,
			RecordID: category.ID,
			Action:   enums.AuditActionCreate,
			After:    snapshotCategory(category),
		})
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

func (s *service) UpdateCategory(ctx context.Context, id uuid.UUID, input UpdateCategoryInput) (*models.Category, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category id required")
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "category name cannot be empty")
		}
		updates["name"] = name
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if len(updates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no updates provided")
	}

	var updated *models.Category
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		category, err := repo.FindActiveCategory(ctx, id)
		if err != nil {
			return mapNotFound(err, "category not found", "load category")
		}
		before := snapshotCategory(category)

		if err := repo.UpdateCategory(ctx, id, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update category")
		}
		updated, err = repo.FindActiveCategory(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload category")
		}

		return s.recorder.Record(ctx, tx, audit.Change{
			Entity:   enums.AuditEntityCategories,
			RecordID: id,
			Action:   enums.AuditActionUpdate,
			Before:   before,
			After:    snapshotCategory(updated),
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "category id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		category, err := repo.FindActiveCategory(ctx, id)
		if err != nil {
			return mapNotFound(err, "category not found", "load category")
		}

		count, err := repo.CountActiveProductsInCategory(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count category products")
		}
		if count > 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "category still has active products")
		}
		before := snapshotCategory(category)

		if err := repo.UpdateCategory(ctx, id, map[string]any{"state": enums.EntityStateInactive}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "soft delete category")
		}
		category.State = enums.EntityStateInactive

		return s.recorder.Record(ctx, tx, audit.Change{
			Entity:   enums.AuditEntityCategories,
			RecordID: id,
			Action:   enums.AuditActionDelete,
			Before:   before,
			After:    snapshotCategory(category),
		})
	})
}

// ActivateCategory is the symmetric undo of DeleteCategory.
func (s *service) ActivateCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category id required")
	}

	var updated *models.Category
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		category, err := repo.FindCategory(ctx, id)
		if err != nil {
			return mapNotFound(err, "category not found", "load category")
		}
		if category.State == enums.EntityStateActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "category is already active")
		}
		before := snapshotCategory(category)

		if err := repo.UpdateCategory(ctx, id, map[string]any{"state": enums.EntityStateActive}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activate category")
		}
		updated, err = repo.FindActiveCategory(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload category")
		}

		return s.recorder.Record(ctx, tx, audit.Change{
			Entity:   enums.AuditEntityCategories,
			RecordID: id,
			Action:   enums.AuditActionUpdate,
			Before:   before,
			After:    snapshotCategory(updated),
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) GetCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	category, err := s.repo.FindActiveCategory(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "category not found", "load category")
	}
	return category, nil
}

func (s *service) ListCategories(ctx context.Context, params pagination.Params) (*CategoryList, error) {
	list, err := s.repo.ListActiveCategories(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	return list, nil
}

func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*models.Product, error) {
	if err := validateCreateProduct(input); err != nil {
		return nil, err
	}

	var result *models.Product
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.FindActiveCategory(ctx, input.CategoryID); err != nil {
			return mapNotFound(err, "category not found", "load category")
		}

		// An existing twin absorbs the create: no second row, the incoming
		// stock folds into the survivor.
		existing, err := repo.FindProductByIdentity(ctx, input.Name, input.CategoryID, input.Description, []string{
			enums.EntityStateActive.String(),
			enums.EntityStateInactive.String(),
		})
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check duplicate product")
		}

		if existing != nil {
			result, err = s.absorbDuplicate(ctx, tx, repo, existing, input)
			return err
		}

		product := &models.Product{
			Name:        strings.TrimSpace(input.Name),
			Description: input.Description,
			Price:       input.Price,
			Stock:       input.Stock,
			CategoryID:  input.CategoryID,
			State:       enums.EntityStateActive,
		}
		if err := repo.CreateProduct(ctx, product); err != nil {
			if db.IsUniqueViolation(err, "uq_products_active_identity") {
				return pkgerrors.New(pkgerrors.CodeConflict, "product already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
		}
		result = product

		return s.recorder.Record(ctx, tx, audit.Change{
			Entity:   enums.AuditEntityProducts,
			RecordID: product.ID,
			Action:   enums.AuditActionCreate,
			After:    snapshotProduct(product),
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// absorbDuplicate folds a create aimed at an existing identity into the
// surviving row. An active twin gains the incoming stock; a soft-deleted twin
// is reactivated with a refreshed price first.
func (s *service) absorbDuplicate(ctx context.Context, tx *gorm.DB, repo Repository, existing *models.Product, input CreateProductInput) (*models.Product, error) {
	// An active twin with no incoming stock collapses to a read; there is
	// nothing to change and nothing to audit.
	if existing.State == enums.EntityStateActive && input.Stock <= 0 {
		return existing, nil
	}

	before := snapshotProduct(existing)

	if existing.State != enums.EntityStateActive {
		updates := map[string]any{
			"state": enums.EntityStateActive,
			"price": input.Price,
		}
		if err := repo.UpdateProduct(ctx, existing.ID, updates); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reactivate product")
		}
	}
	if input.Stock > 0 {
		if err := s.stock.Restock(ctx, tx, existing.ID, input.Stock); err != nil {
			return nil, err
		}
	}

	updated, err := repo.FindActiveProduct(ctx, existing.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload product")
	}

	err = s.recorder.Record(ctx, tx, audit.Change{
		Entity:   enums.AuditEntityProducts,
		RecordID: existing.ID,
		Action:   enums.AuditActionUpdate,
		Before:   before,
		After:    snapshotProduct(updated),
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*models.Product, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product name cannot be empty")
		}
		updates["name"] = name
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Price != nil {
		if input.Price.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price cannot be negative")
		}
		updates["price"] = *input.Price
	}
	if input.CategoryID != nil {
		updates["category_id"] = *input.CategoryID
	}
	if len(updates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no updates provided")
	}

	var updated *models.Product
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := repo.FindActiveProduct(ctx, id)
		if err != nil {
			return mapNotFound(err, "product not found", "load product")
		}
		before := snapshotProduct(product)

		if input.CategoryID != nil {
			if _, err := repo.FindActiveCategory(ctx, *input.CategoryID); err != nil {
				return mapNotFound(err, "category not found", "load category")
			}
		}

		if err := repo.UpdateProduct(ctx, id, updates); err != nil {
			if db.IsUniqueViolation(err, "uq_products_active_identity") {
				return pkgerrors.New(pkgerrors.CodeConflict, "another product with the same identity exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
		}
		updated, err = repo.FindActiveProduct(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload product")
		}

		return s.recorder.Record(ctx, tx, audit.Change{
			Entity:   enums.AuditEntityProducts,
			RecordID: id,
			Action:   enums.AuditActionUpdate,
			Before:   before,
			After:    snapshotProduct(updated),
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := repo.FindActiveProduct(ctx, id)
		if err != nil {
			return mapNotFound(err, "product not found", "load product")
		}
		before := snapshotProduct(product)

		if err := repo.UpdateProduct(ctx, id, map[string]any{"state": enums.EntityStateInactive}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "soft delete product")
		}
		product.State = enums.EntityStateInactive

		return s.recorder.Record(ctx, tx, audit.Change{
			Entity:   enums.AuditEntityProducts,
			RecordID: id,
			Action:   enums.AuditActionDelete,
			Before:   before,
			After:    snapshotProduct(product),
		})
	})
}

// ActivateProduct is the symmetric undo of DeleteProduct.
func (s *service) ActivateProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}

	var updated *models.Product
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := repo.FindProduct(ctx, id)
		if err != nil {
			return mapNotFound(err, "product not found", "load product")
		}
		if product.State == enums.EntityStateActive {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "product is already active")
		}
		before := snapshotProduct(product)

		if err := repo.UpdateProduct(ctx, id, map[string]any{"state": enums.EntityStateActive}); err != nil {
			if db.IsUniqueViolation(err, "uq_products_active_identity") {
				return pkgerrors.New(pkgerrors.CodeConflict, "another product with the same identity is active")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "activate product")
		}
		updated, err = repo.FindActiveProduct(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload product")
		}

		return s.recorder.Record(ctx, tx, audit.Change{
			Entity:   enums.AuditEntityProducts,
			RecordID: id,
			Action:   enums.AuditActionUpdate,
			Before:   before,
			After:    snapshotProduct(updated),
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindActiveProduct(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "product not found", "load product")
	}
	return product, nil
}

func (s *service) ListProducts(ctx context.Context, params pagination.Params, filters ProductFilters) (*ProductList, error) {
	list, err := s.repo.ListProducts(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return list, nil
}

func validateCreateProduct(input CreateProductInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product name required")
	}
	if input.Price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price cannot be negative")
	}
	if input.Stock < 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "stock cannot be negative")
	}
	if input.CategoryID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "category id required")
	}
	return nil
}

func mapNotFound(err error, notFoundMsg, wrapMsg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFoundMsg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, wrapMsg)
}
