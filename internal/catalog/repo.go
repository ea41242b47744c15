package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefrontlabs/storefront-backend/pkg/db/models"
	"github.com/storefrontlabs/storefront-backend/pkg/enums"
	"github.com/storefrontlabs/storefront-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateCategory(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Create(category).Error
}

func (r *repository) FindCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var category models.Category
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&category).Error
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *repository) FindActiveCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var category models.Category
	err := r.db.WithContext(ctx).
		Where("id = ? AND state = ?", id, enums.EntityStateActive).
		First(&category).Error
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *repository) ListActiveCategories(ctx context.Context, params pagination.Params) (*CategoryList, error) {
	params = params.Normalize()

	var categories []models.Category
	err := r.db.WithContext(ctx).
		Where("state = ?", enums.EntityStateActive).
		Order("name ASC").
		Offset(params.Offset).
		Limit(params.Limit + 1).
		Find(&categories).Error
	if err != nil {
		return nil, err
	}

	hasMore := len(categories) > params.Limit
	if hasMore {
		categories = categories[:params.Limit]
	}
	return &CategoryList{Categories: categories, HasMore: hasMore}, nil
}

func (r *repository) UpdateCategory(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Category{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) CountActiveProductsInCategory(ctx context.Context, categoryID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("category_id = ? AND state = ?", categoryID, enums.EntityStateActive).
		Count(&count).Error
	return count, err
}

func (r *repository) CreateProduct(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) FindActiveProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("id = ? AND state = ?", id, enums.EntityStateActive).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) FindProductByIdentity(ctx context.Context, name string, categoryID uuid.UUID, description string, states []string) (*models.Product, error) {
	query := r.db.WithContext(ctx).
		Where("lower(trim(name)) = lower(trim(?))", name).
		Where("category_id = ?", categoryID).
		Where("lower(trim(description)) = lower(trim(?))", description)
	if len(states) > 0 {
		query = query.Where("state IN ?", states)
	}

	var product models.Product
	if err := query.Order("updated_at DESC").First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) ListProducts(ctx context.Context, params pagination.Params, filters ProductFilters) (*ProductList, error) {
	params = params.Normalize()

	query := r.db.WithContext(ctx).Model(&models.Product{})
	if !filters.IncludeInactive {
		query = query.Where("state = ?", enums.EntityStateActive)
	}
	if filters.CategoryID != nil {
		query = query.Where("category_id = ?", *filters.CategoryID)
	}
	if filters.Search != "" {
		query = query.Where("lower(name) LIKE lower(?)", "%"+filters.Search+"%")
	}

	var products []models.Product
	err := query.
		Order("name ASC").
		Offset(params.Offset).
		Limit(params.Limit + 1).
		Find(&products).Error
	if err != nil {
		return nil, err
	}

	hasMore := len(products) > params.Limit
	if hasMore {
		products = products[:params.Limit]
	}
	return &ProductList{Products: products, HasMore: hasMore}, nil
}

func (r *repository) UpdateProduct(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(updates).Error
}
