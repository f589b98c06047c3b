package repository

import (
	"context"
	"strings"

	"classifieds/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductFilter narrows the browsable listing. Zero values mean "no filter".
type ProductFilter struct {
	// Query is matched case-insensitively against title or description.
	Query      string
	CategoryID *uint
	Condition  models.ProductCondition
	// MaxPrice is an inclusive upper bound.
	MaxPrice *decimal.Decimal
}

// ProductRepository defines the interface for product data operations
type ProductRepository interface {
	List(ctx context.Context, filter ProductFilter, limit, offset int) ([]models.Product, int64, error)
	Featured(ctx context.Context, limit int) ([]models.Product, error)
	GetByID(ctx context.Context, id uint) (*models.Product, error)
	GetOwned(ctx context.Context, id, sellerID uint) (*models.Product, error)
	Related(ctx context.Context, product *models.Product, limit int) ([]models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id, sellerID uint) error
	IncrementViews(ctx context.Context, id uint) error
}

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

// available scopes a query to browsable products, newest first.
func available(db *gorm.DB) *gorm.DB {
	return db.Where("products.status = ?", models.StatusAvailable).
		Order("products.created_at DESC").
		Order("products.id DESC")
}

func (r *productRepository) filtered(ctx context.Context, filter ProductFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("products.status = ?", models.StatusAvailable)

	if query := strings.TrimSpace(filter.Query); query != "" {
		pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
		// GORM wraps the OR in parentheses because the status condition is always present.
		q = q.Where(`LOWER(products.title) LIKE ? ESCAPE '\' OR LOWER(products.description) LIKE ? ESCAPE '\'`, pattern, pattern)
	}
	if filter.CategoryID != nil {
		q = q.Where("products.category_id = ?", *filter.CategoryID)
	}
	if filter.Condition != "" {
		q = q.Where(clause.Eq{Column: clause.Column{Table: "products", Name: "condition"}, Value: filter.Condition})
	}
	if filter.MaxPrice != nil {
		q = q.Where("products.price <= ?", *filter.MaxPrice)
	}
	return q
}

// List returns one page of available products matching filter, with the total match count.
func (r *productRepository) List(ctx context.Context, filter ProductFilter, limit, offset int) ([]models.Product, int64, error) {
	var total int64
	if err := r.filtered(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, translateError(err, "Product", nil)
	}

	products := []models.Product{}
	if total == 0 || int64(offset) >= total {
		return products, total, nil
	}

	err := r.filtered(ctx, filter).
		Preload("Category").
		Order("products.created_at DESC").
		Order("products.id DESC").
		Limit(limit).
		Offset(offset).
		Find(&products).Error
	if err != nil {
		return nil, 0, translateError(err, "Product", nil)
	}
	return products, total, nil
}

// Featured returns the newest available products.
func (r *productRepository) Featured(ctx context.Context, limit int) ([]models.Product, error) {
	products := []models.Product{}
	err := r.db.WithContext(ctx).
		Scopes(available).
		Preload("Category").
		Limit(limit).
		Find(&products).Error
	if err != nil {
		return nil, translateError(err, "Product", nil)
	}
	return products, nil
}

func withImages(db *gorm.DB) *gorm.DB {
	return db.Order("is_main DESC").Order("uploaded_at ASC").Order("id ASC")
}

// GetByID returns a product of any status with its category and images.
func (r *productRepository) GetByID(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Category").
		Preload("Images", withImages).
		First(&product, id).Error
	if err != nil {
		return nil, translateError(err, "Product", id)
	}
	return &product, nil
}

// GetOwned returns the product only when sellerID owns it. Products of other
// sellers are reported as not found.
func (r *productRepository) GetOwned(ctx context.Context, id, sellerID uint) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Category").
		Preload("Images", withImages).
		Where("products.seller_id = ?", sellerID).
		First(&product, id).Error
	if err != nil {
		return nil, translateError(err, "Product", id)
	}
	return &product, nil
}

// Related returns other available products sharing product's category. A product
// without category is related to the other uncategorized products.
func (r *productRepository) Related(ctx context.Context, product *models.Product, limit int) ([]models.Product, error) {
	q := r.db.WithContext(ctx).
		Scopes(available).
		Preload("Category").
		Where("products.id <> ?", product.ID)
	if product.CategoryID != nil {
		q = q.Where("products.category_id = ?", *product.CategoryID)
	} else {
		q = q.Where("products.category_id IS NULL")
	}

	related := []models.Product{}
	if err := q.Limit(limit).Find(&related).Error; err != nil {
		return nil, translateError(err, "Product", product.ID)
	}
	return related, nil
}

func (r *productRepository) Create(ctx context.Context, product *models.Product) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(product).Error
	return translateError(err, "Product", product.ID)
}

// Update writes the editable fields of product, scoped to its seller.
func (r *productRepository) Update(ctx context.Context, product *models.Product) error {
	result := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND seller_id = ?", product.ID, product.SellerID).
		Select("title", "description", "price", "category_id", "condition", "status", "location", "updated_at").
		Updates(product)
	if result.Error != nil {
		return translateError(result.Error, "Product", product.ID)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Product", product.ID)
	}
	return nil
}

// Delete removes the product owned by sellerID. Images, messages and favorites
// go with it through ON DELETE CASCADE.
func (r *productRepository) Delete(ctx context.Context, id, sellerID uint) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND seller_id = ?", id, sellerID).
		Delete(&models.Product{})
	if result.Error != nil {
		return translateError(result.Error, "Product", id)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Product", id)
	}
	return nil
}

// IncrementViews adds one view in a single UPDATE so concurrent viewers never lose counts.
// updated_at is left untouched.
func (r *productRepository) IncrementViews(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + ?", 1))
	if result.Error != nil {
		return translateError(result.Error, "Product", id)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Product", id)
	}
	return nil
}
