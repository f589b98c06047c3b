package repository

import (
	"context"

	"classifieds/internal/models"

	"gorm.io/gorm"
)

// ImageRepository defines storage operations for product image references.
type ImageRepository interface {
	Create(ctx context.Context, image *models.ProductImage) error
	ListByProduct(ctx context.Context, productID uint) ([]models.ProductImage, error)
	SetMain(ctx context.Context, productID, imageID uint) (*models.ProductImage, error)
}

type imageRepository struct {
	db *gorm.DB
}

// NewImageRepository creates a new product image repository
func NewImageRepository(db *gorm.DB) ImageRepository {
	return &imageRepository{db: db}
}

// Create stores the image reference. The first image of a product, or one flagged
// IsMain, becomes the main image and is mirrored into products.image.
func (r *imageRepository) Create(ctx context.Context, image *models.ProductImage) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.ProductImage{}).Where("product_id = ?", image.ProductID).Count(&existing).Error; err != nil {
			return err
		}

		makeMain := image.IsMain || existing == 0
		if makeMain {
			if err := clearMain(tx, image.ProductID); err != nil {
				return err
			}
		}
		image.IsMain = makeMain
		if err := tx.Create(image).Error; err != nil {
			return err
		}
		if makeMain {
			return mirrorMain(tx, image)
		}
		return nil
	})
	return translateError(err, "Product image", image.ID)
}

func (r *imageRepository) ListByProduct(ctx context.Context, productID uint) ([]models.ProductImage, error) {
	images := []models.ProductImage{}
	err := r.db.WithContext(ctx).
		Scopes(withImages).
		Where("product_id = ?", productID).
		Find(&images).Error
	if err != nil {
		return nil, translateError(err, "Product image", nil)
	}
	return images, nil
}

// SetMain makes imageID the only main image of productID.
func (r *imageRepository) SetMain(ctx context.Context, productID, imageID uint) (*models.ProductImage, error) {
	var image models.ProductImage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", productID).First(&image, imageID).Error; err != nil {
			return err
		}
		if err := clearMain(tx, productID); err != nil {
			return err
		}
		if err := tx.Model(&image).UpdateColumn("is_main", true).Error; err != nil {
			return err
		}
		image.IsMain = true
		return mirrorMain(tx, &image)
	})
	if err != nil {
		return nil, translateError(err, "Product image", imageID)
	}
	return &image, nil
}

func clearMain(tx *gorm.DB, productID uint) error {
	return tx.Model(&models.ProductImage{}).
		Where("product_id = ? AND is_main = ?", productID, true).
		UpdateColumn("is_main", false).Error
}

func mirrorMain(tx *gorm.DB, image *models.ProductImage) error {
	return tx.Model(&models.Product{}).
		Where("id = ?", image.ProductID).
		UpdateColumn("image", image.Image).Error
}
