package database

import "classifieds/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models,
// parents before children.
func PersistentModels() []any {
	return []any{
		&models.Category{},
		&models.Product{},
		&models.ProductImage{},
		&models.Message{},
		&models.Favorite{},
	}
}
