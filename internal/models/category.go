// Package models contains the marketplace domain models and the application error type.
package models

// Category groups products for browsing and filtering.
type Category struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:100;not null" json:"name"`
	Description string `gorm:"type:text;not null;default:''" json:"description"`
	Icon        string `gorm:"size:50;not null;default:''" json:"icon"`
}

// TableName pins the table name used by the SQL migrations.
func (Category) TableName() string {
	return "categories"
}
