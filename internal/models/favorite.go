package models

import "time"

// Favorite marks a product as saved by a user. It has no endpoint yet.
type Favorite struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_favorites_user_product,priority:1" json:"user_id"`
	ProductID uint      `gorm:"not null;uniqueIndex:idx_favorites_user_product,priority:2;index" json:"product_id"`
	AddedAt   time.Time `gorm:"autoCreateTime" json:"added_at"`
}

func (Favorite) TableName() string {
	return "favorites"
}
