package models

import "time"

// ProductImage references an object in the image store. At most one image per
// product has IsMain set; a partial unique index enforces it.
type ProductImage struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ProductID  uint      `gorm:"not null;index;uniqueIndex:idx_product_images_one_main,where:is_main" json:"product_id"`
	Image      string    `gorm:"size:255;not null" json:"image"`
	IsMain     bool      `gorm:"not null;default:false" json:"is_main"`
	UploadedAt time.Time `gorm:"autoCreateTime" json:"uploaded_at"`

	// URL is a presigned download link, filled in when object storage is configured.
	URL string `gorm:"-" json:"url,omitempty"`
}

func (ProductImage) TableName() string {
	return "product_images"
}
