package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductCondition is the physical state of a listed item.
type ProductCondition string

const (
	ConditionNew         ProductCondition = "new"
	ConditionUsed        ProductCondition = "used"
	ConditionRefurbished ProductCondition = "refurbished"
)

// ProductConditions lists the accepted conditions in display order.
var ProductConditions = []ProductCondition{ConditionNew, ConditionUsed, ConditionRefurbished}

// Valid reports whether c is one of the enumerated conditions.
func (c ProductCondition) Valid() bool {
	switch c {
	case ConditionNew, ConditionUsed, ConditionRefurbished:
		return true
	}
	return false
}

// ProductStatus is the sale state of a listing. Only available listings are browsable.
type ProductStatus string

const (
	StatusAvailable ProductStatus = "available"
	StatusSold      ProductStatus = "sold"
	StatusReserved  ProductStatus = "reserved"
)

// ProductStatuses lists the accepted statuses in display order.
var ProductStatuses = []ProductStatus{StatusAvailable, StatusSold, StatusReserved}

// Valid reports whether s is one of the enumerated statuses.
func (s ProductStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusSold, StatusReserved:
		return true
	}
	return false
}

// Product is a listing offered for sale by SellerID.
type Product struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	SellerID    uint             `gorm:"not null;index" json:"seller_id"`
	Title       string           `gorm:"size:200;not null" json:"title"`
	Description string           `gorm:"type:text;not null" json:"description"`
	Price       decimal.Decimal  `gorm:"type:decimal(10,2);not null;check:chk_products_price_non_negative,price >= 0" json:"price" swaggertype:"string"`
	CategoryID  *uint            `gorm:"index" json:"category_id"`
	Category    *Category        `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL" json:"category,omitempty"`
	Condition   ProductCondition `gorm:"size:20;not null;default:used" json:"condition"`
	Status      ProductStatus    `gorm:"size:20;not null;default:available;index" json:"status"`
	Location    string           `gorm:"size:100;not null" json:"location"`
	CreatedAt   time.Time        `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Views       uint             `gorm:"not null;default:0" json:"views"`
	// Image mirrors the object key of the main ProductImage.
	Image  *string        `gorm:"size:255" json:"image"`
	Images []ProductImage `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"images,omitempty"`

	Messages  []Message  `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"-"`
	Favorites []Favorite `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName pins the table name used by the SQL migrations.
func (Product) TableName() string {
	return "products"
}
