package testutil

import (
	"testing"
	"time"

	"classifieds/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Factory builds marketplace entities with plausible fake data and persists them.
type Factory struct {
	t  testing.TB
	db *gorm.DB
	// created_at is spaced one second apart so ordering by recency is deterministic.
	clock time.Time
}

// NewFactory creates a Factory bound to db.
func NewFactory(t testing.TB, db *gorm.DB) *Factory {
	return &Factory{t: t, db: db, clock: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *Factory) create(value any) {
	f.t.Helper()
	if err := f.db.Create(value).Error; err != nil {
		f.t.Fatalf("create %T: %v", value, err)
	}
}

// Category persists a category.
func (f *Factory) Category(overrides ...func(*models.Category)) *models.Category {
	f.t.Helper()
	c := &models.Category{
		Name:        gofakeit.ProductCategory(),
		Description: gofakeit.Sentence(8),
		Icon:        "bi-" + gofakeit.Word(),
	}
	for _, o := range overrides {
		o(c)
	}
	f.create(c)
	return c
}

// BuildProduct returns an unsaved available product sold by sellerID.
func (f *Factory) BuildProduct(sellerID uint, overrides ...func(*models.Product)) *models.Product {
	f.clock = f.clock.Add(time.Second)
	p := &models.Product{
		SellerID:    sellerID,
		Title:       gofakeit.ProductName(),
		Description: gofakeit.ProductDescription(),
		Price:       decimal.NewFromFloat(gofakeit.Price(1, 500)).Round(2),
		Condition:   models.ConditionUsed,
		Status:      models.StatusAvailable,
		Location:    gofakeit.City(),
		CreatedAt:   f.clock,
		UpdatedAt:   f.clock,
	}
	for _, o := range overrides {
		o(p)
	}
	return p
}

// Product persists a product sold by sellerID. Later calls are newer.
func (f *Factory) Product(sellerID uint, overrides ...func(*models.Product)) *models.Product {
	f.t.Helper()
	p := f.BuildProduct(sellerID, overrides...)
	f.create(p)
	return p
}

// Message persists a message from senderID about product.
func (f *Factory) Message(product *models.Product, senderID uint, overrides ...func(*models.Message)) *models.Message {
	f.t.Helper()
	f.clock = f.clock.Add(time.Second)
	m := &models.Message{
		ProductID:  product.ID,
		SenderID:   senderID,
		ReceiverID: product.SellerID,
		Content:    gofakeit.Sentence(10),
		Timestamp:  f.clock,
	}
	for _, o := range overrides {
		o(m)
	}
	f.create(m)
	return m
}

// InCategory sets the product category.
func InCategory(c *models.Category) func(*models.Product) {
	return func(p *models.Product) {
		p.CategoryID = &c.ID
	}
}

// WithStatus sets the product status.
func WithStatus(s models.ProductStatus) func(*models.Product) {
	return func(p *models.Product) {
		p.Status = s
	}
}

// WithPrice sets the product price from a decimal string.
func WithPrice(price string) func(*models.Product) {
	return func(p *models.Product) {
		p.Price = decimal.RequireFromString(price)
	}
}

// WithTitle sets the product title and description.
func WithTitle(title, description string) func(*models.Product) {
	return func(p *models.Product) {
		p.Title = title
		p.Description = description
	}
}
