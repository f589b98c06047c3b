package service

import (
	"testing"

	"classifieds/internal/authz"
	"classifieds/internal/cache"
	"classifieds/internal/repository"
	"classifieds/internal/testutil"

	"gorm.io/gorm"
)

const (
	sellerID = uint(100)
	buyerID  = uint(200)
)

var (
	seller    = authz.Identity{UserID: sellerID}
	buyer     = authz.Identity{UserID: buyerID}
	anonymous = authz.Identity{}
)

type fixture struct {
	db       *gorm.DB
	factory  *testutil.Factory
	products repository.ProductRepository
	messages repository.MessageRepository
	images   repository.ImageRepository
	listings *ListingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	products := repository.NewProductRepository(db)
	categories := repository.NewCategoryRepository(db)
	categoryCache := cache.NewCategoryCache(categories.List, cache.DefaultCategoryTTL)

	return &fixture{
		db:       db,
		factory:  testutil.NewFactory(t, db),
		products: products,
		messages: repository.NewMessageRepository(db),
		images:   repository.NewImageRepository(db),
		listings: NewListingService(products, categories, categoryCache, authz.NewGuard()),
	}
}
