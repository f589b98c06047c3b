package service

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"classifieds/internal/authz"
	"classifieds/internal/models"
	"classifieds/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(products []models.Product) []uint {
	out := make([]uint, 0, len(products))
	for _, p := range products {
		out = append(out, p.ID)
	}
	return out
}

func TestListingService_ListOnlyAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	avail := f.factory.Product(sellerID)
	f.factory.Product(sellerID, testutil.WithStatus(models.StatusSold))
	f.factory.Product(sellerID, testutil.WithStatus(models.StatusReserved))

	result, err := f.listings.List(ctx, ListInput{})
	require.NoError(t, err)
	assert.Equal(t, []uint{avail.ID}, ids(result.Products))
	assert.Equal(t, int64(1), result.Count)
	assert.Equal(t, 1, result.NumPages)
	assert.False(t, result.HasNext)
	assert.False(t, result.HasPrevious)
}

func TestListingService_ListFiltersCompose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	phones := f.factory.Category(func(c *models.Category) { c.Name = "Phones" })
	books := f.factory.Category(func(c *models.Category) { c.Name = "Books" })

	match := f.factory.Product(sellerID, testutil.InCategory(phones), testutil.WithPrice("150.00"),
		testutil.WithTitle("Vintage Phone", "Rotary dial"), func(p *models.Product) { p.Condition = models.ConditionNew })
	f.factory.Product(sellerID, testutil.InCategory(phones), testutil.WithPrice("150.00"),
		testutil.WithTitle("Vintage phone", "Rotary dial"), func(p *models.Product) { p.Condition = models.ConditionUsed })
	f.factory.Product(sellerID, testutil.InCategory(phones), testutil.WithPrice("250.00"),
		testutil.WithTitle("vintage PHONE", "Rotary dial"), func(p *models.Product) { p.Condition = models.ConditionNew })
	f.factory.Product(sellerID, testutil.InCategory(books), testutil.WithPrice("10.00"),
		testutil.WithTitle("Paperback", "A vintage phone directory"), func(p *models.Product) { p.Condition = models.ConditionNew })
	descMatch := f.factory.Product(sellerID, testutil.InCategory(phones), testutil.WithPrice("20.00"),
		testutil.WithTitle("Handset", "A VINTAGE phone part"), func(p *models.Product) { p.Condition = models.ConditionNew })

	result, err := f.listings.List(ctx, ListInput{
		Query:     "vintage phone",
		Category:  strconv.FormatUint(uint64(phones.ID), 10),
		Condition: "new",
		MaxPrice:  "150",
	})
	require.NoError(t, err)
	assert.Equal(t, []uint{descMatch.ID, match.ID}, ids(result.Products))
	for _, p := range result.Products {
		require.NotNil(t, p.Category)
		assert.Equal(t, "Phones", p.Category.Name)
	}
	assert.Len(t, result.Categories, 2)
}

func TestListingService_ListMalformedParameters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cheap := f.factory.Product(sellerID, testutil.WithPrice("5.00"))
	pricey := f.factory.Product(sellerID, testutil.WithPrice("500.00"))

	unset, err := f.listings.List(ctx, ListInput{})
	require.NoError(t, err)

	t.Run("non numeric max_price is ignored", func(t *testing.T) {
		result, err := f.listings.List(ctx, ListInput{MaxPrice: "abc"})
		require.NoError(t, err)
		assert.Equal(t, ids(unset.Products), ids(result.Products))
	})

	t.Run("oversized max_price is ignored", func(t *testing.T) {
		for _, raw := range []string{"1e20000000", "-1e20000000", "1e-20000000", "99999999.99", "1" + strings.Repeat("0", 40)} {
			result, err := f.listings.List(ctx, ListInput{MaxPrice: raw})
			require.NoError(t, err, raw)
			assert.Equal(t, ids(unset.Products), ids(result.Products), raw)
		}
	})

	t.Run("whitespace parameters are absent", func(t *testing.T) {
		result, err := f.listings.List(ctx, ListInput{Query: "  ", Category: " ", Condition: " ", MaxPrice: " "})
		require.NoError(t, err)
		assert.Equal(t, []uint{pricey.ID, cheap.ID}, ids(result.Products))
	})

	t.Run("max_price is inclusive", func(t *testing.T) {
		result, err := f.listings.List(ctx, ListInput{MaxPrice: "5"})
		require.NoError(t, err)
		assert.Equal(t, []uint{cheap.ID}, ids(result.Products))
	})

	t.Run("unknown condition matches nothing", func(t *testing.T) {
		result, err := f.listings.List(ctx, ListInput{Condition: "broken"})
		require.NoError(t, err)
		assert.Empty(t, result.Products)
	})

	t.Run("non numeric category matches nothing", func(t *testing.T) {
		result, err := f.listings.List(ctx, ListInput{Category: "phones"})
		require.NoError(t, err)
		assert.Empty(t, result.Products)
		assert.Equal(t, int64(0), result.Count)
	})

	t.Run("like wildcards match literally", func(t *testing.T) {
		result, err := f.listings.List(ctx, ListInput{Query: "%"})
		require.NoError(t, err)
		assert.Empty(t, result.Products)
	})
}

func TestListingService_ListPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var oldest *models.Product
	for i := 0; i < PageSize+1; i++ {
		p := f.factory.Product(sellerID)
		if oldest == nil {
			oldest = p
		}
	}

	first, err := f.listings.List(ctx, ListInput{})
	require.NoError(t, err)
	assert.Len(t, first.Products, PageSize)
	assert.Equal(t, 2, first.NumPages)
	assert.True(t, first.HasNext)

	second, err := f.listings.List(ctx, ListInput{Page: "2"})
	require.NoError(t, err)
	assert.Equal(t, []uint{oldest.ID}, ids(second.Products))
	assert.True(t, second.HasPrevious)
	assert.False(t, second.HasNext)

	for _, page := range []string{"3", "0", "abc"} {
		_, err := f.listings.List(ctx, ListInput{Page: page})
		assert.True(t, models.IsCode(err, models.CodeNotFound), page)
	}
}

func TestListingService_EmptyListingFirstPage(t *testing.T) {
	f := newFixture(t)
	result, err := f.listings.List(context.Background(), ListInput{Page: "1"})
	require.NoError(t, err)
	assert.Empty(t, result.Products)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 1, result.NumPages)
}

func TestListingService_Home(t *testing.T) {
	f := newFixture(t)
	f.factory.Category()
	for i := 0; i < FeaturedLimit+2; i++ {
		f.factory.Product(sellerID)
	}
	f.factory.Product(sellerID, testutil.WithStatus(models.StatusSold))

	result, err := f.listings.Home(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.FeaturedProducts, FeaturedLimit)
	assert.Len(t, result.Categories, 1)
	for _, p := range result.FeaturedProducts {
		assert.Equal(t, models.StatusAvailable, p.Status)
	}
}

func TestListingService_DetailCountsViewsAndRelated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cat := f.factory.Category()
	other := f.factory.Category()
	product := f.factory.Product(sellerID, testutil.InCategory(cat))
	for i := 0; i < RelatedLimit+1; i++ {
		f.factory.Product(sellerID, testutil.InCategory(cat))
	}
	f.factory.Product(sellerID, testutil.InCategory(cat), testutil.WithStatus(models.StatusSold))
	f.factory.Product(sellerID, testutil.InCategory(other))

	result, err := f.listings.Detail(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(1), result.Product.Views)
	assert.Len(t, result.RelatedProducts, RelatedLimit)
	for _, p := range result.RelatedProducts {
		assert.NotEqual(t, product.ID, p.ID)
		assert.Equal(t, cat.ID, *p.CategoryID)
		assert.Equal(t, models.StatusAvailable, p.Status)
	}

	_, err = f.listings.Detail(ctx, product.ID)
	require.NoError(t, err)

	stored, err := f.products.GetByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(2), stored.Views)
	assert.True(t, stored.UpdatedAt.Equal(product.UpdatedAt), "views do not touch updated_at")
}

func TestListingService_DetailAnyStatusAndMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sold := f.factory.Product(sellerID, testutil.WithStatus(models.StatusSold))
	result, err := f.listings.Detail(ctx, sold.ID)
	require.NoError(t, err)
	assert.Equal(t, sold.ID, result.Product.ID)

	_, err = f.listings.Detail(ctx, 9999)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func validInput(categoryID uint) ProductInput {
	return ProductInput{
		Title:       "Mountain bike",
		Description: "Barely used",
		Price:       "120.50",
		Category:    strconv.FormatUint(uint64(categoryID), 10),
		Condition:   "used",
		Location:    "Madrid",
	}
}

func TestListingService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.factory.Category()

	t.Run("seller is the caller", func(t *testing.T) {
		product, err := f.listings.Create(ctx, seller, validInput(cat.ID))
		require.NoError(t, err)
		assert.Equal(t, sellerID, product.SellerID)
		assert.Equal(t, models.StatusAvailable, product.Status)
		assert.True(t, decimal.RequireFromString("120.50").Equal(product.Price))

		stored, err := f.products.GetByID(ctx, product.ID)
		require.NoError(t, err)
		assert.Equal(t, sellerID, stored.SellerID)
	})

	t.Run("status is ignored on create", func(t *testing.T) {
		in := validInput(cat.ID)
		in.Status = "sold"
		product, err := f.listings.Create(ctx, seller, in)
		require.NoError(t, err)
		assert.Equal(t, models.StatusAvailable, product.Status)
	})

	t.Run("condition defaults to used", func(t *testing.T) {
		in := validInput(cat.ID)
		in.Condition = ""
		product, err := f.listings.Create(ctx, seller, in)
		require.NoError(t, err)
		assert.Equal(t, models.ConditionUsed, product.Condition)
	})

	t.Run("anonymous caller", func(t *testing.T) {
		_, err := f.listings.Create(ctx, anonymous, validInput(cat.ID))
		assert.True(t, models.IsCode(err, models.CodeUnauthorized))
	})
}

func TestListingService_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.factory.Category()

	tests := []struct {
		name   string
		mutate func(*ProductInput)
		field  string
	}{
		{"negative price", func(in *ProductInput) { in.Price = "-5.00" }, "price"},
		{"price not a number", func(in *ProductInput) { in.Price = "cheap" }, "price"},
		{"too many decimals", func(in *ProductInput) { in.Price = "1.999" }, "price"},
		{"price too large", func(in *ProductInput) { in.Price = "100000000" }, "price"},
		{"missing title", func(in *ProductInput) { in.Title = " " }, "title"},
		{"long title", func(in *ProductInput) { in.Title = string(make([]rune, 201)) }, "title"},
		{"missing description", func(in *ProductInput) { in.Description = "" }, "description"},
		{"unknown category", func(in *ProductInput) { in.Category = "9999" }, "category"},
		{"bad category", func(in *ProductInput) { in.Category = "x" }, "category"},
		{"missing category", func(in *ProductInput) { in.Category = "" }, "category"},
		{"bad condition", func(in *ProductInput) { in.Condition = "mint" }, "condition"},
		{"missing location", func(in *ProductInput) { in.Location = "" }, "location"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput(cat.ID)
			tt.mutate(&in)

			_, err := f.listings.Create(ctx, seller, in)
			require.Error(t, err)
			var appErr *models.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, models.CodeValidation, appErr.Code)
			assert.Contains(t, appErr.Fields, tt.field)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&models.Product{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListingService_OwnershipScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.factory.Category()
	product := f.factory.Product(sellerID, testutil.InCategory(cat), testutil.WithTitle("Original", "Untouched"))

	t.Run("edit form for owner", func(t *testing.T) {
		form, err := f.listings.EditForm(ctx, seller, product.ID)
		require.NoError(t, err)
		assert.Equal(t, product.ID, form.Product.ID)
		assert.Equal(t, models.ProductStatuses, form.Statuses)
	})

	t.Run("other seller cannot load, edit or delete", func(t *testing.T) {
		_, err := f.listings.GetOwned(ctx, buyer, authz.ActionEdit, product.ID)
		assert.True(t, models.IsCode(err, models.CodeNotFound))

		_, err = f.listings.Update(ctx, buyer, product.ID, validInput(cat.ID))
		assert.True(t, models.IsCode(err, models.CodeNotFound))

		err = f.listings.Delete(ctx, buyer, product.ID)
		assert.True(t, models.IsCode(err, models.CodeNotFound))

		stored, err := f.products.GetByID(ctx, product.ID)
		require.NoError(t, err)
		assert.Equal(t, "Original", stored.Title)
	})

	t.Run("anonymous caller", func(t *testing.T) {
		_, err := f.listings.Update(ctx, anonymous, product.ID, validInput(cat.ID))
		assert.True(t, models.IsCode(err, models.CodeUnauthorized))
		err = f.listings.Delete(ctx, anonymous, product.ID)
		assert.True(t, models.IsCode(err, models.CodeUnauthorized))
	})

	t.Run("owner updates and keeps ownership", func(t *testing.T) {
		in := validInput(cat.ID)
		in.Status = "reserved"
		updated, err := f.listings.Update(ctx, seller, product.ID, in)
		require.NoError(t, err)
		assert.Equal(t, "Mountain bike", updated.Title)
		assert.Equal(t, models.StatusReserved, updated.Status)

		stored, err := f.products.GetByID(ctx, product.ID)
		require.NoError(t, err)
		assert.Equal(t, sellerID, stored.SellerID)
		assert.Equal(t, models.StatusReserved, stored.Status)
	})

	t.Run("owner deletes", func(t *testing.T) {
		require.NoError(t, f.listings.Delete(ctx, seller, product.ID))
		_, err := f.products.GetByID(ctx, product.ID)
		assert.True(t, models.IsCode(err, models.CodeNotFound))
	})
}

func TestListingService_CreateForm(t *testing.T) {
	f := newFixture(t)
	f.factory.Category()

	form, err := f.listings.CreateForm(context.Background(), seller)
	require.NoError(t, err)
	assert.Len(t, form.Categories, 1)
	assert.Equal(t, models.ProductConditions, form.Conditions)

	_, err = f.listings.CreateForm(context.Background(), anonymous)
	assert.True(t, models.IsCode(err, models.CodeUnauthorized))
}

func TestParsePrice(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw   string
		want  string
		valid bool
	}{
		{"0", "0", true},
		{"12.5", "12.5", true},
		{"12.500", "12.5", true},
		{"99999999.99", "99999999.99", true},
		{"-0.01", "", false},
		{"-5.00", "", false},
		{"1e3", "1000", true},
		{"", "", false},
		{"1e20000000", "", false},
		{"1e-20000000", "", false},
		{"0.00000000000001", "", false},
		{"1" + strings.Repeat("0", 40), "", false},
	}
	for _, tt := range tests {
		price, msg := parsePrice(tt.raw)
		if !tt.valid {
			assert.NotEmpty(t, msg, tt.raw)
			continue
		}
		assert.Empty(t, msg, tt.raw)
		assert.True(t, decimal.RequireFromString(tt.want).Equal(price), tt.raw)
	}
}
