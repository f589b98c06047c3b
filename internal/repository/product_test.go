package repository

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"classifieds/internal/models"
	"classifieds/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
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

func ptr[T any](v T) *T { return &v }

func TestProductRepository_List(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	f := testutil.NewFactory(t, db)
	repo := NewProductRepository(db)
	ctx := context.Background()

	electronics := f.Category(func(c *models.Category) { c.Name = "Electronics" })
	furniture := f.Category(func(c *models.Category) { c.Name = "Furniture" })

	phone := f.Product(1, testutil.InCategory(electronics), testutil.WithPrice("199.99"),
		testutil.WithTitle("Android Phone", "Barely used smartphone"))
	laptop := f.Product(2, testutil.InCategory(electronics), testutil.WithPrice("850.00"),
		testutil.WithTitle("Laptop", "Fast machine, PHONE charger included"), func(p *models.Product) {
			p.Condition = models.ConditionRefurbished
		})
	chair := f.Product(1, testutil.InCategory(furniture), testutil.WithPrice("40.00"),
		testutil.WithTitle("Office chair", "Ergonomic 100% mesh"))
	f.Product(3, testutil.InCategory(electronics), testutil.WithStatus(models.StatusSold),
		testutil.WithTitle("Sold phone", "phone"))
	f.Product(3, testutil.WithStatus(models.StatusReserved), testutil.WithTitle("Reserved phone", "phone"))
	loose := f.Product(4, testutil.WithPrice("5.00"), testutil.WithTitle("Loose cable", "No category"))

	tests := []struct {
		name   string
		filter ProductFilter
		want   []uint
	}{
		{name: "no filter returns available newest first", want: []uint{loose.ID, chair.ID, laptop.ID, phone.ID}},
		{name: "query matches title or description case-insensitively", filter: ProductFilter{Query: "phone"}, want: []uint{laptop.ID, phone.ID}},
		{name: "query wildcards match literally", filter: ProductFilter{Query: "100%"}, want: []uint{chair.ID}},
		{name: "underscore is literal", filter: ProductFilter{Query: "_"}, want: []uint{}},
		{name: "category", filter: ProductFilter{CategoryID: &electronics.ID}, want: []uint{laptop.ID, phone.ID}},
		{name: "unknown category", filter: ProductFilter{CategoryID: ptr(uint(999))}, want: []uint{}},
		{name: "condition", filter: ProductFilter{Condition: models.ConditionRefurbished}, want: []uint{laptop.ID}},
		{name: "unrecognized condition yields nothing", filter: ProductFilter{Condition: "broken"}, want: []uint{}},
		{name: "max price is inclusive", filter: ProductFilter{MaxPrice: ptr(decimal.RequireFromString("199.99"))}, want: []uint{loose.ID, chair.ID, phone.ID}},
		{
			name:   "filters compose conjunctively",
			filter: ProductFilter{Query: "phone", CategoryID: &electronics.ID, MaxPrice: ptr(decimal.RequireFromString("500"))},
			want:   []uint{phone.ID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			products, total, err := repo.List(ctx, tt.filter, 12, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(products))
			assert.Equal(t, int64(len(tt.want)), total)
		})
	}

	t.Run("category is preloaded", func(t *testing.T) {
		products, _, err := repo.List(ctx, ProductFilter{CategoryID: &furniture.ID}, 12, 0)
		require.NoError(t, err)
		require.Len(t, products, 1)
		require.NotNil(t, products[0].Category)
		assert.Equal(t, "Furniture", products[0].Category.Name)
	})

	t.Run("pagination", func(t *testing.T) {
		page, total, err := repo.List(ctx, ProductFilter{}, 3, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		assert.Equal(t, []uint{phone.ID}, ids(page))

		page, _, err = repo.List(ctx, ProductFilter{}, 3, 6)
		require.NoError(t, err)
		assert.Empty(t, page)
	})
}

func TestProductRepository_FilterCompositionIsConjunction(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	f := testutil.NewFactory(t, db)
	repo := NewProductRepository(db)
	ctx := context.Background()

	cats := []*models.Category{f.Category(), f.Category()}
	for i := 0; i < 30; i++ {
		cond := models.ProductConditions[i%3]
		price := decimal.NewFromInt(int64(10 * (i%7 + 1)))
		title := "item"
		if i%4 == 0 {
			title = "Vintage item"
		}
		f.Product(uint(i%5+1), testutil.InCategory(cats[i%2]), func(p *models.Product) {
			p.Condition = cond
			p.Price = price
			p.Title = title
			p.Description = "plain"
		})
	}

	filters := []ProductFilter{
		{Query: "vintage"},
		{CategoryID: &cats[0].ID},
		{Condition: models.ConditionNew},
		{MaxPrice: ptr(decimal.NewFromInt(40))},
	}

	set := func(filter ProductFilter) map[uint]bool {
		products, _, err := repo.List(ctx, filter, 100, 0)
		require.NoError(t, err)
		out := map[uint]bool{}
		for _, p := range products {
			out[p.ID] = true
		}
		return out
	}

	// Every combination of the individual filters must equal the intersection of their result sets.
	for mask := 1; mask < 1<<len(filters); mask++ {
		var combined ProductFilter
		var expected map[uint]bool
		for i, single := range filters {
			if mask&(1<<i) == 0 {
				continue
			}
			if single.Query != "" {
				combined.Query = single.Query
			}
			if single.CategoryID != nil {
				combined.CategoryID = single.CategoryID
			}
			if single.Condition != "" {
				combined.Condition = single.Condition
			}
			if single.MaxPrice != nil {
				combined.MaxPrice = single.MaxPrice
			}
			s := set(single)
			if expected == nil {
				expected = s
				continue
			}
			for id := range expected {
				if !s[id] {
					delete(expected, id)
				}
			}
		}
		assert.Equal(t, expected, set(combined), "mask %b", mask)
	}
}

func TestProductRepository_FeaturedAndRelated(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	f := testutil.NewFactory(t, db)
	repo := NewProductRepository(db)
	ctx := context.Background()

	cat := f.Category()
	var inCategory []*models.Product
	for i := 0; i < 6; i++ {
		inCategory = append(inCategory, f.Product(uint(i+1), testutil.InCategory(cat)))
	}
	f.Product(1, testutil.InCategory(cat), testutil.WithStatus(models.StatusSold))
	uncategorized := f.Product(2)
	otherUncategorized := f.Product(3)
	for i := 0; i < 4; i++ {
		f.Product(9, testutil.WithStatus(models.StatusReserved))
	}

	featured, err := repo.Featured(ctx, 8)
	require.NoError(t, err)
	assert.Len(t, featured, 8)
	for _, p := range featured {
		assert.Equal(t, models.StatusAvailable, p.Status)
	}
	assert.Equal(t, otherUncategorized.ID, featured[0].ID)

	related, err := repo.Related(ctx, inCategory[0], 4)
	require.NoError(t, err)
	require.Len(t, related, 4)
	for _, p := range related {
		assert.NotEqual(t, inCategory[0].ID, p.ID)
		require.NotNil(t, p.CategoryID)
		assert.Equal(t, cat.ID, *p.CategoryID)
		assert.Equal(t, models.StatusAvailable, p.Status)
	}

	related, err = repo.Related(ctx, uncategorized, 4)
	require.NoError(t, err)
	assert.Equal(t, []uint{otherUncategorized.ID}, ids(related))
}

func TestProductRepository_Ownership(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	f := testutil.NewFactory(t, db)
	repo := NewProductRepository(db)
	ctx := context.Background()

	owned := f.Product(1)

	got, err := repo.GetOwned(ctx, owned.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, owned.Title, got.Title)

	_, err = repo.GetOwned(ctx, owned.ID, 2)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	update := *got
	update.SellerID = 2
	update.Title = "hijacked"
	err = repo.Update(ctx, &update)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	err = repo.Delete(ctx, owned.ID, 2)
	assert.True(t, models.IsCode(err, models.CodeNotFound))

	reloaded, err := repo.GetByID(ctx, owned.ID)
	require.NoError(t, err)
	assert.Equal(t, owned.Title, reloaded.Title)

	update = *got
	update.Title = "Renamed"
	update.Status = models.StatusSold
	update.CategoryID = nil
	require.NoError(t, repo.Update(ctx, &update))
	reloaded, err = repo.GetByID(ctx, owned.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", reloaded.Title)
	assert.Equal(t, models.StatusSold, reloaded.Status)

	require.NoError(t, repo.Delete(ctx, owned.ID, 1))
	_, err = repo.GetByID(ctx, owned.ID)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestProductRepository_CreateIgnoresAssociations(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	f := testutil.NewFactory(t, db)
	repo := NewProductRepository(db)

	p := f.BuildProduct(5)
	p.Category = &models.Category{Name: "smuggled"}
	require.NoError(t, repo.Create(context.Background(), p))
	assert.NotZero(t, p.ID)

	var count int64
	require.NoError(t, db.Model(&models.Category{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestProductRepository_IncrementViewsConcurrent(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	f := testutil.NewFactory(t, db)
	repo := NewProductRepository(db)
	ctx := context.Background()

	p := f.Product(1)
	const n = 50

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.IncrementViews(ctx, p.ID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	reloaded, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(n), reloaded.Views)
	assert.True(t, reloaded.UpdatedAt.Equal(p.UpdatedAt), "view counting must not touch updated_at")

	err = repo.IncrementViews(ctx, 9999)
	assert.True(t, models.IsCode(err, models.CodeNotFound))
}

func TestProductRepository_IncrementViewsSQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewProductRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "products" SET "views"=views + $1 WHERE id = $2`)).
		WithArgs(1, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.IncrementViews(context.Background(), 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_ListSQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewProductRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "products" WHERE products.status = $1 AND (LOWER(products.title) LIKE $2 ESCAPE '\' OR LOWER(products.description) LIKE $3 ESCAPE '\')`)).
		WithArgs("available", `%50\%%`, `%50\%%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	products, total, err := repo.List(context.Background(), ProductFilter{Query: " 50% "}, 12, 0)
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslateError(t *testing.T) {
	assert.Nil(t, translateError(nil, "Product", 1))

	fk := translateError(&pgconn.PgError{Code: "23503", ConstraintName: "fk_products_category"}, "Product", 1)
	assert.True(t, models.IsCode(fk, models.CodeValidation))
	var appErr *models.AppError
	require.True(t, errors.As(fk, &appErr))
	assert.Contains(t, appErr.Fields, "category")

	assert.True(t, models.IsCode(translateError(&pgconn.PgError{Code: "23514"}, "Product", 1), models.CodeValidation))
	assert.True(t, models.IsCode(translateError(&pgconn.PgError{Code: "23505"}, "Favorite", 1), models.CodeConflict))
	assert.True(t, models.IsCode(translateError(errors.New("conn reset"), "Product", 1), models.CodeInternal))
}
