package service

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"classifieds/internal/authz"
	"classifieds/internal/models"
	"classifieds/internal/observability"
	"classifieds/internal/repository"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	PageSize      = 12
	FeaturedLimit = 8
	RelatedLimit  = 4

	maxTitleLen    = 200
	maxLocationLen = 100
)

// maxPrice is the largest value a decimal(10,2) column holds.
var maxPrice = decimal.RequireFromString("99999999.99")

// Decimal inputs outside these bounds are rejected before any arithmetic.
const (
	maxDecimalInputLen = 32
	minDecimalExponent = -10
	maxDecimalExponent = 10
)

// parseDecimal parses user supplied money, refusing oversized text and extreme exponents.
func parseDecimal(raw string) (decimal.Decimal, bool) {
	if len(raw) > maxDecimalInputLen {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	if exp := d.Exponent(); exp < minDecimalExponent || exp > maxDecimalExponent {
		return decimal.Zero, false
	}
	return d, true
}

// CategoryProvider supplies the category list, usually through cache.CategoryCache.
type CategoryProvider interface {
	Categories(ctx context.Context) ([]models.Category, error)
}

type ListingService struct {
	products   repository.ProductRepository
	categories repository.CategoryRepository
	cache      CategoryProvider
	guard      *authz.Guard
	now        func() time.Time
}

// ListInput carries the raw query parameters of the listing page.
type ListInput struct {
	Query     string
	Category  string
	Condition string
	MaxPrice  string
	Page      string
}

// ListResult is one page of the browsable listing.
type ListResult struct {
	Products    []models.Product  `json:"products"`
	Categories  []models.Category `json:"categories"`
	Page        int               `json:"page"`
	NumPages    int               `json:"num_pages"`
	Count       int64             `json:"count"`
	HasNext     bool              `json:"has_next"`
	HasPrevious bool              `json:"has_previous"`
}

type HomeResult struct {
	FeaturedProducts []models.Product  `json:"featured_products"`
	Categories       []models.Category `json:"categories"`
}

type DetailResult struct {
	Product         *models.Product  `json:"product"`
	RelatedProducts []models.Product `json:"related_products"`
}

// FormResult describes the choices of the product form.
type FormResult struct {
	Categories []models.Category         `json:"categories"`
	Conditions []models.ProductCondition `json:"conditions"`
	Statuses   []models.ProductStatus    `json:"statuses,omitempty"`
	Product    *models.Product           `json:"product,omitempty"`
}

// ProductInput is the submitted product form. Values arrive as text and are
// validated together so every problem is reported at once.
type ProductInput struct {
	Title       string
	Description string
	Price       string
	Category    string
	Condition   string
	Status      string
	Location    string
}

func NewListingService(
	products repository.ProductRepository,
	categories repository.CategoryRepository,
	cache CategoryProvider,
	guard *authz.Guard,
) *ListingService {
	return &ListingService{
		products:   products,
		categories: categories,
		cache:      cache,
		guard:      guard,
		now:        time.Now,
	}
}

// Home returns the newest available products and the category list.
func (s *ListingService) Home(ctx context.Context) (*HomeResult, error) {
	result := &HomeResult{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		products, err := s.products.Featured(gctx, FeaturedLimit)
		result.FeaturedProducts = products
		return err
	})
	g.Go(func() error {
		categories, err := s.cache.Categories(gctx)
		result.Categories = categories
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// List returns a page of available products matching in. Malformed optional
// filters are ignored, except a non-numeric category which matches nothing.
func (s *ListingService) List(ctx context.Context, in ListInput) (result *ListResult, err error) {
	ctx, end := observability.StartSpan(ctx, "listing", "List",
		attribute.String("filter.q", in.Query),
		attribute.String("filter.category", in.Category),
	)
	defer func() { end(err) }()

	page := 1
	if raw := strings.TrimSpace(in.Page); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return nil, models.NewNotFoundError("Page", raw)
		}
	}

	categories, err := s.cache.Categories(ctx)
	if err != nil {
		return nil, err
	}

	filter, matchesNothing := parseFilter(in)
	products := []models.Product{}
	var total int64
	if !matchesNothing {
		products, total, err = s.products.List(ctx, filter, PageSize, (page-1)*PageSize)
		if err != nil {
			return nil, err
		}
	}

	numPages := int((total + PageSize - 1) / PageSize)
	if numPages == 0 {
		numPages = 1
	}
	if page > numPages {
		return nil, models.NewNotFoundError("Page", page)
	}

	return &ListResult{
		Products:    products,
		Categories:  categories,
		Page:        page,
		NumPages:    numPages,
		Count:       total,
		HasNext:     page < numPages,
		HasPrevious: page > 1,
	}, nil
}

func parseFilter(in ListInput) (filter repository.ProductFilter, matchesNothing bool) {
	filter.Query = strings.TrimSpace(in.Query)
	filter.Condition = models.ProductCondition(strings.TrimSpace(in.Condition))

	if raw := strings.TrimSpace(in.Category); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 0)
		if err != nil {
			return filter, true
		}
		categoryID := uint(id)
		filter.CategoryID = &categoryID
	}

	if raw := strings.TrimSpace(in.MaxPrice); raw != "" {
		// A ceiling at or above the column maximum filters nothing.
		if price, ok := parseDecimal(raw); ok && price.LessThan(maxPrice) {
			filter.MaxPrice = &price
		}
	}
	return filter, false
}

// Detail returns a product of any status with related listings and records one view.
func (s *ListingService) Detail(ctx context.Context, id uint) (*DetailResult, error) {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &DetailResult{Product: product}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.products.IncrementViews(gctx, id)
	})
	g.Go(func() error {
		related, err := s.products.Related(gctx, product, RelatedLimit)
		result.RelatedProducts = related
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	product.Views++
	observability.ProductViews.Inc()
	return result, nil
}

// CreateForm returns the choices needed to render an empty product form.
func (s *ListingService) CreateForm(ctx context.Context, who authz.Identity) (*FormResult, error) {
	if s.guard.Authorize(who, authz.ActionCreate, nil) != authz.Allow {
		return nil, models.NewUnauthorizedError("Login required")
	}
	categories, err := s.cache.Categories(ctx)
	if err != nil {
		return nil, err
	}
	return &FormResult{Categories: categories, Conditions: models.ProductConditions}, nil
}

// Create stores a new available listing owned by the caller.
func (s *ListingService) Create(ctx context.Context, who authz.Identity, in ProductInput) (*models.Product, error) {
	if s.guard.Authorize(who, authz.ActionCreate, nil) != authz.Allow {
		return nil, models.NewUnauthorizedError("Login required")
	}

	product := &models.Product{
		SellerID: who.UserID,
		Status:   models.StatusAvailable,
	}
	if err := s.applyInput(ctx, product, in, false); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	if err := s.products.Create(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

// GetOwned returns a product the caller owns, for edit and delete confirmation.
func (s *ListingService) GetOwned(ctx context.Context, who authz.Identity, action authz.Action, id uint) (*models.Product, error) {
	if s.guard.Authorize(who, action, nil) == authz.DenyUnauthenticated {
		return nil, models.NewUnauthorizedError("Login required")
	}
	product, err := s.products.GetOwned(ctx, id, who.UserID)
	if err != nil {
		return nil, err
	}
	if s.guard.Authorize(who, action, &authz.Resource{SellerID: product.SellerID}) != authz.Allow {
		return nil, models.NewNotFoundError("Product", id)
	}
	return product, nil
}

// EditForm returns the caller's product with the form choices.
func (s *ListingService) EditForm(ctx context.Context, who authz.Identity, id uint) (*FormResult, error) {
	product, err := s.GetOwned(ctx, who, authz.ActionEdit, id)
	if err != nil {
		return nil, err
	}
	categories, err := s.cache.Categories(ctx)
	if err != nil {
		return nil, err
	}
	return &FormResult{
		Categories: categories,
		Conditions: models.ProductConditions,
		Statuses:   models.ProductStatuses,
		Product:    product,
	}, nil
}

// Update replaces the editable fields of the caller's product. The seller never changes.
func (s *ListingService) Update(ctx context.Context, who authz.Identity, id uint, in ProductInput) (*models.Product, error) {
	product, err := s.GetOwned(ctx, who, authz.ActionEdit, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyInput(ctx, product, in, true); err != nil {
		return nil, err
	}
	product.UpdatedAt = s.now().UTC()
	if err := s.products.Update(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

// Delete removes the caller's product.
func (s *ListingService) Delete(ctx context.Context, who authz.Identity, id uint) error {
	if s.guard.Authorize(who, authz.ActionDelete, nil) == authz.DenyUnauthenticated {
		return models.NewUnauthorizedError("Login required")
	}
	return s.products.Delete(ctx, id, who.UserID)
}

func (s *ListingService) applyInput(ctx context.Context, product *models.Product, in ProductInput, editing bool) error {
	fields := map[string]string{}

	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		fields["title"] = "This field is required."
	case utf8.RuneCountInString(title) > maxTitleLen:
		fields["title"] = "Ensure this value has at most 200 characters."
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		fields["description"] = "This field is required."
	}

	price, msg := parsePrice(in.Price)
	if msg != "" {
		fields["price"] = msg
	}

	var categoryID *uint
	if raw := strings.TrimSpace(in.Category); raw == "" {
		fields["category"] = "This field is required."
	} else if id, err := strconv.ParseUint(raw, 10, 0); err != nil || id == 0 {
		fields["category"] = "Select a valid choice."
	} else {
		exists, err := s.categories.Exists(ctx, uint(id))
		if err != nil {
			return err
		}
		if !exists {
			fields["category"] = "Select a valid choice."
		}
		cid := uint(id)
		categoryID = &cid
	}

	condition := models.ConditionUsed
	if raw := strings.TrimSpace(in.Condition); raw != "" {
		condition = models.ProductCondition(raw)
		if !condition.Valid() {
			fields["condition"] = "Select a valid choice."
		}
	}

	status := product.Status
	if raw := strings.TrimSpace(in.Status); raw != "" && editing {
		status = models.ProductStatus(raw)
		if !status.Valid() {
			fields["status"] = "Select a valid choice."
		}
	}

	location := strings.TrimSpace(in.Location)
	switch {
	case location == "":
		fields["location"] = "This field is required."
	case utf8.RuneCountInString(location) > maxLocationLen:
		fields["location"] = "Ensure this value has at most 100 characters."
	}

	if len(fields) > 0 {
		return models.NewFieldValidationError(fields)
	}

	product.Title = title
	product.Description = description
	product.Price = price
	product.CategoryID = categoryID
	product.Category = nil
	product.Condition = condition
	product.Status = status
	product.Location = location
	return nil
}

// parsePrice validates a decimal(10,2) price. The second return value is the
// problem to report, empty when the price is valid.
func parsePrice(raw string) (decimal.Decimal, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, "This field is required."
	}
	price, ok := parseDecimal(raw)
	if !ok {
		return decimal.Zero, "Enter a number."
	}
	if price.IsNegative() {
		return decimal.Zero, "Ensure this value is greater than or equal to 0."
	}
	if price.Exponent() < -2 && !price.Equal(price.Round(2)) {
		return decimal.Zero, "Ensure that there are no more than 2 decimal places."
	}
	if price.GreaterThan(maxPrice) {
		return decimal.Zero, "Ensure that there are no more than 10 digits in total."
	}
	return price.Round(2), ""
}
