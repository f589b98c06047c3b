package server

import (
	"classifieds/internal/authz"
	"classifieds/internal/models"
	"classifieds/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Home handles GET /
// @Summary Home page
// @Description Newest available products and the category list
// @Tags listings
// @Produce json
// @Success 200 {object} service.HomeResult
// @Router / [get]
func (s *Server) Home(c *fiber.Ctx) error {
	result, err := s.listings.Home(c.UserContext())
	if err != nil {
		return s.respondError(c, err)
	}
	s.images.AttachURLs(c.UserContext(), productRefs(result.FeaturedProducts)...)
	return c.JSON(result)
}

// ListProducts handles GET /list/
// @Summary Browse listings
// @Tags listings
// @Produce json
// @Param q query string false "Text searched in title and description"
// @Param category query int false "Category ID"
// @Param condition query string false "new, used or refurbished"
// @Param max_price query string false "Inclusive price ceiling"
// @Param page query int false "Page number, 12 products per page"
// @Success 200 {object} service.ListResult
// @Failure 404 {object} models.ErrorResponse
// @Router /list/ [get]
func (s *Server) ListProducts(c *fiber.Ctx) error {
	result, err := s.listings.List(c.UserContext(), service.ListInput{
		Query:     c.Query("q"),
		Category:  c.Query("category"),
		Condition: c.Query("condition"),
		MaxPrice:  c.Query("max_price"),
		Page:      c.Query("page"),
	})
	if err != nil {
		return s.respondError(c, err)
	}
	s.images.AttachURLs(c.UserContext(), productRefs(result.Products)...)
	return c.JSON(result)
}

// GetProduct handles GET /product/:id/
// @Summary Product detail
// @Description Any status is shown; each call counts one view
// @Tags listings
// @Produce json
// @Param id path int true "Product ID"
// @Success 200 {object} service.DetailResult
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /product/{id}/ [get]
func (s *Server) GetProduct(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	result, err := s.listings.Detail(c.UserContext(), id)
	if err != nil {
		return s.respondError(c, err)
	}
	s.images.AttachURLs(c.UserContext(), result.Product)
	s.images.AttachURLs(c.UserContext(), productRefs(result.RelatedProducts)...)
	return c.JSON(result)
}

// CreateProductForm handles GET /product/create/
// @Summary New listing form
// @Description Category and condition choices for an empty product form
// @Tags listings
// @Produce json
// @Success 200 {object} service.FormResult
// @Failure 303 "Login required"
// @Router /product/create/ [get]
func (s *Server) CreateProductForm(c *fiber.Ctx) error {
	result, err := s.listings.CreateForm(c.UserContext(), identity(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(result)
}

// CreateProduct handles POST /product/create/
// @Summary Create a listing
// @Description The caller becomes the seller; new listings are always available
// @Tags listings
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Success 201 {object} models.Product
// @Failure 400 {object} models.ErrorResponse
// @Failure 303 "Login required"
// @Router /product/create/ [post]
func (s *Server) CreateProduct(c *fiber.Ctx) error {
	var form productForm
	bindForm(c, &form)

	product, err := s.listings.Create(c.UserContext(), identity(c), form.input())
	if err != nil {
		return s.respondError(c, err)
	}
	c.Location(productPath(product.ID))
	return c.Status(fiber.StatusCreated).JSON(product)
}

// EditProductForm handles GET /product/:id/edit/
// @Summary Edit listing form
// @Description The seller's product with the category, condition and status choices
// @Tags listings
// @Produce json
// @Param id path int true "Product ID"
// @Success 200 {object} service.FormResult
// @Failure 303 "Login required"
// @Failure 404 {object} models.ErrorResponse
// @Router /product/{id}/edit/ [get]
func (s *Server) EditProductForm(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	result, err := s.listings.EditForm(c.UserContext(), identity(c), id)
	if err != nil {
		return s.respondError(c, err)
	}
	s.images.AttachURLs(c.UserContext(), result.Product)
	return c.JSON(result)
}

// UpdateProduct handles POST /product/:id/edit/
// @Summary Update a listing
// @Tags listings
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param id path int true "Product ID"
// @Success 200 {object} models.Product
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /product/{id}/edit/ [post]
func (s *Server) UpdateProduct(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var form productForm
	bindForm(c, &form)

	product, err := s.listings.Update(c.UserContext(), identity(c), id, form.input())
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(product)
}

// deleteConfirmation is the body of the delete confirmation page.
type deleteConfirmation struct {
	Product *models.Product `json:"product"`
}

// DeleteProductConfirm handles GET /product/:id/delete/
// @Summary Confirm listing deletion
// @Tags listings
// @Produce json
// @Param id path int true "Product ID"
// @Success 200 {object} server.deleteConfirmation
// @Failure 303 "Login required"
// @Failure 404 {object} models.ErrorResponse
// @Router /product/{id}/delete/ [get]
func (s *Server) DeleteProductConfirm(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	product, err := s.listings.GetOwned(c.UserContext(), identity(c), authz.ActionDelete, id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(deleteConfirmation{Product: product})
}

// DeleteProduct handles POST /product/:id/delete/
// @Summary Delete a listing
// @Tags listings
// @Param id path int true "Product ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Router /product/{id}/delete/ [post]
func (s *Server) DeleteProduct(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.listings.Delete(c.UserContext(), identity(c), id); err != nil {
		return s.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func productRefs(products []models.Product) []*models.Product {
	refs := make([]*models.Product, len(products))
	for i := range products {
		refs[i] = &products[i]
	}
	return refs
}
