package server

import (
	"io"
	"strconv"

	"classifieds/internal/models"
	"classifieds/internal/service"

	"github.com/gofiber/fiber/v2"
)

// UploadProductImage handles POST /product/:id/images/
// @Summary Upload a product picture
// @Description Multipart field "image"; is_main=true makes it the main picture
// @Tags images
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Product ID"
// @Param image formData file true "Picture (jpeg, png, gif or webp)"
// @Param is_main formData bool false "Make this the main picture"
// @Success 201 {object} models.ProductImage
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /product/{id}/images/ [post]
func (s *Server) UploadProductImage(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if !s.images.Enabled() {
		return s.respondError(c, models.NewUnavailableError("Image storage is not configured"))
	}

	in := service.UploadImageInput{ProductID: id}
	in.IsMain, _ = strconv.ParseBool(c.FormValue("is_main"))

	if file, err := c.FormFile("image"); err == nil {
		src, err := file.Open()
		if err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
		}
		defer func() { _ = src.Close() }()

		content, err := io.ReadAll(src)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
		}
		in.Filename = file.Filename
		in.ContentType = file.Header.Get(fiber.HeaderContentType)
		in.Content = content
	}

	img, err := s.images.Upload(c.UserContext(), identity(c), in)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(img)
}

// SetMainProductImage handles POST /product/:id/images/:imageId/main/
// @Summary Choose the main product picture
// @Tags images
// @Produce json
// @Param id path int true "Product ID"
// @Param imageId path int true "Image ID"
// @Success 200 {object} models.ProductImage
// @Failure 303 "Login required"
// @Failure 404 {object} models.ErrorResponse
// @Router /product/{id}/images/{imageId}/main/ [post]
func (s *Server) SetMainProductImage(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	imageID, err := s.parseID(c, "imageId")
	if err != nil {
		return nil
	}

	img, err := s.images.SetMain(c.UserContext(), identity(c), id, imageID)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(img)
}
