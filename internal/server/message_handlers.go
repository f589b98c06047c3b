package server

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// SendMessage handles POST /product/:id/
// @Summary Contact the seller
// @Description Stores a message to the seller of the product and notifies them
// @Tags messages
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param id path int true "Product ID"
// @Success 201 {object} models.Message
// @Failure 303 "Login required"
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /product/{id}/ [post]
func (s *Server) SendMessage(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var form messageForm
	bindForm(c, &form)

	message, err := s.messages.Send(c.UserContext(), identity(c), id, string(form.Content))
	if err != nil {
		return s.respondError(c, err)
	}
	c.Location(productPath(id))
	return c.Status(fiber.StatusCreated).JSON(message)
}

// Inbox handles GET /messages/
// @Summary Received messages
// @Tags messages
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} service.InboxResult
// @Router /messages/ [get]
func (s *Server) Inbox(c *fiber.Ctx) error {
	page := parsePagination(c, 20)
	result, err := s.messages.Inbox(c.UserContext(), identity(c), page.Limit, page.Offset)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(result)
}

// MarkMessageRead handles POST /messages/:id/read/
// @Summary Mark a received message read
// @Tags messages
// @Param id path int true "Message ID"
// @Success 204
// @Failure 303 "Login required"
// @Failure 404 {object} models.ErrorResponse
// @Router /messages/{id}/read/ [post]
func (s *Server) MarkMessageRead(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.messages.MarkRead(c.UserContext(), identity(c), id); err != nil {
		return s.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func productPath(id uint) string {
	return "/product/" + strconv.FormatUint(uint64(id), 10) + "/"
}
