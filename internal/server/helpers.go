package server

import (
	"errors"
	"net/url"
	"strings"
	"unicode"

	"classifieds/internal/authz"
	"classifieds/internal/middleware"
	"classifieds/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper.  Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// Pagination holds parsed limit/offset query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

const (
	maxPaginationLimit = 100
)

// parsePagination extracts limit and offset query parameters with the given default limit.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	return Pagination{
		Limit:  limit,
		Offset: offset,
	}
}

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
// The error message is derived from the parameter name (e.g. "id" -> "Invalid ID",
// "imageId" -> "Invalid image ID").
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+humanizeParam(param)))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "imageId" -> "image ID", "productImageId" -> "product image ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	// Split on camelCase boundary before the trailing "Id" suffix.
	if strings.HasSuffix(param, "Id") {
		prefix := param[:len(param)-2]
		words := splitCamel(prefix)
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

// splitCamel splits a camelCase string into words.
func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	words = append(words, s[start:])
	return words
}

// identity returns the caller as seen by the authorization guard.
func identity(c *fiber.Ctx) authz.Identity {
	userID, _ := middleware.UserID(c)
	return authz.Identity{UserID: userID}
}

// respondError writes err for the client. Unauthenticated callers are sent to
// the login flow with a next parameter pointing back at the current page.
func (s *Server) respondError(c *fiber.Ctx, err error) error {
	if models.IsCode(err, models.CodeUnauthorized) {
		return c.Redirect(s.loginRedirect(c), fiber.StatusSeeOther)
	}

	var appErr *models.AppError
	if !errors.As(err, &appErr) || appErr.Code == models.CodeInternal {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			"method", c.Method(), "path", c.Path(), "error", err)
	}
	return models.RespondWithAppError(c, err)
}

func (s *Server) loginRedirect(c *fiber.Ctx) string {
	login := "/login/"
	if s.config != nil && s.config.LoginURL != "" {
		login = s.config.LoginURL
	}
	u, err := url.Parse(login)
	if err != nil {
		return login
	}
	q := u.Query()
	q.Set("next", c.OriginalURL())
	u.RawQuery = q.Encode()
	return u.String()
}
