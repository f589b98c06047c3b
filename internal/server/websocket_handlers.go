package server

import (
	"errors"

	"classifieds/internal/middleware"
	"classifieds/internal/models"
	"classifieds/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// requireWebSocket rejects plain HTTP requests and anonymous callers before the upgrade.
func (s *Server) requireWebSocket(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError("Login required"))
	}
	if s.hub == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewUnavailableError("Notifications are not available"))
	}
	c.Locals("userID", userID)
	return c.Next()
}

// NotificationsWebSocket streams the caller's notifications, such as new
// messages about their listings, until the connection closes.
// @Summary Live notifications
// @Tags messages
// @Param token query string false "Access token for clients that cannot set headers"
// @Success 101
// @Failure 401 {object} models.ErrorResponse
// @Failure 426 {object} models.ErrorResponse
// @Router /ws/notifications [get]
func (s *Server) NotificationsWebSocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, ok := conn.Locals("userID").(uint)
		if !ok {
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			middleware.Logger.Warn("notification socket rejected", "user_id", userID, "error", err)
			reason := "server busy"
			if errors.Is(err, notifications.ErrUserConnLimit) {
				reason = "too many connections"
			}
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, reason))
			_ = conn.Close()
			return
		}

		middleware.Logger.Debug("notification socket connected", "user_id", userID)
		go client.WritePump()
		client.ReadPump()
	})
}
