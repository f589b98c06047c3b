// Package middleware provides HTTP middleware shared by every route: identity extraction,
// structured logging, tracing, metrics and rate limiting.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a bearer token cannot be verified.
var ErrInvalidToken = errors.New("invalid or expired token")

// IdentityConfig describes how tokens issued by the identity provider are verified.
type IdentityConfig struct {
	Secret   string
	Issuer   string
	Audience string
	// Cookie is the name of the cookie carrying the token for browser clients.
	Cookie string
}

// Identity extracts the caller's identity from a bearer token or the auth cookie and stores
// the user ID in c.Locals("userID"). It never rejects a request: handlers decide what an
// anonymous caller may do. Websocket upgrades may also pass the token as ?token=.
func Identity(cfg IdentityConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := tokenFromRequest(c, cfg.Cookie)
		if tokenString == "" {
			return c.Next()
		}

		userID, err := ParseUserID(tokenString, cfg)
		if err != nil {
			Logger.DebugContext(c.UserContext(), "ignoring unverifiable token", "error", err.Error())
			return c.Next()
		}

		c.Locals("userID", userID)
		c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, userID))
		return c.Next()
	}
}

func tokenFromRequest(c *fiber.Ctx, cookie string) string {
	if authHeader := c.Get(fiber.HeaderAuthorization); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	if cookie != "" {
		if v := c.Cookies(cookie); v != "" {
			return v
		}
	}
	if strings.HasPrefix(c.Path(), "/ws/") {
		return c.Query("token")
	}
	return ""
}

// ParseUserID verifies tokenString and returns the user ID carried in its subject claim.
func ParseUserID(tokenString string, cfg IdentityConfig) (uint, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return 0, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	userID, err := strconv.ParseUint(sub, 10, 0)
	if err != nil || userID == 0 {
		return 0, fmt.Errorf("%w: invalid subject %q", ErrInvalidToken, sub)
	}
	return uint(userID), nil
}

// UserID returns the authenticated user ID stored by Identity.
func UserID(c *fiber.Ctx) (uint, bool) {
	userID, ok := c.Locals("userID").(uint)
	return userID, ok && userID != 0
}
