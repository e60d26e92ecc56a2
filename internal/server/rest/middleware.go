package rest

import (
	"strings"

	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/server/auth"
	"github.com/gofiber/fiber/v2"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// authenticate resolves the bearer token to a user id stored in Locals.
func (s *HTTPServer) authenticate(c *fiber.Ctx) error {
	token, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return s.fail(c, common.ErrorUnauthorized)
	}

	id, err := auth.GetUserIDFromToken(strings.TrimSpace(token), s.jwtSecret)
	if err != nil {
		return s.fail(c, err)
	}

	c.Locals(userIDKey, id)
	return c.Next()
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals(userIDKey).(string)
	return id
}
