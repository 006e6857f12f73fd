package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/fastbreak-labs/courtguard/pkg/common"
)

type userMiddleware struct {
	logger *logrus.Logger
}

// NewUserMiddleware resolves the caller identity from the X-User-ID header.
// Authentication happens upstream; by the time a request reaches this
// service the header is trusted.
func NewUserMiddleware(logger *logrus.Logger) Middleware {
	return &userMiddleware{logger: logger}
}

func (m *userMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get(common.UserIDHeader)
		if userID == "" {
			m.logger.WithField("path", c.Path()).Warn("request without user id rejected")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "X-User-ID header is required",
			})
		}
		c.Locals(common.UserIDContextKey, userID)
		return c.Next()
	}
}
