package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/fastbreak-labs/courtguard/pkg/security/ratelimit"
)

type userSecurityStatusHandler struct {
	logger  *logrus.Logger
	limiter ratelimit.Limiter
}

func NewUserSecurityStatusHandler(logger *logrus.Logger, limiter ratelimit.Limiter) Handler {
	return &userSecurityStatusHandler{
		logger:  logger,
		limiter: limiter,
	}
}

// Handle @Summary Retrieve a user's security state
// @Description Returns the current threat score, block state and window usage for a user
// @Tags Users
// @Produce json
// @Param user_id path string true "User identifier"
// @Success 200 {object} types.UserSecurityStatus "User security state"
// @Router /api/v1/users/{user_id}/security [get]
func (s *userSecurityStatusHandler) Handle(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
	}

	status, err := s.limiter.Status(c.Context(), userID, time.Now())
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("failed to read user security state")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read user security state"})
	}

	return c.Status(fiber.StatusOK).JSON(status)
}
