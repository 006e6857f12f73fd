package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/fastbreak-labs/courtguard/pkg/security/ratelimit"
)

type resetUserHandler struct {
	logger  *logrus.Logger
	limiter ratelimit.Limiter
}

func NewResetUserHandler(logger *logrus.Logger, limiter ratelimit.Limiter) Handler {
	return &resetUserHandler{
		logger:  logger,
		limiter: limiter,
	}
}

// Handle @Summary Reset a user's security state
// @Description Clears threat score, active block and window history for a user
// @Tags Users
// @Produce json
// @Param user_id path string true "User identifier"
// @Success 200 {object} map[string]interface{} "Reset confirmation"
// @Router /api/v1/users/{user_id}/reset [post]
func (s *resetUserHandler) Handle(c *fiber.Ctx) error {
	userID := c.Params("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
	}

	if err := s.limiter.ResetUser(c.Context(), userID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("failed to reset user security state")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to reset user security state"})
	}

	s.logger.WithField("user_id", userID).Info("user security state reset")
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "reset", "user_id": userID})
}
