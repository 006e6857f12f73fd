package http

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/fastbreak-labs/courtguard/pkg/common"
	"github.com/fastbreak-labs/courtguard/pkg/types"
)

type queryProcessor interface {
	Process(ctx context.Context, userID, rawQuery string, now time.Time) types.PipelineResult
}

type processQueryRequest struct {
	Query string `json:"query"`
}

type processQueryResponse struct {
	Verdict string `json:"verdict"`
	Content string `json:"content"`
}

type processQueryHandler struct {
	logger   *logrus.Logger
	pipeline queryProcessor
}

func NewProcessQueryHandler(logger *logrus.Logger, pipeline queryProcessor) Handler {
	return &processQueryHandler{
		logger:   logger,
		pipeline: pipeline,
	}
}

// Handle @Summary Process a fantasy basketball query
// @Description Runs the query through the security pipeline and returns a safe response
// @Tags Queries
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User identifier"
// @Success 200 {object} processQueryResponse "Processed query"
// @Failure 429 {object} processQueryResponse "Rate limited or blocked"
// @Router /api/v1/queries [post]
func (s *processQueryHandler) Handle(c *fiber.Ctx) error {
	userID, ok := c.Locals(common.UserIDContextKey).(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "user id is required"})
	}

	var req processQueryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "query is required"})
	}

	result := s.pipeline.Process(c.Context(), userID, req.Query, time.Now())

	response := processQueryResponse{
		Verdict: string(result.Verdict),
		Content: result.Content,
	}

	switch result.Verdict {
	case types.VerdictRateLimited, types.VerdictBlocked:
		seconds := int64(result.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(seconds, 10))
		return c.Status(fiber.StatusTooManyRequests).JSON(response)
	default:
		// Threat detections answer 200 with the redirect message so the
		// client surfaces it like any other assistant reply.
		return c.Status(fiber.StatusOK).JSON(response)
	}
}
