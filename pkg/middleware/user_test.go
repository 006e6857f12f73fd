package middleware_test

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastbreak-labs/courtguard/pkg/common"
	"github.com/fastbreak-labs/courtguard/pkg/middleware"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestUserMiddleware_RejectsMissingHeader(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.NewUserMiddleware(quietLogger()).Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	req := httptest.NewRequest("GET", "/", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 401, resp.StatusCode)
}

func TestUserMiddleware_SetsUserLocal(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.NewUserMiddleware(quietLogger()).Middleware())

	var seen string
	app.Get("/", func(c *fiber.Ctx) error {
		seen, _ = c.Locals(common.UserIDContextKey).(string)
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(common.UserIDHeader, "user-42")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "user-42", seen)
}

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.NewRequestIDMiddleware().Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	req := httptest.NewRequest("GET", "/", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(common.RequestIDHeader))
}

func TestRequestIDMiddleware_KeepsProvidedID(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.NewRequestIDMiddleware().Middleware())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(common.RequestIDHeader, "req-123")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "req-123", resp.Header.Get(common.RequestIDHeader))
}
