package server

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/fastbreak-labs/courtguard/pkg/config"
	handlers "github.com/fastbreak-labs/courtguard/pkg/handlers/http"
	"github.com/fastbreak-labs/courtguard/pkg/middleware"
)

type (
	AdminServerDI struct {
		MiddlewareTransport middleware.Transport
		HandlerTransport    handlers.HandlerTransport
		Config              *config.Config
		Logger              *logrus.Logger
	}
	AdminServer struct {
		*BaseServer
		middlewareTransport middleware.Transport
		handlerTransport    handlers.HandlerTransport
	}
)

func NewAdminServer(di AdminServerDI) *AdminServer {
	return &AdminServer{
		BaseServer:          NewBaseServer(di.Config, di.Logger),
		middlewareTransport: di.MiddlewareTransport,
		handlerTransport:    di.HandlerTransport,
	}
}

func (s *AdminServer) Run() error {
	s.setupRoutes()
	s.setupHealthCheck()
	addr := fmt.Sprintf(":%d", s.Config.Server.AdminPort)
	s.Logger.WithField("addr", addr).Info("starting admin server")
	return s.Router.Listen(addr)
}

func (s *AdminServer) setupRoutes() {
	s.Router.Use(s.middlewareTransport.PanicRecoverMiddleware.Middleware())
	s.Router.Use(s.middlewareTransport.RequestIDMiddleware.Middleware())

	s.addRoutes(s.Router.Group(""))
}

func (s *AdminServer) addRoutes(router fiber.Router) {
	v1 := router.Group("/api/v1")
	{
		users := v1.Group("/users")
		{
			users.Get("/:user_id/security", s.handlerTransport.UserSecurityStatusHandler.Handle)
			users.Post("/:user_id/reset", s.handlerTransport.ResetUserHandler.Handle)
		}
	}
}

func (s *AdminServer) Shutdown() error {
	return s.Router.Shutdown()
}
