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
	QueryServerDI struct {
		MiddlewareTransport middleware.Transport
		HandlerTransport    handlers.HandlerTransport
		Config              *config.Config
		Logger              *logrus.Logger
	}
	// QueryServer fronts the security pipeline. Every request carries a
	// user identity and goes through admission before anything else.
	QueryServer struct {
		*BaseServer
		middlewareTransport middleware.Transport
		handlerTransport    handlers.HandlerTransport
	}
)

func NewQueryServer(di QueryServerDI) *QueryServer {
	return &QueryServer{
		BaseServer:          NewBaseServer(di.Config, di.Logger),
		middlewareTransport: di.MiddlewareTransport,
		handlerTransport:    di.HandlerTransport,
	}
}

func (s *QueryServer) Run() error {
	s.setupRoutes()
	s.setupHealthCheck()
	s.setupMetricsEndpoint()
	addr := fmt.Sprintf(":%d", s.Config.Server.QueryPort)
	s.Logger.WithField("addr", addr).Info("starting query server")
	return s.Router.Listen(addr)
}

func (s *QueryServer) setupRoutes() {
	s.Router.Use(s.middlewareTransport.PanicRecoverMiddleware.Middleware())
	s.Router.Use(s.middlewareTransport.RequestIDMiddleware.Middleware())

	s.addRoutes(s.Router.Group(""))
}

func (s *QueryServer) addRoutes(router fiber.Router) {
	v1 := router.Group("/api/v1")
	{
		queries := v1.Group("/queries")
		queries.Use(s.middlewareTransport.UserMiddleware.Middleware())
		{
			queries.Post("", s.handlerTransport.ProcessQueryHandler.Handle)
		}
	}
}

func (s *QueryServer) Shutdown() error {
	return s.Router.Shutdown()
}
