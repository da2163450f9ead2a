// Package server exposes conversations and council deliberations over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/council/internal/config"
	"github.com/tensorplex-labs/council/internal/council"
	"github.com/tensorplex-labs/council/internal/storage"
)

// NewServer creates the API server and registers every route.
func NewServer(serverConfig *config.ServerEnvConfig, c *council.Council, store storage.StoreInterface) (*Server, error) {
	if serverConfig == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if c == nil || store == nil {
		return nil, fmt.Errorf("council and store are required")
	}

	log.Info().
		Str("host", serverConfig.Host).
		Int("port", serverConfig.Port).
		Int("body_limit", serverConfig.BodySizeLimit).
		Msg("Server configuration loaded")

	app := fiber.New(fiber.Config{
		Prefork:               false,
		DisableStartupMessage: true,
		ErrorHandler:          fiberErrHandler,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		BodyLimit:             serverConfig.BodySizeLimit,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     serverConfig.CORSOrigins,
		AllowCredentials: serverConfig.CORSOrigins != "*",
	}))
	app.Use(compress.New(compress.Config{
		Next:  isStreamRoute,
		Level: compress.LevelBestSpeed,
	}))

	whitelistedRoutes := []string{"/", "/health"}
	app.Use(ZstdMiddleware(isUncompressedRoute(whitelistedRoutes)))

	s := &Server{
		App:     app,
		config:  serverConfig,
		council: c,
		store:   store,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.App.Get("/", s.health)
	s.App.Get("/health", s.health)

	api := s.App.Group("/api")
	api.Get("/config/models", s.models)
	api.Get("/conversations", s.listConversations)
	api.Post("/conversations", s.createConversation)
	api.Get("/conversations/:id", s.getConversation)
	api.Post("/conversations/:id/message", s.sendMessage)
	api.Post("/conversations/:id/message/stream", s.sendMessageStream)
}

func fiberErrHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	switch {
	case errors.As(err, &e):
		code = e.Code
	case errors.Is(err, storage.ErrNotFound):
		code = fiber.StatusNotFound
	}

	log.Error().
		Err(err).
		Int("status_code", code).
		Str("path", ctx.Path()).
		Str("method", ctx.Method()).
		Msg("Fiber error handler triggered")

	return ctx.Status(code).JSON(createResponse(map[string]any{}, err))
}

// createResponse creates a StdResponse with the given body and error
func createResponse[T any](body T, err error) StdResponse[T] {
	if err != nil {
		errMsg := err.Error()
		return StdResponse[T]{Body: body, Error: &errMsg}
	}
	return StdResponse[T]{Body: body}
}

// Start blocks serving on the configured address.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	log.Info().Str("addr", addr).Msg("Server listening")
	return s.App.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.App.ShutdownWithContext(ctx)
}
