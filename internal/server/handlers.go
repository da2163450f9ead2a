package server

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"

	"github.com/tensorplex-labs/council/internal/council"
	"github.com/tensorplex-labs/council/internal/storage"
)

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(createResponse(HealthResponse{Status: "ok", Service: ServiceName}, nil))
}

func (s *Server) models(c *fiber.Ctx) error {
	return c.JSON(createResponse(ModelsResponse{Models: s.council.Models(), Chairman: s.council.Chairman()}, nil))
}

func (s *Server) listConversations(c *fiber.Ctx) error {
	list, err := s.store.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(createResponse(list, nil))
}

func (s *Server) createConversation(c *fiber.Ctx) error {
	conv, err := s.store.Create(c.UserContext())
	if err != nil {
		return err
	}
	log.Info().Str("id", conv.ID).Msg("Conversation created")
	return c.JSON(createResponse(conv, nil))
}

func (s *Server) getConversation(c *fiber.Ctx) error {
	conv, err := s.store.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(createResponse(conv, nil))
}

// sendMessage runs a full deliberation for the first message of a
// conversation and a chairman follow-up for every later one.
func (s *Server) sendMessage(c *fiber.Ctx) error {
	id, req, conv, err := s.parseMessage(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	if len(conv.Messages) == 0 {
		d, err := s.council.Run(ctx, s.deliberationRequest(id, req))
		if err != nil {
			return err
		}
		return c.JSON(createResponse(DeliberationResponse{
			Type:     MessageTypeDeliberation,
			Title:    d.Title,
			Stage1:   d.Stage1,
			Stage2:   d.Stage2,
			Stage3:   d.Stage3,
			Metadata: d.Metadata,
		}, nil))
	}

	if err := s.store.AddUserMessage(ctx, id, req.Content); err != nil {
		return err
	}
	response := s.council.FollowUp(ctx, conv.Messages, req.Content)
	if err := s.store.AddFollowUpMessage(ctx, id, response); err != nil {
		return err
	}
	return c.JSON(createResponse(FollowUpResponse{Type: MessageTypeFollowUp, Response: response}, nil))
}

// sendMessageStream is sendMessage reported as server-sent events, one
// "data: <json>" frame per council event.
func (s *Server) sendMessageStream(c *fiber.Ctx) error {
	id, req, conv, err := s.parseMessage(c)
	if err != nil {
		return err
	}

	// The body writer outlives the handler, so the run gets its own context.
	ctx, cancel := context.WithCancel(context.Background())

	var events <-chan council.Event
	if len(conv.Messages) == 0 {
		events = s.council.Stream(ctx, s.deliberationRequest(id, req))
	} else {
		if err := s.store.AddUserMessage(ctx, id, req.Content); err != nil {
			cancel()
			return err
		}
		events = s.council.StreamFollowUp(ctx, conv.Messages, req.Content,
			func(ctx context.Context, response council.ModelResponse) error {
				return s.store.AddFollowUpMessage(ctx, id, response)
			})
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		if err := writeEvents(w, events); err != nil {
			log.Warn().Err(err).Str("conversation", id).Msg("Event stream client went away")
		}
	}))
	return nil
}

func writeEvents(w *bufio.Writer, events <-chan council.Event) error {
	for e := range events {
		payload, err := sonic.Marshal(e)
		if err != nil {
			log.Error().Err(err).Str("type", string(e.Type)).Msg("Failed to encode event")
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) parseMessage(c *fiber.Ctx) (string, MessageRequest, *storage.Conversation, error) {
	id := utils.CopyString(c.Params("id"))

	var req MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return "", req, nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	req.Content = strings.Clone(req.Content)
	if strings.TrimSpace(req.Content) == "" {
		return "", req, nil, fiber.NewError(fiber.StatusBadRequest, "content is required")
	}

	conv, err := s.store.Get(c.UserContext(), id)
	if err != nil {
		return "", req, nil, err
	}
	return id, req, conv, nil
}

func (s *Server) deliberationRequest(id string, req MessageRequest) council.Request {
	duplicates := make([]string, len(req.DuplicateModels))
	for i, m := range req.DuplicateModels {
		duplicates[i] = strings.Clone(m)
	}
	return council.Request{
		Query:           req.Content,
		DuplicateModels: duplicates,
		GenerateTitle:   true,
		Recorder:        storage.DeliberationRecorder(s.store, id),
	}
}
