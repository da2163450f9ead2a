package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tensorplex-labs/council/internal/config"
	"github.com/tensorplex-labs/council/internal/council"
	"github.com/tensorplex-labs/council/internal/storage"
)

const (
	ServiceName = "LLM Council API"

	MessageTypeDeliberation = "deliberation"
	MessageTypeFollowUp     = "followup"
)

// Server serves the conversation API.
type Server struct {
	App     *fiber.App
	config  *config.ServerEnvConfig
	council *council.Council
	store   storage.StoreInterface
}

// StdResponse represents the standardized response structure
type StdResponse[T any] struct {
	Body  T       `json:"body"`
	Error *string `json:"error,omitempty"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type ModelsResponse struct {
	Models   []string `json:"models"`
	Chairman string   `json:"chairman"`
}

type MessageRequest struct {
	Content         string   `json:"content"`
	DuplicateModels []string `json:"duplicate_models"`
}

// DeliberationResponse answers the first message of a conversation.
type DeliberationResponse struct {
	Type     string                      `json:"type"`
	Title    string                      `json:"title,omitempty"`
	Stage1   []council.ModelResponse     `json:"stage1"`
	Stage2   []council.RankingSubmission `json:"stage2"`
	Stage3   council.ModelResponse       `json:"stage3"`
	Metadata council.Metadata            `json:"metadata"`
}

// FollowUpResponse answers every later message.
type FollowUpResponse struct {
	Type     string                `json:"type"`
	Response council.ModelResponse `json:"response"`
}
