package client

import (
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"
)

// Event types sent by the message stream endpoint.
const (
	EventStage1Start      = "stage1_start"
	EventStage1Complete   = "stage1_complete"
	EventStage2Start      = "stage2_start"
	EventStage2Complete   = "stage2_complete"
	EventStage3Start      = "stage3_start"
	EventStage3Complete   = "stage3_complete"
	EventTitleComplete    = "title_complete"
	EventFollowUpStart    = "followup_start"
	EventFollowUpComplete = "followup_complete"
	EventComplete         = "complete"
	EventError            = "error"
)

type ModelResponse struct {
	Model    string `json:"model"`
	Instance int    `json:"instance,omitempty"`
	Response string `json:"response"`
}

type RankingSubmission struct {
	Model         string   `json:"model"`
	Instance      int      `json:"instance,omitempty"`
	Ranking       string   `json:"ranking"`
	ParsedRanking []string `json:"parsed_ranking"`
}

type LabelTarget struct {
	Model    string `json:"model"`
	Instance int    `json:"instance"`
}

type AggregateRankEntry struct {
	Model         string  `json:"model"`
	Instance      int     `json:"instance"`
	AverageRank   float64 `json:"average_rank"`
	RankingsCount int     `json:"rankings_count"`
}

type Metadata struct {
	LabelToModel      map[string]LabelTarget `json:"label_to_model"`
	AggregateRankings []AggregateRankEntry   `json:"aggregate_rankings"`
}

type Message struct {
	Role     string              `json:"role"`
	Type     string              `json:"type,omitempty"`
	Content  string              `json:"content,omitempty"`
	Stage1   []ModelResponse     `json:"stage1,omitempty"`
	Stage2   []RankingSubmission `json:"stage2,omitempty"`
	Stage3   *ModelResponse      `json:"stage3,omitempty"`
	Response *ModelResponse      `json:"response,omitempty"`
}

type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
}

type ConversationSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
}

type Models struct {
	Models   []string `json:"models"`
	Chairman string   `json:"chairman"`
}

type SendMessageRequest struct {
	Content         string   `json:"content"`
	DuplicateModels []string `json:"duplicate_models,omitempty"`
}

// MessageResult is either a deliberation or a follow-up, see Type.
type MessageResult struct {
	Type     string              `json:"type"`
	Title    string              `json:"title,omitempty"`
	Stage1   []ModelResponse     `json:"stage1,omitempty"`
	Stage2   []RankingSubmission `json:"stage2,omitempty"`
	Stage3   *ModelResponse      `json:"stage3,omitempty"`
	Metadata *Metadata           `json:"metadata,omitempty"`
	Response *ModelResponse      `json:"response,omitempty"`
}

type Event struct {
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data,omitempty"`
	Metadata *Metadata       `json:"metadata,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// Decode unmarshals the event payload, e.g. []ModelResponse for
// stage1_complete.
func (e Event) Decode(v any) error {
	return sonic.Unmarshal(e.Data, v)
}

// Terminal reports whether the stream ends with e.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

type stdResponse[T any] struct {
	Body  T       `json:"body"`
	Error *string `json:"error,omitempty"`
}
