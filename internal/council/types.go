package council

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Sentinel texts used when a stage cannot produce a model reply.
const (
	ErrorModel             = "error"
	AllModelsFailedText    = "All models failed to respond. Please try again."
	SynthesisFailedText    = "Error: Unable to generate final synthesis."
	FollowUpFailedText     = "Error: Unable to generate follow-up response."
	DirectAnswerFailedText = "Error: Unable to generate response."
)

// Member is one seat on the council. Instance is 1 unless the model was asked
// to sit twice.
type Member struct {
	Model    string
	Instance int
}

func (m Member) String() string {
	if m.Instance > 1 {
		return fmt.Sprintf("%s#%d", m.Model, m.Instance)
	}
	return m.Model
}

// ModelResponse is one model's answer to one prompt.
type ModelResponse struct {
	Model            string `json:"model"`
	Instance         int    `json:"instance,omitempty"`
	Response         string `json:"response"`
	ReasoningDetails any    `json:"reasoning_details,omitempty"`
	Thinking         any    `json:"thinking,omitempty"`
}

// RankingSubmission is one reviewer's critique of the anonymized set.
// Ranking is the raw critique and is kept even when nothing could be parsed.
type RankingSubmission struct {
	Model            string   `json:"model"`
	Instance         int      `json:"instance,omitempty"`
	Ranking          string   `json:"ranking"`
	ParsedRanking    []string `json:"parsed_ranking"`
	ReasoningDetails any      `json:"reasoning_details,omitempty"`
	Thinking         any      `json:"thinking,omitempty"`
}

// LabelTarget is the response a label stands for.
type LabelTarget struct {
	Model    string `json:"model"`
	Instance int    `json:"instance"`
}

// UnmarshalJSON accepts both {"model": ..., "instance": n} and the older bare
// model string, which resolves to instance 1.
func (l *LabelTarget) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var model string
		if err := sonic.Unmarshal(b, &model); err != nil {
			return err
		}
		*l = LabelTarget{Model: model, Instance: 1}
		return nil
	}

	type plain LabelTarget
	var p plain
	if err := sonic.Unmarshal(b, &p); err != nil {
		return err
	}
	if p.Instance == 0 {
		p.Instance = 1
	}
	*l = LabelTarget(p)
	return nil
}

// LabelMap maps "Response X" to its origin for one deliberation.
type LabelMap map[string]LabelTarget

// AggregateRankEntry is one response's consensus standing.
type AggregateRankEntry struct {
	Model         string  `json:"model"`
	Instance      int     `json:"instance"`
	AverageRank   float64 `json:"average_rank"`
	RankingsCount int     `json:"rankings_count"`
}

type Metadata struct {
	LabelToModel      LabelMap             `json:"label_to_model"`
	AggregateRankings []AggregateRankEntry `json:"aggregate_rankings"`
}

// State is the position of a deliberation in its pipeline.
type State string

const (
	StateCollecting   State = "collecting"
	StateRanking      State = "ranking"
	StateSynthesizing State = "synthesizing"
	StateComplete     State = "complete"
	StateFailed       State = "failed"
)

// Deliberation is one full three-stage run for a single query.
type Deliberation struct {
	Query    string              `json:"-"`
	State    State               `json:"-"`
	Title    string              `json:"-"`
	Stage1   []ModelResponse     `json:"stage1"`
	Stage2   []RankingSubmission `json:"stage2"`
	Stage3   ModelResponse       `json:"stage3"`
	Metadata Metadata            `json:"metadata"`
}

// Failed reports whether no council member answered in stage 1.
func (d *Deliberation) Failed() bool {
	return d.State == StateFailed
}

// Turn is one persisted conversation message. A user turn has Content, a
// deliberation turn has the three stages, a follow-up turn has Response.
type Turn struct {
	Role     string              `json:"role"`
	Type     string              `json:"type,omitempty"`
	Content  string              `json:"content,omitempty"`
	Stage1   []ModelResponse     `json:"stage1,omitempty"`
	Stage2   []RankingSubmission `json:"stage2,omitempty"`
	Stage3   *ModelResponse      `json:"stage3,omitempty"`
	Response *ModelResponse      `json:"response,omitempty"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	TypeFollowUp  = "followup"
)

// IsDeliberation reports whether t carries a full stage 1-3 record.
func (t Turn) IsDeliberation() bool {
	return t.Role == RoleAssistant && len(t.Stage1) > 0
}
