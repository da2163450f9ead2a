package council

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/council/internal/openrouter"
)

const chairmanAttempts = 2

// CollectResponses is stage 1. Answers keep member order; members that
// failed are left out.
func (c *Council) CollectResponses(ctx context.Context, members []Member, query string) []ModelResponse {
	reasoning := c.thinking.ForStage(1)
	results := FanOut(ctx, c.client, members, openrouter.UserMessage(query), c.timeouts.Batch(reasoning), reasoning)

	responses := make([]ModelResponse, 0, len(members))
	for _, m := range members {
		out := results[m]
		if out == nil {
			continue
		}
		responses = append(responses, fromCompletion(m.Model, m.Instance, out))
	}

	log.Info().Int("members", len(members)).Int("answered", len(responses)).Msg("stage 1 collected")
	return responses
}

// CollectRankings is stage 2. Every member reviews the anonymized stage 1
// answers; the label mapping is returned for aggregation.
func (c *Council) CollectRankings(
	ctx context.Context,
	members []Member,
	query string,
	stage1 []ModelResponse,
) ([]RankingSubmission, LabelMap) {
	labeled, labels := Anonymize(stage1)
	reasoning := c.thinking.ForStage(2)
	prompt := openrouter.UserMessage(rankingPrompt(query, labeled))
	results := FanOut(ctx, c.client, members, prompt, c.timeouts.Batch(reasoning), reasoning)

	submissions := make([]RankingSubmission, 0, len(members))
	for _, m := range members {
		out := results[m]
		if out == nil {
			continue
		}
		submissions = append(submissions, RankingSubmission{
			Model:            m.Model,
			Instance:         m.Instance,
			Ranking:          out.Content,
			ParsedRanking:    ParseRankingWithin(out.Content, labels),
			ReasoningDetails: out.ReasoningDetails,
			Thinking:         out.Thinking,
		})
	}

	log.Info().Int("labels", len(labels)).Int("reviews", len(submissions)).Msg("stage 2 collected")
	return submissions, labels
}

// Synthesize is stage 3. The chairman gets a second attempt only when the
// first returns nothing; after that the sentinel synthesis is returned.
func (c *Council) Synthesize(
	ctx context.Context,
	query string,
	stage1 []ModelResponse,
	stage2 []RankingSubmission,
) ModelResponse {
	chairman := c.roster.ChairmanModel
	reasoning := c.thinking.ForStage(3)
	prompt := openrouter.UserMessage(chairmanPrompt(query, stage1, stage2))
	timeout := c.timeouts.Chairman(reasoning)

	for attempt := 1; attempt <= chairmanAttempts; attempt++ {
		out, err := c.client.Query(ctx, chairman, prompt, timeout, reasoning)
		if err == nil {
			return fromCompletion(chairman, 0, out)
		}
		log.Warn().Err(err).Int("attempt", attempt).Str("chairman", chairman).Msg("chairman query failed")
	}

	return ModelResponse{Model: chairman, Response: SynthesisFailedText}
}

func fromCompletion(model string, instance int, out *openrouter.Completion) ModelResponse {
	return ModelResponse{
		Model:            model,
		Instance:         instance,
		Response:         out.Content,
		ReasoningDetails: out.ReasoningDetails,
		Thinking:         out.Thinking,
	}
}
