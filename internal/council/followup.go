package council

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/council/internal/openrouter"
)

// LastDeliberation finds the newest full deliberation in history and the user
// question right before it.
func LastDeliberation(history []Turn) (Turn, string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if !history[i].IsDeliberation() {
			continue
		}
		var question string
		if i > 0 && history[i-1].Role == RoleUser {
			question = history[i-1].Content
		}
		return history[i], question, true
	}
	return Turn{}, "", false
}

// FollowUp answers query with the chairman alone. With a prior deliberation
// in history the chairman sees shortened stage 1 answers and its own full
// synthesis; without one it gets the bare query. There is a single attempt.
func (c *Council) FollowUp(ctx context.Context, history []Turn, query string) ModelResponse {
	chairman := c.roster.ChairmanModel

	prior, question, found := LastDeliberation(history)
	if !found {
		log.Debug().Msg("no prior deliberation, answering directly")
		out, err := c.client.Query(ctx, chairman, openrouter.UserMessage(query), c.timeouts.DirectTimeout, false)
		if err != nil {
			log.Warn().Err(err).Str("chairman", chairman).Msg("direct answer failed")
			return ModelResponse{Model: chairman, Response: DirectAnswerFailedText}
		}
		return fromCompletion(chairman, 0, out)
	}

	var synthesis string
	if prior.Stage3 != nil {
		synthesis = prior.Stage3.Response
	}

	reasoning := c.thinking.ForStage(3)
	prompt := openrouter.UserMessage(followUpPrompt(question, prior.Stage1, synthesis, query))
	out, err := c.client.Query(ctx, chairman, prompt, c.timeouts.Chairman(reasoning), reasoning)
	if err != nil {
		log.Warn().Err(err).Str("chairman", chairman).Msg("follow-up failed")
		return ModelResponse{Model: chairman, Response: FollowUpFailedText}
	}
	return fromCompletion(chairman, 0, out)
}

// StreamFollowUp runs FollowUp as an event stream. record, when set, stores
// the answer before the complete event.
func (c *Council) StreamFollowUp(
	ctx context.Context,
	history []Turn,
	query string,
	record func(context.Context, ModelResponse) error,
) <-chan Event {
	return stream(ctx, func(emit func(Event)) error {
		emit(Event{Type: EventFollowUpStart})
		response := c.FollowUp(ctx, history, query)
		emit(Event{Type: EventFollowUpComplete, Data: response})
		if record != nil {
			return record(ctx, response)
		}
		return nil
	})
}
