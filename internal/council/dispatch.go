package council

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/council/internal/openrouter"
)

// FanOut sends the same messages to every member at once and waits for all of
// them. The result has one key per member; a nil value means that member
// failed or timed out. One member's failure never affects another's call.
func FanOut(
	ctx context.Context,
	client openrouter.ClientInterface,
	members []Member,
	messages []openrouter.Message,
	timeout time.Duration,
	reasoning bool,
) map[Member]*openrouter.Completion {
	completions := make([]*openrouter.Completion, len(members))
	var wg sync.WaitGroup
	wg.Add(len(members))

	for i, m := range members {
		go func(index int, member Member) {
			defer wg.Done()
			out, err := client.Query(ctx, member.Model, messages, timeout, reasoning)
			if err != nil {
				log.Warn().Err(err).Str("member", member.String()).Msg("council member returned no result")
				return
			}
			completions[index] = out
		}(i, m)
	}

	wg.Wait()

	results := make(map[Member]*openrouter.Completion, len(members))
	for i, m := range members {
		results[m] = completions[i]
	}
	return results
}

// Members expands the council roster. A model listed more than once keeps
// only its first seat. Every model named in duplicates that is also on the
// council gets a second seat right after its first.
func Members(models []string, duplicates []string) []Member {
	dup := make(map[string]bool, len(duplicates))
	for _, d := range duplicates {
		dup[d] = true
	}

	seated := make(map[string]bool, len(models))
	members := make([]Member, 0, len(models)+len(duplicates))
	for _, m := range models {
		if seated[m] {
			continue
		}
		seated[m] = true
		members = append(members, Member{Model: m, Instance: 1})
		if dup[m] {
			members = append(members, Member{Model: m, Instance: 2})
		}
	}
	return members
}

// uniqueModels drops repeated model ids, keeping first occurrences in order.
func uniqueModels(models []string) []string {
	seen := make(map[string]bool, len(models))
	out := make([]string, 0, len(models))
	for _, m := range models {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}
