package council

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/council/internal/openrouter"
)

const (
	DefaultTitle  = "New Conversation"
	maxTitleRunes = 50
)

// GenerateTitle asks the title model for a 3-5 word summary of query and
// falls back to DefaultTitle on any failure.
func (c *Council) GenerateTitle(ctx context.Context, query string) string {
	out, err := c.client.Query(ctx, c.roster.TitleModel, openrouter.UserMessage(titlePrompt(query)), c.timeouts.TitleTimeout, false)
	if err != nil {
		log.Warn().Err(err).Str("model", c.roster.TitleModel).Msg("title generation failed")
		return DefaultTitle
	}
	return CleanTitle(out.Content)
}

func (c *Council) startTitle(ctx context.Context, query string) <-chan string {
	titles := make(chan string, 1)
	go func() {
		titles <- c.GenerateTitle(ctx, query)
	}()
	return titles
}

// CleanTitle trims whitespace and wrapping quotes and caps the length.
func CleanTitle(raw string) string {
	title := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"'`))
	if title == "" {
		return DefaultTitle
	}
	if r := []rune(title); len(r) > maxTitleRunes {
		title = string(r[:maxTitleRunes-3]) + "..."
	}
	return title
}
