// Package council runs the three-stage deliberation: every council member
// answers, every member ranks the anonymized answers, and the chairman
// synthesizes a final response.
package council

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/council/internal/config"
	"github.com/tensorplex-labs/council/internal/openrouter"
	"github.com/tensorplex-labs/council/internal/utils/logger"
)

// ErrAllModelsFailed ends a stream whose first stage got no answer at all.
var ErrAllModelsFailed = errors.New(AllModelsFailedText)

// Council coordinates the stages against one model gateway.
type Council struct {
	client   openrouter.ClientInterface
	roster   config.CouncilEnvConfig
	thinking config.ThinkingEnvConfig
	timeouts config.TimeoutEnvConfig
}

type Option func(*Council)

func WithThinking(thinking config.ThinkingEnvConfig) Option {
	return func(c *Council) {
		c.thinking = thinking
	}
}

func WithTimeouts(timeouts config.TimeoutEnvConfig) Option {
	return func(c *Council) {
		c.timeouts = timeouts
	}
}

// NewCouncil builds a Council. Reasoning defaults to stages 2 and 3 and the
// timeouts to config.DefaultTimeouts.
func NewCouncil(client openrouter.ClientInterface, roster *config.CouncilEnvConfig, opts ...Option) (*Council, error) {
	if client == nil {
		return nil, fmt.Errorf("model client cannot be nil")
	}
	if roster == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	models := uniqueModels(roster.CouncilModels)
	if len(models) == 0 || roster.ChairmanModel == "" {
		return nil, fmt.Errorf("council needs members and a chairman")
	}
	if len(models) < len(roster.CouncilModels) {
		log.Warn().Strs("models", models).Msg("repeated council models dropped")
	}

	c := &Council{
		client: client,
		roster: *roster,
		thinking: config.ThinkingEnvConfig{
			ThinkingEnabled: true,
			ThinkingStage2:  true,
			ThinkingStage3:  true,
		},
		timeouts: config.DefaultTimeouts(),
	}
	c.roster.CouncilModels = models
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Models returns the configured council model identifiers.
func (c *Council) Models() []string {
	return append([]string(nil), c.roster.CouncilModels...)
}

// Chairman returns the synthesizing model identifier.
func (c *Council) Chairman() string {
	return c.roster.ChairmanModel
}

// Recorder persists a finished deliberation.
type Recorder interface {
	RecordDeliberation(ctx context.Context, d *Deliberation) error
}

type RecorderFunc func(ctx context.Context, d *Deliberation) error

func (f RecorderFunc) RecordDeliberation(ctx context.Context, d *Deliberation) error {
	return f(ctx, d)
}

// Request describes one deliberation.
type Request struct {
	Query           string
	DuplicateModels []string
	GenerateTitle   bool
	Recorder        Recorder
}

// Run executes the deliberation and returns it whole. A deliberation whose
// first stage got no answers comes back in StateFailed with a nil error; only
// a recorder failure is returned as an error.
func (c *Council) Run(ctx context.Context, req Request) (*Deliberation, error) {
	return c.deliberate(ctx, req, func(Event) {})
}

// Stream executes the deliberation and reports each stage transition on the
// returned channel, which is closed after a complete or error event.
func (c *Council) Stream(ctx context.Context, req Request) <-chan Event {
	return stream(ctx, func(emit func(Event)) error {
		d, err := c.deliberate(ctx, req, emit)
		if err != nil {
			return err
		}
		if d.Failed() {
			return ErrAllModelsFailed
		}
		return nil
	})
}

func (c *Council) deliberate(ctx context.Context, req Request, emit func(Event)) (*Deliberation, error) {
	started := time.Now()
	members := Members(c.roster.CouncilModels, req.DuplicateModels)
	d := &Deliberation{
		Query:  req.Query,
		State:  StateCollecting,
		Stage1: []ModelResponse{},
		Stage2: []RankingSubmission{},
		Metadata: Metadata{
			LabelToModel:      LabelMap{},
			AggregateRankings: []AggregateRankEntry{},
		},
	}

	titleCtx, cancelTitle := context.WithCancel(ctx)
	defer cancelTitle()
	var titles <-chan string
	if req.GenerateTitle {
		titles = c.startTitle(titleCtx, req.Query)
	}

	emit(Event{Type: EventStage1Start})
	d.Stage1 = c.CollectResponses(ctx, members, req.Query)
	emit(Event{Type: EventStage1Complete, Data: d.Stage1})

	if len(d.Stage1) == 0 {
		log.Error().Int("members", len(members)).Msg("no council member answered")
		d.State = StateFailed
		d.Stage3 = ModelResponse{Model: ErrorModel, Response: AllModelsFailedText}
		return d, nil
	}

	d.State = StateRanking
	emit(Event{Type: EventStage2Start})
	stage2, labels := c.CollectRankings(ctx, members, req.Query, d.Stage1)
	d.Stage2 = stage2
	d.Metadata = Metadata{LabelToModel: labels, AggregateRankings: Aggregate(stage2, labels)}
	metadata := d.Metadata
	emit(Event{Type: EventStage2Complete, Data: d.Stage2, Metadata: &metadata})

	d.State = StateSynthesizing
	emit(Event{Type: EventStage3Start})
	d.Stage3 = c.Synthesize(ctx, req.Query, d.Stage1, d.Stage2)
	emit(Event{Type: EventStage3Complete, Data: d.Stage3})

	if titles != nil {
		d.Title = <-titles
		emit(Event{Type: EventTitleComplete, Data: TitleData{Title: d.Title}})
	}

	if req.Recorder != nil {
		if err := req.Recorder.RecordDeliberation(ctx, d); err != nil {
			return d, fmt.Errorf("record deliberation: %w", err)
		}
	}

	d.State = StateComplete
	logger.Sugar().Infow("Deliberation complete",
		"members", len(members),
		"answered", len(d.Stage1),
		"reviews", len(d.Stage2),
		"chairman", d.Stage3.Model,
		"elapsed", time.Since(started).String(),
	)
	return d, nil
}
