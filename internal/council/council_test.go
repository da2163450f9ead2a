package council

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensorplex-labs/council/internal/config"
	"github.com/tensorplex-labs/council/internal/openrouter"
)

type call struct {
	Model     string
	Prompt    string
	Timeout   time.Duration
	Reasoning bool
}

// Kind classifies a call by the prompt it carries.
func (c call) Kind() string {
	switch {
	case strings.HasPrefix(c.Prompt, "You are evaluating"):
		return "rank"
	case strings.HasPrefix(c.Prompt, "You are the Chairman"):
		return "chairman"
	case strings.HasPrefix(c.Prompt, "Generate a very short title"):
		return "title"
	}
	return "answer"
}

type fakeClient struct {
	mu      sync.Mutex
	calls   []call
	respond func(c call) (*openrouter.Completion, error)
}

func (f *fakeClient) Query(_ context.Context, model string, messages []openrouter.Message, timeout time.Duration, reasoning bool) (*openrouter.Completion, error) {
	c := call{Model: model, Prompt: messages[len(messages)-1].Content, Timeout: timeout, Reasoning: reasoning}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	return f.respond(c)
}

func (f *fakeClient) all() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeClient) kind(kind string) []call {
	var out []call
	for _, c := range f.all() {
		if c.Kind() == kind {
			out = append(out, c)
		}
	}
	return out
}

var testRoster = &config.CouncilEnvConfig{
	CouncilModels: []string{"openai/gpt-5.1", "anthropic/claude-opus-4.5", "x-ai/grok-4"},
	ChairmanModel: "google/gemini-3-pro-preview",
	TitleModel:    "google/gemini-2.5-flash",
}

func ok(content string) (*openrouter.Completion, error) {
	return &openrouter.Completion{Content: content}, nil
}

// happyPath answers every stage. Every reviewer ranks A > B > C.
func happyPath(c call) (*openrouter.Completion, error) {
	switch c.Kind() {
	case "rank":
		return ok("A is best.\n\nFINAL RANKING:\n1. Response A\n2. Response B\n3. Response C")
	case "chairman":
		return ok("the council says 42")
	case "title":
		return ok(`"Meaning of Life"`)
	}
	return ok("answer from " + c.Model)
}

func newTestCouncil(t *testing.T, respond func(call) (*openrouter.Completion, error)) (*Council, *fakeClient) {
	client := &fakeClient{respond: respond}
	c, err := NewCouncil(client, testRoster)
	require.NoError(t, err)
	return c, client
}

type recorded struct {
	mu    sync.Mutex
	items []*Deliberation
}

func (r *recorded) RecordDeliberation(_ context.Context, d *Deliberation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, d)
	return nil
}

func drain(events <-chan Event) []Event {
	var out []Event
	for e := range events {
		out = append(out, e)
	}
	return out
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func TestNewCouncil_Validation(t *testing.T) {
	_, err := NewCouncil(nil, testRoster)
	require.Error(t, err)
	_, err = NewCouncil(&fakeClient{}, nil)
	require.Error(t, err)
	_, err = NewCouncil(&fakeClient{}, &config.CouncilEnvConfig{ChairmanModel: "x"})
	require.Error(t, err)
}

func TestRun_FullDeliberation(t *testing.T) {
	c, client := newTestCouncil(t, happyPath)
	rec := &recorded{}

	d, err := c.Run(context.Background(), Request{Query: "what is the answer?", Recorder: rec})
	require.NoError(t, err)

	assert.Equal(t, StateComplete, d.State)
	require.Len(t, d.Stage1, 3)
	assert.Equal(t, "openai/gpt-5.1", d.Stage1[0].Model)
	assert.Equal(t, "answer from x-ai/grok-4", d.Stage1[2].Response)
	require.Len(t, d.Stage2, 3)
	assert.Equal(t, []string{"Response A", "Response B", "Response C"}, d.Stage2[0].ParsedRanking)
	assert.Equal(t, ModelResponse{Model: "google/gemini-3-pro-preview", Response: "the council says 42"}, d.Stage3)

	assert.Equal(t, LabelMap{
		"Response A": {Model: "openai/gpt-5.1", Instance: 1},
		"Response B": {Model: "anthropic/claude-opus-4.5", Instance: 1},
		"Response C": {Model: "x-ai/grok-4", Instance: 1},
	}, d.Metadata.LabelToModel)
	require.Len(t, d.Metadata.AggregateRankings, 3)
	assert.Equal(t, AggregateRankEntry{Model: "openai/gpt-5.1", Instance: 1, AverageRank: 1, RankingsCount: 3}, d.Metadata.AggregateRankings[0])
	assert.Equal(t, 2.0, d.Metadata.AggregateRankings[1].AverageRank)
	assert.Equal(t, 3.0, d.Metadata.AggregateRankings[2].AverageRank)

	assert.Len(t, client.kind("chairman"), 1)
	assert.Empty(t, client.kind("title"))
	require.Len(t, rec.items, 1)
	assert.Same(t, d, rec.items[0])
}

func TestRun_StageSettings(t *testing.T) {
	c, client := newTestCouncil(t, happyPath)
	_, err := c.Run(context.Background(), Request{Query: "q", GenerateTitle: true})
	require.NoError(t, err)

	for _, cl := range client.kind("answer") {
		assert.False(t, cl.Reasoning)
		assert.Equal(t, 120*time.Second, cl.Timeout)
		assert.Equal(t, "q", cl.Prompt)
	}
	for _, cl := range client.kind("rank") {
		assert.True(t, cl.Reasoning)
		assert.Equal(t, 300*time.Second, cl.Timeout)
	}
	chair := client.kind("chairman")
	require.Len(t, chair, 1)
	assert.True(t, chair[0].Reasoning)
	assert.Equal(t, 300*time.Second, chair[0].Timeout)
	assert.Equal(t, "google/gemini-3-pro-preview", chair[0].Model)

	title := client.kind("title")
	require.Len(t, title, 1)
	assert.Equal(t, "google/gemini-2.5-flash", title[0].Model)
	assert.Equal(t, 30*time.Second, title[0].Timeout)
	assert.False(t, title[0].Reasoning)
}

func TestRun_ThinkingDisabledShortensTimeouts(t *testing.T) {
	client := &fakeClient{respond: happyPath}
	c, err := NewCouncil(client, testRoster, WithThinking(config.ThinkingEnvConfig{}))
	require.NoError(t, err)

	_, err = c.Run(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	for _, cl := range client.kind("rank") {
		assert.False(t, cl.Reasoning)
		assert.Equal(t, 120*time.Second, cl.Timeout)
	}
	assert.Equal(t, 180*time.Second, client.kind("chairman")[0].Timeout)
}

func TestRun_RankingPromptIsAnonymous(t *testing.T) {
	c, client := newTestCouncil(t, func(cl call) (*openrouter.Completion, error) {
		if cl.Kind() == "answer" {
			return ok("plain answer")
		}
		return happyPath(cl)
	})
	_, err := c.Run(context.Background(), Request{Query: "q"})
	require.NoError(t, err)

	for _, cl := range client.kind("rank") {
		for _, m := range testRoster.CouncilModels {
			assert.NotContains(t, cl.Prompt, m)
		}
		assert.Contains(t, cl.Prompt, "Response A:\nplain answer")
		assert.Contains(t, cl.Prompt, "Response C:\nplain answer")
	}
}

func TestRun_AllModelsFail(t *testing.T) {
	c, client := newTestCouncil(t, func(cl call) (*openrouter.Completion, error) {
		if cl.Kind() == "title" {
			return ok("title")
		}
		return nil, errors.New("unavailable")
	})
	rec := &recorded{}

	d, err := c.Run(context.Background(), Request{Query: "q", GenerateTitle: true, Recorder: rec})
	require.NoError(t, err)

	assert.True(t, d.Failed())
	assert.Empty(t, d.Stage1)
	assert.NotNil(t, d.Stage1)
	assert.Empty(t, d.Stage2)
	assert.Equal(t, ModelResponse{Model: ErrorModel, Response: AllModelsFailedText}, d.Stage3)
	assert.Empty(t, d.Metadata.AggregateRankings)
	assert.Empty(t, rec.items, "a failed deliberation must not be recorded")
	assert.Empty(t, client.kind("rank"))
	assert.Empty(t, client.kind("chairman"))
}

func TestRun_ChairmanFailsTwice(t *testing.T) {
	c, client := newTestCouncil(t, func(cl call) (*openrouter.Completion, error) {
		if cl.Kind() == "chairman" {
			return nil, errors.New("overloaded")
		}
		return happyPath(cl)
	})
	rec := &recorded{}

	d, err := c.Run(context.Background(), Request{Query: "q", Recorder: rec})
	require.NoError(t, err)

	assert.Equal(t, StateComplete, d.State)
	assert.Len(t, client.kind("chairman"), 2)
	assert.Equal(t, ModelResponse{Model: "google/gemini-3-pro-preview", Response: SynthesisFailedText}, d.Stage3)
	assert.Len(t, d.Stage1, 3)
	assert.Len(t, d.Stage2, 3)
	require.Len(t, rec.items, 1)
	assert.Len(t, rec.items[0].Stage1, 3)
}

func TestRun_ChairmanRetriedOnce(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	c, client := newTestCouncil(t, func(cl call) (*openrouter.Completion, error) {
		if cl.Kind() == "chairman" {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts == 1 {
				return nil, errors.New("timeout")
			}
			return ok("second time lucky")
		}
		return happyPath(cl)
	})

	d, err := c.Run(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "second time lucky", d.Stage3.Response)
	assert.Len(t, client.kind("chairman"), 2)
}

func TestRun_EmptyChairmanReplyIsNotRetried(t *testing.T) {
	c, client := newTestCouncil(t, func(cl call) (*openrouter.Completion, error) {
		if cl.Kind() == "chairman" {
			return ok("")
		}
		return happyPath(cl)
	})
	d, err := c.Run(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "", d.Stage3.Response)
	assert.Len(t, client.kind("chairman"), 1)
}

func TestRun_PartialStage1(t *testing.T) {
	c, client := newTestCouncil(t, func(cl call) (*openrouter.Completion, error) {
		if cl.Model == "anthropic/claude-opus-4.5" && cl.Kind() == "answer" {
			return nil, errors.New("timeout")
		}
		if cl.Kind() == "rank" {
			return ok("FINAL RANKING:\n1. Response B\n2. Response A")
		}
		return happyPath(cl)
	})

	d, err := c.Run(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	require.Len(t, d.Stage1, 2)
	assert.Equal(t, LabelTarget{Model: "x-ai/grok-4", Instance: 1}, d.Metadata.LabelToModel["Response B"])
	assert.Len(t, client.kind("rank"), 3, "every member reviews, even one that failed stage 1")
	assert.Equal(t, "x-ai/grok-4", d.Metadata.AggregateRankings[0].Model)
}

func TestRun_DuplicateModels(t *testing.T) {
	c, client := newTestCouncil(t, happyPath)
	d, err := c.Run(context.Background(), Request{Query: "q", DuplicateModels: []string{"x-ai/grok-4"}})
	require.NoError(t, err)

	require.Len(t, d.Stage1, 4)
	assert.Equal(t, ModelResponse{Model: "x-ai/grok-4", Instance: 2, Response: "answer from x-ai/grok-4"}, d.Stage1[3])
	assert.Equal(t, LabelTarget{Model: "x-ai/grok-4", Instance: 2}, d.Metadata.LabelToModel["Response D"])
	assert.Len(t, client.kind("rank"), 4)
	assert.Equal(t, 2, d.Stage2[3].Instance)
}

func TestRun_RecorderError(t *testing.T) {
	c, _ := newTestCouncil(t, happyPath)
	_, err := c.Run(context.Background(), Request{
		Query: "q",
		Recorder: RecorderFunc(func(context.Context, *Deliberation) error {
			return errors.New("disk full")
		}),
	})
	require.Error(t, err)
}

func TestStream_EventOrder(t *testing.T) {
	c, _ := newTestCouncil(t, happyPath)
	rec := &recorded{}

	events := drain(c.Stream(context.Background(), Request{Query: "q", GenerateTitle: true, Recorder: rec}))

	assert.Equal(t, []EventType{
		EventStage1Start,
		EventStage1Complete,
		EventStage2Start,
		EventStage2Complete,
		EventStage3Start,
		EventStage3Complete,
		EventTitleComplete,
		EventComplete,
	}, eventTypes(events))

	stage1, isStage1 := events[1].Data.([]ModelResponse)
	require.True(t, isStage1)
	assert.Len(t, stage1, 3)

	require.NotNil(t, events[3].Metadata)
	assert.Len(t, events[3].Metadata.LabelToModel, 3)
	assert.Len(t, events[3].Metadata.AggregateRankings, 3)

	assert.Equal(t, TitleData{Title: "Meaning of Life"}, events[6].Data)
	require.Len(t, rec.items, 1)
	assert.Equal(t, "Meaning of Life", rec.items[0].Title)
}

func TestStream_WithoutTitle(t *testing.T) {
	c, _ := newTestCouncil(t, happyPath)
	events := drain(c.Stream(context.Background(), Request{Query: "q"}))
	assert.NotContains(t, eventTypes(events), EventTitleComplete)
	assert.Equal(t, EventComplete, events[len(events)-1].Type)
}

func TestStream_MatchesRun(t *testing.T) {
	c, _ := newTestCouncil(t, happyPath)

	synced, err := c.Run(context.Background(), Request{Query: "q"})
	require.NoError(t, err)

	rec := &recorded{}
	drain(c.Stream(context.Background(), Request{Query: "q", Recorder: rec}))
	require.Len(t, rec.items, 1)
	streamed := rec.items[0]

	assert.Equal(t, synced.Stage1, streamed.Stage1)
	assert.Equal(t, synced.Stage2, streamed.Stage2)
	assert.Equal(t, synced.Stage3, streamed.Stage3)
	assert.Equal(t, synced.Metadata, streamed.Metadata)
}

func TestStream_AllModelsFail(t *testing.T) {
	c, _ := newTestCouncil(t, func(call) (*openrouter.Completion, error) {
		return nil, errors.New("unavailable")
	})

	events := drain(c.Stream(context.Background(), Request{Query: "q"}))
	assert.Equal(t, []EventType{EventStage1Start, EventStage1Complete, EventError}, eventTypes(events))
	assert.Equal(t, AllModelsFailedText, events[2].Message)
}

func TestStream_FaultBecomesErrorEvent(t *testing.T) {
	c, _ := newTestCouncil(t, happyPath)

	events := drain(c.Stream(context.Background(), Request{
		Query: "q",
		Recorder: RecorderFunc(func(context.Context, *Deliberation) error {
			panic("store exploded")
		}),
	}))

	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Contains(t, last.Message, "store exploded")
	for _, e := range events[:len(events)-1] {
		assert.False(t, e.Terminal(), "only the last event may be terminal: %s", e.Type)
	}
}

func TestStream_AbandonedReaderDoesNotBlock(t *testing.T) {
	c, _ := newTestCouncil(t, happyPath)
	ctx, cancel := context.WithCancel(context.Background())

	events := c.Stream(ctx, Request{Query: "q"})
	<-events
	cancel()

	done := make(chan struct{})
	go func() {
		for range events {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after cancel")
	}
}

func TestRun_RepeatedCouncilModelAnswersOnce(t *testing.T) {
	client := &fakeClient{respond: func(c call) (*openrouter.Completion, error) {
		if c.Kind() == "rank" {
			return &openrouter.Completion{Content: "FINAL RANKING:\n1. Response B\n2. Response A"}, nil
		}
		return happyPath(c)
	}}
	c, err := NewCouncil(client, &config.CouncilEnvConfig{
		CouncilModels: []string{"a", "a", "b"},
		ChairmanModel: "chair",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, c.Models())

	d, err := c.Run(context.Background(), Request{Query: "q"})
	require.NoError(t, err)
	require.Len(t, d.Stage1, 2)
	assert.Equal(t, LabelMap{
		"Response A": {Model: "a", Instance: 1},
		"Response B": {Model: "b", Instance: 1},
	}, d.Metadata.LabelToModel)
	require.Len(t, d.Metadata.AggregateRankings, 2)
	assert.Equal(t, AggregateRankEntry{Model: "b", Instance: 1, AverageRank: 1, RankingsCount: 2}, d.Metadata.AggregateRankings[0])
	assert.Len(t, client.kind("answer"), 2)
	assert.Len(t, client.kind("rank"), 2)
}
