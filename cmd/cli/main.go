package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/council/pkg/client"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	stageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6BCB77"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	answerBox  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

type (
	streamMsg struct {
		conversationID string
		events         <-chan client.Event
	}
	eventMsg      struct{ event client.Event }
	streamDoneMsg struct{}
	errMsg        struct{ err error }
)

type model struct {
	api        *client.Client
	ctx        context.Context
	duplicates []string

	input   textinput.Model
	spinner spinner.Model

	conversationID string
	title          string
	running        bool
	events         <-chan client.Event
	progress       []string
	rankings       []client.AggregateRankEntry
	answer         string
	err            error
	width          int
}

func newModel(ctx context.Context, api *client.Client, duplicates []string) *model {
	input := textinput.New()
	input.Placeholder = "Ask the council..."
	input.CharLimit = 4000
	input.Focus()

	return &model{
		api:        api,
		ctx:        ctx,
		duplicates: duplicates,
		input:      input,
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot)),
		width:      80,
	}
}

func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			query := strings.TrimSpace(m.input.Value())
			if m.running || query == "" {
				return m, nil
			}
			m.input.Reset()
			m.running = true
			m.err = nil
			m.progress = []string{"> " + query}
			m.rankings = nil
			m.answer = ""
			return m, tea.Batch(m.spinner.Tick, m.send(query))
		}

	case streamMsg:
		m.conversationID = msg.conversationID
		m.events = msg.events
		return m, waitForEvent(m.events)

	case eventMsg:
		m.apply(msg.event)
		if msg.event.Terminal() {
			m.running = false
			return m, nil
		}
		return m, waitForEvent(m.events)

	case streamDoneMsg:
		m.running = false
		return m, nil

	case errMsg:
		m.err = msg.err
		m.running = false
		return m, nil

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// send creates the conversation on first use and opens the event stream.
func (m *model) send(query string) tea.Cmd {
	id := m.conversationID
	return func() tea.Msg {
		if id == "" {
			conv, err := m.api.CreateConversation(m.ctx)
			if err != nil {
				return errMsg{err}
			}
			id = conv.ID
		}
		events, err := m.api.Stream(m.ctx, id, client.SendMessageRequest{Content: query, DuplicateModels: m.duplicates})
		if err != nil {
			return errMsg{err}
		}
		return streamMsg{conversationID: id, events: events}
	}
}

func waitForEvent(events <-chan client.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return streamDoneMsg{}
		}
		return eventMsg{event: e}
	}
}

func (m *model) apply(e client.Event) {
	switch e.Type {
	case client.EventStage1Start:
		m.progress = append(m.progress, "Stage 1: collecting answers")
	case client.EventStage1Complete:
		var responses []client.ModelResponse
		if err := e.Decode(&responses); err == nil {
			m.progress = append(m.progress, fmt.Sprintf("Stage 1: %d models answered", len(responses)))
		}
	case client.EventStage2Start:
		m.progress = append(m.progress, "Stage 2: peer review")
	case client.EventStage2Complete:
		if e.Metadata != nil {
			m.rankings = e.Metadata.AggregateRankings
		}
		m.progress = append(m.progress, "Stage 2: rankings in")
	case client.EventStage3Start:
		m.progress = append(m.progress, "Stage 3: chairman synthesizing")
	case client.EventFollowUpStart:
		m.progress = append(m.progress, "Chairman answering follow-up")
	case client.EventStage3Complete, client.EventFollowUpComplete:
		var final client.ModelResponse
		if err := e.Decode(&final); err == nil {
			m.answer = final.Response
		}
	case client.EventTitleComplete:
		var t struct {
			Title string `json:"title"`
		}
		if err := e.Decode(&t); err == nil {
			m.title = t.Title
		}
	case client.EventError:
		m.err = fmt.Errorf("%s", e.Message)
	}
}

func (m *model) View() string {
	var b strings.Builder

	title := "LLM Council"
	if m.title != "" {
		title += " · " + m.title
	}
	b.WriteString(titleStyle.Render(title) + "\n\n")

	for _, line := range m.progress {
		b.WriteString(stageStyle.Render(line) + "\n")
	}
	if m.running {
		b.WriteString(m.spinner.View() + " working...\n")
	}

	if len(m.rankings) > 0 {
		b.WriteString("\n" + doneStyle.Render("Aggregate ranking") + "\n")
		for i, r := range m.rankings {
			name := r.Model
			if r.Instance > 1 {
				name = fmt.Sprintf("%s (instance %d)", r.Model, r.Instance)
			}
			b.WriteString(fmt.Sprintf("  %d. %s  avg %.2f (%d votes)\n", i+1, name, r.AverageRank, r.RankingsCount))
		}
	}

	if m.answer != "" {
		b.WriteString("\n" + answerBox.Width(max(20, m.width-4)).Render(m.answer) + "\n")
	}
	if m.err != nil {
		b.WriteString("\n" + errStyle.Render("Error: "+m.err.Error()) + "\n")
	}

	b.WriteString("\n" + m.input.View() + "\n")
	b.WriteString(hintStyle.Render("enter: send · esc: quit") + "\n")
	return b.String()
}

func main() {
	duplicates := flag.String("duplicate", "", "comma-separated council models to run twice")
	debug := flag.Bool("debug", false, "write client logs to council-cli.log")
	flag.Parse()

	log.Logger = zerolog.New(io.Discard)
	if *debug {
		f, err := os.OpenFile("council-cli.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Printf("Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		log.Logger = zerolog.New(f).With().Timestamp().Logger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api, err := client.NewClient(ctx, nil)
	if err != nil {
		fmt.Printf("Error initializing client: %v\n", err)
		os.Exit(1)
	}
	defer api.Close()

	var dup []string
	for _, d := range strings.Split(*duplicates, ",") {
		if d = strings.TrimSpace(d); d != "" {
			dup = append(dup, d)
		}
	}

	if _, err := tea.NewProgram(newModel(ctx, api, dup)).Run(); err != nil {
		fmt.Printf("Error running program: %v\n", err)
		os.Exit(1)
	}
}
