package council

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventStage1Start      EventType = "stage1_start"
	EventStage1Complete   EventType = "stage1_complete"
	EventStage2Start      EventType = "stage2_start"
	EventStage2Complete   EventType = "stage2_complete"
	EventStage3Start      EventType = "stage3_start"
	EventStage3Complete   EventType = "stage3_complete"
	EventTitleComplete    EventType = "title_complete"
	EventFollowUpStart    EventType = "followup_start"
	EventFollowUpComplete EventType = "followup_complete"
	EventComplete         EventType = "complete"
	EventError            EventType = "error"
)

// Event is one step of an incremental run.
type Event struct {
	Type     EventType `json:"type"`
	Data     any       `json:"data,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
	Message  string    `json:"message,omitempty"`
}

type TitleData struct {
	Title string `json:"title"`
}

// Terminal reports whether no event follows e.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// stream runs fn in its own goroutine and turns its outcome into the closing
// event: complete on success, a single error event otherwise. A panic inside
// fn is reported the same way. Sends give up once ctx is done so an abandoned
// reader never pins the goroutine.
func stream(ctx context.Context, fn func(emit func(Event)) error) <-chan Event {
	events := make(chan Event, 8)

	emit := func(e Event) {
		select {
		case events <- e:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(events)
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("stream run panicked")
				emit(Event{Type: EventError, Message: fmt.Sprint(r)})
			}
		}()

		if err := fn(emit); err != nil {
			log.Error().Err(err).Msg("stream run failed")
			emit(Event{Type: EventError, Message: err.Error()})
			return
		}
		emit(Event{Type: EventComplete})
	}()

	return events
}
