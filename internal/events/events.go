// Package events defines the outbound event surface. Emission is
// fire-and-forget: the loop never depends on a subscriber being present.
package events

import (
	"log"
	"time"
)

// #region event-types

// Heartbeat is emitted once per completed tick, after every profile present
// at tick start has been evaluated.
type Heartbeat struct {
	Cycle              uint64
	Timestamp          time.Time
	ActiveProfileCount int
}

// ProfileEvaluated is emitted when a tick's pipeline changed a profile's
// artifact.
type ProfileEvaluated struct {
	ProfileID string
	Fitness   float64
}

// Shutdown is the terminal event; exactly one is emitted per scheduler
// lifetime, after the final in-flight tick completes.
type Shutdown struct {
	Timestamp time.Time
}

// Event is one of Heartbeat, ProfileEvaluated, or Shutdown.
type Event interface{ eventKind() string }

func (Heartbeat) eventKind() string        { return "heartbeat" }
func (ProfileEvaluated) eventKind() string { return "profile_evaluated" }
func (Shutdown) eventKind() string         { return "shutdown" }

// Kind returns the event's wire name.
func Kind(e Event) string { return e.eventKind() }

// #endregion event-types

// #region sink

// Sink receives emitted events. Implementations must not assume exclusive
// delivery; events may be dropped under backpressure.
type Sink interface {
	Emit(e Event)
}

// LogSink writes events to the process log.
type LogSink struct{}

// Emit logs the event with its kind tag.
func (LogSink) Emit(e Event) {
	switch ev := e.(type) {
	case Heartbeat:
		log.Printf("[EVENT] heartbeat cycle=%d profiles=%d", ev.Cycle, ev.ActiveProfileCount)
	case ProfileEvaluated:
		log.Printf("[EVENT] profile_evaluated id=%s fitness=%.4f", ev.ProfileID, ev.Fitness)
	case Shutdown:
		log.Printf("[EVENT] shutdown at=%s", ev.Timestamp.Format(time.RFC3339Nano))
	default:
		log.Printf("[EVENT] %s", Kind(e))
	}
}

// NopSink discards all events.
type NopSink struct{}

// Emit discards the event.
func (NopSink) Emit(Event) {}

// #endregion sink
