package heartbeat

import (
	"errors"
	"time"

	"evoloop/internal/mutation"
)

// #region states
// Scheduler lifecycle states: Stopped → Running → Stopping → Stopped.
const (
	StateStopped  = "stopped"
	StateRunning  = "running"
	StateStopping = "stopping"
)

// #endregion states

// #region errors
var (
	// ErrAlreadyRunning is returned by Start on a Running scheduler.
	ErrAlreadyRunning = errors.New("heartbeat: already running")
	// ErrNotRunning is returned by Stop on a scheduler that is not Running.
	ErrNotRunning = errors.New("heartbeat: not running")
)

// #endregion errors

// #region config
// Config holds the tick cadence and the pipeline parameters shared by all
// profiles.
type Config struct {
	// Period between ticks. Defaults to 10ms.
	Period time.Duration
	// GlobalThreshold gates significance on the aggregate delta.
	GlobalThreshold float64
	// Rules drive directive generation from change reports.
	Rules mutation.RuleSet
	// EventQueueSize bounds the outbound event buffer. Defaults to 256.
	EventQueueSize int
}

// DefaultConfig returns a high-frequency configuration.
func DefaultConfig() Config {
	return Config{
		Period:          10 * time.Millisecond,
		GlobalThreshold: 0.1,
		EventQueueSize:  256,
	}
}

// #endregion config
