// Package heartbeat runs the timer-driven evaluation loop. Each tick
// snapshots the registered profile ids, runs the
// detect → generate → apply → evaluate pipeline per profile with
// partial-failure isolation, and emits one heartbeat event after all
// profiles have been handled.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"evoloop/internal/artifact"
	"evoloop/internal/detect"
	"evoloop/internal/events"
	"evoloop/internal/fitness"
	"evoloop/internal/health"
	"evoloop/internal/mutation"
	"evoloop/internal/profile"
)

// #region scheduler

// FlushFunc persists final state during Stop. Best-effort: an error is
// logged and shutdown proceeds.
type FlushFunc func(ctx context.Context) error

// Scheduler drives the adaptive loop. The tick body is the single writer of
// profile state; all writes go through the registry.
type Scheduler struct {
	cfg       Config
	registry  *profile.Registry
	evaluator *fitness.Evaluator
	sink      events.Sink
	metrics   *health.Metrics // optional
	flush     FlushFunc       // optional

	mu        sync.Mutex
	state     string
	cycle     uint64
	lastTick  time.Time
	stoppedAt time.Time

	// pipeMu serializes pipeline runs across the tick loop and
	// ManualEvaluate, so the registry sees one writer at a time and a
	// manual run can never commit a snapshot taken before a tick's commit.
	pipeMu sync.Mutex

	quit         chan struct{}
	loopDone     chan struct{}
	evq          chan events.Event
	dispatchDone chan struct{}
}

// New validates the pipeline configuration and builds a stopped scheduler.
// sink may be nil (events are discarded); metrics and flush are optional.
func New(cfg Config, registry *profile.Registry, evaluator *fitness.Evaluator, sink events.Sink, metrics *health.Metrics, flush FlushFunc) (*Scheduler, error) {
	if cfg.Period <= 0 {
		cfg.Period = DefaultConfig().Period
	}
	if cfg.EventQueueSize <= 0 {
		cfg.EventQueueSize = DefaultConfig().EventQueueSize
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}
	if registry == nil || evaluator == nil {
		return nil, fmt.Errorf("heartbeat: registry and evaluator are required")
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Scheduler{
		cfg:       cfg,
		registry:  registry,
		evaluator: evaluator,
		sink:      sink,
		metrics:   metrics,
		flush:     flush,
		state:     StateStopped,
	}, nil
}

// #endregion scheduler

// #region info

// State returns the current lifecycle state.
func (s *Scheduler) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastTickAt returns the start time of the last completed tick.
func (s *Scheduler) LastTickAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTick
}

// Cycle returns the number of completed ticks.
func (s *Scheduler) Cycle() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycle
}

// Done returns a channel closed once the event dispatcher has drained after
// Stop, i.e. after the terminal shutdown event has been delivered.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatchDone
}

// #endregion info

// #region start

// Start transitions Stopped → Running and begins ticking. Calling Start on
// a Running (or Stopping) scheduler returns ErrAlreadyRunning.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopped {
		return ErrAlreadyRunning
	}
	s.state = StateRunning
	s.quit = make(chan struct{})
	s.loopDone = make(chan struct{})
	s.evq = make(chan events.Event, s.cfg.EventQueueSize)
	s.dispatchDone = make(chan struct{})

	go s.dispatch(s.evq, s.dispatchDone)
	go s.loop(s.quit, s.loopDone)

	log.Printf("[SCHED] started period=%s", s.cfg.Period)
	return nil
}

// #endregion start

// #region stop

// Stop transitions Running → Stopping → Stopped: no new ticks start, the
// in-flight tick finishes, final state is flushed best-effort, and exactly
// one terminal shutdown event is queued after all pending events. Safe to
// call from inside a sink handler; use Done() to await full event drain.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.state = StateStopping
	quit, loopDone, evq := s.quit, s.loopDone, s.evq
	s.mu.Unlock()

	close(quit)
	<-loopDone // in-flight tick completes before anything terminal happens

	if s.flush != nil {
		if err := s.flush(ctx); err != nil {
			log.Printf("[SCHED] shutdown flush failed (continuing): %v", err)
		}
	}

	s.mu.Lock()
	s.stoppedAt = time.Now().UTC()
	s.state = StateStopped
	s.mu.Unlock()

	// Closing the queue hands the terminal emission to the dispatcher,
	// which fires shutdown after draining all queued events.
	close(evq)
	log.Printf("[SCHED] stopped after %d cycles", s.Cycle())
	return nil
}

// #endregion stop

// #region loop

func (s *Scheduler) loop(quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case now := <-ticker.C:
			s.runTick(now.UTC())
		}
	}
}

// runTick evaluates every profile present at tick start, then emits the
// heartbeat event. Ticks are serialized by construction (one loop
// goroutine); a tick firing before a full period has elapsed is skipped,
// never queued.
func (s *Scheduler) runTick(now time.Time) {
	s.mu.Lock()
	if !s.lastTick.IsZero() && now.Sub(s.lastTick) < s.cfg.Period {
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.TickSkipsTotal.Inc()
		}
		return
	}
	s.mu.Unlock()

	ids := s.registry.List() // registrations after this point see the next tick
	for _, id := range ids {
		s.evaluateOne(id, now)
	}

	s.mu.Lock()
	s.cycle++
	s.lastTick = now
	cycle := s.cycle
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.TicksTotal.Inc()
		s.metrics.ActiveProfiles.Set(float64(len(ids)))
	}
	s.emit(events.Heartbeat{Cycle: cycle, Timestamp: now, ActiveProfileCount: len(ids)})
}

// #endregion loop

// #region evaluate

// ManualEvaluate runs the identical pipeline for one profile outside the
// timer. Returns profile.ErrNotFound for unknown ids.
func (s *Scheduler) ManualEvaluate(id string) error {
	if _, err := s.registry.Get(id); err != nil {
		return err
	}
	s.evaluateOne(id, time.Now().UTC())
	p, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	if p.LastErr != "" {
		return fmt.Errorf("heartbeat: evaluation failed: %s", p.LastErr)
	}
	return nil
}

// evaluateOne isolates a single profile's pipeline run: any error or panic
// is recorded against that profile only and never aborts the tick.
func (s *Scheduler) evaluateOne(id string, now time.Time) {
	s.pipeMu.Lock()
	err := s.runPipeline(id, now)
	s.pipeMu.Unlock()
	if err == nil {
		return
	}
	if errors.Is(err, profile.ErrNotFound) {
		return // removed between snapshot and evaluation
	}
	log.Printf("[SCHED] profile %s evaluation failed: %v", id, err)
	s.registry.RecordError(id, err)
	if s.metrics != nil {
		s.metrics.EvaluationsTotal.WithLabelValues(health.ResultError).Inc()
	}
}

func (s *Scheduler) runPipeline(id string, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("heartbeat: pipeline panic: %v", r)
		}
	}()

	p, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	pending, err := s.registry.TakePending(id)
	if err != nil {
		return err
	}

	current := pending
	if current == nil {
		// No fresh observation: re-evaluate against the last one, which
		// yields a zero report and keeps lastEvaluatedAt moving.
		current = p.LastStateVector
	}
	if current == nil {
		return nil // never observed; nothing to detect against
	}

	report, err := detect.DetectChecked(p.LastStateVector, *current, s.cfg.GlobalThreshold)
	if err != nil {
		return err
	}
	ev := profile.Evaluation{
		ConsumedState: *current,
		Report:        report,
		At:            now,
	}

	evolved := false
	var overall float64
	if report.Significant {
		directives := mutation.Generate(report, s.cfg.Rules)
		ev.Directives = directives
		if len(directives) > 0 {
			next, applyErr := artifact.Apply(p.CurrentArtifact, directives)
			if applyErr != nil {
				return applyErr
			}
			score := s.evaluator.Evaluate(next, *current)
			ev.NewArtifact = &next
			ev.Fitness = &score
			evolved = true
			overall = score.Overall
		}
	}

	if err := s.registry.CommitEvaluation(id, ev); err != nil {
		return err
	}

	if evolved {
		if s.metrics != nil {
			s.metrics.EvaluationsTotal.WithLabelValues(health.ResultEvolved).Inc()
			s.metrics.ProfileFitness.WithLabelValues(id).Set(overall)
		}
		s.emit(events.ProfileEvaluated{ProfileID: id, Fitness: overall})
	} else if s.metrics != nil {
		s.metrics.EvaluationsTotal.WithLabelValues(health.ResultIdle).Inc()
	}
	return nil
}

// #endregion evaluate

// #region events

// emit queues an event without blocking the tick loop; a full queue drops
// the event (fire-and-forget contract). Outside a running loop the event is
// delivered synchronously, so ManualEvaluate works without Start.
func (s *Scheduler) emit(e events.Event) {
	s.mu.Lock()
	q := s.evq
	queued := q != nil && s.state != StateStopped
	if queued {
		select {
		case q <- e:
		default:
			log.Printf("[SCHED] event queue full, dropped %s", events.Kind(e))
		}
	}
	s.mu.Unlock()
	if !queued {
		s.sink.Emit(e)
	}
}

// dispatch delivers events in order on a dedicated goroutine, then emits
// the terminal shutdown event once the queue is closed and drained.
func (s *Scheduler) dispatch(q <-chan events.Event, done chan<- struct{}) {
	defer close(done)
	for e := range q {
		s.sink.Emit(e)
	}
	s.mu.Lock()
	at := s.stoppedAt
	s.mu.Unlock()
	s.sink.Emit(events.Shutdown{Timestamp: at})
}

// #endregion events
