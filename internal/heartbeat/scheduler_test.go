package heartbeat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"evoloop/internal/artifact"
	"evoloop/internal/events"
	"evoloop/internal/fitness"
	"evoloop/internal/mutation"
	"evoloop/internal/profile"
	"evoloop/internal/statevec"
)

// collectSink records emitted events for assertions.
type collectSink struct {
	mu  sync.Mutex
	evs []events.Event
}

func (c *collectSink) Emit(e events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evs = append(c.evs, e)
}

func (c *collectSink) snapshot() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Event(nil), c.evs...)
}

func testSchema() statevec.Schema {
	return statevec.Schema{
		Version: 1,
		Fields: []statevec.FieldSpec{
			{Name: "a", Default: 0},
			{Name: "b", Default: 0},
		},
	}
}

func obs(t *testing.T, a, b float64) statevec.Vector {
	t.Helper()
	v, err := statevec.New(testSchema(), map[string]float64{"a": a, "b": b}, time.Now())
	if err != nil {
		t.Fatalf("build vector: %v", err)
	}
	return v
}

func testEvaluator(t *testing.T) *fitness.Evaluator {
	t.Helper()
	e, err := fitness.NewEvaluator(map[string]float64{"a": 0.5, "b": 0.5})
	if err != nil {
		t.Fatalf("evaluator: %v", err)
	}
	return e
}

func testRules() mutation.RuleSet {
	return mutation.RuleSet{
		{Field: "a", Threshold: 0.05, Kind: mutation.KindTune, Target: "a"},
		{Field: "b", Threshold: 0.05, Kind: mutation.KindTune, Target: "b"},
	}
}

func newScheduler(t *testing.T, cfg Config, reg *profile.Registry, sink events.Sink) *Scheduler {
	t.Helper()
	s, err := New(cfg, reg, testEvaluator(t), sink, nil, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s
}

func TestStartTwiceReturnsError(t *testing.T) {
	s := newScheduler(t, DefaultConfig(), profile.NewRegistry(0), nil)
	if err := s.Start(); err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer s.Stop(context.Background())

	if err := s.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestStopWhenStopped(t *testing.T) {
	s := newScheduler(t, DefaultConfig(), profile.NewRegistry(0), nil)
	if err := s.Stop(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestStateTransitions(t *testing.T) {
	s := newScheduler(t, DefaultConfig(), profile.NewRegistry(0), nil)

	if s.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", s.State())
	}
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.State() != StateRunning {
		t.Fatalf("expected running, got %s", s.State())
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", s.State())
	}
}

func TestHeartbeatCadenceNoProfiles(t *testing.T) {
	sink := &collectSink{}
	cfg := DefaultConfig()
	cfg.Period = 10 * time.Millisecond
	s := newScheduler(t, cfg, profile.NewRegistry(0), sink)

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(105 * time.Millisecond)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	<-s.Done()

	var beats int
	for _, e := range sink.snapshot() {
		hb, ok := e.(events.Heartbeat)
		if !ok {
			continue
		}
		beats++
		if hb.ActiveProfileCount != 0 {
			t.Fatalf("expected zero active profiles, got %d", hb.ActiveProfileCount)
		}
	}
	// ~10 expected; allow timer jitter either way.
	if beats < 5 || beats > 15 {
		t.Fatalf("expected roughly 10 heartbeats, got %d", beats)
	}
}

func TestShutdownEventIsTerminalAndUnique(t *testing.T) {
	sink := &collectSink{}
	cfg := DefaultConfig()
	cfg.Period = 5 * time.Millisecond
	s := newScheduler(t, cfg, profile.NewRegistry(0), sink)

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	<-s.Done()

	evs := sink.snapshot()
	var shutdowns int
	for _, e := range evs {
		if _, ok := e.(events.Shutdown); ok {
			shutdowns++
		}
	}
	if shutdowns != 1 {
		t.Fatalf("expected exactly one shutdown event, got %d", shutdowns)
	}
	if _, ok := evs[len(evs)-1].(events.Shutdown); !ok {
		t.Fatalf("shutdown must be the final event, got %T", evs[len(evs)-1])
	}
}

func TestStopFromSinkHandlerDoesNotDeadlock(t *testing.T) {
	reg := profile.NewRegistry(0)
	cfg := DefaultConfig()
	cfg.Period = 5 * time.Millisecond

	var s *Scheduler
	var once sync.Once
	inner := &collectSink{}
	stopper := sinkFunc(func(e events.Event) {
		inner.Emit(e)
		if _, ok := e.(events.Heartbeat); ok {
			once.Do(func() { s.Stop(context.Background()) })
		}
	})

	s = newScheduler(t, cfg, reg, stopper)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stop from sink handler deadlocked")
	}

	evs := inner.snapshot()
	if _, ok := evs[len(evs)-1].(events.Shutdown); !ok {
		t.Fatalf("expected terminal shutdown, got %T", evs[len(evs)-1])
	}
}

// sinkFunc adapts a func to events.Sink.
type sinkFunc func(events.Event)

func (f sinkFunc) Emit(e events.Event) { f(e) }

func TestPipelineColdStartThenEvolution(t *testing.T) {
	reg := profile.NewRegistry(0)
	cfg := DefaultConfig()
	cfg.GlobalThreshold = 0.10
	cfg.Rules = testRules()
	sink := &collectSink{}
	s := newScheduler(t, cfg, reg, sink)

	a := artifact.New("body", map[string]float64{"a": 0.8, "b": 0.85})
	id := reg.Register(a, obs(t, 0.80, 0.85))

	// Tick 1: cold start consumes the initial observation, never triggers.
	s.runTick(time.Now().UTC())
	p, err := reg.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.EvolutionCount != 0 {
		t.Fatalf("cold start must not evolve, got count %d", p.EvolutionCount)
	}
	if p.LastStateVector == nil {
		t.Fatal("cold start must record the observation")
	}

	// Tick 2: a moves 0.80 → 0.95, aggregate 0.15 > 0.10, rule on a fires.
	if err := reg.UpdateState(id, obs(t, 0.95, 0.85)); err != nil {
		t.Fatalf("update state: %v", err)
	}
	s.runTick(time.Now().UTC().Add(cfg.Period))

	p, _ = reg.Get(id)
	if p.EvolutionCount != 1 {
		t.Fatalf("expected one evolution, got %d", p.EvolutionCount)
	}
	if len(p.History) != 1 {
		t.Fatalf("expected one history entry, got %d", len(p.History))
	}
	entry := p.History[0]
	if len(entry.Directives) != 1 {
		t.Fatalf("expected one directive, got %d", len(entry.Directives))
	}
	if entry.Directives[0].Intensity < 0.149 || entry.Directives[0].Intensity > 0.151 {
		t.Fatalf("expected intensity 0.15, got %f", entry.Directives[0].Intensity)
	}
	if p.CurrentArtifact.Metrics["a"] <= 0.8 {
		t.Fatalf("tune directive should raise metric a, got %f", p.CurrentArtifact.Metrics["a"])
	}

	// ProfileEvaluated fired for the evolution.
	var evaluated int
	for _, e := range sink.snapshot() {
		if pe, ok := e.(events.ProfileEvaluated); ok {
			evaluated++
			if pe.ProfileID != id {
				t.Fatalf("unexpected profile id %s", pe.ProfileID)
			}
		}
	}
	if evaluated != 1 {
		t.Fatalf("expected one profileEvaluated event, got %d", evaluated)
	}
}

func TestIdenticalObservationsNoOp(t *testing.T) {
	reg := profile.NewRegistry(0)
	cfg := DefaultConfig()
	cfg.Rules = testRules()
	s := newScheduler(t, cfg, reg, nil)

	id := reg.Register(artifact.New("body", nil), obs(t, 0.5, 0.5))
	s.runTick(time.Now().UTC())

	before, _ := reg.Get(id)
	if err := reg.UpdateState(id, obs(t, 0.5, 0.5)); err != nil {
		t.Fatalf("update state: %v", err)
	}
	s.runTick(time.Now().UTC().Add(cfg.Period))

	after, _ := reg.Get(id)
	if after.EvolutionCount != before.EvolutionCount {
		t.Fatal("identical consecutive observations must not evolve")
	}
	if after.CurrentArtifact.Version != before.CurrentArtifact.Version {
		t.Fatal("artifact must be unchanged on zero aggregate")
	}
}

func TestFaultIsolationBetweenProfiles(t *testing.T) {
	reg := profile.NewRegistry(0)
	cfg := DefaultConfig()
	cfg.GlobalThreshold = 0.05
	cfg.Rules = testRules()
	s := newScheduler(t, cfg, reg, nil)

	bad := reg.Register(artifact.New("bad", nil), obs(t, 0.0, 0.0))
	good := reg.Register(artifact.New("good", nil), obs(t, 0.0, 0.0))

	// Consume cold starts.
	s.runTick(time.Now().UTC())

	// Corrupt the rule set after construction so the bad profile's apply
	// stage fails; validation at New prevents this in production wiring.
	s.cfg.Rules = mutation.RuleSet{
		{Field: "a", Threshold: 0.05, Kind: mutation.Kind("bogus"), Target: "a"},
		{Field: "b", Threshold: 0.05, Kind: mutation.KindTune, Target: "b"},
	}

	if err := reg.UpdateState(bad, obs(t, 0.9, 0.0)); err != nil {
		t.Fatalf("update bad: %v", err)
	}
	if err := reg.UpdateState(good, obs(t, 0.0, 0.9)); err != nil {
		t.Fatalf("update good: %v", err)
	}
	s.runTick(time.Now().UTC().Add(cfg.Period))

	pBad, _ := reg.Get(bad)
	pGood, _ := reg.Get(good)

	if pBad.LastErr == "" {
		t.Fatal("bad profile should carry its evaluation error")
	}
	if pBad.EvolutionCount != 0 {
		t.Fatalf("failed evaluation must not evolve, got %d", pBad.EvolutionCount)
	}
	if pGood.EvolutionCount != 1 {
		t.Fatalf("healthy profile must evolve despite sibling failure, got %d", pGood.EvolutionCount)
	}
	if pGood.LastErr != "" {
		t.Fatalf("healthy profile should have no error, got %q", pGood.LastErr)
	}
}

func TestDriftGuardSkipsEarlyTick(t *testing.T) {
	reg := profile.NewRegistry(0)
	cfg := DefaultConfig()
	cfg.Period = time.Second
	s := newScheduler(t, cfg, reg, nil)

	now := time.Now().UTC()
	s.runTick(now)
	s.runTick(now.Add(100 * time.Millisecond)) // under one period, must skip
	if s.Cycle() != 1 {
		t.Fatalf("expected 1 completed cycle, got %d", s.Cycle())
	}

	s.runTick(now.Add(cfg.Period))
	if s.Cycle() != 2 {
		t.Fatalf("expected 2 completed cycles, got %d", s.Cycle())
	}
}

func TestManualEvaluateUnknownProfile(t *testing.T) {
	s := newScheduler(t, DefaultConfig(), profile.NewRegistry(0), nil)
	if err := s.ManualEvaluate("missing"); !errors.Is(err, profile.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestManualEvaluateRunsPipeline(t *testing.T) {
	reg := profile.NewRegistry(0)
	cfg := DefaultConfig()
	cfg.GlobalThreshold = 0.10
	cfg.Rules = testRules()
	s := newScheduler(t, cfg, reg, nil)

	id := reg.Register(artifact.New("body", nil), obs(t, 0.2, 0.2))
	if err := s.ManualEvaluate(id); err != nil {
		t.Fatalf("cold start manual evaluate: %v", err)
	}
	if err := reg.UpdateState(id, obs(t, 0.8, 0.2)); err != nil {
		t.Fatalf("update state: %v", err)
	}
	if err := s.ManualEvaluate(id); err != nil {
		t.Fatalf("manual evaluate: %v", err)
	}

	p, _ := reg.Get(id)
	if p.EvolutionCount != 1 {
		t.Fatalf("expected one evolution via manual path, got %d", p.EvolutionCount)
	}
}

// Manual evaluation shares the pipeline mutex with the tick loop, so a
// manual run can never commit a profile snapshot taken before a tick's
// commit. Without that serialization this test observes LastStateVector
// moving backwards while ticks push strictly increasing observations.
func TestManualEvaluateSerializedWithTicks(t *testing.T) {
	reg := profile.NewRegistry(0)
	cfg := DefaultConfig()
	cfg.GlobalThreshold = 1000 // never significant; the race is on commits
	s := newScheduler(t, cfg, reg, nil)

	id := reg.Register(artifact.New("body", nil), obs(t, 0, 0))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = s.ManualEvaluate(id)
			}
		}
	}()

	base := time.Now().UTC()
	var maxSeen float64
	for i := 1; i <= 500; i++ {
		if err := reg.UpdateState(id, obs(t, float64(i), 0)); err != nil {
			t.Fatalf("update state: %v", err)
		}
		s.runTick(base.Add(time.Duration(i) * cfg.Period))

		p, err := reg.Get(id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if p.LastStateVector == nil {
			t.Fatal("expected committed state vector")
		}
		a, _ := p.LastStateVector.Get("a")
		if a < maxSeen {
			t.Fatalf("committed state regressed: %f after %f", a, maxSeen)
		}
		maxSeen = a
	}
	close(stop)
	wg.Wait()
}

// A vector built against a different schema version is an evaluation
// failure recorded on the profile, never silently absorbed as zero delta.
func TestSchemaMismatchRecordedAsProfileError(t *testing.T) {
	reg := profile.NewRegistry(0)
	cfg := DefaultConfig()
	cfg.Rules = testRules()
	s := newScheduler(t, cfg, reg, nil)

	id := reg.Register(artifact.New("body", nil), obs(t, 0.5, 0.5))
	s.runTick(time.Now().UTC()) // cold start commits the v1 observation

	schema2 := testSchema()
	schema2.Version = 2
	v2, err := statevec.New(schema2, map[string]float64{"a": 0.9, "b": 0.5}, time.Now())
	if err != nil {
		t.Fatalf("build v2 vector: %v", err)
	}
	if err := reg.UpdateState(id, v2); err != nil {
		t.Fatalf("update state: %v", err)
	}
	s.runTick(time.Now().UTC().Add(cfg.Period))

	p, _ := reg.Get(id)
	if p.LastErr == "" {
		t.Fatal("expected schema mismatch recorded as profile error")
	}
	if p.EvolutionCount != 0 {
		t.Fatalf("mismatched vector must not evolve, got count %d", p.EvolutionCount)
	}
	if a, _ := p.LastStateVector.Get("a"); a != 0.5 {
		t.Fatalf("mismatched vector must not be committed, got a=%f", a)
	}

	// A well-formed observation recovers the profile.
	if err := reg.UpdateState(id, obs(t, 0.5, 0.5)); err != nil {
		t.Fatalf("update state: %v", err)
	}
	s.runTick(time.Now().UTC().Add(2 * cfg.Period))
	p, _ = reg.Get(id)
	if p.LastErr != "" {
		t.Fatalf("expected error cleared after good observation, got %q", p.LastErr)
	}
}

func TestRejectsInvalidRulesAtConstruction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rules = mutation.RuleSet{{Field: "a", Kind: mutation.Kind("bogus")}}
	_, err := New(cfg, profile.NewRegistry(0), testEvaluator(t), nil, nil, nil)
	if !errors.Is(err, mutation.ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}
}
