package health

import (
	"time"

	"evoloop/internal/profile"
)

// #region types

// SchedulerInfo is the read-only view of the heartbeat loop the reporter
// needs. Implemented by the heartbeat scheduler.
type SchedulerInfo interface {
	State() string
	LastTickAt() time.Time
	Cycle() uint64
}

// ProfileStatus is the per-profile slice of a health report.
type ProfileStatus struct {
	LastEvaluatedAt time.Time `json:"last_evaluated_at"`
	EvolutionCount  int       `json:"evolution_count"`
	LastFitness     float64   `json:"last_fitness"`
	LastError       string    `json:"last_error,omitempty"`
}

// Report is a point-in-time diagnostics snapshot. Building one never blocks
// on the scheduler; it reads registry snapshots only.
type Report struct {
	SchedulerState     string                   `json:"scheduler_state"`
	LastTickAt         time.Time                `json:"last_tick_at"`
	Cycle              uint64                   `json:"cycle"`
	ActiveProfileCount int                      `json:"active_profile_count"`
	Profiles           map[string]ProfileStatus `json:"profiles"`
}

// #endregion types

// #region reporter

// Reporter assembles health reports from the scheduler and registry.
type Reporter struct {
	sched    SchedulerInfo
	registry *profile.Registry
}

// NewReporter wires a reporter over the given collaborators.
func NewReporter(sched SchedulerInfo, registry *profile.Registry) *Reporter {
	return &Reporter{sched: sched, registry: registry}
}

// Report builds the current diagnostics snapshot.
func (r *Reporter) Report() Report {
	ids := r.registry.List()
	rep := Report{
		SchedulerState:     r.sched.State(),
		LastTickAt:         r.sched.LastTickAt(),
		Cycle:              r.sched.Cycle(),
		ActiveProfileCount: len(ids),
		Profiles:           make(map[string]ProfileStatus, len(ids)),
	}
	for _, id := range ids {
		p, err := r.registry.Get(id)
		if err != nil {
			continue // removed between List and Get
		}
		st := ProfileStatus{
			LastEvaluatedAt: p.LastEvaluatedAt,
			EvolutionCount:  p.EvolutionCount,
			LastError:       p.LastErr,
		}
		if n := len(p.History); n > 0 {
			st.LastFitness = p.History[n-1].Fitness.Overall
		}
		rep.Profiles[id] = st
	}
	return rep
}

// #endregion reporter
