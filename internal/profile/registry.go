// Package profile owns the registry of evolution profiles. The registry is
// the single mutation point for profile state: the scheduler commits
// evaluations through it, everything else reads snapshots.
package profile

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"evoloop/internal/artifact"
	"evoloop/internal/mutation"
	"evoloop/internal/statevec"
)

// #region registry

// DefaultRetention bounds per-profile history length.
const DefaultRetention = 100

// Registry holds the active profiles keyed by id. Structural changes
// (register/remove) and commits are guarded by one mutex; reads return
// copies so callers never alias registry-owned state.
type Registry struct {
	mu        sync.RWMutex
	profiles  map[string]*Profile
	retention int
}

// NewRegistry creates an empty registry. retention <= 0 selects
// DefaultRetention.
func NewRegistry(retention int) *Registry {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Registry{
		profiles:  make(map[string]*Profile),
		retention: retention,
	}
}

// #endregion registry

// #region register

// Register creates a profile from an artifact and its initial observation
// and returns the new profile id. The initial vector is recorded as pending
// so the first tick runs the cold-start path.
func (r *Registry) Register(a artifact.Artifact, initial statevec.Vector) string {
	id := uuid.New().String()
	now := time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[id] = &Profile{
		ID:               id,
		OriginalArtifact: a.Clone(),
		CurrentArtifact:  a.Clone(),
		PendingState:     &initial,
		CreatedAt:        now,
	}
	return id
}

// Restore inserts a previously persisted profile under its original id,
// replacing any registered profile with the same id. Used by startup load.
func (r *Registry) Restore(p Profile) {
	cp := copyProfile(&p)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID] = cp
}

// #endregion register

// #region read

// Get returns a snapshot copy of the profile, or ErrNotFound.
func (r *Registry) Get(id string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *copyProfile(p), nil
}

// List returns all registered ids in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered profiles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}

// #endregion read

// #region remove

// Remove deletes the profile and reports whether it existed. Removal is an
// explicit operation; profiles are never dropped implicitly.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.profiles[id]
	delete(r.profiles, id)
	return ok
}

// #endregion remove

// #region update-state

// UpdateState records a new observation for the profile. The vector becomes
// visible to the pipeline on the next tick.
func (r *Registry) UpdateState(id string, v statevec.Vector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p.PendingState = &v
	return nil
}

// TakePending consumes and returns the pending observation, if any.
func (r *Registry) TakePending(id string) (*statevec.Vector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	v := p.PendingState
	p.PendingState = nil
	return v, nil
}

// #endregion update-state

// #region commit

// CommitEvaluation applies one pipeline result to the profile. The consumed
// state always advances; artifact, history, and evolution count advance only
// when the pipeline triggered. History is FIFO-trimmed to the retention
// limit. A successful commit clears the profile's error marker.
func (r *Registry) CommitEvaluation(id string, ev Evaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	consumed := ev.ConsumedState
	p.LastStateVector = &consumed
	p.LastEvaluatedAt = ev.At
	p.LastErr = ""

	if ev.NewArtifact != nil {
		p.CurrentArtifact = ev.NewArtifact.Clone()
		p.EvolutionCount++

		entry := HistoryEntry{
			Timestamp:  ev.At,
			Directives: append([]mutation.Directive(nil), ev.Directives...),
			Aggregate:  ev.Report.Aggregate,
			FieldDelta: copyFloats(ev.Report.Delta),
		}
		if ev.Fitness != nil {
			entry.Fitness = *ev.Fitness
		}
		p.History = append(p.History, entry)
		if over := len(p.History) - r.retention; over > 0 {
			p.History = append([]HistoryEntry(nil), p.History[over:]...)
		}
	}
	return nil
}

// RecordError marks the profile with its most recent evaluation failure so
// monitoring can distinguish stalled from idle.
func (r *Registry) RecordError(id string, evalErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.profiles[id]; ok {
		p.LastErr = evalErr.Error()
	}
}

// #endregion commit

// #region helpers

func copyProfile(p *Profile) *Profile {
	cp := *p
	cp.OriginalArtifact = p.OriginalArtifact.Clone()
	cp.CurrentArtifact = p.CurrentArtifact.Clone()
	if p.LastStateVector != nil {
		v := *p.LastStateVector
		cp.LastStateVector = &v
	}
	if p.PendingState != nil {
		v := *p.PendingState
		cp.PendingState = &v
	}
	cp.History = append([]HistoryEntry(nil), p.History...)
	return &cp
}

func copyFloats(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// #endregion helpers
