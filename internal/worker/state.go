package worker

import (
	"sync"
	"time"
)

// Phase is the loop's position in its lifecycle.
type Phase string

const (
	PhaseWaiting      Phase = "waiting_for_first_job"
	PhaseDraining     Phase = "draining"
	PhaseShuttingDown Phase = "shutting_down"
	PhaseStopped      Phase = "stopped"
)

// Snapshot is a copy of the loop counters, safe to hand to other goroutines.
type Snapshot struct {
	Mode      string    `json:"mode"`
	Phase     Phase     `json:"phase"`
	StartedAt time.Time `json:"started_at"`
	Polls     int       `json:"polls"`
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	LastJobID string    `json:"last_job_id,omitempty"`
	LastJobAt time.Time `json:"last_job_at,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// State is written by the loop and read by the status server.
type State struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewState(mode string) *State {
	return &State{snap: Snapshot{
		Mode:      mode,
		Phase:     PhaseWaiting,
		StartedAt: time.Now().UTC(),
	}}
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *State) setPhase(p Phase) {
	s.mu.Lock()
	s.snap.Phase = p
	s.mu.Unlock()
}

func (s *State) recordPoll() {
	s.mu.Lock()
	s.snap.Polls++
	s.mu.Unlock()
}

func (s *State) recordJob(jobID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastJobID = jobID
	s.snap.LastJobAt = time.Now().UTC()
	if err != nil {
		s.snap.Failed++
		s.snap.LastError = err.Error()
		return
	}
	s.snap.Processed++
	s.snap.LastError = ""
}
