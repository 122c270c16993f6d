package testutil

import (
	"sync"
	"time"

	"github.com/yungbote/compoundlab-backend/internal/data/aggregates"
)

// HooksRecorder captures aggregate hook signals in tests. Safe for concurrent writers.
type HooksRecorder struct {
	mu sync.Mutex

	Operations []OperationEvent
	Conflicts  []string
	Retries    []string
}

type OperationEvent struct {
	Name     string
	Status   string
	Duration time.Duration
}

var _ aggregates.Hooks = (*HooksRecorder)(nil)

func (h *HooksRecorder) ObserveOperation(name, status string, dur time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Operations = append(h.Operations, OperationEvent{Name: name, Status: status, Duration: dur})
}

func (h *HooksRecorder) IncConflict(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Conflicts = append(h.Conflicts, name)
}

func (h *HooksRecorder) IncRetry(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Retries = append(h.Retries, name)
}

// StatusCount counts observed operations named op that ended with status.
func (h *HooksRecorder) StatusCount(op, status string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, ev := range h.Operations {
		if ev.Name == op && ev.Status == status {
			n++
		}
	}
	return n
}

func (h *HooksRecorder) ConflictCount(op string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, name := range h.Conflicts {
		if name == op {
			n++
		}
	}
	return n
}
