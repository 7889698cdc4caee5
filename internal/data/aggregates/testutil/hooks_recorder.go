package testutil

import (
	"sync"

	"github.com/yungbote/rollup-backend/internal/data/aggregates"
)

// HooksRecorder keeps every store event it receives.
type HooksRecorder struct {
	mu sync.Mutex

	Events    []aggregates.StoreEvent
	Conflicts []aggregates.StoreEvent
}

var _ aggregates.Hooks = (*HooksRecorder)(nil)

func (h *HooksRecorder) ObserveOperation(ev aggregates.StoreEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Events = append(h.Events, ev)
}

func (h *HooksRecorder) IncConflict(ev aggregates.StoreEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Conflicts = append(h.Conflicts, ev)
}

// Statuses returns the statuses recorded for op, in order.
func (h *HooksRecorder) Statuses(op string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, ev := range h.Events {
		if ev.Operation == op {
			out = append(out, ev.Status)
		}
	}
	return out
}

// ConflictKeys returns the identity keys that hit a conflict.
func (h *HooksRecorder) ConflictKeys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.Conflicts))
	for _, ev := range h.Conflicts {
		out = append(out, ev.IdentityKey)
	}
	return out
}
