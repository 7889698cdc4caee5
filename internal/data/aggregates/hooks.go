package aggregates

import (
	"strings"
	"time"

	"github.com/yungbote/rollup-backend/internal/observability"
)

// StoreEvent describes one target store operation against a single identity.
// IdentityKey is empty for operations that span a source type.
type StoreEvent struct {
	Operation   string
	SourceType  string
	IdentityKey string
	Status      string
	Duration    time.Duration
}

// Hooks receives target store events.
type Hooks interface {
	ObserveOperation(ev StoreEvent)
	IncConflict(ev StoreEvent)
}

type noopHooks struct{}

func (noopHooks) ObserveOperation(StoreEvent) {}
func (noopHooks) IncConflict(StoreEvent)      {}

func NoopHooks() Hooks { return noopHooks{} }

type metricsHooks struct {
	metrics *observability.Metrics
}

// NewObservabilityHooks reports store events as prometheus metrics labelled by
// source type. Identity keys are not used as labels.
func NewObservabilityHooks(metrics *observability.Metrics) Hooks {
	if metrics == nil {
		return noopHooks{}
	}
	return &metricsHooks{metrics: metrics}
}

func (h *metricsHooks) ObserveOperation(ev StoreEvent) {
	h.metrics.ObserveStoreOperation(label(ev.SourceType), label(ev.Operation), label(ev.Status), ev.Duration)
}

func (h *metricsHooks) IncConflict(ev StoreEvent) {
	h.metrics.IncStoreConflict(label(ev.SourceType), label(ev.Operation))
}

func label(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}
