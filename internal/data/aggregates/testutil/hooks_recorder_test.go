package testutil

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yungbote/rollup-backend/internal/data/aggregates"
)

func TestHooksRecorderKeepsEventsPerOperation(t *testing.T) {
	h := &HooksRecorder{}
	upsert := aggregates.StoreEvent{Operation: "rollup.upsert", SourceType: "vulnerability", IdentityKey: "LOB1|A100"}

	ins := upsert
	ins.Status, ins.Duration = "inserted", 10*time.Millisecond
	h.ObserveOperation(ins)
	h.ObserveOperation(aggregates.StoreEvent{Operation: "rollup.list", SourceType: "vulnerability", Status: "ok"})
	h.IncConflict(upsert)

	if len(h.Events) != 2 {
		t.Fatalf("events: want=2 got=%d", len(h.Events))
	}
	if diff := cmp.Diff([]string{"inserted"}, h.Statuses("rollup.upsert")); diff != "" {
		t.Fatalf("statuses mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"LOB1|A100"}, h.ConflictKeys()); diff != "" {
		t.Fatalf("conflict keys mismatch (-want +got):\n%s", diff)
	}
}
