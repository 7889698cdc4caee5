package memory

import (
	"context"
	"errors"
	"testing"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/rollup/aggregate"
)

func TestSourceGroupsInIngestionOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	docs := []map[string]any{
		{"app": "A200", "owner": "Sam"},
		{"app": "A100", "owner": "Dana"},
		{"app": "A200", "owner": "Lee"},
		{"app": nil, "owner": "Kim"},
	}
	if n, err := s.Ingest(ctx, "findings", docs); err != nil || n != 4 {
		t.Fatalf("Ingest: n=%d err=%v", n, err)
	}
	docs[0]["app"] = "mutated"

	got, err := s.Group(ctx, aggregate.GroupQuery{Collection: "findings", GroupBy: []string{"app"}, First: []string{"owner"}})
	if err != nil {
		t.Fatalf("Group: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("groups: want=3 got=%d", len(got))
	}
	want := []struct {
		app, owner string
		count      int64
	}{{"A200", "Sam", 2}, {"A100", "Dana", 1}, {"", "Kim", 1}}
	for i, w := range want {
		if got[i]["app"] != w.app || got[i]["owner"] != w.owner || got[i][types.CountField] != w.count {
			t.Fatalf("group %d: want=%+v got=%v", i, w, got[i])
		}
	}
}

func TestSourceResetAndFailWith(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.Ingest(ctx, " ", nil); err == nil {
		t.Fatalf("expected error for blank collection")
	}
	_, _ = s.Ingest(ctx, "findings", []map[string]any{{"app": "A100"}})
	if err := s.Reset(ctx, "findings"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	q := aggregate.GroupQuery{Collection: "findings", GroupBy: []string{"app"}}
	if got, _ := s.Group(ctx, q); len(got) != 0 {
		t.Fatalf("after reset: want=0 got=%d", len(got))
	}

	boom := errors.New("boom")
	s.FailWith(boom)
	if _, err := s.Group(ctx, q); !errors.Is(err, boom) {
		t.Fatalf("FailWith: want=%v got=%v", boom, err)
	}
	s.FailWith(nil)
	if _, err := s.Group(ctx, q); err != nil {
		t.Fatalf("cleared: %v", err)
	}
}
