package aggregate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/rollup/schema"
)

type fakeSource struct {
	mu      sync.Mutex
	docs    []map[string]any
	failOn  string
	queries []GroupQuery
}

func (f *fakeSource) Group(ctx context.Context, q GroupQuery) ([]types.RawRecord, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.failOn != "" {
		for _, g := range q.GroupBy {
			if g == f.failOn {
				return nil, errors.New("connection reset")
			}
		}
	}
	return GroupDocuments(f.docs, q), nil
}

func exampleSpec() schema.Spec {
	return schema.Spec{
		SourceType: "findings",
		Identity:   []schema.Field{{Name: "org"}, {Name: "app"}},
		Header:     []schema.Field{{Name: "owner"}},
		Item:       schema.ItemSpec{Key: schema.Field{Name: "finding"}, Fields: []schema.Field{{Name: "description"}}},
		Category:   schema.Field{Name: "severity"},
	}
}

func exampleDocs() []map[string]any {
	return []map[string]any{
		{"org": "LOB1", "app": "A100", "owner": "Dana", "finding": "X-01", "severity": "High", "description": "first"},
		{"org": "LOB1", "app": "A100", "owner": "Lee", "finding": "X-01", "severity": "High", "description": "second"},
		{"org": "LOB1", "app": "A100", "owner": "Dana", "finding": "X-02", "severity": "Medium"},
	}
}

func TestEngineRunExampleScenario(t *testing.T) {
	src := &fakeSource{docs: exampleDocs()}
	e := NewEngine(src, nil, 0)
	v, err := e.Run(context.Background(), exampleSpec(), "raw_findings")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantHeaders := []types.RawRecord{{"org": "LOB1", "app": "A100", "owner": "Dana", "count": int64(3)}}
	if diff := cmp.Diff(wantHeaders, v.Headers); diff != "" {
		t.Fatalf("headers mismatch (-want +got):\n%s", diff)
	}
	wantItems := []types.RawRecord{
		{"org": "LOB1", "app": "A100", "finding": "X-01", "description": "first", "count": int64(2)},
		{"org": "LOB1", "app": "A100", "finding": "X-02", "description": nil, "count": int64(1)},
	}
	if diff := cmp.Diff(wantItems, v.Items); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	wantCategories := []types.RawRecord{
		{"org": "LOB1", "app": "A100", "severity": "High", "count": int64(2)},
		{"org": "LOB1", "app": "A100", "severity": "Medium", "count": int64(1)},
	}
	if diff := cmp.Diff(wantCategories, v.Categories); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}
	if len(src.queries) != 3 {
		t.Fatalf("queries: want=3 got=%d", len(src.queries))
	}
}

func TestEngineRunFailsWholeRun(t *testing.T) {
	src := &fakeSource{docs: exampleDocs(), failOn: "severity"}
	e := NewEngine(src, nil, 0)
	v, err := e.Run(context.Background(), exampleSpec(), "raw_findings")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !types.IsKind(err, types.KindAggregation) {
		t.Fatalf("expected aggregation kind, got=%s", types.KindOf(err))
	}
	var pe *types.PipelineError
	if !errors.As(err, &pe) || pe.Stage != StageCategories {
		t.Fatalf("expected stage %s, got=%v", StageCategories, err)
	}
	if v.Headers != nil || v.Items != nil || v.Categories != nil {
		t.Fatalf("partial views returned: %+v", v)
	}
}

func TestEngineRequiresCollection(t *testing.T) {
	e := NewEngine(&fakeSource{}, nil, 0)
	if _, err := e.AggregateHeader(context.Background(), exampleSpec(), ""); !types.IsKind(err, types.KindConfiguration) {
		t.Fatalf("expected configuration error, got=%v", err)
	}
}

func TestGrouperNullAndNestedFields(t *testing.T) {
	docs := []map[string]any{
		{"org": nil, "meta": map[string]any{"region": "us"}, "owner": nil},
		{"meta": map[string]any{"region": "us"}, "owner": "late"},
		{"org": "LOB1", "meta": map[string]any{"region": "eu"}},
	}
	got := GroupDocuments(docs, GroupQuery{GroupBy: []string{"org", "meta.region"}, First: []string{"owner"}})
	want := []types.RawRecord{
		{"org": "", "meta.region": "us", "owner": nil, "count": int64(2)},
		{"org": "LOB1", "meta.region": "eu", "owner": nil, "count": int64(1)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}
}

func TestLookup(t *testing.T) {
	doc := map[string]any{"a.b": 1, "a": map[string]any{"b": 2, "c": map[string]any{"d": "x"}}}
	if v, ok := Lookup(doc, "a.b"); !ok || v != 1 {
		t.Fatalf("literal dotted key should win: got=%v", v)
	}
	if v, ok := Lookup(doc, "a.c.d"); !ok || v != "x" {
		t.Fatalf("nested lookup: got=%v ok=%v", v, ok)
	}
	if _, ok := Lookup(doc, "a.z"); ok {
		t.Fatalf("missing path should not be found")
	}
}

type blockingSource struct{}

func (blockingSource) Group(ctx context.Context, q GroupQuery) ([]types.RawRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEngineRunHonoursQueryTimeout(t *testing.T) {
	e := NewEngine(blockingSource{}, nil, 20*time.Millisecond)
	start := time.Now()
	_, err := e.Run(context.Background(), exampleSpec(), "findings")
	if !types.IsKind(err, types.KindAggregation) {
		t.Fatalf("expected aggregation error, got=%v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded cause, got=%v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("run was not bounded by the query timeout: %v", elapsed)
	}
}
