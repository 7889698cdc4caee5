package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	rolluprepo "github.com/yungbote/rollup-backend/internal/data/repos/rollup"
	"github.com/yungbote/rollup-backend/internal/data/repos/testutil"
	"github.com/yungbote/rollup-backend/internal/data/sources/memory"
	"github.com/yungbote/rollup-backend/internal/data/sources/sqlsource"
	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/rollup/persist"
	"github.com/yungbote/rollup-backend/internal/rollup/schema"
)

const identityKey = "LOB1|A100|Server|Linux|US"

func finding(name, severity, owner string) map[string]any {
	return map[string]any{
		"lob_name":         "LOB1",
		"app_id":           "A100",
		"asset_category":   "Server",
		"operating_system": "Linux",
		"region":           "US",
		"app_owner_name":   owner,
		"scan_date":        "2024-03-09",
		"finding_name":     name,
		"severity":         severity,
	}
}

func exampleDocs() []map[string]any {
	return []map[string]any{
		finding("X-01", "High", "Dana"),
		finding("X-01", "High", "Dana"),
		finding("X-02", "Medium", "Dana"),
	}
}

type countingStore struct {
	persist.TargetStore
	mu       sync.Mutex
	calls    int
	onUpsert func()
}

func (s *countingStore) Upsert(ctx context.Context, rec *types.CompositeRecord) (persist.Outcome, error) {
	s.mu.Lock()
	s.calls++
	hook := s.onUpsert
	s.mu.Unlock()
	out, err := s.TargetStore.Upsert(ctx, rec)
	if hook != nil {
		hook()
	}
	return out, err
}

type fakeLocker struct {
	err      error
	released int
	lose     context.CancelCauseFunc
}

func (l *fakeLocker) Acquire(ctx context.Context, sourceType string) (context.Context, func(context.Context) error, error) {
	if l.err != nil {
		return nil, nil, l.err
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	l.lose = cancel
	return runCtx, func(context.Context) error {
		l.released++
		cancel(context.Canceled)
		return nil
	}, nil
}

type recordingNotifier struct {
	got []types.RunSummary
}

func (n *recordingNotifier) Publish(ctx context.Context, s types.RunSummary) error {
	n.got = append(n.got, s)
	return nil
}

func setup(t *testing.T, opts Options) (*Orchestrator, *memory.Source, *countingStore) {
	t.Helper()
	reg, err := schema.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	src := memory.New()
	store := &countingStore{TargetStore: persist.NewMemoryStore()}
	return New(reg, src, store, testutil.Logger(t), opts), src, store
}

func ingest(t *testing.T, src *memory.Source, collection string, docs []map[string]any) {
	t.Helper()
	if _, err := src.Ingest(context.Background(), collection, docs); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
}

type nameCount struct {
	Name  string
	Count int64
}

func categoriesOf(rec *types.StoredRecord) []nameCount {
	out := []nameCount{}
	for _, c := range rec.Categories {
		out = append(out, nameCount{c.Category, c.Count})
	}
	return out
}

func TestRunPipelineExampleScenario(t *testing.T) {
	notifier := &recordingNotifier{}
	o, src, store := setup(t, Options{Notifier: notifier})
	ingest(t, src, "vulnerability", exampleDocs())

	summary, err := o.RunPipeline(context.Background(), "vulnerability", "")
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if summary.Collection != "vulnerability" {
		t.Fatalf("collection default: got=%q", summary.Collection)
	}
	if summary.HeadersProcessed != 1 || summary.ItemsMerged != 2 || summary.CategoriesMerged != 2 || summary.RecordsUpserted != 1 {
		t.Fatalf("summary: %+v", summary)
	}
	if summary.Inserted != 1 || summary.Replaced != 0 {
		t.Fatalf("outcomes: %+v", summary)
	}

	recs, err := store.List(context.Background(), types.SourceVulnerability, 0)
	if err != nil || len(recs) != 1 {
		t.Fatalf("List: n=%d err=%v", len(recs), err)
	}
	rec := recs[0]
	if rec.Key != identityKey {
		t.Fatalf("key: want=%s got=%s", identityKey, rec.Key)
	}
	if rec.Header["app_owner"] != "Dana" {
		t.Fatalf("header owner: %+v", rec.Header)
	}
	items := []nameCount{}
	for _, it := range rec.Items {
		items = append(items, nameCount{it.Name, it.Count})
	}
	if diff := cmp.Diff([]nameCount{{"X-01", 2}, {"X-02", 1}}, items); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]nameCount{{"High", 2}, {"Medium", 1}}, categoriesOf(rec)); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}
	if len(notifier.got) != 1 || notifier.got[0].RecordsUpserted != 1 {
		t.Fatalf("notifier: %+v", notifier.got)
	}
}

func TestRunPipelineIsIdempotent(t *testing.T) {
	o, src, store := setup(t, Options{})
	ingest(t, src, "vulnerability", exampleDocs())
	ctx := context.Background()

	if _, err := o.RunPipeline(ctx, "vulnerability", ""); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, _ := store.List(ctx, types.SourceVulnerability, 0)
	summary, err := o.RunPipeline(ctx, "vulnerability", "")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Replaced != 1 || summary.Inserted != 0 {
		t.Fatalf("second run outcomes: %+v", summary)
	}
	second, _ := store.List(ctx, types.SourceVulnerability, 0)
	if len(second) != 1 || second[0].ID != first[0].ID {
		t.Fatalf("re-run must replace in place: first=%v second=%v", first, second)
	}
	if diff := cmp.Diff(categoriesOf(first[0]), categoriesOf(second[0])); diff != "" {
		t.Fatalf("re-run changed categories (-first +second):\n%s", diff)
	}
}

func TestRunPipelineReplacesChangedSource(t *testing.T) {
	o, src, store := setup(t, Options{})
	ingest(t, src, "vulnerability", exampleDocs())
	ctx := context.Background()
	if _, err := o.RunPipeline(ctx, "vulnerability", ""); err != nil {
		t.Fatalf("first run: %v", err)
	}

	if err := src.Reset(ctx, "vulnerability"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	ingest(t, src, "vulnerability", []map[string]any{
		finding("X-01", "High", "Dana"),
		finding("X-01", "High", "Dana"),
		finding("X-02", "High", "Dana"),
	})
	if _, err := o.RunPipeline(ctx, "vulnerability", ""); err != nil {
		t.Fatalf("second run: %v", err)
	}
	recs, _ := store.List(ctx, types.SourceVulnerability, 0)
	if len(recs) != 1 {
		t.Fatalf("records: want=1 got=%d", len(recs))
	}
	if diff := cmp.Diff([]nameCount{{"High", 3}}, categoriesOf(recs[0])); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}
}

func TestRunPipelineUnregisteredSourceType(t *testing.T) {
	o, src, store := setup(t, Options{})
	ingest(t, src, "patching", exampleDocs())

	_, err := o.RunPipeline(context.Background(), "patching", "")
	if !types.IsKind(err, types.KindConfiguration) {
		t.Fatalf("expected configuration error, got=%v", err)
	}
	if !errors.Is(err, types.ErrUnregisteredSourceType) {
		t.Fatalf("expected ErrUnregisteredSourceType, got=%v", err)
	}
	if store.calls != 0 {
		t.Fatalf("store touched: calls=%d", store.calls)
	}
}

func TestRunPipelineAggregationFailureWritesNothing(t *testing.T) {
	o, src, store := setup(t, Options{})
	ingest(t, src, "vulnerability", exampleDocs())
	src.FailWith(errors.New("connection reset"))

	summary, err := o.RunPipeline(context.Background(), "vulnerability", "")
	if !types.IsKind(err, types.KindAggregation) {
		t.Fatalf("expected aggregation error, got=%v", err)
	}
	if store.calls != 0 || summary.RecordsUpserted != 0 {
		t.Fatalf("nothing should be written: calls=%d summary=%+v", store.calls, summary)
	}
}

func TestRunPipelineLocked(t *testing.T) {
	locker := &fakeLocker{err: types.ErrRunInProgress}
	o, src, store := setup(t, Options{Locker: locker})
	ingest(t, src, "vulnerability", exampleDocs())

	_, err := o.RunPipeline(context.Background(), "vulnerability", "")
	if !types.IsKind(err, types.KindLocked) {
		t.Fatalf("expected locked error, got=%v", err)
	}
	if store.calls != 0 {
		t.Fatalf("store touched while locked: calls=%d", store.calls)
	}
}

func TestRunPipelineReleasesLock(t *testing.T) {
	locker := &fakeLocker{}
	o, src, _ := setup(t, Options{Locker: locker})
	ingest(t, src, "vulnerability", exampleDocs())

	if _, err := o.RunPipeline(context.Background(), "vulnerability", ""); err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if locker.released != 1 {
		t.Fatalf("released: want=1 got=%d", locker.released)
	}
}

func TestRunPipelineLockLostStopsWrites(t *testing.T) {
	locker := &fakeLocker{}
	o, src, store := setup(t, Options{Locker: locker})
	other := finding("X-09", "Low", "Lee")
	other["app_id"] = "A200"
	ingest(t, src, "vulnerability", append(exampleDocs(), other))
	store.onUpsert = func() {
		locker.lose(types.ErrLockLost)
	}

	summary, err := o.RunPipeline(context.Background(), "vulnerability", "")
	if !types.IsKind(err, types.KindLocked) {
		t.Fatalf("expected locked error, got=%v", err)
	}
	if !errors.Is(err, types.ErrLockLost) {
		t.Fatalf("expected ErrLockLost cause, got=%v", err)
	}
	var pe *types.PipelineError
	if !errors.As(err, &pe) || pe.Upserted != 1 || pe.IdentityKey != "LOB1|A200|Server|Linux|US" {
		t.Fatalf("progress not kept: %+v", pe)
	}
	if store.calls != 1 || summary.RecordsUpserted != 1 {
		t.Fatalf("writes after lock loss: calls=%d summary=%+v", store.calls, summary)
	}
	if locker.released != 1 {
		t.Fatalf("released: want=1 got=%d", locker.released)
	}
}

func TestRunPipelineSummaryTimes(t *testing.T) {
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	o, src, _ := setup(t, Options{Now: func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}})
	ingest(t, src, "vulnerability", exampleDocs())

	summary, err := o.RunPipeline(context.Background(), "vulnerability", "")
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if !summary.FinishedAt.After(summary.StartedAt) || summary.Duration <= 0 {
		t.Fatalf("times: %+v", summary)
	}
}

func TestRunPipelineSQLEndToEnd(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	reg, err := schema.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	src := sqlsource.New(db, testutil.Logger(t))
	if _, err := src.Ingest(ctx, "raw_vulns", exampleDocs()); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	store := rolluprepo.NewStore(rolluprepo.NewRollupRecordRepo(db, testutil.Logger(t), nil))
	o := New(reg, src, store, testutil.Logger(t), Options{})

	for i, want := range []int{1, 1} {
		summary, err := o.RunPipeline(ctx, "vulnerability", "raw_vulns")
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if summary.RecordsUpserted != want {
			t.Fatalf("run %d upserted: want=%d got=%d", i, want, summary.RecordsUpserted)
		}
	}
	recs, err := store.List(ctx, types.SourceVulnerability, 0)
	if err != nil || len(recs) != 1 {
		t.Fatalf("List: n=%d err=%v", len(recs), err)
	}
	if recs[0].Version != 2 || recs[0].Header["scan_date"] != "2024-03-09" {
		t.Fatalf("stored record: version=%d header=%v", recs[0].Version, recs[0].Header)
	}
	if diff := cmp.Diff([]nameCount{{"High", 2}, {"Medium", 1}}, categoriesOf(recs[0])); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}
}
