package report

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/rollup/persist"
)

var loadedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func record(app string, owner any, cats map[string]int64) *types.CompositeRecord {
	id := types.Identity{Fields: []string{"org_unit", "app_id"}, Values: []string{"LOB1", app}}
	rec := types.NewCompositeRecord(types.SourceVulnerability, types.HeaderRecord{
		Identity: id,
		Attributes: types.Attributes{
			"app_owner": owner,
			"scan_date": civil.Date{Year: 2024, Month: time.March, Day: 9},
		},
	}, loadedAt)
	var total int64
	for _, sev := range []string{"High", "Low", "Medium"} {
		if n, ok := cats[sev]; ok {
			rec.Categories = append(rec.Categories, types.CategoryCount{Identity: id, Category: sev, Count: n})
			total += n
		}
	}
	rec.Items = append(rec.Items, types.ItemizedEntity{
		Identity:   id,
		Name:       "X-01",
		Count:      total,
		Attributes: types.Attributes{"cvss_score": 7.5},
	})
	return rec
}

func seededStore(t *testing.T) *persist.MemoryStore {
	t.Helper()
	store := persist.NewMemoryStore()
	for _, rec := range []*types.CompositeRecord{
		record("A100", "Dana", map[string]int64{"High": 2, "Medium": 1}),
		record("A200", nil, map[string]int64{"Low": 1}),
	} {
		if _, err := store.Upsert(context.Background(), rec); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	return store
}

func readSheet(t *testing.T, data []byte, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("GetRows %s: %v", sheet, err)
	}
	return rows
}

func TestExportWorkbookSheets(t *testing.T) {
	e := NewExporter(seededStore(t), nil, nil)
	var buf bytes.Buffer
	n, err := e.Export(context.Background(), "vulnerability", &buf)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if n != 2 {
		t.Fatalf("records: want=2 got=%d", n)
	}

	wantRecords := [][]string{
		{"source_type", "identity_key", "org_unit", "app_id", "app_owner", "scan_date", "item_total", "category:High", "category:Low", "category:Medium", "loaded_at"},
		{"vulnerability", "LOB1|A100", "LOB1", "A100", "Dana", "2024-03-09", "3", "2", "0", "1", "2024-06-01T12:00:00Z"},
		{"vulnerability", "LOB1|A200", "LOB1", "A200", "", "2024-03-09", "1", "0", "1", "0", "2024-06-01T12:00:00Z"},
	}
	if diff := cmp.Diff(wantRecords, readSheet(t, buf.Bytes(), SheetRecords)); diff != "" {
		t.Fatalf("records sheet mismatch (-want +got):\n%s", diff)
	}
	wantItems := [][]string{
		{"identity_key", "item", "count", "cvss_score"},
		{"LOB1|A100", "X-01", "3", "7.5"},
		{"LOB1|A200", "X-01", "1", "7.5"},
	}
	if diff := cmp.Diff(wantItems, readSheet(t, buf.Bytes(), SheetItems)); diff != "" {
		t.Fatalf("items sheet mismatch (-want +got):\n%s", diff)
	}
}

func TestExportEmptySourceType(t *testing.T) {
	e := NewExporter(persist.NewMemoryStore(), nil, nil)
	var buf bytes.Buffer
	n, err := e.Export(context.Background(), "compliance", &buf)
	if err != nil || n != 0 {
		t.Fatalf("Export: n=%d err=%v", n, err)
	}
	rows := readSheet(t, buf.Bytes(), SheetRecords)
	if len(rows) != 1 {
		t.Fatalf("rows: want header only, got=%v", rows)
	}
}

type fakeUploader struct {
	key  string
	size int
}

func (u *fakeUploader) Upload(ctx context.Context, key string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	u.key, u.size = key, len(data)
	return "gs://exports/" + key, nil
}

func TestExportUpload(t *testing.T) {
	up := &fakeUploader{}
	e := NewExporter(seededStore(t), up, nil)
	e.now = func() time.Time { return loadedAt }

	uri, err := e.Upload(context.Background(), "vulnerability")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	wantKey := "rollups/vulnerability/vulnerability-20240601-120000.xlsx"
	if up.key != wantKey || uri != "gs://exports/"+wantKey {
		t.Fatalf("upload: key=%s uri=%s", up.key, uri)
	}
	if up.size == 0 {
		t.Fatalf("empty workbook uploaded")
	}
}

func TestExportUploadWithoutBucket(t *testing.T) {
	e := NewExporter(persist.NewMemoryStore(), nil, nil)
	if _, err := e.Upload(context.Background(), "vulnerability"); err == nil {
		t.Fatalf("expected error without uploader")
	}
}
