package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
	"github.com/yungbote/rollup-backend/internal/rollup/persist"
)

// Exporter renders the stored records of one source type as a workbook.
type Exporter struct {
	store    persist.TargetStore
	uploader Uploader
	log      *logger.Logger
	now      func() time.Time
}

// NewExporter builds an exporter. uploader may be nil when exports are only
// streamed to callers.
func NewExporter(store persist.TargetStore, uploader Uploader, baseLog *logger.Logger) *Exporter {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	return &Exporter{
		store:    store,
		uploader: uploader,
		log:      baseLog.With("component", "ReportExporter"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// FileName is the download name of an export taken at t.
func FileName(sourceType string, t time.Time) string {
	return fmt.Sprintf("%s-%s.xlsx", sourceType, t.UTC().Format("20060102-150405"))
}

// ObjectKey is the bucket key of an export taken at t.
func ObjectKey(sourceType string, t time.Time) string {
	return "rollups/" + sourceType + "/" + FileName(sourceType, t)
}

// Export writes the workbook for sourceType to w and returns the number of records.
func (e *Exporter) Export(ctx context.Context, sourceType string, w io.Writer) (int, error) {
	st := strings.TrimSpace(sourceType)
	if st == "" {
		return 0, fmt.Errorf("source type is required")
	}
	recs, err := e.store.List(ctx, types.SourceType(st), 0)
	if err != nil {
		return 0, fmt.Errorf("list %s records: %w", st, err)
	}
	if err := Write(w, recs); err != nil {
		return 0, err
	}
	e.log.Info("export rendered", "source_type", st, "records", len(recs))
	return len(recs), nil
}

// Upload renders the workbook for sourceType and stores it with the uploader.
func (e *Exporter) Upload(ctx context.Context, sourceType string) (string, error) {
	if e.uploader == nil {
		return "", fmt.Errorf("no export bucket configured")
	}
	var buf bytes.Buffer
	if _, err := e.Export(ctx, sourceType, &buf); err != nil {
		return "", err
	}
	return e.uploader.Upload(ctx, ObjectKey(strings.TrimSpace(sourceType), e.now()), &buf)
}

// Now is the exporter's clock.
func (e *Exporter) Now() time.Time { return e.now() }
