package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	appdb "github.com/yungbote/rollup-backend/internal/data/db"
	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
)

func memoryConfig() Config {
	return Config{
		SourceDriver: SourceMemory,
		TargetDriver: TargetMemory,
		Port:         "0",
	}
}

func findings() []map[string]any {
	doc := func(name, sev string) map[string]any {
		return map[string]any{
			"lob_name": "LOB1", "app_id": "A100", "asset_category": "Server",
			"operating_system": "Linux", "region": "US",
			"app_owner_name": "Dana", "finding_name": name, "severity": sev,
		}
	}
	return []map[string]any{doc("X-01", "High"), doc("X-01", "High"), doc("X-02", "Medium")}
}

func TestNewWithConfigMemoryPipeline(t *testing.T) {
	ctx := context.Background()
	a, err := NewWithConfig(ctx, logger.NewNop(), memoryConfig())
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	defer a.Close(ctx)

	if a.DB != nil {
		t.Fatalf("memory drivers should not open a database")
	}
	if _, err := a.Repos.Ingester.Ingest(ctx, "vulnerability", findings()); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	summary, err := a.Services.Orchestrator.RunPipeline(ctx, string(types.SourceVulnerability), "")
	if err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}
	if summary.HeadersProcessed != 1 || summary.RecordsUpserted != 1 {
		t.Fatalf("summary: %+v", summary)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/rollups/vulnerability/records", nil)
	a.Router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("records: want=%d got=%d body=%s", http.StatusOK, w.Code, w.Body.String())
	}
}

func TestNewWithConfigSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	cfg.SourceDriver = SourceSQL
	cfg.TargetDriver = TargetSQL
	cfg.DB = appdb.Config{Driver: appdb.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "rollup.db")}

	a, err := NewWithConfig(ctx, logger.NewNop(), cfg)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	defer a.Close(ctx)
	if a.Repos.RollupRecord == nil {
		t.Fatalf("sql target should wire the rollup record repo")
	}

	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("healthcheck: want=%d got=%d body=%s", http.StatusOK, w.Code, w.Body.String())
	}
}

func TestNewWithConfigBadSchemaFile(t *testing.T) {
	cfg := memoryConfig()
	cfg.SchemaFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := NewWithConfig(context.Background(), logger.NewNop(), cfg); err == nil {
		t.Fatalf("expected error for missing schema file")
	}
}

func TestRunWorkerRequiresTemporal(t *testing.T) {
	ctx := context.Background()
	a, err := NewWithConfig(ctx, logger.NewNop(), memoryConfig())
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	defer a.Close(ctx)
	if err := a.RunWorker(ctx); err == nil {
		t.Fatalf("expected error without temporal")
	}
}
