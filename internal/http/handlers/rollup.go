package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/http/response"
	"github.com/yungbote/rollup-backend/internal/report"
	"github.com/yungbote/rollup-backend/internal/rollup/schema"
	"github.com/yungbote/rollup-backend/internal/temporalx/rolluprun"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type PipelineRunner interface {
	RunPipeline(ctx context.Context, sourceType, collection string) (types.RunSummary, error)
}

type RunScheduler interface {
	StartRun(ctx context.Context, sourceType, collection string) (rolluprun.Started, error)
}

type RecordLister interface {
	List(ctx context.Context, sourceType types.SourceType, limit int) ([]*types.StoredRecord, error)
	Get(ctx context.Context, sourceType types.SourceType, identityKey string) ([]*types.StoredRecord, error)
}

type ReportExporter interface {
	Export(ctx context.Context, sourceType string, w io.Writer) (int, error)
	Upload(ctx context.Context, sourceType string) (string, error)
}

type RollupHandlerDeps struct {
	Registry  *schema.Registry
	Runner    PipelineRunner
	Scheduler RunScheduler
	Records   RecordLister
	Exporter  ReportExporter
}

type RollupHandler struct {
	deps RollupHandlerDeps
}

func NewRollupHandler(deps RollupHandlerDeps) *RollupHandler {
	return &RollupHandler{deps: deps}
}

type runRequest struct {
	Collection string `json:"collection"`
	Async      bool   `json:"async"`
}

// POST /api/rollups/:source_type/run
func (h *RollupHandler) Run(c *gin.Context) {
	st, ok := h.sourceType(c)
	if !ok {
		return
	}
	var req runRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	if q := strings.TrimSpace(c.Query("collection")); q != "" {
		req.Collection = q
	}
	if v, err := strconv.ParseBool(c.DefaultQuery("async", "false")); err == nil && v {
		req.Async = true
	}

	if req.Async {
		if h.deps.Scheduler == nil {
			response.RespondError(c, http.StatusBadRequest, "async_unavailable", fmt.Errorf("no workflow scheduler configured"))
			return
		}
		started, err := h.deps.Scheduler.StartRun(c.Request.Context(), st, req.Collection)
		if err != nil {
			response.RespondError(c, http.StatusBadGateway, "schedule_failed", err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"run": started})
		return
	}

	summary, err := h.deps.Runner.RunPipeline(c.Request.Context(), st, req.Collection)
	if err != nil {
		response.RespondPipelineError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"summary": summary})
}

// GET /api/rollups/:source_type/records
// GET /api/rollups/:source_type/records?identity_key=LOB1|A100
//
// With identity_key every stored row for that identity is returned, so a
// duplicated identity shows up as more than one record.
func (h *RollupHandler) ListRecords(c *gin.Context) {
	st, ok := h.sourceType(c)
	if !ok {
		return
	}
	if key, set := c.GetQuery("identity_key"); set {
		recs, err := h.deps.Records.Get(c.Request.Context(), types.SourceType(st), key)
		if err != nil {
			response.RespondError(c, http.StatusInternalServerError, "lookup_failed", err)
			return
		}
		if len(recs) == 0 {
			response.RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("no record for identity_key %q", key))
			return
		}
		response.RespondOK(c, gin.H{"records": recs, "count": len(recs)})
		return
	}
	limit := defaultListLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = min(n, maxListLimit)
	}
	recs, err := h.deps.Records.List(c.Request.Context(), types.SourceType(st), limit)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"records": recs, "count": len(recs)})
}

// GET /api/rollups/:source_type/export
func (h *RollupHandler) Export(c *gin.Context) {
	st, ok := h.sourceType(c)
	if !ok {
		return
	}
	if h.deps.Exporter == nil {
		response.RespondError(c, http.StatusNotFound, "export_unavailable", fmt.Errorf("export is not configured"))
		return
	}
	if upload, _ := strconv.ParseBool(c.DefaultQuery("upload", "false")); upload {
		uri, err := h.deps.Exporter.Upload(c.Request.Context(), st)
		if err != nil {
			response.RespondError(c, http.StatusBadGateway, "upload_failed", err)
			return
		}
		response.RespondOK(c, gin.H{"uri": uri})
		return
	}

	var buf bytes.Buffer
	if _, err := h.deps.Exporter.Export(c.Request.Context(), st, &buf); err != nil {
		response.RespondError(c, http.StatusInternalServerError, "export_failed", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", report.FileName(st, time.Now())))
	c.Data(http.StatusOK, report.ContentType, buf.Bytes())
}

// sourceType validates the path parameter against the registry.
func (h *RollupHandler) sourceType(c *gin.Context) (string, bool) {
	st := strings.TrimSpace(c.Param("source_type"))
	if h.deps.Registry != nil {
		if _, err := h.deps.Registry.Resolve(st); err != nil {
			response.RespondPipelineError(c, types.NewPipelineError(types.KindConfiguration, "resolve", st, err))
			return "", false
		}
	}
	return st, true
}
