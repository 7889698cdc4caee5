package aggregate

import (
	"context"
	"strings"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
)

// GroupQuery asks a source store to group a collection by GroupBy and, for every
// group, return the First fields of its earliest document plus the row count.
type GroupQuery struct {
	Collection string
	GroupBy    []string
	First      []string
}

// Source is the grouping capability the engine depends on. Each returned record
// carries every GroupBy field (null groups as ""), every First field (possibly nil)
// and types.CountField. Groups come back in order of their earliest document.
type Source interface {
	Group(ctx context.Context, q GroupQuery) ([]types.RawRecord, error)
}

// Ingester is implemented by source stores that accept raw documents.
// Reset drops every document of a collection.
type Ingester interface {
	Ingest(ctx context.Context, collection string, docs []map[string]any) (int, error)
	Reset(ctx context.Context, collection string) error
}

// Lookup resolves a dotted path inside a nested document.
func Lookup(doc map[string]any, path string) (any, bool) {
	if doc == nil {
		return nil, false
	}
	if v, ok := doc[path]; ok {
		return v, true
	}
	parts := strings.Split(path, ".")
	if len(parts) == 1 {
		return nil, false
	}
	var cur any = doc
	for _, p := range parts {
		switch m := cur.(type) {
		case map[string]any:
			v, ok := m[p]
			if !ok {
				return nil, false
			}
			cur = v
		case types.RawRecord:
			v, ok := m[p]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}
