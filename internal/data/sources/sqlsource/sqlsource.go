package sqlsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/pkg/logger"
	"github.com/yungbote/rollup-backend/internal/rollup/aggregate"
)

const ingestBatchSize = 500

// Source reads raw documents from the source_documents table and groups them
// in process, streaming rows in id order.
type Source struct {
	db  *gorm.DB
	log *logger.Logger
}

func New(db *gorm.DB, baseLog *logger.Logger) *Source {
	if baseLog == nil {
		baseLog = logger.NewNop()
	}
	return &Source{db: db, log: baseLog.With("source", "SQLSource")}
}

func (s *Source) Ingest(ctx context.Context, collection string, docs []map[string]any) (int, error) {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return 0, fmt.Errorf("collection is required")
	}
	if len(docs) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	rows := make([]*types.SourceDocument, 0, len(docs))
	for i, d := range docs {
		raw, err := json.Marshal(d)
		if err != nil {
			return 0, fmt.Errorf("encode document %d: %w", i, err)
		}
		rows = append(rows, &types.SourceDocument{Collection: collection, Doc: datatypes.JSON(raw), IngestedAt: now})
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, ingestBatchSize).Error; err != nil {
		return 0, err
	}
	s.log.Debug("ingested documents", "collection", collection, "count", len(rows))
	return len(rows), nil
}

func (s *Source) Reset(ctx context.Context, collection string) error {
	return s.db.WithContext(ctx).
		Where("collection = ?", strings.TrimSpace(collection)).
		Delete(&types.SourceDocument{}).Error
}

func (s *Source) Group(ctx context.Context, q aggregate.GroupQuery) ([]types.RawRecord, error) {
	rows, err := s.db.WithContext(ctx).
		Model(&types.SourceDocument{}).
		Select("id", "doc").
		Where("collection = ?", q.Collection).
		Order("id ASC").
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	g := aggregate.NewGrouper(q)
	for rows.Next() {
		var doc types.SourceDocument
		if err := s.db.ScanRows(rows, &doc); err != nil {
			return nil, err
		}
		m, err := decodeDoc(doc.Doc)
		if err != nil {
			return nil, fmt.Errorf("source document %d: %w", doc.ID, err)
		}
		g.Add(m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return g.Records(), nil
}

func decodeDoc(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("malformed document: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("malformed document: not an object")
	}
	return m, nil
}
