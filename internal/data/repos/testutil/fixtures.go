package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
)

func SeedSourceDocuments(tb testing.TB, ctx context.Context, tx *gorm.DB, collection string, docs ...map[string]any) {
	tb.Helper()
	now := time.Now().UTC()
	for _, d := range docs {
		raw, err := json.Marshal(d)
		if err != nil {
			tb.Fatalf("marshal source doc: %v", err)
		}
		row := &types.SourceDocument{Collection: collection, Doc: datatypes.JSON(raw), IngestedAt: now}
		if err := tx.WithContext(ctx).Create(row).Error; err != nil {
			tb.Fatalf("seed source doc: %v", err)
		}
	}
}

// SeedRollupRecord inserts a bare target row, bypassing the repo's matching.
func SeedRollupRecord(tb testing.TB, ctx context.Context, tx *gorm.DB, sourceType, identityKey string) *types.RollupRecord {
	tb.Helper()
	now := time.Now().UTC()
	r := &types.RollupRecord{
		ID:          uuid.New(),
		SourceType:  sourceType,
		IdentityKey: identityKey,
		Identity:    datatypes.JSON([]byte("{}")),
		Header:      datatypes.JSON([]byte("{}")),
		Items:       datatypes.JSON([]byte("[]")),
		Categories:  datatypes.JSON([]byte("[]")),
		LoadedAt:    now,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed rollup record: %v", err)
	}
	return r
}
