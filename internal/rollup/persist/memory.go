package persist

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
)

// MemoryStore is an in-process TargetStore.
type MemoryStore struct {
	mu    sync.Mutex
	rows  map[string][]*types.StoredRecord
	order []string
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[string][]*types.StoredRecord),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func memoryKey(st types.SourceType, key string) string {
	return string(st) + "\x00" + key
}

func (s *MemoryStore) Upsert(ctx context.Context, rec *types.CompositeRecord) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if rec == nil {
		return "", fmt.Errorf("nil record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memoryKey(rec.SourceType, rec.Key)
	matches := s.rows[k]
	now := s.now()
	switch len(matches) {
	case 0:
		s.rows[k] = []*types.StoredRecord{{
			ID:              uuid.New(),
			Version:         1,
			CompositeRecord: cloneComposite(rec),
			CreatedAt:       now,
			UpdatedAt:       now,
		}}
		s.order = append(s.order, k)
		return OutcomeInserted, nil
	case 1:
		cur := matches[0]
		cur.CompositeRecord = cloneComposite(rec)
		cur.Version++
		cur.UpdatedAt = now
		return OutcomeReplaced, nil
	default:
		return "", fmt.Errorf("%w: %d rows for identity_key=%q", types.ErrMultipleMatches, len(matches), rec.Key)
	}
}

func (s *MemoryStore) List(ctx context.Context, sourceType types.SourceType, limit int) ([]*types.StoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.StoredRecord
	for _, k := range s.order {
		for _, r := range s.rows[k] {
			if sourceType != "" && r.SourceType != sourceType {
				continue
			}
			cp := *r
			cp.CompositeRecord = cloneComposite(&r.CompositeRecord)
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, sourceType types.SourceType, identityKey string) ([]*types.StoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.rows[memoryKey(sourceType, identityKey)]
	out := make([]*types.StoredRecord, 0, len(rows))
	for _, r := range rows {
		cp := *r
		cp.CompositeRecord = cloneComposite(&r.CompositeRecord)
		out = append(out, &cp)
	}
	return out, nil
}

func cloneComposite(rec *types.CompositeRecord) types.CompositeRecord {
	out := *rec
	out.Header = make(types.Attributes, len(rec.Header))
	for k, v := range rec.Header {
		out.Header[k] = v
	}
	out.Items = append([]types.ItemizedEntity{}, rec.Items...)
	out.Categories = append([]types.CategoryCount{}, rec.Categories...)
	return out
}
