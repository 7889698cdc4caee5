package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
	"github.com/yungbote/rollup-backend/internal/rollup/aggregate"
)

// Source keeps collections in process, in ingestion order.
type Source struct {
	mu          sync.RWMutex
	collections map[string][]map[string]any
	failWith    error
}

func New() *Source {
	return &Source{collections: make(map[string][]map[string]any)}
}

func (s *Source) Ingest(ctx context.Context, collection string, docs []map[string]any) (int, error) {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return 0, fmt.Errorf("collection is required")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		cp := make(map[string]any, len(d))
		for k, v := range d {
			cp[k] = v
		}
		s.collections[collection] = append(s.collections[collection], cp)
	}
	return len(docs), nil
}

func (s *Source) Reset(ctx context.Context, collection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.collections, strings.TrimSpace(collection))
	s.mu.Unlock()
	return nil
}

// FailWith makes every subsequent Group call return err. Passing nil clears it.
func (s *Source) FailWith(err error) {
	s.mu.Lock()
	s.failWith = err
	s.mu.Unlock()
}

func (s *Source) Group(ctx context.Context, q aggregate.GroupQuery) ([]types.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	return aggregate.GroupDocuments(s.collections[strings.TrimSpace(q.Collection)], q), nil
}
